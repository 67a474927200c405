package ports

import (
	"context"
	"io"

	"github.com/kirillkom/studyforge/internal/core/domain"
)

// DocumentRepository persists documents and their per-kind generation status.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	// TransitionStatus applies a validated status change. A self transition succeeds without a write.
	TransitionStatus(ctx context.Context, id string, kind domain.ArtifactKind, to domain.GenerationStatus) error
	// List returns the owner's documents newest first, without their content.
	List(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error)
}

// StudyPackRepository persists study packs.
type StudyPackRepository interface {
	CreateStudyPack(ctx context.Context, pack *domain.StudyPack) error
	GetStudyPack(ctx context.Context, id string) (*domain.StudyPack, error)
	// ListStudyPacks returns the owner's packs newest first.
	ListStudyPacks(ctx context.Context, ownerID string) ([]domain.StudyPack, error)
}

// ArtifactStore keeps at most one live artifact per (document, kind).
type ArtifactStore interface {
	// Replace deletes every prior artifact for the pair and inserts the new one atomically.
	Replace(ctx context.Context, artifact *domain.Artifact) error
	Get(ctx context.Context, documentID string, kind domain.ArtifactKind) (*domain.Artifact, error)
}

// UserRepository mirrors identity-provider users.
type UserRepository interface {
	UpsertUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// CreditStore is the only writer of user balances. Every mutation is a single atomic
// server-side statement.
type CreditStore interface {
	Balance(ctx context.Context, userID string) (domain.Credits, error)
	// Reserve decrements the balance only if it covers amount.
	Reserve(ctx context.Context, userID string, amount domain.Credits) error
	Refund(ctx context.Context, userID string, amount domain.Credits) error
	// ApplyPayment increments the balance and records tx in one transaction.
	// A reused reference fails with ErrPaymentAlreadyApplied.
	ApplyPayment(ctx context.Context, tx *domain.CreditTransaction) error

	CreateTransaction(ctx context.Context, tx *domain.CreditTransaction) error
	GetTransaction(ctx context.Context, id string) (*domain.CreditTransaction, error)
	// SettleTransaction moves an in_progress transaction to a terminal status.
	SettleTransaction(ctx context.Context, id string, status domain.TransactionStatus) error
	ListTransactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error)
}

// ObjectStorage stores uploaded source files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// TextExtractor turns an uploaded file into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, filename, mimeType string, data []byte) (string, error)
}

// Generator invokes the language model.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// Chunker splits text into overlapping chunks.
type Chunker interface {
	Split(text string) []string
}

// Tokenizer counts tokens with a fixed reference vocabulary.
type Tokenizer interface {
	CountTokens(text string) (int, error)
}

// TokenCountCache memoises token counts by content hash.
type TokenCountCache interface {
	GetTokenCount(ctx context.Context, key string) (int, bool, error)
	SetTokenCount(ctx context.Context, key string, tokens int) error
}

// PaymentVerifier confirms a payment reference with the provider.
type PaymentVerifier interface {
	Verify(ctx context.Context, reference string) (domain.PaymentVerification, error)
}
