package ports

import (
	"context"
	"io"

	"github.com/kirillkom/studyforge/internal/core/domain"
)

// UploadRequest is a file upload for a new document. StudyPackID is optional.
type UploadRequest struct {
	OwnerID     string
	Title       string
	Filename    string
	MimeType    string
	StudyPackID string
	Body        io.Reader
}

// TextDocumentRequest is an authored document. StudyPackID is optional.
type TextDocumentRequest struct {
	OwnerID     string
	Title       string
	Content     string
	StudyPackID string
}

// DocumentIngestor is the inbound contract for document creation.
type DocumentIngestor interface {
	Upload(ctx context.Context, req UploadRequest) (*domain.Document, error)
	CreateText(ctx context.Context, req TextDocumentRequest) (*domain.Document, error)
}

// DocumentReader is the inbound read model for documents and their artifacts, scoped to the owner.
type DocumentReader interface {
	GetDocument(ctx context.Context, userID, documentID string) (*domain.Document, error)
	GetArtifact(ctx context.Context, userID, documentID string, kind domain.ArtifactKind) (*domain.Artifact, error)
	// ListDocuments is the owner's library. filter.OwnerID is ignored in favour of userID.
	ListDocuments(ctx context.Context, userID string, filter domain.DocumentFilter) ([]domain.Document, error)
}

// StudyPackLibrary manages a user's study packs.
type StudyPackLibrary interface {
	CreateStudyPack(ctx context.Context, pack domain.StudyPack) (*domain.StudyPack, error)
	ListStudyPacks(ctx context.Context, userID string) ([]domain.StudyPack, error)
	GetStudyPack(ctx context.Context, userID, packID string) (*domain.StudyPackDetails, error)
}

// CostEstimator prices text for an artifact kind.
type CostEstimator interface {
	EstimateCost(ctx context.Context, text string, kind domain.ArtifactKind) (domain.Credits, error)
}

// GenerationTrigger is the inbound contract for requesting artifacts.
type GenerationTrigger interface {
	Quote(ctx context.Context, userID, documentID string, kind domain.ArtifactKind) (domain.Credits, error)
	Trigger(ctx context.Context, req domain.GenerationRequest) (*domain.TriggerResult, error)
}

// CreditAccounts exposes balances and the transaction audit log.
type CreditAccounts interface {
	Balance(ctx context.Context, userID string) (domain.Credits, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error)
}

// TopUpResult reports a verified payment.
type TopUpResult struct {
	TransactionID string         `json:"transaction_id"`
	CreditsAdded  domain.Credits `json:"credits_added"`
	Balance       domain.Credits `json:"balance"`
}

// PaymentProcessor converts verified payments into credits.
type PaymentProcessor interface {
	VerifyPayment(ctx context.Context, userID, reference string) (*TopUpResult, error)
}

// IdentitySync applies identity-provider events to the user table.
type IdentitySync interface {
	HandleIdentityEvent(ctx context.Context, event domain.IdentityEvent) (*domain.User, error)
}
