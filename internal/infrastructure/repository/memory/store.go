package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/studyforge/internal/core/domain"
)

// Store keeps every repository in process memory behind one mutex. It backs local
// development (STORE_DRIVER=memory) and use-case tests.
type Store struct {
	mu sync.RWMutex

	users        map[string]*domain.User
	documents    map[string]*domain.Document
	artifacts    map[string]*domain.Artifact
	transactions map[string]*domain.CreditTransaction
	references   map[string]string
	runs         map[string]*domain.PipelineRun
	studyPacks   map[string]*domain.StudyPack
	steps        map[string][]domain.StepRecord

	now func() time.Time
}

func New() *Store {
	return &Store{
		users:        make(map[string]*domain.User),
		documents:    make(map[string]*domain.Document),
		artifacts:    make(map[string]*domain.Artifact),
		transactions: make(map[string]*domain.CreditTransaction),
		references:   make(map[string]string),
		runs:         make(map[string]*domain.PipelineRun),
		studyPacks:   make(map[string]*domain.StudyPack),
		steps:        make(map[string][]domain.StepRecord),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Used by tests that exercise staleness.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func artifactKey(documentID string, kind domain.ArtifactKind) string {
	return documentID + ":" + string(kind)
}

// Users

func (s *Store) UpsertUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.users[user.ID]; ok {
		existing.ExternalID = user.ExternalID
		existing.Email = user.Email
		existing.UpdatedAt = now
		*user = *existing
		return nil
	}
	stored := *user
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.users[user.ID] = &stored
	*user = stored
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrUserNotFound, "get user", fmt.Errorf("id=%s", id))
	}
	out := *user
	return &out, nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	return nil
}

// Credits

func (s *Store) Balance(_ context.Context, userID string) (domain.Credits, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return 0, domain.WrapError(domain.ErrUserNotFound, "get balance", fmt.Errorf("id=%s", userID))
	}
	return user.Credits, nil
}

func (s *Store) Reserve(_ context.Context, userID string, amount domain.Credits) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return domain.WrapError(domain.ErrUserNotFound, "reserve credits", fmt.Errorf("id=%s", userID))
	}
	if user.Credits < amount {
		return domain.WrapError(domain.ErrInsufficientCredits, "reserve credits", fmt.Errorf("balance=%s amount=%s", user.Credits, amount))
	}
	user.Credits -= amount
	user.UpdatedAt = s.now()
	return nil
}

func (s *Store) Refund(_ context.Context, userID string, amount domain.Credits) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return domain.WrapError(domain.ErrUserNotFound, "refund credits", fmt.Errorf("id=%s", userID))
	}
	user.Credits += amount
	user.UpdatedAt = s.now()
	return nil
}

func (s *Store) ApplyPayment(_ context.Context, tx *domain.CreditTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.references[tx.Reference]; dup && tx.Reference != "" {
		return domain.WrapError(domain.ErrPaymentAlreadyApplied, "apply payment", fmt.Errorf("reference=%s", tx.Reference))
	}
	user, ok := s.users[tx.UserID]
	if !ok {
		return domain.WrapError(domain.ErrUserNotFound, "apply payment", fmt.Errorf("id=%s", tx.UserID))
	}
	now := s.now()
	user.Credits += tx.Amount
	user.UpdatedAt = now

	stored := *tx
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.transactions[tx.ID] = &stored
	if tx.Reference != "" {
		s.references[tx.Reference] = tx.ID
	}
	*tx = stored
	return nil
}

func (s *Store) CreateTransaction(_ context.Context, tx *domain.CreditTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[tx.ID]; exists {
		return domain.WrapError(domain.ErrInvalidInput, "create transaction", fmt.Errorf("duplicate id=%s", tx.ID))
	}
	now := s.now()
	stored := *tx
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.transactions[tx.ID] = &stored
	*tx = stored
	return nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.CreditTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrTransactionNotFound, "get transaction", fmt.Errorf("id=%s", id))
	}
	out := *tx
	return &out, nil
}

func (s *Store) SettleTransaction(_ context.Context, id string, status domain.TransactionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return domain.WrapError(domain.ErrTransactionNotFound, "settle transaction", fmt.Errorf("id=%s", id))
	}
	if err := domain.ValidateTransactionStatus(tx.Status, status); err != nil {
		return err
	}
	tx.Status = status
	tx.UpdatedAt = s.now()
	return nil
}

func (s *Store) ListTransactions(_ context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.CreditTransaction, 0)
	for _, tx := range s.transactions {
		if tx.UserID == userID {
			out = append(out, *tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Documents

func (s *Store) Create(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.documents[doc.ID]; exists {
		return domain.WrapError(domain.ErrInvalidInput, "create document", fmt.Errorf("duplicate id=%s", doc.ID))
	}
	stored := *doc
	for _, kind := range domain.ArtifactKinds {
		stored.SetStatus(kind, stored.StatusOf(kind))
	}
	s.documents[doc.ID] = &stored
	*doc = stored
	return nil
}

func (s *Store) GetByID(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	out := *doc
	return &out, nil
}

func (s *Store) TransitionStatus(_ context.Context, id string, kind domain.ArtifactKind, to domain.GenerationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "transition status", fmt.Errorf("id=%s", id))
	}
	from := doc.StatusOf(kind)
	if err := domain.ValidateTransition(from, to); err != nil {
		return err
	}
	if from == to {
		return nil
	}
	doc.SetStatus(kind, to)
	doc.UpdatedAt = s.now()
	return nil
}

// List matches the filter in memory; the title match is case-insensitive.
func (s *Store) List(_ context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(filter.TitleContains)
	out := make([]domain.Document, 0)
	for _, doc := range s.documents {
		if doc.OwnerID != filter.OwnerID {
			continue
		}
		if filter.StudyPackID != "" && doc.StudyPackID != filter.StudyPackID {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(doc.Title), needle) {
			continue
		}
		listed := *doc
		listed.Content = ""
		out = append(out, listed)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Study packs

func (s *Store) CreateStudyPack(_ context.Context, pack *domain.StudyPack) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.studyPacks[pack.ID]; exists {
		return domain.WrapError(domain.ErrInvalidInput, "create study pack", fmt.Errorf("duplicate id=%s", pack.ID))
	}
	stored := *pack
	stored.AreasOfConcentration = append([]string(nil), pack.AreasOfConcentration...)
	s.studyPacks[pack.ID] = &stored
	return nil
}

func (s *Store) GetStudyPack(_ context.Context, id string) (*domain.StudyPack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pack, ok := s.studyPacks[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrStudyPackNotFound, "get study pack", fmt.Errorf("id=%s", id))
	}
	out := *pack
	out.AreasOfConcentration = append([]string(nil), pack.AreasOfConcentration...)
	return &out, nil
}

func (s *Store) ListStudyPacks(_ context.Context, ownerID string) ([]domain.StudyPack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.StudyPack, 0)
	for _, pack := range s.studyPacks {
		if pack.OwnerID == ownerID {
			listed := *pack
			listed.AreasOfConcentration = append([]string(nil), pack.AreasOfConcentration...)
			out = append(out, listed)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Artifacts

func (s *Store) Replace(_ context.Context, artifact *domain.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *artifact
	stored.Payload = append(json.RawMessage(nil), artifact.Payload...)
	stored.CreatedAt = s.now()
	s.artifacts[artifactKey(artifact.DocumentID, artifact.Kind)] = &stored
	artifact.CreatedAt = stored.CreatedAt
	return nil
}

func (s *Store) Get(_ context.Context, documentID string, kind domain.ArtifactKind) (*domain.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	artifact, ok := s.artifacts[artifactKey(documentID, kind)]
	if !ok {
		return nil, domain.WrapError(domain.ErrArtifactNotFound, "get artifact", fmt.Errorf("document=%s kind=%s", documentID, kind))
	}
	out := *artifact
	return &out, nil
}

// CountArtifacts reports how many live artifacts exist for the pair.
func (s *Store) CountArtifacts(documentID string, kind domain.ArtifactKind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.artifacts[artifactKey(documentID, kind)]; ok {
		return 1
	}
	return 0
}

// Runs

func (s *Store) CreateRun(_ context.Context, run *domain.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.runs {
		if existing.DocumentID == run.DocumentID && existing.Kind == run.Kind && !existing.State.Terminal() {
			return domain.WrapError(domain.ErrGenerationInProgress, "create run", fmt.Errorf("active run=%s", existing.ID))
		}
	}
	now := s.now()
	stored := *run
	if stored.State == "" {
		stored.State = domain.RunPending
	}
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.runs[run.ID] = &stored
	*run = stored
	return nil
}

func (s *Store) GetRun(_ context.Context, id string) (*domain.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrRunNotFound, "get run", fmt.Errorf("id=%s", id))
	}
	out := *run
	return &out, nil
}

func (s *Store) ClaimRun(_ context.Context, id string, staleAfter time.Duration) (*domain.PipelineRun, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, false, domain.WrapError(domain.ErrRunNotFound, "claim run", fmt.Errorf("id=%s", id))
	}
	now := s.now()
	claimable := run.State == domain.RunPending ||
		(run.State == domain.RunInProgress && (run.HeartbeatAt == nil || run.HeartbeatAt.Before(now.Add(-staleAfter))))
	if !claimable {
		out := *run
		return &out, false, nil
	}
	run.State = domain.RunInProgress
	run.Attempts++
	run.UpdatedAt = now
	run.HeartbeatAt = &now
	if run.StartedAt == nil {
		run.StartedAt = &now
	}
	out := *run
	return &out, true, nil
}

func (s *Store) Heartbeat(_ context.Context, id string, lease int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return false, domain.WrapError(domain.ErrRunNotFound, "heartbeat run", fmt.Errorf("id=%s", id))
	}
	if run.State != domain.RunInProgress || run.Attempts != lease {
		return false, nil
	}
	now := s.now()
	run.HeartbeatAt = &now
	return true, nil
}

func (s *Store) ReleaseRun(_ context.Context, id string, lease int, lastError string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return false, domain.WrapError(domain.ErrRunNotFound, "release run", fmt.Errorf("id=%s", id))
	}
	if run.State != domain.RunInProgress || run.Attempts != lease {
		return false, nil
	}
	run.State = domain.RunPending
	run.LastError = lastError
	run.UpdatedAt = s.now()
	return true, nil
}

func (s *Store) FinishRun(_ context.Context, id string, lease int, state domain.RunState, lastError string) (bool, error) {
	if !state.Terminal() {
		return false, domain.WrapError(domain.ErrInvalidTransition, "finish run", fmt.Errorf("state %q is not terminal", state))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return false, domain.WrapError(domain.ErrRunNotFound, "finish run", fmt.Errorf("id=%s", id))
	}
	if run.State.Terminal() {
		return false, nil
	}
	if lease != domain.NoLease && (run.State != domain.RunInProgress || run.Attempts != lease) {
		return false, nil
	}
	now := s.now()
	run.State = state
	run.LastError = lastError
	run.UpdatedAt = now
	run.FinishedAt = &now
	return true, nil
}

func (s *Store) AbandonRun(_ context.Context, id string, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return false, domain.WrapError(domain.ErrRunNotFound, "abandon run", fmt.Errorf("id=%s", id))
	}
	if run.State != domain.RunPending {
		return false, nil
	}
	now := s.now()
	run.State = domain.RunFailed
	run.LastError = reason
	run.UpdatedAt = now
	run.FinishedAt = &now
	return true, nil
}

func (s *Store) ListRecoverable(_ context.Context, idleBefore, staleBefore time.Time, limit int) ([]domain.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PipelineRun, 0)
	for _, run := range s.runs {
		pendingIdle := run.State == domain.RunPending && run.UpdatedAt.Before(idleBefore)
		stale := run.State == domain.RunInProgress && run.HeartbeatAt != nil && run.HeartbeatAt.Before(staleBefore)
		if pendingIdle || stale {
			out = append(out, *run)
		}
	}
	return capRuns(out, limit), nil
}

func (s *Store) ListOverdue(_ context.Context, createdBefore time.Time, limit int) ([]domain.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PipelineRun, 0)
	for _, run := range s.runs {
		if !run.State.Terminal() && run.CreatedAt.Before(createdBefore) {
			out = append(out, *run)
		}
	}
	return capRuns(out, limit), nil
}

func capRuns(runs []domain.PipelineRun, limit int) []domain.PipelineRun {
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.Before(runs[j].CreatedAt) })
	if limit > 0 && len(runs) > limit {
		return runs[:limit]
	}
	return runs
}

// Step log

func (s *Store) CompletedSteps(_ context.Context, runID string) ([]domain.StepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.StepRecord(nil), s.steps[runID]...), nil
}

func (s *Store) RecordStep(_ context.Context, record domain.StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.steps[record.RunID] {
		if existing.Step == record.Step {
			return nil
		}
	}
	if record.CompletedAt.IsZero() {
		record.CompletedAt = s.now()
	}
	s.steps[record.RunID] = append(s.steps[record.RunID], record)
	return nil
}
