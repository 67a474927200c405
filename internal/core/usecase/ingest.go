package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/studyforge/internal/core/domain"
	"github.com/kirillkom/studyforge/internal/core/ports"
)

const defaultMaxUploadBytes = 10 << 20

type IngestDocumentUseCase struct {
	repo           ports.DocumentRepository
	storage        ports.ObjectStorage
	extractor      ports.TextExtractor
	packs          ports.StudyPackRepository
	maxUploadBytes int64
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	maxUploadBytes int64,
) *IngestDocumentUseCase {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &IngestDocumentUseCase{
		repo:           repo,
		storage:        storage,
		extractor:      extractor,
		maxUploadBytes: maxUploadBytes,
	}
}

// WithStudyPacks lets new documents be filed under one of the owner's study packs.
func (uc *IngestDocumentUseCase) WithStudyPacks(packs ports.StudyPackRepository) *IngestDocumentUseCase {
	uc.packs = packs
	return uc
}

// Upload extracts text from the file, keeps the original in object storage and creates
// the document. Unsupported or oversized files are rejected before anything is stored.
func (uc *IngestDocumentUseCase) Upload(ctx context.Context, req ports.UploadRequest) (*domain.Document, error) {
	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("owner id is required"))
	}
	if req.Body == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("file is required"))
	}
	packID, err := uc.resolveStudyPack(ctx, ownerID, req.StudyPackID)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(req.Body, uc.maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > uc.maxUploadBytes {
		return nil, domain.WrapError(domain.ErrFileTooLarge, "upload document", fmt.Errorf("limit is %d bytes", uc.maxUploadBytes))
	}

	text, err := uc.extractor.Extract(ctx, req.Filename, req.MimeType, data)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}

	id := domain.NewDocumentID()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(req.Filename))
	if err := uc.storage.Save(ctx, storageKey, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(req.Filename), filepath.Ext(req.Filename))
	}
	doc := newDocument(id, ownerID, title, domain.SanitizeText(text))
	doc.Filename = req.Filename
	doc.MimeType = req.MimeType
	doc.StoragePath = storageKey
	doc.StudyPackID = packID

	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	return doc, nil
}

// CreateText stores an authored document.
func (uc *IngestDocumentUseCase) CreateText(ctx context.Context, req ports.TextDocumentRequest) (*domain.Document, error) {
	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create document", errors.New("owner id is required"))
	}
	if int64(len(req.Content)) > uc.maxUploadBytes {
		return nil, domain.WrapError(domain.ErrFileTooLarge, "create document", fmt.Errorf("limit is %d bytes", uc.maxUploadBytes))
	}
	packID, err := uc.resolveStudyPack(ctx, ownerID, req.StudyPackID)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Untitled"
	}
	doc := newDocument(domain.NewDocumentID(), ownerID, title, domain.SanitizeText(req.Content))
	doc.StudyPackID = packID
	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	return doc, nil
}

// resolveStudyPack checks that packID, when set, belongs to ownerID.
func (uc *IngestDocumentUseCase) resolveStudyPack(ctx context.Context, ownerID, packID string) (string, error) {
	packID = strings.TrimSpace(packID)
	if packID == "" {
		return "", nil
	}
	if uc.packs == nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "file document", errors.New("study packs are not available"))
	}
	if _, err := ownedStudyPack(ctx, uc.packs, ownerID, packID); err != nil {
		return "", err
	}
	return packID, nil
}

func newDocument(id, ownerID, title, content string) *domain.Document {
	now := time.Now().UTC()
	return &domain.Document{
		ID:               id,
		OwnerID:          ownerID,
		Title:            title,
		Content:          content,
		SummaryStatus:    domain.StatusNone,
		MindMapStatus:    domain.StatusNone,
		FlashCardsStatus: domain.StatusNone,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
