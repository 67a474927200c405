package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/studyforge/internal/core/domain"
	"github.com/kirillkom/studyforge/internal/core/ports"
)

type DocumentReaderUseCase struct {
	documents ports.DocumentRepository
	artifacts ports.ArtifactStore
}

func NewDocumentReaderUseCase(documents ports.DocumentRepository, artifacts ports.ArtifactStore) *DocumentReaderUseCase {
	return &DocumentReaderUseCase{documents: documents, artifacts: artifacts}
}

// GetDocument hides documents of other owners behind not-found.
func (uc *DocumentReaderUseCase) GetDocument(ctx context.Context, userID, documentID string) (*domain.Document, error) {
	doc, err := uc.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if doc.OwnerID != userID {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", documentID))
	}
	return doc, nil
}

const (
	defaultLibraryLimit = 50
	maxLibraryLimit     = 200
)

// ListDocuments returns the user's library, newest first. Content is left out.
func (uc *DocumentReaderUseCase) ListDocuments(ctx context.Context, userID string, filter domain.DocumentFilter) ([]domain.Document, error) {
	filter.OwnerID = strings.TrimSpace(userID)
	if filter.OwnerID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list documents", errors.New("user id is required"))
	}
	filter.StudyPackID = strings.TrimSpace(filter.StudyPackID)
	filter.TitleContains = strings.TrimSpace(filter.TitleContains)
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultLibraryLimit
	case filter.Limit > maxLibraryLimit:
		filter.Limit = maxLibraryLimit
	}

	docs, err := uc.documents.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

func (uc *DocumentReaderUseCase) GetArtifact(ctx context.Context, userID, documentID string, kind domain.ArtifactKind) (*domain.Artifact, error) {
	if !kind.Valid() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get artifact", fmt.Errorf("unknown kind %q", kind))
	}
	if _, err := uc.GetDocument(ctx, userID, documentID); err != nil {
		return nil, err
	}
	artifact, err := uc.artifacts.Get(ctx, documentID, kind)
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return artifact, nil
}
