package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/studyforge/internal/core/domain"
	"github.com/kirillkom/studyforge/internal/core/ports"
)

type StudyPackUseCase struct {
	packs     ports.StudyPackRepository
	documents ports.DocumentRepository
}

func NewStudyPackUseCase(packs ports.StudyPackRepository, documents ports.DocumentRepository) *StudyPackUseCase {
	return &StudyPackUseCase{packs: packs, documents: documents}
}

func (uc *StudyPackUseCase) CreateStudyPack(ctx context.Context, pack domain.StudyPack) (*domain.StudyPack, error) {
	pack.Normalize()
	if err := pack.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	pack.ID = domain.NewStudyPackID()
	pack.CreatedAt = now
	pack.UpdatedAt = now

	if err := uc.packs.CreateStudyPack(ctx, &pack); err != nil {
		return nil, fmt.Errorf("create study pack: %w", err)
	}
	return &pack, nil
}

func (uc *StudyPackUseCase) ListStudyPacks(ctx context.Context, userID string) ([]domain.StudyPack, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list study packs", errors.New("user id is required"))
	}
	packs, err := uc.packs.ListStudyPacks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list study packs: %w", err)
	}
	return packs, nil
}

// GetStudyPack returns the pack with the documents filed under it.
func (uc *StudyPackUseCase) GetStudyPack(ctx context.Context, userID, packID string) (*domain.StudyPackDetails, error) {
	pack, err := ownedStudyPack(ctx, uc.packs, userID, packID)
	if err != nil {
		return nil, err
	}
	docs, err := uc.documents.List(ctx, domain.DocumentFilter{
		OwnerID:     pack.OwnerID,
		StudyPackID: pack.ID,
		Limit:       maxLibraryLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("list study pack documents: %w", err)
	}
	return &domain.StudyPackDetails{StudyPack: *pack, Documents: docs}, nil
}

// ownedStudyPack hides packs of other owners behind not-found.
func ownedStudyPack(ctx context.Context, packs ports.StudyPackRepository, userID, packID string) (*domain.StudyPack, error) {
	pack, err := packs.GetStudyPack(ctx, strings.TrimSpace(packID))
	if err != nil {
		return nil, fmt.Errorf("get study pack: %w", err)
	}
	if pack.OwnerID != strings.TrimSpace(userID) {
		return nil, domain.WrapError(domain.ErrStudyPackNotFound, "get study pack", fmt.Errorf("id=%s", packID))
	}
	return pack, nil
}
