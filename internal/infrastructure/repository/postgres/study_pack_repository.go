package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/studyforge/internal/core/domain"
)

const studyPackColumns = `id, owner_id, title, description, areas_of_concentration, created_at, updated_at`

type StudyPackRepository struct {
	db *sql.DB
}

func NewStudyPackRepository(db *sql.DB) *StudyPackRepository {
	return &StudyPackRepository{db: db}
}

func (r *StudyPackRepository) CreateStudyPack(ctx context.Context, pack *domain.StudyPack) error {
	areas := pack.AreasOfConcentration
	if areas == nil {
		areas = []string{}
	}
	encoded, err := json.Marshal(areas)
	if err != nil {
		return fmt.Errorf("marshal areas of concentration: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO study_packs (`+studyPackColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, pack.ID, pack.OwnerID, pack.Title, pack.Description, encoded, pack.CreatedAt, pack.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert study pack: %w", err)
	}
	return nil
}

func (r *StudyPackRepository) GetStudyPack(ctx context.Context, id string) (*domain.StudyPack, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+studyPackColumns+` FROM study_packs WHERE id = $1`, id)
	pack, err := scanStudyPack(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrStudyPackNotFound, "get study pack", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get study pack: %w", err)
	}
	return &pack, nil
}

func (r *StudyPackRepository) ListStudyPacks(ctx context.Context, ownerID string) ([]domain.StudyPack, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+studyPackColumns+`
FROM study_packs
WHERE owner_id = $1
ORDER BY created_at DESC, id DESC
`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list study packs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.StudyPack, 0)
	for rows.Next() {
		pack, err := scanStudyPack(rows)
		if err != nil {
			return nil, fmt.Errorf("scan study pack: %w", err)
		}
		out = append(out, pack)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate study packs: %w", err)
	}
	return out, nil
}

func scanStudyPack(row rowScanner) (domain.StudyPack, error) {
	var pack domain.StudyPack
	var areas []byte
	err := row.Scan(&pack.ID, &pack.OwnerID, &pack.Title, &pack.Description, &areas, &pack.CreatedAt, &pack.UpdatedAt)
	if err != nil {
		return domain.StudyPack{}, err
	}
	pack.AreasOfConcentration = []string{}
	if len(areas) > 0 {
		if err := json.Unmarshal(areas, &pack.AreasOfConcentration); err != nil {
			return domain.StudyPack{}, fmt.Errorf("decode areas of concentration: %w", err)
		}
	}
	return pack, nil
}
