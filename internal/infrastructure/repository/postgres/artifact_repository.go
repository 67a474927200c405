package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/studyforge/internal/core/domain"
)

type ArtifactRepository struct {
	db *sql.DB
}

func NewArtifactRepository(db *sql.DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// Replace swaps the live artifact for the (document, kind) pair in one transaction.
func (r *ArtifactRepository) Replace(ctx context.Context, artifact *domain.Artifact) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace artifact tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, artifact.DocumentID+":"+string(artifact.Kind)); err != nil {
		return fmt.Errorf("acquire artifact lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM artifacts WHERE document_id = $1 AND kind = $2`, artifact.DocumentID, string(artifact.Kind)); err != nil {
		return fmt.Errorf("delete previous artifact: %w", err)
	}

	createdAt := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
INSERT INTO artifacts (id, document_id, user_id, kind, payload, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, artifact.ID, artifact.DocumentID, artifact.UserID, string(artifact.Kind), []byte(artifact.Payload), createdAt)
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace artifact tx: %w", err)
	}
	artifact.CreatedAt = createdAt
	return nil
}

func (r *ArtifactRepository) Get(ctx context.Context, documentID string, kind domain.ArtifactKind) (*domain.Artifact, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, document_id, user_id, kind, payload, created_at
FROM artifacts
WHERE document_id = $1 AND kind = $2
`, documentID, string(kind))

	var artifact domain.Artifact
	var storedKind string
	var payload []byte
	err := row.Scan(&artifact.ID, &artifact.DocumentID, &artifact.UserID, &storedKind, &payload, &artifact.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrArtifactNotFound, "get artifact", fmt.Errorf("document=%s kind=%s", documentID, kind))
		}
		return nil, fmt.Errorf("scan artifact: %w", err)
	}
	artifact.Kind = domain.ArtifactKind(storedKind)
	artifact.Payload = payload
	return &artifact, nil
}
