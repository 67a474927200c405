package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/studyforge/internal/core/domain"
)

// statusColumns whitelists the per-kind status columns interpolated into SQL.
var statusColumns = map[domain.ArtifactKind]string{
	domain.KindSummary:    "summary_status",
	domain.KindMindMap:    "mind_map_status",
	domain.KindFlashCards: "flash_cards_status",
}

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, owner_id, title, filename, mime_type, storage_path, content,
	summary_status, mind_map_status, flash_cards_status, created_at, updated_at, study_pack_id
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NULLIF($13, ''))
`,
		doc.ID, doc.OwnerID, doc.Title, doc.Filename, doc.MimeType, doc.StoragePath, doc.Content,
		string(doc.StatusOf(domain.KindSummary)),
		string(doc.StatusOf(domain.KindMindMap)),
		string(doc.StatusOf(domain.KindFlashCards)),
		doc.CreatedAt, doc.UpdatedAt, doc.StudyPackID,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, owner_id, title, filename, mime_type, storage_path, content,
	summary_status, mind_map_status, flash_cards_status, created_at, updated_at, study_pack_id
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &doc, nil
}

// List selects an empty content column so the library never loads document bodies.
func (r *DocumentRepository) List(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	args := []any{filter.OwnerID}
	conditions := []string{"owner_id = $1"}
	if filter.StudyPackID != "" {
		args = append(args, filter.StudyPackID)
		conditions = append(conditions, fmt.Sprintf("study_pack_id = $%d", len(args)))
	}
	if filter.TitleContains != "" {
		args = append(args, "%"+escapeLike(filter.TitleContains)+"%")
		conditions = append(conditions, fmt.Sprintf("title ILIKE $%d", len(args)))
	}
	query := `
SELECT id, owner_id, title, filename, mime_type, storage_path, '' AS content,
	summary_status, mind_map_status, flash_cards_status, created_at, updated_at, study_pack_id
FROM documents
WHERE ` + strings.Join(conditions, " AND ") + `
ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func scanDocument(row rowScanner) (domain.Document, error) {
	var doc domain.Document
	var summary, mindMap, flashCards string
	var studyPackID sql.NullString
	err := row.Scan(
		&doc.ID, &doc.OwnerID, &doc.Title, &doc.Filename, &doc.MimeType, &doc.StoragePath, &doc.Content,
		&summary, &mindMap, &flashCards, &doc.CreatedAt, &doc.UpdatedAt, &studyPackID,
	)
	if err != nil {
		return domain.Document{}, err
	}
	doc.SummaryStatus = domain.GenerationStatus(summary)
	doc.MindMapStatus = domain.GenerationStatus(mindMap)
	doc.FlashCardsStatus = domain.GenerationStatus(flashCards)
	doc.StudyPackID = studyPackID.String
	return doc, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func escapeLike(text string) string {
	return likeEscaper.Replace(text)
}

// TransitionStatus is a conditional update: the row changes only when its current
// status may move to `to`, so concurrent writers cannot skip the state machine.
func (r *DocumentRepository) TransitionStatus(ctx context.Context, id string, kind domain.ArtifactKind, to domain.GenerationStatus) error {
	column, ok := statusColumns[kind]
	if !ok {
		return domain.WrapError(domain.ErrInvalidInput, "transition status", fmt.Errorf("unknown kind %q", kind))
	}
	if !to.Valid() {
		return domain.WrapError(domain.ErrInvalidInput, "transition status", fmt.Errorf("unknown status %q", to))
	}

	sources := domain.TransitionSources(to)
	args := []any{id, string(to), time.Now().UTC()}
	placeholders := make([]string, 0, len(sources))
	for _, from := range sources {
		args = append(args, string(from))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	query := fmt.Sprintf(`
UPDATE documents
SET %[1]s = $2, updated_at = $3
WHERE id = $1 AND %[1]s IN (%[2]s)
`, column, strings.Join(placeholders, ", "))
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition status rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var current string
	err = r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM documents WHERE id = $1`, column), id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrDocumentNotFound, "transition status", fmt.Errorf("id=%s", id))
		}
		return fmt.Errorf("load current status: %w", err)
	}
	if err := domain.ValidateTransition(domain.GenerationStatus(current), to); err != nil {
		return err
	}
	return domain.WrapError(domain.ErrTemporary, "transition status", fmt.Errorf("id=%s changed concurrently", id))
}
