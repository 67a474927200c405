package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const schemaLockID = int64(2026101501)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	external_id TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL DEFAULT '',
	credits BIGINT NOT NULL DEFAULT 0 CHECK (credits >= 0),
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	title TEXT NOT NULL,
	filename TEXT NOT NULL DEFAULT '',
	mime_type TEXT NOT NULL DEFAULT '',
	storage_path TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	summary_status TEXT NOT NULL DEFAULT 'none',
	mind_map_status TEXT NOT NULL DEFAULT 'none',
	flash_cards_status TEXT NOT NULL DEFAULT 'none',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id, created_at DESC);

CREATE TABLE IF NOT EXISTS study_packs (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	areas_of_concentration JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_study_packs_owner ON study_packs(owner_id, created_at DESC);

ALTER TABLE documents ADD COLUMN IF NOT EXISTS study_pack_id TEXT REFERENCES study_packs(id) ON DELETE SET NULL;
CREATE INDEX IF NOT EXISTS idx_documents_study_pack ON documents(study_pack_id) WHERE study_pack_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS artifacts (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (document_id, kind)
);

CREATE TABLE IF NOT EXISTS credit_transactions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	amount BIGINT NOT NULL CHECK (amount >= 0),
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	reference TEXT UNIQUE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_credit_transactions_user ON credit_transactions(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	transaction_id TEXT NOT NULL,
	cost BIGINT NOT NULL,
	config JSONB NOT NULL DEFAULT '{}'::jsonb,
	state TEXT NOT NULL,
	attempts INT NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	heartbeat_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS uniq_pipeline_runs_active
	ON pipeline_runs(document_id, kind)
	WHERE state IN ('pending', 'in_progress');
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_state ON pipeline_runs(state, updated_at);

CREATE TABLE IF NOT EXISTS pipeline_steps (
	run_id TEXT NOT NULL,
	step TEXT NOT NULL,
	output JSONB,
	completed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, step)
);
`

// EnsureSchema creates every table the service needs.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type rowScanner interface {
	Scan(dest ...any) error
}
