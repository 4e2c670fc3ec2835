package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Parent references point at external_id and are checked at commit, so a
// rename can move a parent before its children. Deletes are ordered by the
// application; there is no ON DELETE CASCADE.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS years (
		id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		name        TEXT NOT NULL,
		icon        TEXT NOT NULL DEFAULT '',
		legacy_key  TEXT UNIQUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS modules (
		id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		name        TEXT NOT NULL,
		year_id     TEXT NOT NULL REFERENCES years (external_id) DEFERRABLE INITIALLY DEFERRED,
		legacy_key  TEXT UNIQUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS subjects (
		id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		name        TEXT NOT NULL,
		module_id   TEXT NOT NULL REFERENCES modules (external_id) DEFERRABLE INITIALLY DEFERRED,
		legacy_key  TEXT UNIQUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS lectures (
		id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		name        TEXT NOT NULL,
		subject_id  TEXT REFERENCES subjects (external_id) DEFERRABLE INITIALLY DEFERRED,
		sort_order  INTEGER NOT NULL DEFAULT 0,
		legacy_key  TEXT UNIQUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS questions (
		id            BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		external_id   TEXT NOT NULL UNIQUE,
		lecture_id    TEXT NOT NULL REFERENCES lectures (external_id) DEFERRABLE INITIALLY DEFERRED,
		text          TEXT NOT NULL,
		options       TEXT[] NOT NULL,
		correct_index INTEGER NOT NULL,
		explanation   TEXT NOT NULL DEFAULT '',
		difficulty    TEXT NOT NULL DEFAULT 'medium',
		sort_order    INTEGER NOT NULL DEFAULT 0,
		legacy_key    TEXT UNIQUE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (cardinality(options) >= 2),
		CHECK (correct_index >= 0 AND correct_index < cardinality(options))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_modules_year ON modules (year_id)`,
	`CREATE INDEX IF NOT EXISTS idx_subjects_module ON subjects (module_id)`,
	`CREATE INDEX IF NOT EXISTS idx_lectures_subject ON lectures (subject_id)`,
	`CREATE INDEX IF NOT EXISTS idx_questions_lecture ON questions (lecture_id)`,
	// Quiz history outlives the content it was taken on, so lecture_id is
	// not a foreign key.
	`CREATE TABLE IF NOT EXISTS quiz_responses (
		id           BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		external_id  TEXT NOT NULL UNIQUE,
		student_id   TEXT NOT NULL,
		lecture_id   TEXT NOT NULL,
		score        INTEGER NOT NULL,
		total        INTEGER NOT NULL,
		answers      JSONB NOT NULL DEFAULT '[]',
		submitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_quiz_responses_student ON quiz_responses (student_id, submitted_at DESC)`,
}

// Migrate creates every table the service needs. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("pool is nil")
	}
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for i, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("statement %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	slog.Info("database schema up to date", "statements", len(schema))
	return nil
}

// Migrate applies the schema to the wrapped pool.
func (db *DB) Migrate(ctx context.Context) error {
	return Migrate(ctx, db.Pool)
}
