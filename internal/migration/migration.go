package migration

import (
	"context"

	"genescore/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order. Every statement
// is idempotent so Run can be applied on each start.
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createScoreRunsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create score_runs table")
	}

	if err := r.createSetResultsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create set_results table")
	}

	if err := r.createCellScoresTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create cell_scores table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

func (r *MigrationRunner) createScoreRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS score_runs (
			id UUID PRIMARY KEY,
			status VARCHAR(20) NOT NULL DEFAULT 'running',
			fingerprint VARCHAR(64) NOT NULL,
			manifest JSONB NOT NULL,
			params JSONB NOT NULL,
			set_count INTEGER NOT NULL DEFAULT 0,
			global_fdr BOOLEAN NOT NULL DEFAULT FALSE,
			failures JSONB NOT NULL DEFAULT '[]',
			error_message TEXT,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMP WITH TIME ZONE,
			CONSTRAINT valid_run_status CHECK (status IN ('running', 'completed', 'failed'))
		)
	`)
	return err
}

func (r *MigrationRunner) createSetResultsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS set_results (
			run_id UUID NOT NULL REFERENCES score_runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			set_name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			set_size INTEGER NOT NULL,
			mode VARCHAR(20) NOT NULL,
			pool_size INTEGER NOT NULL,
			permutations INTEGER NOT NULL,
			frozen INTEGER NOT NULL DEFAULT 0,
			significance BOOLEAN NOT NULL,
			with_bounds BOOLEAN NOT NULL,
			duration_ns BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, set_name)
		)
	`)
	return err
}

func (r *MigrationRunner) createCellScoresTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS cell_scores (
			run_id UUID NOT NULL,
			set_name TEXT NOT NULL,
			cell_index INTEGER NOT NULL,
			cell_id TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			p_value DOUBLE PRECISION,
			fdr DOUBLE PRECISION,
			k INTEGER,
			n INTEGER,
			p_value_ci DOUBLE PRECISION,
			fdr_low DOUBLE PRECISION,
			fdr_high DOUBLE PRECISION,
			global_fdr DOUBLE PRECISION,
			PRIMARY KEY (run_id, set_name, cell_index),
			FOREIGN KEY (run_id, set_name) REFERENCES set_results(run_id, set_name) ON DELETE CASCADE
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_score_runs_created_at ON score_runs(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_score_runs_fingerprint ON score_runs(fingerprint)",
		"CREATE INDEX IF NOT EXISTS idx_cell_scores_cell_id ON cell_scores(run_id, cell_id)",
		"CREATE INDEX IF NOT EXISTS idx_cell_scores_fdr ON cell_scores(run_id, set_name, fdr)",
	}

	for _, query := range indexes {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}
