package ports

import (
	"context"

	"genescore/domain/core"
	"genescore/domain/run"
)

// ScoreRepository persists scoring runs and their per-cell rows
type ScoreRepository interface {
	// SaveRun stores the run record and, when present, every result row
	SaveRun(ctx context.Context, r *run.Run) error

	// GetRun loads a run with its results; core.ErrRunNotFound if absent
	GetRun(ctx context.Context, id core.RunID) (*run.Run, error)

	// ListRuns returns the most recent runs first
	ListRuns(ctx context.Context, limit int) ([]run.Summary, error)
}
