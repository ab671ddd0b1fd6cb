package run

import (
	"fmt"
	"time"

	"genescore/domain/core"
	"genescore/domain/dataset"
	"genescore/domain/scoring"
)

// Status tracks a run through its lifecycle
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run represents one batch scoring execution and its results
type Run struct {
	ID          core.RunID           `json:"id"`
	Status      Status               `json:"status"`
	Fingerprint core.Hash            `json:"fingerprint"` // equal fingerprints replay identically
	Manifest    *dataset.Manifest    `json:"manifest"`
	Params      scoring.Params       `json:"params"`
	Result      *scoring.BatchResult `json:"result,omitempty"`
	Error       string               `json:"error,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
}

// New starts a run over the described dataset
func New(manifest *dataset.Manifest, params scoring.Params) *Run {
	return &Run{
		ID:          core.NewRunID(),
		Status:      StatusRunning,
		Fingerprint: manifest.ComputeFingerprint(params, params.Seed),
		Manifest:    manifest,
		Params:      params,
		CreatedAt:   time.Now().UTC(),
	}
}

// Complete attaches the batch result
func (r *Run) Complete(result *scoring.BatchResult) {
	now := time.Now().UTC()
	r.Status = StatusCompleted
	r.Result = result
	r.CompletedAt = &now
}

// Fail records why the run stopped
func (r *Run) Fail(err error) {
	now := time.Now().UTC()
	r.Status = StatusFailed
	r.Error = err.Error()
	r.CompletedAt = &now
}

// Validate checks if the run is complete enough to be stored
func (r *Run) Validate() error {
	if core.ID(r.ID).IsEmpty() {
		return core.NewConfigurationError("run", "id cannot be empty")
	}
	if r.Manifest == nil {
		return core.NewConfigurationError("run", "manifest cannot be empty")
	}
	if r.Fingerprint.IsEmpty() {
		return core.NewConfigurationError("run", "fingerprint cannot be empty")
	}
	if r.Status == StatusCompleted && r.Result == nil {
		return core.NewConfigurationError("run", fmt.Sprintf("completed run %s has no result", r.ID))
	}
	return nil
}

// Summary is the listing view of a run
type Summary struct {
	ID        core.RunID `json:"id" db:"id"`
	Status    Status     `json:"status" db:"status"`
	SetCount  int        `json:"set_count" db:"set_count"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
