package run

import (
	"errors"
	"testing"

	"genescore/domain/core"
	"genescore/domain/dataset"
	"genescore/domain/scoring"
)

func testManifest(t *testing.T) *dataset.Manifest {
	t.Helper()
	m, err := dataset.NewDenseFromRows([][]float64{{1, 2}, {3, 4}})
	if err != nil {
		t.Fatalf("dense: %v", err)
	}
	d, err := dataset.NewDataset(m, nil, nil)
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	return dataset.NewManifest("mem", d)
}

func TestRunFingerprint_Deterministic(t *testing.T) {
	manifest := testManifest(t)
	params := scoring.DefaultParams()
	params.Seed = 42

	r1 := New(manifest, params)
	r2 := New(manifest, params)

	if r1.Fingerprint != r2.Fingerprint {
		t.Errorf("Fingerprints not identical: %s vs %s", r1.Fingerprint, r2.Fingerprint)
	}
	if r1.ID == r2.ID {
		t.Errorf("Run ids should differ, both %s", r1.ID)
	}

	params.Seed = 43
	if New(manifest, params).Fingerprint == r1.Fingerprint {
		t.Errorf("Fingerprint should change with the seed")
	}
}

func TestRunLifecycle(t *testing.T) {
	r := New(testManifest(t), scoring.DefaultParams())
	if r.Status != StatusRunning {
		t.Fatalf("expected running, got %s", r.Status)
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("running run should validate: %v", err)
	}

	r.Status = StatusCompleted
	if err := r.Validate(); !core.IsConfigurationError(err) {
		t.Errorf("completed run without result should fail validation, got %v", err)
	}

	r.Complete(&scoring.BatchResult{})
	if err := r.Validate(); err != nil {
		t.Errorf("completed run should validate: %v", err)
	}
	if r.CompletedAt == nil {
		t.Errorf("CompletedAt not set")
	}

	r.Fail(errors.New("disk full"))
	if r.Status != StatusFailed || r.Error != "disk full" {
		t.Errorf("unexpected failed state: %s %q", r.Status, r.Error)
	}
}
