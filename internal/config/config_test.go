package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genescore/domain/core"
	"genescore/domain/scoring"
	"genescore/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PORT", "")
	t.Setenv("ADMIN_PORT", "")
	t.Setenv("RUN_TIMEOUT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Database.Enabled())
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "6060", cfg.Admin.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Server.RunTimeout)
	assert.Equal(t, scoring.DefaultParams().Permutations, cfg.Scoring.Permutations)
}

func TestScoringEnvOverrides(t *testing.T) {
	t.Setenv("GENESCORE_METHOD", "mean_rank")
	t.Setenv("GENESCORE_NPERM", "500")
	t.Setenv("GENESCORE_NEIGHBORS_METHOD", "none")
	t.Setenv("GENESCORE_DROP_FREQUENCY", "100")
	t.Setenv("GENESCORE_DROP_P_VALUE_THRESHOLD", "0.1")
	t.Setenv("GENESCORE_SEED", "42")
	t.Setenv("GENESCORE_WORKERS", "3")
	t.Setenv("GENESCORE_SMOOTH", "false")
	t.Setenv("GENESCORE_N_NEIGHBORS", "not-a-number")

	p := LoadScoringParams()
	assert.Equal(t, scoring.MethodMeanRank, p.Method)
	assert.Equal(t, 500, p.Permutations)
	assert.Equal(t, scoring.NeighborNone, p.NeighborMode)
	assert.Equal(t, 100, p.DropFrequency)
	assert.Equal(t, 0.1, p.DropThreshold)
	assert.Equal(t, uint64(42), p.Seed)
	assert.Equal(t, 3, p.Workers)
	assert.False(t, p.Smooth)
	assert.Equal(t, 20, p.Neighbors, "unparsable values fall back to the default")
}

func TestLoadRejectsInvalidScoring(t *testing.T) {
	t.Setenv("GENESCORE_METHOD", "median")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, core.IsConfigurationError(err))
}

func TestLoadRejectsPortClash(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ADMIN_PORT", "9000")

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestLoadParamsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte("method: mean_z_score\nnperm: 2000\nseed: 7\nneighbors_method: mean_variance\n"), 0o644))

	base := scoring.DefaultParams()
	base.Workers = 2
	p, err := LoadParamsFile(path, base)
	require.NoError(t, err)
	assert.Equal(t, scoring.MethodMeanZ, p.Method)
	assert.Equal(t, 2000, p.Permutations)
	assert.Equal(t, uint64(7), p.Seed)
	assert.Equal(t, scoring.NeighborMeanVariance, p.NeighborMode)
	assert.Equal(t, 2, p.Workers, "keys absent from the file keep the base value")
	assert.Equal(t, base.DropFrequency, p.DropFrequency)
}

func TestLoadParamsFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadParamsFile(filepath.Join(dir, "missing.yaml"), scoring.DefaultParams())
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("nperm: [1, 2"), 0o644))
	_, err = LoadParamsFile(bad, scoring.DefaultParams())
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("drop_frequency: -1\n"), 0o644))
	_, err = LoadParamsFile(invalid, scoring.DefaultParams())
	assert.True(t, core.IsConfigurationError(err))
}
