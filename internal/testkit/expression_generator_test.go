package testkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genescore/domain/core"
	"genescore/domain/dataset"
	"genescore/domain/run"
	"genescore/domain/scoring"
)

func TestExpressionGenerator_Basic(t *testing.T) {
	cfg := DefaultExpressionConfig()
	expr, err := NewExpressionGenerator(cfg).Generate()
	require.NoError(t, err)

	d := expr.Dataset
	assert.Equal(t, cfg.CellCount, d.CellCount())
	assert.Equal(t, cfg.GeneCount, d.GeneCount())
	require.Len(t, expr.Programs, cfg.ProgramCount)
	require.Len(t, expr.GeneSets(), cfg.ProgramCount+cfg.DecoyCount)

	for _, p := range expr.Programs {
		assert.Len(t, p.Set.Genes, cfg.ProgramSize)
		assert.Len(t, p.Cells, int(cfg.ActiveCells*float64(cfg.CellCount)))
		assert.IsIncreasing(t, p.Cells)
	}

	for i := 0; i < d.CellCount(); i++ {
		for j := 0; j < d.GeneCount(); j++ {
			v := d.Matrix.At(i, j)
			require.GreaterOrEqual(t, v, 0.0)
			require.Equal(t, float64(int(v)), v, "counts are integers")
		}
	}
}

func TestExpressionGenerator_Deterministic(t *testing.T) {
	a, err := NewExpressionGenerator(DefaultExpressionConfig()).Generate()
	require.NoError(t, err)
	b, err := NewExpressionGenerator(DefaultExpressionConfig()).Generate()
	require.NoError(t, err)

	assert.Equal(t, a.GeneSets(), b.GeneSets())
	assert.Equal(t, dataset.NewManifest("x", a.Dataset), dataset.NewManifest("x", b.Dataset))
	for j := 0; j < a.Dataset.GeneCount(); j++ {
		assert.Equal(t, a.Dataset.Matrix.Column(nil, j), b.Dataset.Matrix.Column(nil, j))
	}
}

func TestExpressionGenerator_ProgramsAreUpregulated(t *testing.T) {
	cfg := DefaultExpressionConfig()
	cfg.CellCount = 200
	cfg.Uplift = 20
	expr, err := NewExpressionGenerator(cfg).Generate()
	require.NoError(t, err)

	p := expr.Programs[0]
	active := make(map[int]bool)
	for _, c := range p.Cells {
		active[c] = true
	}
	var in, out float64
	for _, gene := range p.Set.Genes {
		col, ok := expr.Dataset.GetColumnData(gene)
		require.True(t, ok)
		for i, v := range col {
			if active[i] {
				in += v
			} else {
				out += v
			}
		}
	}
	inMean := in / float64(len(p.Cells))
	outMean := out / float64(cfg.CellCount-len(p.Cells))
	assert.Greater(t, inMean, 3*outMean)
}

func TestExpressionGenerator_Sparse(t *testing.T) {
	cfg := DefaultExpressionConfig()
	cfg.Sparse = true
	expr, err := NewExpressionGenerator(cfg).Generate()
	require.NoError(t, err)
	assert.True(t, expr.Dataset.Matrix.IsSparse())
}

func TestExpressionGenerator_RejectsOversizedPrograms(t *testing.T) {
	cfg := DefaultExpressionConfig()
	cfg.ProgramCount = 30
	_, err := NewExpressionGenerator(cfg).Generate()
	assert.Error(t, err)
}

func TestInMemoryScoreRepository(t *testing.T) {
	kit := NewTestKit()
	repo := kit.Repository()
	expr, err := kit.Expression()
	require.NoError(t, err)
	ctx := context.Background()

	first := run.New(dataset.NewManifest("a", expr.Dataset), scoring.DefaultParams())
	first.Complete(&scoring.BatchResult{Sets: []*scoring.SetResult{{Name: "S"}}})
	require.NoError(t, repo.SaveRun(ctx, first))

	second := run.New(dataset.NewManifest("b", expr.Dataset), scoring.DefaultParams())
	second.Fail(assert.AnError)
	require.NoError(t, repo.SaveRun(ctx, second))

	got, err := repo.GetRun(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Fingerprint, got.Fingerprint)

	_, err = repo.GetRun(ctx, core.NewRunID())
	assert.True(t, core.IsNotFoundError(err))

	list, err := repo.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, repo.Len())

	incomplete := run.New(dataset.NewManifest("c", expr.Dataset), scoring.DefaultParams())
	incomplete.Status = run.StatusCompleted
	assert.Error(t, repo.SaveRun(ctx, incomplete))
}
