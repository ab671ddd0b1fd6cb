package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genescore/domain/core"
	"genescore/domain/dataset"
	"genescore/domain/scoring"
)

func scorerPair(t *testing.T, method scoring.Method, rows [][]float64) (*Scorer, *Scorer) {
	t.Helper()
	dense, err := dataset.NewDenseFromRows(rows)
	require.NoError(t, err)
	ds, err := NewScorer(method, dense)
	require.NoError(t, err)
	ss, err := NewScorer(method, dataset.SparseFromDense(dense))
	require.NoError(t, err)
	return ds, ss
}

func TestMeanScores(t *testing.T) {
	ds, ss := scorerPair(t, scoring.MethodMean, [][]float64{{1, 2, 3, 0}, {4, 5, 6, 0}})

	for _, s := range []*Scorer{ds, ss} {
		assert.Equal(t, []float64{1, 4}, s.Score([]int{0}))
		assert.Equal(t, []float64{0, 0}, s.Score([]int{3}))
		assert.Equal(t, []float64{1.5, 4.5}, s.Score([]int{0, 1}))
		assert.Equal(t, []float64{2, 5}, s.Score([]int{0, 1, 2}))
	}
}

func TestZScoreZeroVariance(t *testing.T) {
	ds, ss := scorerPair(t, scoring.MethodMeanZ, [][]float64{{1, 7, 0}, {3, 7, 0}, {5, 7, 0}})

	for _, s := range []*Scorer{ds, ss} {
		assert.Equal(t, []float64{0, 0, 0}, s.Score([]int{1}), "constant gene")
		assert.Equal(t, []float64{0, 0, 0}, s.Score([]int{2}), "all-zero gene")
		assert.InDeltaSlice(t, []float64{-1.224744871, 0, 1.224744871}, s.Score([]int{0}), 1e-9)
	}
}

func TestRankScores(t *testing.T) {
	ds, ss := scorerPair(t, scoring.MethodMeanRank, [][]float64{
		{3, 0, 2},
		{1, 0, 0},
		{2, 5, 0},
	})

	for name, s := range map[string]*Scorer{"dense": ds, "sparse": ss} {
		assert.InDeltaSlice(t, []float64{1, 0, 0.5}, s.Score([]int{0}), 1e-12, name)
		assert.InDeltaSlice(t, []float64{0.25, 0.25, 1}, s.Score([]int{1}), 1e-12, name)
		assert.InDeltaSlice(t, []float64{1, 0.25, 0.25}, s.Score([]int{2}), 1e-12, name)
		assert.InDeltaSlice(t, []float64{0.625, 0.125, 0.75}, s.Score([]int{0, 1}), 1e-12, name)
	}
}

func TestDoubledRanks(t *testing.T) {
	tests := []struct {
		name     string
		stored   []float64
		zeros    int
		want     []float64
		wantZero float64
	}{
		{"distinct", []float64{5, 1, 3}, 0, []float64{6, 2, 4}, 0},
		{"ties", []float64{2, 2, 1}, 0, []float64{5, 5, 2}, 0},
		{"implicit zeros", []float64{4, 9}, 2, []float64{6, 8}, 3},
		{"explicit and implicit zeros tie", []float64{0, 3}, 1, []float64{3, 6}, 3},
		{"negatives below zeros", []float64{-1, 2}, 1, []float64{2, 6}, 4},
		{"only zeros", nil, 3, []float64{}, 4},
		{"single cell", []float64{7}, 0, []float64{2}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, zero := doubledRanks(tt.stored, tt.zeros)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantZero, zero)
		})
	}
}

func TestRankScoresSingleCell(t *testing.T) {
	ds, ss := scorerPair(t, scoring.MethodMeanRank, [][]float64{{4, 0}})
	for _, s := range []*Scorer{ds, ss} {
		assert.Equal(t, []float64{0}, s.Score([]int{0, 1}))
	}
}

// Subsets whose rank sums are equal must score exactly equal, whatever the
// order the genes are summed in.
func TestRankScoresExactTies(t *testing.T) {
	ds, ss := scorerPair(t, scoring.MethodMeanRank, [][]float64{
		{0, 2, -1, 0, 3, 1},
		{1, 0, 0, 2, -2, 0},
		{-3, 1, 2, 0, 0, 3},
		{2, -1, 1, 1, 0, 0},
		{0, 3, 0, -1, 1, 2},
	})
	for name, s := range map[string]*Scorer{"dense": ds, "sparse": ss} {
		a := s.Score([]int{0, 1, 2})
		b := s.Score([]int{2, 0, 1})
		assert.Equal(t, a, b, name)
	}
	assert.Equal(t, ds.Score([]int{1, 3, 5}), ss.Score([]int{1, 3, 5}))
	assert.Equal(t, ds.Score([]int{0, 2, 4}), ss.Score([]int{4, 2, 0}))
}

func TestScoreIntoOnlyTouchesListedRows(t *testing.T) {
	ds, ss := scorerPair(t, scoring.MethodMean, [][]float64{{1, 2}, {3, 4}, {5, 6}})

	for _, s := range []*Scorer{ds, ss} {
		dst := []float64{-1, -1, -1}
		acc := make([]float64, 3)
		s.ScoreInto(dst, acc, []int{0, 1}, []int{2, 0})
		assert.Equal(t, []float64{1.5, -1, 5.5}, dst)
	}
}

func TestUnknownMethod(t *testing.T) {
	m, err := dataset.NewDenseFromRows([][]float64{{1}})
	require.NoError(t, err)
	_, err = NewScorer("median", m)
	assert.True(t, core.IsConfigurationError(err))
}
