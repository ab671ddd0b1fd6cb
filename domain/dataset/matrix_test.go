package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genescore/domain/core"
)

func sampleRows() [][]float64 {
	return [][]float64{
		{0, 1.5, 0, 2},
		{3, 0, 0, 1},
		{0, 0, 4, 0},
	}
}

func sampleMatrices(t *testing.T) (*Dense, *Sparse) {
	t.Helper()
	dense, err := NewDenseFromRows(sampleRows())
	require.NoError(t, err)
	return dense, SparseFromDense(dense)
}

func TestDenseAndSparseAgree(t *testing.T) {
	dense, sparse := sampleMatrices(t)

	assert.Equal(t, 5, sparse.NNZ())
	dr, dc := dense.Dims()
	sr, sc := sparse.Dims()
	assert.Equal(t, dr, sr)
	assert.Equal(t, dc, sc)

	for i := 0; i < dr; i++ {
		for j := 0; j < dc; j++ {
			assert.Equal(t, dense.At(i, j), sparse.At(i, j), "entry (%d,%d)", i, j)
		}
	}
	for j := 0; j < dc; j++ {
		assert.Equal(t, dense.Column(nil, j), sparse.Column(nil, j))
	}

	dm, dv := dense.ColumnMeanVariance()
	sm, sv := sparse.ColumnMeanVariance()
	assert.Equal(t, dm, sm)
	assert.Equal(t, dv, sv)
	assert.InDelta(t, 1.0, dm[0], 1e-12)
	assert.InDelta(t, 2.0, dv[0], 1e-12)
}

func TestAccumulateColumnsIsBitIdentical(t *testing.T) {
	dense, sparse := sampleMatrices(t)
	cols := []int{0, 1, 3}

	dAcc := make([]float64, 3)
	sAcc := make([]float64, 3)
	dense.AccumulateColumns(dAcc, cols, AllRows(3))
	sparse.AccumulateColumns(sAcc, cols, AllRows(3))

	assert.Equal(t, dAcc, sAcc)
	assert.Equal(t, []float64{3.5, 4, 0}, dAcc)
}

func TestMapColumnsKeepsSparsity(t *testing.T) {
	dense, sparse := sampleMatrices(t)
	var zeros []int
	double := func(_ int, stored []float64, z int) []float64 {
		zeros = append(zeros, z)
		out := make([]float64, len(stored))
		for i, v := range stored {
			out[i] = 2 * v
		}
		return out
	}

	sm := sparse.MapColumns(double)
	assert.Equal(t, []int{2, 2, 2, 1}, zeros)
	zeros = nil
	dm := dense.MapColumns(double)
	assert.Equal(t, []int{0, 0, 0, 0}, zeros)
	assert.True(t, sm.IsSparse())
	assert.False(t, dm.IsSparse())
	assert.Equal(t, 5, sm.(*Sparse).NNZ())
	assert.Equal(t, 8.0, sm.At(2, 2))
	assert.Equal(t, 8.0, dm.At(2, 2))
	assert.Equal(t, 4.0, sparse.At(2, 2), "source must not change")
}

func TestSelectRows(t *testing.T) {
	dense, sparse := sampleMatrices(t)
	rows := []int{2, 0}

	for _, m := range []Matrix{dense.SelectRows(rows), sparse.SelectRows(rows)} {
		r, c := m.Dims()
		assert.Equal(t, 2, r)
		assert.Equal(t, 4, c)
		assert.Equal(t, []float64{0, 0}, m.Column(nil, 0))
		assert.Equal(t, []float64{0, 2}, m.Column(nil, 3))
		assert.Equal(t, 4.0, m.At(0, 2))
		assert.Equal(t, 1.5, m.At(1, 1))
		assert.Equal(t, 0.0, m.At(0, 0))
	}
}

func TestNewSparseValidation(t *testing.T) {
	s, err := NewSparse(2, 2, []Triplet{{0, 1, 1}, {0, 1, 2}, {1, 0, 0}})
	require.NoError(t, err)
	assert.Equal(t, 1, s.NNZ(), "duplicates summed, zeros dropped")
	assert.Equal(t, 3.0, s.At(0, 1))

	_, err = NewSparse(2, 2, []Triplet{{2, 0, 1}})
	assert.True(t, core.IsDataShapeError(err))

	_, err = NewDense(2, 2, []float64{1, 2, 3})
	assert.True(t, core.IsDataShapeError(err))

	_, err = NewDenseFromRows([][]float64{{1, 2}, {3}})
	assert.True(t, core.IsDataShapeError(err))
}
