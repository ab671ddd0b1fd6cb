package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestFingerprint(t *testing.T) {
	m, err := NewDenseFromRows(sampleRows())
	require.NoError(t, err)
	d, err := NewDataset(m, []string{"a", "b", "c"}, nil)
	require.NoError(t, err)

	manifest := NewManifest("expr.txt", d)
	assert.Equal(t, 3, manifest.CellCount)
	assert.Equal(t, 4, manifest.GeneCount)
	assert.False(t, manifest.Sparse)

	params := map[string]int{"nperm": 100}
	first := manifest.ComputeFingerprint(params, 7)
	assert.Equal(t, first, manifest.ComputeFingerprint(params, 7))
	assert.NotEqual(t, first, manifest.ComputeFingerprint(params, 8))

	reordered, err := d.SelectCells([]int{1, 0, 2})
	require.NoError(t, err)
	assert.NotEqual(t, manifest.CellIDsHash, NewManifest("expr.txt", reordered).CellIDsHash)
}
