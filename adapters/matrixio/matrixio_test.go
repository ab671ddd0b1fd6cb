package matrixio

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genescore/domain/core"
	"genescore/domain/scoring"
	"genescore/internal"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadDelimited(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name, file, content string
	}{
		{"tab", "m.txt", "id\tg1\tg2\nc1\t1\t2\nc2\t0\t3.5\n"},
		{"csv", "m.csv", "id,g1,g2\n\"c1\",1,2\nc2,,3.5\n"},
		{"comma in txt", "m2.txt", "id,g1,g2\r\nc1,1,2\r\n\r\nc2,0,3.5\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, dir, tt.file, tt.content)
			d, err := NewReader(internal.Nop()).ReadMatrix(context.Background(), path)
			require.NoError(t, err)

			assert.Equal(t, []string{"c1", "c2"}, d.CellIDs)
			assert.Equal(t, []string{"g1", "g2"}, d.GeneIDs)
			assert.False(t, d.Matrix.IsSparse())
			assert.Equal(t, 2.0, d.Matrix.At(0, 1))
			assert.Equal(t, 0.0, d.Matrix.At(1, 0))
			assert.Equal(t, 3.5, d.Matrix.At(1, 1))
		})
	}
}

func TestReadDelimitedErrors(t *testing.T) {
	dir := t.TempDir()
	r := NewReader(internal.Nop())

	_, err := r.ReadMatrix(context.Background(), writeTemp(t, dir, "short.txt", "id\tg1\tg2\nc1\t1\n"))
	assert.True(t, core.IsDataShapeError(err))

	_, err = r.ReadMatrix(context.Background(), writeTemp(t, dir, "nan.txt", "id\tg1\nc1\tabc\n"))
	assert.True(t, core.IsDataShapeError(err))

	_, err = r.ReadMatrix(context.Background(), writeTemp(t, dir, "m.h5ad", ""))
	assert.True(t, core.IsConfigurationError(err))
}

func TestReadGCT(t *testing.T) {
	dir := t.TempDir()
	r := NewReader(internal.Nop())

	v12 := "#1.2\n2\t3\nName\tDescription\tc1\tc2\tc3\ng1\tna\t1\t2\t3\ng2\tna\t4\t5\t6\n"
	d, err := r.ReadMatrix(context.Background(), writeTemp(t, dir, "a.gct", v12))
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2", "c3"}, d.CellIDs)
	assert.Equal(t, []string{"g1", "g2"}, d.GeneIDs)
	assert.Equal(t, 4.0, d.Matrix.At(0, 1))
	assert.Equal(t, 3.0, d.Matrix.At(2, 0))

	v13 := "#1.3\n2\t2\t1\t1\nid\tdesc\tc1\tc2\ntype\t\tA\tB\ng1\tx\t1\t2\ng2\ty\t3\t4\n"
	d, err = r.ReadMatrix(context.Background(), writeTemp(t, dir, "b.gct", v13))
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, d.CellIDs)
	assert.Equal(t, 3.0, d.Matrix.At(0, 1))
	assert.Equal(t, 2.0, d.Matrix.At(1, 0))
}

func TestReadMTX(t *testing.T) {
	dir := t.TempDir()
	mtx := "%%MatrixMarket matrix coordinate integer general\n% written by a test\n3 2 3\n1 1 5\n3 1 2\n2 2 7\n"
	path := writeTemp(t, dir, "matrix.mtx", mtx)
	writeTemp(t, dir, "barcodes.tsv", "AAA-1\nCCC-1\n")
	writeTemp(t, dir, "features.tsv", "G1\tGene1\tGene Expression\nG2\tGene2\tGene Expression\nG3\tGene3\tGene Expression\n")

	d, err := NewReader(internal.Nop()).ReadMatrix(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, d.Matrix.IsSparse())
	assert.Equal(t, []string{"AAA-1", "CCC-1"}, d.CellIDs)
	assert.Equal(t, []string{"G1", "G2", "G3"}, d.GeneIDs)
	assert.Equal(t, 5.0, d.Matrix.At(0, 0))
	assert.Equal(t, 2.0, d.Matrix.At(0, 2))
	assert.Equal(t, 7.0, d.Matrix.At(1, 1))
	assert.Equal(t, 0.0, d.Matrix.At(1, 0))
}

func TestReadMTXWithoutLabels(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "counts.mtx", "%%MatrixMarket matrix coordinate pattern general\n2 2 2\n1 1\n2 2\n")

	d, err := NewReader(internal.Nop()).ReadMatrix(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1"}, d.CellIDs)
	assert.Equal(t, 1.0, d.Matrix.At(1, 1))
}

func TestReadMTXLabelMismatch(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "matrix.mtx", "%%MatrixMarket matrix coordinate real general\n2 2 1\n1 1 0.5\n")
	writeTemp(t, dir, "matrix_barcodes.txt", "only-one\n")

	_, err := NewReader(internal.Nop()).ReadMatrix(context.Background(), path)
	require.Error(t, err)
	assert.True(t, core.IsDataShapeError(err))
	assert.Contains(t, err.Error(), "wrong number of barcodes")
}

func sampleResult() *scoring.SetResult {
	return &scoring.SetResult{
		Name:         "s1",
		Significance: true,
		WithBounds:   true,
		Cells: []scoring.CellResult{
			{CellID: "c1", Score: 1.5, PValue: 0.25, FDR: 0.5, K: 3, N: 10,
				Bounds: &scoring.CellBounds{PValueCI: 0.1, FDRLow: 0.2, FDRHigh: 0.6}},
			{CellID: "c2", Score: -2, PValue: 1, FDR: 1, K: 10, N: 10,
				Bounds: &scoring.CellBounds{PValueCI: 0.7, FDRLow: 0.7, FDRHigh: 1}},
		},
	}
}

func TestWriteText(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "out")
	w, err := NewWriter("txt", internal.Nop())
	require.NoError(t, err)

	path, err := w.WriteSet(context.Background(), prefix, sampleResult())
	require.NoError(t, err)
	assert.Equal(t, prefix+"_s1.txt", path)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"id\ts1\tp_value\tFDR_BH\tk\tn\tp_value_ci\tFDR_BH_low\tFDR_BH_high\n"+
			"c1\t1.5\t0.25\t0.5\t3\t10\t0.1\t0.2\t0.6\n"+
			"c2\t-2\t1\t1\t10\t10\t0.7\t0.7\t1\n",
		string(b))
}

func TestWriteScoresOnlyCSV(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "out")
	w, err := NewWriter("CSV", internal.Nop())
	require.NoError(t, err)

	res := &scoring.SetResult{Name: "s2", Cells: []scoring.CellResult{{CellID: "c1", Score: 0.5}}}
	path, err := w.WriteSet(context.Background(), prefix, res)
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "id,s2\nc1,0.5\n", string(b))
}

func TestWriteGlobalFDRColumn(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "out")
	w, err := NewWriter("txt", internal.Nop())
	require.NoError(t, err)

	g := 0.125
	res := &scoring.SetResult{
		Name:         "s3",
		Significance: true,
		Cells:        []scoring.CellResult{{CellID: "c1", Score: 2, PValue: 0.5, FDR: 0.5, K: 4, N: 10, GlobalFDR: &g}},
	}
	path, err := w.WriteSet(context.Background(), prefix, res)
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "id\ts3\tp_value\tFDR_BH\tk\tn\tglobal_FDR_BH\nc1\t2\t0.5\t0.5\t4\t10\t0.125\n", string(b))
}

func TestWriteGCT(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "out")
	w, err := NewWriter("gct", internal.Nop())
	require.NoError(t, err)

	path, err := w.WriteSet(context.Background(), prefix, sampleResult())
	require.NoError(t, err)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(b), "\n")
	assert.Equal(t, "#1.3", lines[0])
	assert.Equal(t, "2\t8\t0\t0", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "id\ts1\tp_value"))
}

func TestWriteXLSXRoundTrip(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "out")
	w, err := NewWriter("xlsx", internal.Nop())
	require.NoError(t, err)

	path, err := w.WriteSet(context.Background(), prefix, sampleResult())
	require.NoError(t, err)
	assert.Equal(t, prefix+"_s1.xlsx", path)

	d, err := NewReader(internal.Nop()).ReadMatrix(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, d.CellIDs)
	assert.Equal(t, []string{"s1", "p_value", "FDR_BH", "k", "n", "p_value_ci", "FDR_BH_low", "FDR_BH_high"}, d.GeneIDs)
	assert.Equal(t, 1.5, d.Matrix.At(0, 0))
	assert.Equal(t, 10.0, d.Matrix.At(1, 3))
	assert.Equal(t, 0.6, d.Matrix.At(0, 7))
}

func TestUnknownFormat(t *testing.T) {
	_, err := NewWriter("loom", internal.Nop())
	assert.True(t, core.IsConfigurationError(err))
}
