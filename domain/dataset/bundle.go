package dataset

import (
	"strconv"
	"strings"

	"genescore/domain/core"
)

// Dataset is the canonical expression object every scoring call reads.
// Rows are cells, columns are genes. It is never mutated once built.
type Dataset struct {
	Matrix  Matrix
	CellIDs []string
	GeneIDs []string

	// Fingerprint identifies the source the matrix was loaded from.
	Fingerprint core.Hash
}

// NewDataset wraps a matrix and its labels. Nil label slices are replaced by
// positional ids ("0", "1", ...).
func NewDataset(m Matrix, cellIDs, geneIDs []string) (*Dataset, error) {
	if m == nil {
		return nil, core.NewDataShapeError("dataset has no matrix")
	}
	rows, cols := m.Dims()
	if cellIDs == nil {
		cellIDs = positionalIDs(rows)
	}
	if geneIDs == nil {
		geneIDs = positionalIDs(cols)
	}
	d := &Dataset{Matrix: m, CellIDs: cellIDs, GeneIDs: geneIDs}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate ensures the labels agree with the matrix shape.
func (d *Dataset) Validate() error {
	if d.Matrix == nil {
		return core.NewDataShapeError("dataset has no matrix")
	}
	rows, cols := d.Matrix.Dims()
	if rows == 0 || cols == 0 {
		return core.NewDataShapeError("dataset is empty (%d cells, %d genes)", rows, cols)
	}
	if len(d.CellIDs) != rows {
		return core.NewDataShapeError("%d cell ids for %d matrix rows", len(d.CellIDs), rows)
	}
	if len(d.GeneIDs) != cols {
		return core.NewDataShapeError("%d gene ids for %d matrix columns", len(d.GeneIDs), cols)
	}
	return nil
}

// CellCount returns the number of cells (rows)
func (d *Dataset) CellCount() int {
	rows, _ := d.Matrix.Dims()
	return rows
}

// GeneCount returns the number of genes (columns)
func (d *Dataset) GeneCount() int {
	_, cols := d.Matrix.Dims()
	return cols
}

// GeneColumn returns the column of a gene, matched case-insensitively.
// On duplicate ids the first occurrence wins.
func (d *Dataset) GeneColumn(geneID string) (int, bool) {
	key := normalizeGeneID(geneID)
	for j, id := range d.GeneIDs {
		if normalizeGeneID(id) == key {
			return j, true
		}
	}
	return -1, false
}

// GetColumnData returns the expression of one gene across all cells.
func (d *Dataset) GetColumnData(geneID string) ([]float64, bool) {
	j, ok := d.GeneColumn(geneID)
	if !ok {
		return nil, false
	}
	return d.Matrix.Column(nil, j), true
}

// SelectCells returns a dataset restricted to the listed rows.
func (d *Dataset) SelectCells(rows []int) (*Dataset, error) {
	if len(rows) == 0 {
		return nil, core.NewDataShapeError("cell selection is empty")
	}
	ids := make([]string, len(rows))
	seen := make(map[int]struct{}, len(rows))
	for i, r := range rows {
		if r < 0 || r >= len(d.CellIDs) {
			return nil, core.NewDataShapeError("cell index %d out of range", r)
		}
		if _, dup := seen[r]; dup {
			return nil, core.NewDataShapeError("cell index %d selected twice", r)
		}
		seen[r] = struct{}{}
		ids[i] = d.CellIDs[r]
	}
	return &Dataset{
		Matrix:      d.Matrix.SelectRows(rows),
		CellIDs:     ids,
		GeneIDs:     d.GeneIDs,
		Fingerprint: d.Fingerprint,
	}, nil
}

func positionalIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = strconv.Itoa(i)
	}
	return ids
}

func normalizeGeneID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
