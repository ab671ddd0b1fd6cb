package dataset

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"genescore/domain/core"
)

// Sparse is a compressed sparse column matrix. Column j owns the stored
// entries rowIdx[colPtr[j]:colPtr[j+1]], sorted by row.
type Sparse struct {
	rows, cols int
	colPtr     []int
	rowIdx     []int
	values     []float64
}

// Triplet is one stored entry of a coordinate-format matrix.
type Triplet struct {
	Row, Col int
	Value    float64
}

// NewSparse builds a CSC matrix from coordinate triplets. Duplicate
// coordinates are summed; explicit zeros are dropped.
func NewSparse(rows, cols int, triplets []Triplet) (*Sparse, error) {
	if rows <= 0 || cols <= 0 {
		return nil, core.NewDataShapeError("sparse matrix must have positive dimensions, got %dx%d", rows, cols)
	}
	for _, t := range triplets {
		if t.Row < 0 || t.Row >= rows || t.Col < 0 || t.Col >= cols {
			return nil, core.NewDataShapeError("entry (%d, %d) outside %dx%d matrix", t.Row, t.Col, rows, cols)
		}
	}

	sorted := make([]Triplet, len(triplets))
	copy(sorted, triplets)
	sort.Slice(sorted, func(a, b int) bool {
		if sorted[a].Col != sorted[b].Col {
			return sorted[a].Col < sorted[b].Col
		}
		return sorted[a].Row < sorted[b].Row
	})

	s := &Sparse{rows: rows, cols: cols, colPtr: make([]int, cols+1)}
	for i := 0; i < len(sorted); {
		t := sorted[i]
		v := t.Value
		i++
		for i < len(sorted) && sorted[i].Row == t.Row && sorted[i].Col == t.Col {
			v += sorted[i].Value
			i++
		}
		if v == 0 {
			continue
		}
		s.rowIdx = append(s.rowIdx, t.Row)
		s.values = append(s.values, v)
		s.colPtr[t.Col+1]++
	}
	for j := 0; j < cols; j++ {
		s.colPtr[j+1] += s.colPtr[j]
	}
	return s, nil
}

// SparseFromDense stores the non-zero entries of m.
func SparseFromDense(m Matrix) *Sparse {
	rows, cols := m.Dims()
	s := &Sparse{rows: rows, cols: cols, colPtr: make([]int, cols+1)}
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			if v := m.At(i, j); v != 0 {
				s.rowIdx = append(s.rowIdx, i)
				s.values = append(s.values, v)
			}
		}
		s.colPtr[j+1] = len(s.values)
	}
	return s
}

// NNZ returns the number of stored entries.
func (s *Sparse) NNZ() int { return len(s.values) }

func (s *Sparse) Dims() (int, int) { return s.rows, s.cols }

func (s *Sparse) IsSparse() bool { return true }

func (s *Sparse) At(i, j int) float64 {
	lo, hi := s.colPtr[j], s.colPtr[j+1]
	k := lo + sort.SearchInts(s.rowIdx[lo:hi], i)
	if k < hi && s.rowIdx[k] == i {
		return s.values[k]
	}
	return 0
}

func (s *Sparse) Column(dst []float64, j int) []float64 {
	if cap(dst) < s.rows {
		dst = make([]float64, s.rows)
	}
	dst = dst[:s.rows]
	clear(dst)
	for k := s.colPtr[j]; k < s.colPtr[j+1]; k++ {
		dst[s.rowIdx[k]] = s.values[k]
	}
	return dst
}

func (s *Sparse) ColumnMeanVariance() ([]float64, []float64) {
	means := make([]float64, s.cols)
	variances := make([]float64, s.cols)
	col := make([]float64, s.rows)
	for j := 0; j < s.cols; j++ {
		col = s.Column(col, j)
		means[j], variances[j] = stat.PopMeanVariance(col, nil)
	}
	return means, variances
}

// AccumulateColumns walks the stored entries of each listed column, so rows
// outside the active list receive contributions too.
func (s *Sparse) AccumulateColumns(acc []float64, cols []int, _ []int) {
	for _, j := range cols {
		for k := s.colPtr[j]; k < s.colPtr[j+1]; k++ {
			acc[s.rowIdx[k]] += s.values[k]
		}
	}
}

func (s *Sparse) MapColumns(f func(j int, stored []float64, zeros int) []float64) Matrix {
	out := &Sparse{
		rows:   s.rows,
		cols:   s.cols,
		colPtr: append([]int(nil), s.colPtr...),
		rowIdx: append([]int(nil), s.rowIdx...),
		values: make([]float64, len(s.values)),
	}
	var buf []float64
	for j := 0; j < s.cols; j++ {
		lo, hi := s.colPtr[j], s.colPtr[j+1]
		buf = append(buf[:0], s.values[lo:hi]...)
		copy(out.values[lo:hi], f(j, buf, s.rows-(hi-lo)))
	}
	return out
}

// SelectRows keeps the listed rows. Rows must be distinct.
func (s *Sparse) SelectRows(rows []int) Matrix {
	remap := make([]int, s.rows)
	for i := range remap {
		remap[i] = -1
	}
	for newRow, old := range rows {
		remap[old] = newRow
	}

	out := &Sparse{rows: len(rows), cols: s.cols, colPtr: make([]int, s.cols+1)}
	type entry struct {
		row int
		v   float64
	}
	var buf []entry
	for j := 0; j < s.cols; j++ {
		buf = buf[:0]
		for k := s.colPtr[j]; k < s.colPtr[j+1]; k++ {
			if r := remap[s.rowIdx[k]]; r >= 0 {
				buf = append(buf, entry{row: r, v: s.values[k]})
			}
		}
		sort.Slice(buf, func(a, b int) bool { return buf[a].row < buf[b].row })
		for _, e := range buf {
			out.rowIdx = append(out.rowIdx, e.row)
			out.values = append(out.values, e.v)
		}
		out.colPtr[j+1] = len(out.values)
	}
	return out
}
