package dataset

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"genescore/domain/core"
)

// Dense is a row-major in-memory expression matrix backed by gonum.
type Dense struct {
	m *mat.Dense
}

// NewDense wraps rows×cols values given in row-major order.
func NewDense(rows, cols int, data []float64) (*Dense, error) {
	if rows <= 0 || cols <= 0 {
		return nil, core.NewDataShapeError("dense matrix must have positive dimensions, got %dx%d", rows, cols)
	}
	if len(data) != rows*cols {
		return nil, core.NewDataShapeError("dense matrix %dx%d needs %d values, got %d", rows, cols, rows*cols, len(data))
	}
	return &Dense{m: mat.NewDense(rows, cols, data)}, nil
}

// NewDenseFromRows copies a ragged-checked slice of rows.
func NewDenseFromRows(values [][]float64) (*Dense, error) {
	if len(values) == 0 {
		return nil, core.NewDataShapeError("dense matrix has no rows")
	}
	cols := len(values[0])
	data := make([]float64, 0, len(values)*cols)
	for i, row := range values {
		if len(row) != cols {
			return nil, core.NewDataShapeError("row %d has %d columns, expected %d", i, len(row), cols)
		}
		data = append(data, row...)
	}
	return NewDense(len(values), cols, data)
}

// Raw exposes the gonum matrix.
func (d *Dense) Raw() *mat.Dense { return d.m }

func (d *Dense) Dims() (int, int) { return d.m.Dims() }

func (d *Dense) At(i, j int) float64 { return d.m.At(i, j) }

func (d *Dense) IsSparse() bool { return false }

func (d *Dense) Column(dst []float64, j int) []float64 {
	rows, _ := d.m.Dims()
	if cap(dst) < rows {
		dst = make([]float64, rows)
	}
	dst = dst[:rows]
	return mat.Col(dst, j, d.m)
}

func (d *Dense) ColumnMeanVariance() ([]float64, []float64) {
	rows, cols := d.m.Dims()
	means := make([]float64, cols)
	variances := make([]float64, cols)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		col = d.Column(col, j)
		means[j], variances[j] = stat.PopMeanVariance(col, nil)
	}
	return means, variances
}

func (d *Dense) AccumulateColumns(acc []float64, cols []int, rows []int) {
	raw := d.m.RawMatrix()
	for _, i := range rows {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		s := acc[i]
		for _, j := range cols {
			s += row[j]
		}
		acc[i] = s
	}
}

// MapColumns passes every column in full, so zeros is always 0.
func (d *Dense) MapColumns(f func(j int, stored []float64, zeros int) []float64) Matrix {
	rows, cols := d.m.Dims()
	out := mat.NewDense(rows, cols, nil)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		col = d.Column(col, j)
		out.SetCol(j, f(j, col, 0))
	}
	return &Dense{m: out}
}

func (d *Dense) SelectRows(rows []int) Matrix {
	_, cols := d.m.Dims()
	data := make([]float64, 0, len(rows)*cols)
	for _, i := range rows {
		data = append(data, d.m.RawRowView(i)...)
	}
	if len(rows) == 0 {
		return &Dense{m: &mat.Dense{}}
	}
	return &Dense{m: mat.NewDense(len(rows), cols, data)}
}
