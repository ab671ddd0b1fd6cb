package dataset

// Matrix is a read-only cells × genes expression matrix. Dense and Sparse
// are the two representations; scoring code only talks to this interface.
//
// Implementations must treat implicit zeros of sparse storage as zeros:
// Column, ColumnMeanVariance and AccumulateColumns all see them.
type Matrix interface {
	// Dims returns the number of rows (cells) and columns (genes).
	Dims() (rows, cols int)

	// At returns the value at row i, column j.
	At(i, j int) float64

	// Column copies column j into dst, which is grown if needed.
	Column(dst []float64, j int) []float64

	// ColumnMeanVariance returns the population mean and variance of every
	// column.
	ColumnMeanVariance() (means, variances []float64)

	// AccumulateColumns adds, for every row listed in rows, the values of
	// the listed columns to acc[row], in the order given by cols. Rows not
	// listed may or may not be touched.
	AccumulateColumns(acc []float64, cols []int, rows []int)

	// MapColumns returns a matrix of the same representation whose stored
	// entries of column j are f(j, stored, zeros). stored holds the stored
	// values of the column in row order, zeros the number of implicit zeros;
	// f returns one replacement per stored value and must not keep stored.
	// Implicit zeros stay zero.
	MapColumns(f func(j int, stored []float64, zeros int) []float64) Matrix

	// SelectRows returns a matrix made of the listed rows, in that order.
	SelectRows(rows []int) Matrix

	// IsSparse reports whether implicit zeros are omitted from storage.
	IsSparse() bool
}

// AllRows returns the row indices 0..n-1.
func AllRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}
