package matrixio

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"genescore/domain/core"
	"genescore/domain/dataset"
	"genescore/internal"
	"genescore/internal/fileutil"
)

// Reader loads expression matrices, choosing the format from the file
// extension: txt, tsv, csv, gct, mtx or xlsx, each optionally gzipped.
// Cells are always returned on rows.
type Reader struct {
	logger *internal.Logger
}

// NewReader creates a matrix reader
func NewReader(logger *internal.Logger) *Reader {
	return &Reader{logger: logger}
}

// ReadMatrix implements ports.MatrixReader
func (r *Reader) ReadMatrix(ctx context.Context, path string) (*dataset.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	_, ext := fileutil.SplitExt(path)

	var (
		d   *dataset.Dataset
		err error
	)
	switch ext {
	case "mtx":
		d, err = r.readMTX(path)
	case "gct":
		d, err = readWith(path, readGCT)
	case "xlsx":
		d, err = readXLSX(path)
	case "csv":
		d, err = readWith(path, func(rd io.Reader) (*dataset.Dataset, error) { return readDelimited(rd, ',') })
	case "txt", "tsv", "":
		d, err = readWith(path, func(rd io.Reader) (*dataset.Dataset, error) { return readDelimited(rd, 0) })
	default:
		return nil, core.NewConfigurationError("matrix", fmt.Sprintf("unknown matrix format %q", ext))
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	rows, cols := d.Matrix.Dims()
	r.logger.Info("read %s: %d cells x %d genes (sparse=%t) in %.2fms",
		path, rows, cols, d.Matrix.IsSparse(), float64(time.Since(start).Nanoseconds())/1e6)
	return d, nil
}

func readWith(path string, parse func(io.Reader) (*dataset.Dataset, error)) (*dataset.Dataset, error) {
	f, err := fileutil.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parse(f)
}

// tableDataset turns a labelled table of cells x genes into a dense dataset
func tableDataset(cellIDs, geneIDs []string, values []float64) (*dataset.Dataset, error) {
	if len(cellIDs) == 0 || len(geneIDs) == 0 {
		return nil, core.NewDataShapeError("matrix has %d cells and %d genes", len(cellIDs), len(geneIDs))
	}
	m, err := dataset.NewDense(len(cellIDs), len(geneIDs), values)
	if err != nil {
		return nil, err
	}
	return dataset.NewDataset(m, cellIDs, geneIDs)
}

// parseRow appends the numeric fields of one data row to values
func parseRow(values []float64, fields []string, want, line int) ([]float64, error) {
	if len(fields) != want {
		return nil, core.NewDataShapeError("line %d has %d values, expected %d", line, len(fields), want)
	}
	for _, s := range fields {
		s = strings.TrimSpace(s)
		if s == "" {
			values = append(values, 0)
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, core.NewDataShapeError("line %d: %q is not a number", line, s)
		}
		values = append(values, v)
	}
	return values, nil
}
