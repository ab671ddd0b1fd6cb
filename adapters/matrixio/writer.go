package matrixio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"genescore/domain/core"
	"genescore/domain/scoring"
	"genescore/internal"
)

// Output formats accepted by NewWriter
const (
	FormatTXT  = "txt"
	FormatCSV  = "csv"
	FormatGCT  = "gct"
	FormatXLSX = "xlsx"
)

// Formats lists the supported output formats
var Formats = []string{FormatTXT, FormatGCT, FormatCSV, FormatXLSX}

// Writer writes one table per scored set to <prefix>_<set>.<format>
type Writer struct {
	format string
	logger *internal.Logger
}

// NewWriter creates a writer for format
func NewWriter(format string, logger *internal.Logger) (*Writer, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatTXT
	}
	for _, f := range Formats {
		if f == format {
			return &Writer{format: format, logger: logger}, nil
		}
	}
	return nil, core.NewConfigurationError("format", fmt.Sprintf("unknown output format %q", format))
}

// Format returns the output format
func (w *Writer) Format() string { return w.format }

// OutputPath returns where the rows of set are written for prefix
func (w *Writer) OutputPath(prefix, set string) string {
	return prefix + "_" + set + "." + w.format
}

// WriteSet implements ports.ResultWriter
func (w *Writer) WriteSet(ctx context.Context, prefix string, res *scoring.SetResult) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := w.OutputPath(prefix, res.Name)
	t := resultTable(res)

	var err error
	if w.format == FormatXLSX {
		err = writeXLSX(path, t)
	} else {
		err = writeFile(path, func(out io.Writer) error {
			switch w.format {
			case FormatGCT:
				return writeGCT(out, t)
			case FormatCSV:
				return writeDelimited(out, t, ",")
			default:
				return writeDelimited(out, t, "\t")
			}
		})
	}
	if err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	w.logger.Debug("wrote %d rows of set %s to %s", len(t.cellIDs), res.Name, path)
	return path, nil
}

// table is the output of one set: a row per cell, named numeric columns
type table struct {
	columns []string
	integer []bool
	cellIDs []string
	rows    [][]float64
}

// resultTable lays a set result out as the set name column followed by
// p_value, FDR_BH, k, n when permutations ran, and p_value_ci, FDR_BH_low,
// FDR_BH_high when early stopping was on. global_FDR_BH follows when the
// batch computed an FDR across all sets.
func resultTable(res *scoring.SetResult) *table {
	t := &table{columns: []string{res.Name}, integer: []bool{false}}
	global := res.Significance && len(res.Cells) > 0 && res.Cells[0].GlobalFDR != nil
	if res.Significance {
		t.columns = append(t.columns, "p_value", "FDR_BH", "k", "n")
		t.integer = append(t.integer, false, false, true, true)
		if res.WithBounds {
			t.columns = append(t.columns, "p_value_ci", "FDR_BH_low", "FDR_BH_high")
			t.integer = append(t.integer, false, false, false)
		}
		if global {
			t.columns = append(t.columns, "global_FDR_BH")
			t.integer = append(t.integer, false)
		}
	}

	t.cellIDs = make([]string, len(res.Cells))
	t.rows = make([][]float64, len(res.Cells))
	for i, c := range res.Cells {
		t.cellIDs[i] = c.CellID
		row := make([]float64, 0, len(t.columns))
		row = append(row, c.Score)
		if res.Significance {
			row = append(row, c.PValue, c.FDR, float64(c.K), float64(c.N))
			if res.WithBounds {
				b := c.Bounds
				if b == nil {
					b = &scoring.CellBounds{PValueCI: math.NaN(), FDRLow: math.NaN(), FDRHigh: math.NaN()}
				}
				row = append(row, b.PValueCI, b.FDRLow, b.FDRHigh)
			}
			if global {
				g := math.NaN()
				if c.GlobalFDR != nil {
					g = *c.GlobalFDR
				}
				row = append(row, g)
			}
		}
		t.rows[i] = row
	}
	return t
}

func (t *table) format(i, j int) string {
	v := t.rows[i][j]
	if t.integer[j] {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeDelimited(w io.Writer, t *table, sep string) error {
	bw := bufio.NewWriter(w)
	writeDelimitedRows(bw, t, sep)
	return bw.Flush()
}

func writeDelimitedRows(bw *bufio.Writer, t *table, sep string) {
	bw.WriteString("id")
	for _, c := range t.columns {
		bw.WriteString(sep)
		bw.WriteString(c)
	}
	bw.WriteByte('\n')
	for i, id := range t.cellIDs {
		bw.WriteString(id)
		for j := range t.rows[i] {
			bw.WriteString(sep)
			bw.WriteString(t.format(i, j))
		}
		bw.WriteByte('\n')
	}
}
