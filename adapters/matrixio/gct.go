package matrixio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"genescore/domain/core"
	"genescore/domain/dataset"
)

// readGCT parses GCT 1.2 or 1.3. GCT stores features on rows and samples on
// columns, so the table is transposed to put cells on rows.
func readGCT(r io.Reader) (*dataset.Dataset, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1<<20), 1<<30)

	next := func(what string) ([]string, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return nil, err
			}
			return nil, core.NewDataShapeError("gct: missing %s line", what)
		}
		return strings.Split(strings.TrimRight(sc.Text(), "\r"), "\t"), nil
	}

	version, err := next("version")
	if err != nil {
		return nil, err
	}
	dims, err := next("dimensions")
	if err != nil {
		return nil, err
	}
	rowMeta, colMeta := 1, 0 // 1.2 carries a Description column only
	if strings.TrimSpace(version[0]) == "#1.3" {
		if len(dims) < 4 {
			return nil, core.NewDataShapeError("gct 1.3: dimensions line needs 4 fields, got %d", len(dims))
		}
		if rowMeta, err = strconv.Atoi(strings.TrimSpace(dims[2])); err != nil {
			return nil, core.NewDataShapeError("gct: bad row metadata count %q", dims[2])
		}
		if colMeta, err = strconv.Atoi(strings.TrimSpace(dims[3])); err != nil {
			return nil, core.NewDataShapeError("gct: bad column metadata count %q", dims[3])
		}
	}

	header, err := next("header")
	if err != nil {
		return nil, err
	}
	first := 1 + rowMeta
	if len(header) < first {
		return nil, core.NewDataShapeError("gct: header has %d fields", len(header))
	}
	cellIDs := make([]string, 0, len(header)-first)
	for _, c := range header[first:] {
		cellIDs = append(cellIDs, strings.TrimSpace(c))
	}
	for i := 0; i < colMeta; i++ {
		if _, err := next("column metadata"); err != nil {
			return nil, err
		}
	}

	var geneIDs []string
	var byGene []float64
	line := 3 + colMeta
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < first {
			return nil, core.NewDataShapeError("line %d has %d fields", line, len(fields))
		}
		geneIDs = append(geneIDs, strings.TrimSpace(fields[0]))
		if byGene, err = parseRow(byGene, fields[first:], len(cellIDs), line); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	cells, genes := len(cellIDs), len(geneIDs)
	values := make([]float64, cells*genes)
	for g := 0; g < genes; g++ {
		for c := 0; c < cells; c++ {
			values[c*genes+g] = byGene[g*cells+c]
		}
	}
	return tableDataset(cellIDs, geneIDs, values)
}

// writeGCT writes a cells x columns table as GCT 1.3 with no metadata
func writeGCT(w io.Writer, t *table) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "#1.3\n%d\t%d\t0\t0\n", len(t.cellIDs), len(t.columns))
	writeDelimitedRows(bw, t, "\t")
	return bw.Flush()
}
