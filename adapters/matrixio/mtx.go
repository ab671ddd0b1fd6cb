package matrixio

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"genescore/domain/core"
	"genescore/domain/dataset"
	"genescore/internal/fileutil"
)

// readMTX loads a MatrixMarket coordinate file written genes x cells, as
// 10x Genomics does, into a sparse cells x genes matrix. Cell and gene ids
// come from barcodes and genes (or features) files next to it.
func (r *Reader) readMTX(path string) (*dataset.Dataset, error) {
	f, err := fileutil.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := parseMTX(f)
	if err != nil {
		return nil, err
	}
	cells, genes := m.Dims()

	base, _ := fileutil.SplitExt(path)
	cellIDs, err := r.siblingIDs(path, base, "barcodes", cells)
	if err != nil {
		return nil, err
	}
	geneIDs, err := r.siblingIDs(path, base, "genes", genes)
	if err != nil {
		return nil, err
	}
	return dataset.NewDataset(m, cellIDs, geneIDs)
}

func parseMTX(r io.Reader) (*dataset.Sparse, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	if !sc.Scan() {
		return nil, core.NewDataShapeError("mtx: empty file")
	}
	banner := strings.Fields(strings.ToLower(sc.Text()))
	if len(banner) < 4 || banner[0] != "%%matrixmarket" || banner[1] != "matrix" || banner[2] != "coordinate" {
		return nil, core.NewDataShapeError("mtx: only coordinate MatrixMarket files are supported")
	}
	pattern := banner[3] == "pattern"

	var genes, cells, nnz int
	sized := false
	var triplets []dataset.Triplet
	line := 1
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || text[0] == '%' {
			continue
		}
		fields := strings.Fields(text)
		if !sized {
			if len(fields) < 3 {
				return nil, core.NewDataShapeError("mtx: bad size line %q", text)
			}
			dims, err := atois(fields[:3])
			if err != nil {
				return nil, core.NewDataShapeError("mtx: bad size line %q", text)
			}
			genes, cells, nnz = dims[0], dims[1], dims[2]
			triplets = make([]dataset.Triplet, 0, nnz)
			sized = true
			continue
		}

		want := 3
		if pattern {
			want = 2
		}
		if len(fields) < want {
			return nil, core.NewDataShapeError("mtx: line %d has %d fields", line, len(fields))
		}
		idx, err := atois(fields[:2])
		if err != nil {
			return nil, core.NewDataShapeError("mtx: line %d: %v", line, err)
		}
		v := 1.0
		if !pattern {
			if v, err = strconv.ParseFloat(fields[2], 64); err != nil {
				return nil, core.NewDataShapeError("mtx: line %d: %q is not a number", line, fields[2])
			}
		}
		// 1-based, genes on rows
		triplets = append(triplets, dataset.Triplet{Row: idx[1] - 1, Col: idx[0] - 1, Value: v})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !sized {
		return nil, core.NewDataShapeError("mtx: missing size line")
	}
	if len(triplets) != nnz {
		return nil, core.NewDataShapeError("mtx: header declares %d entries, found %d", nnz, len(triplets))
	}
	return dataset.NewSparse(cells, genes, triplets)
}

// siblingIDs reads the first column of the barcodes or genes file beside
// path. Without one, ids are positional.
func (r *Reader) siblingIDs(path, base, kind string, want int) ([]string, error) {
	kinds := []string{kind}
	if kind == "genes" {
		kinds = append(kinds, "features")
	}
	var names []string
	for _, k := range kinds {
		for _, ext := range []string{"tsv", "txt"} {
			names = append(names, k+"."+ext)
			for _, sep := range []string{".", "_", "-"} {
				names = append(names, base+sep+k+"."+ext)
			}
		}
	}

	idsPath, ok := fileutil.FindSibling(path, names...)
	if !ok {
		r.logger.Warn("%s: no %s file found, using positional ids", path, kind)
		return nil, nil
	}
	f, err := fileutil.Open(idsPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		text := strings.TrimRight(sc.Text(), "\r")
		if text == "" {
			continue
		}
		id, _, _ := strings.Cut(text, "\t")
		ids = append(ids, id)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(ids) != want {
		return nil, core.NewDataShapeError("wrong number of %s: matrix has %d, %s has %d", kind, want, idsPath, len(ids))
	}
	return ids, nil
}

func atois(fields []string) ([]int, error) {
	out := make([]int, len(fields))
	for i, s := range fields {
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
