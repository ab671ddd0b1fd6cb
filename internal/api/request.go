package api

import (
	"strings"

	"genescore/domain/core"
	"genescore/domain/dataset"
	"genescore/domain/scoring"
)

// ScoreRequest is the body of POST /api/v1/score. The matrix is given
// either densely as rows (one per cell) or sparsely as entries.
type ScoreRequest struct {
	Source   string           `json:"source,omitempty"`
	CellIDs  []string         `json:"cell_ids,omitempty"`
	GeneIDs  []string         `json:"gene_ids" binding:"required"`
	Rows     [][]float64      `json:"rows,omitempty"`
	Entries  []Entry          `json:"entries,omitempty"`
	Cells    int              `json:"cells,omitempty"` // row count of a sparse matrix without cell ids
	GeneSets []GeneSetRequest `json:"gene_sets" binding:"required"`
	Params   scoring.Params   `json:"params"`
	Async    bool             `json:"async,omitempty"`
}

// Entry is one stored value of a sparse matrix, zero-based
type Entry struct {
	Cell  int     `json:"cell"`
	Gene  int     `json:"gene"`
	Value float64 `json:"value"`
}

// GeneSetRequest is one gene set of a request
type GeneSetRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Genes       []string `json:"genes"`
}

// Dataset builds the expression dataset the request describes
func (r *ScoreRequest) Dataset() (*dataset.Dataset, error) {
	if len(r.GeneIDs) == 0 {
		return nil, core.NewDataShapeError("gene_ids is empty")
	}

	var m dataset.Matrix
	switch {
	case len(r.Rows) > 0 && len(r.Entries) > 0:
		return nil, core.NewConfigurationError("matrix", "give either rows or entries, not both")

	case len(r.Rows) > 0:
		dense, err := dataset.NewDenseFromRows(r.Rows)
		if err != nil {
			return nil, err
		}
		m = dense

	case len(r.Entries) > 0:
		cells := r.Cells
		if len(r.CellIDs) > 0 {
			cells = len(r.CellIDs)
		}
		triplets := make([]dataset.Triplet, len(r.Entries))
		for i, e := range r.Entries {
			triplets[i] = dataset.Triplet{Row: e.Cell, Col: e.Gene, Value: e.Value}
		}
		sparse, err := dataset.NewSparse(cells, len(r.GeneIDs), triplets)
		if err != nil {
			return nil, err
		}
		m = sparse

	default:
		return nil, core.NewConfigurationError("matrix", "rows or entries required")
	}

	var cellIDs []string
	if len(r.CellIDs) > 0 {
		cellIDs = r.CellIDs
	}
	return dataset.NewDataset(m, cellIDs, r.GeneIDs)
}

// Sets converts the request's gene sets
func (r *ScoreRequest) Sets() ([]dataset.GeneSet, error) {
	if len(r.GeneSets) == 0 {
		return nil, core.ErrNoGeneSets
	}
	sets := make([]dataset.GeneSet, len(r.GeneSets))
	seen := make(map[string]bool, len(r.GeneSets))
	for i, gs := range r.GeneSets {
		name := strings.TrimSpace(gs.Name)
		if name == "" {
			return nil, core.NewConfigurationError("gene_sets", "every gene set needs a name")
		}
		if seen[name] {
			return nil, core.NewConfigurationError("gene_sets", "duplicate gene set "+name)
		}
		seen[name] = true
		sets[i] = dataset.GeneSet{Name: name, Description: gs.Description, Genes: gs.Genes}
	}
	return sets, nil
}
