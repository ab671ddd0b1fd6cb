package dataset

import (
	"genescore/domain/core"
)

// GeneSet is a named list of gene identifiers as declared in a gene set file.
type GeneSet struct {
	Name        string
	Description string
	Genes       []string
}

// GeneSetColumn is one column of the gene × set membership matrix: a set
// intersected with the genes of a dataset.
type GeneSetColumn struct {
	Name        string
	Description string
	Members     []bool
}

// NewGeneSetColumn builds a column from member gene positions.
func NewGeneSetColumn(name string, geneCount int, members ...int) (GeneSetColumn, error) {
	col := GeneSetColumn{Name: name, Members: make([]bool, geneCount)}
	for _, j := range members {
		if j < 0 || j >= geneCount {
			return GeneSetColumn{}, core.NewDataShapeError("gene set %s: member %d outside %d genes", name, j, geneCount)
		}
		col.Members[j] = true
	}
	return col, nil
}

// Indices returns the member gene positions in ascending order.
func (c GeneSetColumn) Indices() []int {
	var idx []int
	for j, in := range c.Members {
		if in {
			idx = append(idx, j)
		}
	}
	return idx
}

// AlignGeneSets intersects every set with geneIDs, case-insensitively and
// keeping the first occurrence of duplicate ids. Sets with no surviving
// member are kept as empty columns so the caller can report them; if no set
// overlaps the dataset at all, ErrNoOverlap is returned.
func AlignGeneSets(sets []GeneSet, geneIDs []string) ([]GeneSetColumn, error) {
	if len(sets) == 0 {
		return nil, core.ErrNoGeneSets
	}
	index := make(map[string]int, len(geneIDs))
	for j, id := range geneIDs {
		key := normalizeGeneID(id)
		if _, ok := index[key]; !ok {
			index[key] = j
		}
	}

	cols := make([]GeneSetColumn, len(sets))
	overlap := false
	for i, set := range sets {
		col := GeneSetColumn{
			Name:        set.Name,
			Description: set.Description,
			Members:     make([]bool, len(geneIDs)),
		}
		for _, gene := range set.Genes {
			if j, ok := index[normalizeGeneID(gene)]; ok {
				col.Members[j] = true
				overlap = true
			}
		}
		cols[i] = col
	}
	if !overlap {
		return nil, core.ErrNoOverlap
	}
	return cols, nil
}
