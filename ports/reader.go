package ports

import (
	"context"

	"genescore/domain/dataset"
	"genescore/domain/scoring"
)

// MatrixReader loads an expression matrix with its cell and gene labels
type MatrixReader interface {
	ReadMatrix(ctx context.Context, path string) (*dataset.Dataset, error)
}

// GeneSetReader loads gene set definitions
type GeneSetReader interface {
	ReadGeneSets(ctx context.Context, path string) ([]dataset.GeneSet, error)
}

// ResultWriter writes the rows of one scored set. It returns the path it
// wrote to.
type ResultWriter interface {
	WriteSet(ctx context.Context, prefix string, result *scoring.SetResult) (string, error)
}

// GeneSetSelector narrows loaded sets to those named by a filter, given
// either as a comma separated list or as a file of names
type GeneSetSelector interface {
	SelectGeneSets(sets []dataset.GeneSet, filter string) ([]dataset.GeneSet, error)
}

// GeneSetSource reads and selects gene sets
type GeneSetSource interface {
	GeneSetReader
	GeneSetSelector
}
