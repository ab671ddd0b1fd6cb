package dataset

import (
	"encoding/json"
	"fmt"

	"genescore/domain/core"
)

// Manifest captures what a scoring run was computed from
type Manifest struct {
	Source      string    `json:"source"`
	CellCount   int       `json:"cell_count"`
	GeneCount   int       `json:"gene_count"`
	Sparse      bool      `json:"sparse"`
	CellIDsHash core.Hash `json:"cell_ids_hash"`
	GeneIDsHash core.Hash `json:"gene_ids_hash"`
}

// NewManifest describes a dataset loaded from source
func NewManifest(source string, d *Dataset) *Manifest {
	return &Manifest{
		Source:      source,
		CellCount:   d.CellCount(),
		GeneCount:   d.GeneCount(),
		Sparse:      d.Matrix.IsSparse(),
		CellIDsHash: computeIDsHash(d.CellIDs),
		GeneIDsHash: computeIDsHash(d.GeneIDs),
	}
}

// computeIDsHash hashes ids in their stored order; order matters for results
func computeIDsHash(ids []string) core.Hash {
	data, _ := json.Marshal(ids)
	return core.NewHash(data)
}

// ComputeFingerprint combines the manifest with the run parameters and seed.
// Two runs with equal fingerprints produce identical results.
func (m *Manifest) ComputeFingerprint(params any, seed uint64) core.Hash {
	manifestData, _ := json.Marshal(m)
	paramsData, _ := json.Marshal(params)

	fingerprintData := fmt.Sprintf("%s|%s|%d",
		core.NewHash(manifestData), core.NewHash(paramsData), seed)
	return core.NewHash([]byte(fingerprintData))
}
