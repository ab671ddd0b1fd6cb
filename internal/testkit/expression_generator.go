package testkit

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"genescore/domain/dataset"
)

// ExpressionGeneratorConfig configures the synthetic single-cell generator
type ExpressionGeneratorConfig struct {
	CellCount    int     `json:"cell_count"`
	GeneCount    int     `json:"gene_count"`
	ProgramCount int     `json:"program_count"` // planted co-expressed gene programs
	ProgramSize  int     `json:"program_size"`  // genes per program
	ActiveCells  float64 `json:"active_cells"`  // fraction of cells expressing each program
	Uplift       float64 `json:"uplift"`        // multiplier on the program genes' rate
	Dispersion   float64 `json:"dispersion"`    // gamma shape; smaller is noisier
	DecoyCount   int     `json:"decoy_count"`   // random gene sets with no signal
	Sparse       bool    `json:"sparse"`
	Seed         uint64  `json:"seed"`
}

// DefaultExpressionConfig returns a small dataset that scores in well
// under a second
func DefaultExpressionConfig() ExpressionGeneratorConfig {
	return ExpressionGeneratorConfig{
		CellCount:    60,
		GeneCount:    200,
		ProgramCount: 2,
		ProgramSize:  8,
		ActiveCells:  0.25,
		Uplift:       6,
		Dispersion:   2,
		DecoyCount:   2,
		Seed:         42,
	}
}

// Program is a planted gene program and the cells expressing it
type Program struct {
	Set   dataset.GeneSet
	Cells []int
}

// Expression is generated data with its ground truth
type Expression struct {
	Dataset  *dataset.Dataset
	Programs []Program
	Decoys   []dataset.GeneSet
}

// GeneSets returns programs followed by decoys
func (e *Expression) GeneSets() []dataset.GeneSet {
	sets := make([]dataset.GeneSet, 0, len(e.Programs)+len(e.Decoys))
	for _, p := range e.Programs {
		sets = append(sets, p.Set)
	}
	return append(sets, e.Decoys...)
}

// ExpressionGenerator draws gamma-Poisson counts, the usual model for UMI
// data, with per-gene base rates and planted programs
type ExpressionGenerator struct {
	config ExpressionGeneratorConfig
	src    rand.Source
	rng    *rand.Rand
}

// NewExpressionGenerator creates a generator
func NewExpressionGenerator(config ExpressionGeneratorConfig) *ExpressionGenerator {
	src := rand.NewPCG(config.Seed, 0x9e3779b97f4a7c15)
	return &ExpressionGenerator{config: config, src: src, rng: rand.New(src)}
}

// Generate builds the dataset
func (g *ExpressionGenerator) Generate() (*Expression, error) {
	cfg := g.config
	if cfg.ProgramCount*cfg.ProgramSize > cfg.GeneCount {
		return nil, fmt.Errorf("%d programs of %d genes do not fit in %d genes", cfg.ProgramCount, cfg.ProgramSize, cfg.GeneCount)
	}

	cellIDs := make([]string, cfg.CellCount)
	for i := range cellIDs {
		cellIDs[i] = fmt.Sprintf("cell_%03d", i)
	}
	geneIDs := make([]string, cfg.GeneCount)
	for j := range geneIDs {
		geneIDs[j] = fmt.Sprintf("GENE%04d", j)
	}

	// base rates spread over two orders of magnitude so background matching
	// has something to match on
	rates := make([]float64, cfg.GeneCount)
	for j := range rates {
		rates[j] = 0.1 * float64(int(1)<<g.rng.IntN(7))
	}

	uplift := make([][]float64, cfg.CellCount)
	for i := range uplift {
		uplift[i] = make([]float64, cfg.GeneCount)
		for j := range uplift[i] {
			uplift[i][j] = 1
		}
	}

	genes := g.rng.Perm(cfg.GeneCount)
	out := &Expression{}
	for p := 0; p < cfg.ProgramCount; p++ {
		members := genes[p*cfg.ProgramSize : (p+1)*cfg.ProgramSize]
		set := dataset.GeneSet{Name: fmt.Sprintf("PROGRAM_%d", p+1), Description: "planted"}
		for _, j := range members {
			set.Genes = append(set.Genes, geneIDs[j])
		}
		active := g.pickCells(cfg.ActiveCells)
		for _, i := range active {
			for _, j := range members {
				uplift[i][j] = cfg.Uplift
			}
		}
		out.Programs = append(out.Programs, Program{Set: set, Cells: active})
	}

	for d := 0; d < cfg.DecoyCount; d++ {
		set := dataset.GeneSet{Name: fmt.Sprintf("DECOY_%d", d+1), Description: "random"}
		for _, j := range g.rng.Perm(cfg.GeneCount)[:max(cfg.ProgramSize, 1)] {
			set.Genes = append(set.Genes, geneIDs[j])
		}
		out.Decoys = append(out.Decoys, set)
	}

	values := make([]float64, cfg.CellCount*cfg.GeneCount)
	for i := 0; i < cfg.CellCount; i++ {
		for j := 0; j < cfg.GeneCount; j++ {
			values[i*cfg.GeneCount+j] = g.count(rates[j] * uplift[i][j])
		}
	}

	m, err := dataset.NewDense(cfg.CellCount, cfg.GeneCount, values)
	if err != nil {
		return nil, err
	}
	var matrix dataset.Matrix = m
	if cfg.Sparse {
		matrix = dataset.SparseFromDense(m)
	}
	out.Dataset, err = dataset.NewDataset(matrix, cellIDs, geneIDs)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// count draws Poisson(Gamma(shape, shape/mean)), which has the given mean
func (g *ExpressionGenerator) count(mean float64) float64 {
	shape := g.config.Dispersion
	if shape <= 0 {
		shape = 1
	}
	lambda := distuv.Gamma{Alpha: shape, Beta: shape / mean, Src: g.src}.Rand()
	if lambda <= 0 {
		return 0
	}
	return distuv.Poisson{Lambda: lambda, Src: g.src}.Rand()
}

func (g *ExpressionGenerator) pickCells(fraction float64) []int {
	n := int(fraction * float64(g.config.CellCount))
	n = max(1, min(n, g.config.CellCount))
	cells := g.rng.Perm(g.config.CellCount)[:n]
	sorted := make([]int, 0, n)
	in := make([]bool, g.config.CellCount)
	for _, c := range cells {
		in[c] = true
	}
	for i, ok := range in {
		if ok {
			sorted = append(sorted, i)
		}
	}
	return sorted
}
