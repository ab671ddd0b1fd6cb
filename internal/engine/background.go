package engine

import (
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"

	"genescore/domain/dataset"
	"genescore/domain/scoring"
)

// BackgroundMatcher builds the pool of genes null subsets are drawn from.
// With a neighbour mode it indexes every gene by its expression statistics
// and pools the nearest neighbours of each set gene.
type BackgroundMatcher struct {
	mode      scoring.NeighborMode
	neighbors int
	genes     int
	points    genePoints
	tree      *kdtree.Tree
}

// NewBackgroundMatcher indexes the genes of m for the given mode. Gene
// statistics are taken from the untransformed expression values.
func NewBackgroundMatcher(m dataset.Matrix, mode scoring.NeighborMode, neighbors int) *BackgroundMatcher {
	_, genes := m.Dims()
	b := &BackgroundMatcher{mode: mode, neighbors: neighbors, genes: genes}
	if !b.matching() {
		return b
	}

	means, variances := m.ColumnMeanVariance()
	b.points = make(genePoints, genes)
	for g := 0; g < genes; g++ {
		switch mode {
		case scoring.NeighborMean:
			b.points[g] = genePoint{gene: g, x: []float64{means[g]}}
		case scoring.NeighborVariance:
			b.points[g] = genePoint{gene: g, x: []float64{variances[g]}}
		case scoring.NeighborMeanVariance:
			b.points[g] = genePoint{gene: g, x: []float64{means[g], variances[g]}}
		}
	}
	if mode == scoring.NeighborMeanVariance {
		minMaxScale(b.points, 0)
		minMaxScale(b.points, 1)
	}

	// kdtree.New reorders its input, keep b.points indexed by gene
	build := make(genePoints, genes)
	copy(build, b.points)
	b.tree = kdtree.New(build, false)
	return b
}

func (b *BackgroundMatcher) matching() bool {
	return b.mode != scoring.NeighborNone && b.mode != "" && b.neighbors > 0
}

// Pool returns the candidate genes for a set, ascending. When matching is
// off, or the matched pool is smaller than the set, every gene is a
// candidate.
func (b *BackgroundMatcher) Pool(setGenes []int) []int {
	if !b.matching() {
		return dataset.AllRows(b.genes)
	}

	k := b.neighbors
	if k > b.genes {
		k = b.genes
	}
	inPool := make(map[int]struct{})
	for _, g := range setGenes {
		keeper := kdtree.NewNKeeper(k)
		b.tree.NearestSet(keeper, b.points[g])
		for _, c := range keeper.Heap {
			inPool[c.Comparable.(genePoint).gene] = struct{}{}
		}
	}
	if len(inPool) < len(setGenes) {
		return dataset.AllRows(b.genes)
	}

	pool := make([]int, 0, len(inPool))
	for g := range inPool {
		pool = append(pool, g)
	}
	sort.Ints(pool)
	return pool
}

// genePoint is a gene located by its expression statistics
type genePoint struct {
	gene int
	x    []float64
}

func (p genePoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.x[d] - c.(genePoint).x[d]
}

func (p genePoint) Dims() int { return len(p.x) }

func (p genePoint) Distance(c kdtree.Comparable) float64 {
	q := c.(genePoint)
	sum := 0.0
	for i := range p.x {
		d := p.x[i] - q.x[i]
		sum += d * d
	}
	return sum
}

// genePoints implements kdtree.Interface with a deterministic pivot: the
// median by value, ties broken by gene index.
type genePoints []genePoint

func (p genePoints) Index(i int) kdtree.Comparable { return p[i] }

func (p genePoints) Len() int { return len(p) }

func (p genePoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p genePoints) Pivot(d kdtree.Dim) int {
	sort.Slice(p, func(i, j int) bool {
		if p[i].x[d] != p[j].x[d] {
			return p[i].x[d] < p[j].x[d]
		}
		return p[i].gene < p[j].gene
	})
	return len(p) / 2
}

func minMaxScale(p genePoints, dim int) {
	if len(p) == 0 {
		return
	}
	lo, hi := p[0].x[dim], p[0].x[dim]
	for _, pt := range p[1:] {
		lo = min(lo, pt.x[dim])
		hi = max(hi, pt.x[dim])
	}
	span := hi - lo
	for _, pt := range p {
		if span == 0 {
			pt.x[dim] = 0
			continue
		}
		pt.x[dim] = (pt.x[dim] - lo) / span
	}
}
