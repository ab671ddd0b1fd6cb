package engine

import (
	"math"
	"sort"

	"genescore/domain/core"
	"genescore/domain/dataset"
	"genescore/domain/scoring"
)

// Scorer is a scoring method prepared against one expression matrix.
//
// Every method is stored as value(c, g) = base[g] + m[c, g] where m has the
// sparsity of the input, so scoring a subset is a sparse column sum plus a
// constant per gene.
//
// The rank method stores doubled ranks, which are integers, so subset sums
// are exact and tied subsets score bitwise equal. They are mapped onto
// [0, 1] only when a score is written.
type Scorer struct {
	m     dataset.Matrix
	base  []float64 // nil for the plain mean
	cells int
	rank  bool
}

// NewScorer prepares method against m. The per-gene statistics of the
// z-score and rank methods are computed here, once.
func NewScorer(method scoring.Method, m dataset.Matrix) (*Scorer, error) {
	cells, genes := m.Dims()
	s := &Scorer{cells: cells}

	switch method {
	case scoring.MethodMean:
		s.m = m

	case scoring.MethodMeanZ:
		means, variances := m.ColumnMeanVariance()
		s.base = make([]float64, genes)
		s.m = m.MapColumns(func(j int, stored []float64, _ int) []float64 {
			sd := math.Sqrt(variances[j])
			out := make([]float64, len(stored))
			if sd == 0 {
				return out
			}
			s.base[j] = -means[j] / sd
			for i, v := range stored {
				out[i] = v / sd
			}
			return out
		})

	case scoring.MethodMeanRank:
		s.rank = true
		s.base = make([]float64, genes)
		s.m = m.MapColumns(func(j int, stored []float64, zeros int) []float64 {
			ranks, zeroRank := doubledRanks(stored, zeros)
			if zeros > 0 {
				s.base[j] = zeroRank
				for i := range ranks {
					ranks[i] -= zeroRank
				}
			}
			return ranks
		})

	default:
		return nil, core.NewConfigurationError("method", "unknown scoring method "+string(method))
	}
	return s, nil
}

// ScoreInto writes the score of every listed row for the gene subset into
// dst. acc is scratch space with one entry per cell; its contents are
// clobbered.
func (s *Scorer) ScoreInto(dst, acc []float64, genes []int, rows []int) {
	clear(acc)
	s.m.AccumulateColumns(acc, genes, rows)

	baseSum := 0.0
	if s.base != nil {
		for _, g := range genes {
			baseSum += s.base[g]
		}
	}
	denom := float64(len(genes))
	if !s.rank {
		for _, r := range rows {
			dst[r] = (baseSum + acc[r]) / denom
		}
		return
	}
	if s.cells <= 1 {
		for _, r := range rows {
			dst[r] = 0
		}
		return
	}
	// mean doubled rank 2r maps to (r-1)/(cells-1)
	scale := 2 * float64(s.cells-1)
	for _, r := range rows {
		dst[r] = ((baseSum+acc[r])/denom - 2) / scale
	}
}

// Score returns the score of every cell for the gene subset.
func (s *Scorer) Score(genes []int) []float64 {
	dst := make([]float64, s.cells)
	s.ScoreInto(dst, make([]float64, s.cells), genes, dataset.AllRows(s.cells))
	return dst
}

// doubledRanks ranks the stored values of one column together with zeros
// implicit zeros, ascending with ties averaged. Ranks are returned doubled so
// that averaged ties stay integral: the stored values' doubled ranks and the
// doubled rank shared by the implicit zeros (0 when there are none).
func doubledRanks(stored []float64, zeros int) ([]float64, float64) {
	idx := make([]int, len(stored))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return stored[idx[a]] < stored[idx[b]] })

	ranks := make([]float64, len(stored))
	zeroRank := 0
	zeroPlaced := zeros == 0
	placed := 0
	for i := 0; i < len(idx); {
		v := stored[idx[i]]
		if !zeroPlaced && v > 0 {
			zeroRank = 2*placed + zeros + 1
			placed += zeros
			zeroPlaced = true
		}
		j := i
		for j < len(idx) && stored[idx[j]] == v {
			j++
		}
		group := j - i
		if !zeroPlaced && v == 0 {
			// explicit zeros tie with the implicit ones
			group += zeros
			zeroPlaced = true
			zeroRank = 2*placed + group + 1
		}
		rank := float64(2*placed + group + 1)
		for ; i < j; i++ {
			ranks[idx[i]] = rank
		}
		placed += group
	}
	if !zeroPlaced {
		zeroRank = 2*placed + zeros + 1
	}
	if zeros == 0 {
		return ranks, 0
	}
	return ranks, float64(zeroRank)
}
