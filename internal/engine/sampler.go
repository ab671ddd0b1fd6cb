package engine

import (
	"math/bits"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat/combin"
	"gonum.org/v1/gonum/stat/sampleuv"

	"genescore/domain/scoring"
)

// SubsetSampler yields the null gene subsets of one gene set. When the pool
// has no more distinct subsets than the budget it enumerates all of them in
// lexicographic order; otherwise it draws budget random subsets, each
// without replacement. Subsets are emitted sorted ascending.
type SubsetSampler struct {
	pool  []int
	size  int
	total int
	drawn int

	gen *combin.CombinationGenerator
	src rand.Source
	idx []int
}

// NewSubsetSampler creates a sampler over pool for subsets of size genes.
// src is only used in random mode and may be nil otherwise.
func NewSubsetSampler(pool []int, size, budget int, src rand.Source) *SubsetSampler {
	s := &SubsetSampler{pool: pool, size: size, idx: make([]int, size)}
	if budget <= 0 || size <= 0 || size > len(pool) {
		return s
	}
	if distinct, ok := binomialAtMost(len(pool), size, budget); ok {
		s.total = distinct
		s.gen = combin.NewCombinationGenerator(len(pool), size)
		return s
	}
	s.total = budget
	s.src = src
	return s
}

// Mode reports how subsets are produced
func (s *SubsetSampler) Mode() scoring.SamplingMode {
	switch {
	case s.total == 0:
		return scoring.SamplingNone
	case s.gen != nil:
		return scoring.SamplingExhaustive
	default:
		return scoring.SamplingRandom
	}
}

// Total is the number of subsets the sampler yields in all
func (s *SubsetSampler) Total() int { return s.total }

// Drawn is the number of subsets yielded so far
func (s *SubsetSampler) Drawn() int { return s.drawn }

// Next writes the next subset into dst, which must have length size, and
// reports whether there was one.
func (s *SubsetSampler) Next(dst []int) bool {
	if s.drawn >= s.total {
		return false
	}
	if s.gen != nil {
		if !s.gen.Next() {
			return false
		}
		s.gen.Combination(s.idx)
	} else {
		sampleuv.WithoutReplacement(s.idx, len(s.pool), s.src)
		sort.Ints(s.idx)
	}
	for i, k := range s.idx {
		dst[i] = s.pool[k]
	}
	s.drawn++
	return true
}

// binomialAtMost returns C(n, k) and true when it does not exceed limit.
// The running product C(n-k+i, i) grows with i, so it stops as soon as the
// limit is passed. Products are formed in 128 bits so no limit overflows.
func binomialAtMost(n, k, limit int) (int, bool) {
	if k > n-k {
		k = n - k
	}
	c := uint64(1)
	for i := 1; i <= k; i++ {
		hi, lo := bits.Mul64(c, uint64(n-k+i))
		if hi >= uint64(i) {
			return 0, false
		}
		c, _ = bits.Div64(hi, lo, uint64(i))
		if c > uint64(limit) {
			return 0, false
		}
	}
	return int(c), true
}
