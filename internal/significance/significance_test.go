package significance

import (
	"math"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPValue(t *testing.T) {
	tests := []struct {
		name   string
		k, n   int
		smooth bool
		want   float64
	}{
		{"smoothed all exceed", 10, 10, true, 11.0 / 12.0},
		{"smoothed none exceed", 0, 45, true, 1.0 / 47.0},
		{"smoothed no draws", 0, 0, true, 0.5},
		{"raw", 3, 12, false, 0.25},
		{"raw no draws", 0, 0, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PValue(tt.k, tt.n, tt.smooth))
		})
	}
}

func TestClopperPearson(t *testing.T) {
	iv := ClopperPearson(5, 10, 0.95)
	assert.InDelta(t, 0.187086, iv.Lower, 1e-5)
	assert.InDelta(t, 0.812914, iv.Upper, 1e-5)

	iv = ClopperPearson(0, 10, 0.95)
	assert.Equal(t, 0.0, iv.Lower)
	assert.InDelta(t, 1-math.Pow(0.025, 0.1), iv.Upper, 1e-9)

	iv = ClopperPearson(10, 10, 0.95)
	assert.InDelta(t, math.Pow(0.025, 0.1), iv.Lower, 1e-9)
	assert.Equal(t, 1.0, iv.Upper)

	assert.Equal(t, Interval{0, 1}, ClopperPearson(0, 0, 0.95))
	assert.Equal(t, ClopperPearson(7, 40, 0.9).Lower, LowerBound(7, 40, 0.9))
}

func TestClopperPearsonWidensWithConfidence(t *testing.T) {
	narrow := ClopperPearson(30, 100, 0.8)
	wide := ClopperPearson(30, 100, 0.99)
	assert.Less(t, wide.Lower, narrow.Lower)
	assert.Greater(t, wide.Upper, narrow.Upper)
	assert.Less(t, narrow.Lower, 0.3)
	assert.Greater(t, narrow.Upper, 0.3)
}

func TestBenjaminiHochberg(t *testing.T) {
	fdr := BenjaminiHochberg([]float64{0.01, 0.04, 0.03, 0.2})
	require.Len(t, fdr, 4)
	assert.InDelta(t, 0.04, fdr[0], 1e-12)
	assert.InDelta(t, 0.04*4/3, fdr[1], 1e-12)
	assert.InDelta(t, 0.04*4/3, fdr[2], 1e-12)
	assert.InDelta(t, 0.2, fdr[3], 1e-12)

	assert.Nil(t, BenjaminiHochberg(nil))
	assert.Equal(t, []float64{0.95, 0.95}, BenjaminiHochberg([]float64{0.9, 0.95}))
}

func TestBenjaminiHochbergMonotone(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	p := make([]float64, 500)
	for i := range p {
		p[i] = rng.Float64()
	}
	fdr := BenjaminiHochberg(p)

	idx := make([]int, len(p))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return p[idx[a]] < p[idx[b]] })
	for i := 1; i < len(idx); i++ {
		assert.LessOrEqual(t, fdr[idx[i-1]], fdr[idx[i]])
	}
	for i := range p {
		assert.GreaterOrEqual(t, fdr[i], p[i])
		assert.LessOrEqual(t, fdr[i], 1.0)
	}
}

func TestAggregate(t *testing.T) {
	k := []int{0, 5, 10}
	n := []int{10, 10, 10}

	s := Aggregate(k, n, Options{Smooth: true})
	assert.Equal(t, []float64{1.0 / 12, 6.0 / 12, 11.0 / 12}, s.PValues)
	assert.Len(t, s.FDR, 3)
	assert.Nil(t, s.Lower)

	s = Aggregate(k, n, Options{Smooth: true, Bounds: true, Confidence: 0.95})
	require.Len(t, s.Lower, 3)
	assert.Equal(t, 0.0, s.Lower[0])
	for i := range k {
		assert.LessOrEqual(t, s.FDRLow[i], s.FDRHigh[i])
	}
}

func TestAggregateRecordedLower(t *testing.T) {
	k := []int{4, 9}
	n := []int{10, 20}
	recorded := []float64{0.2, 0.1}

	s := Aggregate(k, n, Options{Smooth: true, Bounds: true, Confidence: 0.95, Lower: recorded})
	assert.Equal(t, recorded, s.Lower)
	assert.Equal(t, BenjaminiHochberg(recorded), s.FDRLow)

	fresh := Aggregate(k, n, Options{Smooth: true, Bounds: true, Confidence: 0.95})
	assert.Equal(t, fresh.FDRHigh, s.FDRHigh, "upper bounds still come from the final counts")
	assert.Equal(t, LowerBound(4, 10, 0.95), fresh.Lower[0])
}
