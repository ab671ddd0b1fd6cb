// Package significance turns permutation counts into p-values, confidence
// intervals and Benjamini–Hochberg false discovery rates.
package significance

import (
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// PValue is the empirical one-sided p-value of k exceedances in n draws.
// Smoothing adds one pseudo-exceedance and one pseudo-miss so the estimate
// never reaches 0. With no draws the p-value is 1.
func PValue(k, n int, smooth bool) float64 {
	if smooth {
		return float64(k+1) / float64(n+2)
	}
	if n == 0 {
		return 1
	}
	return float64(k) / float64(n)
}

// Interval is a two-sided confidence interval for a binomial proportion.
type Interval struct {
	Lower float64
	Upper float64
}

// ClopperPearson returns the exact binomial interval for k successes out of
// n trials at the given two-sided confidence level. With no trials the
// interval is [0, 1].
func ClopperPearson(k, n int, confidence float64) Interval {
	if n <= 0 {
		return Interval{Lower: 0, Upper: 1}
	}
	alpha := 1 - confidence
	iv := Interval{Lower: 0, Upper: 1}
	if k > 0 {
		iv.Lower = distuv.Beta{Alpha: float64(k), Beta: float64(n - k + 1)}.Quantile(alpha / 2)
	}
	if k < n {
		iv.Upper = distuv.Beta{Alpha: float64(k + 1), Beta: float64(n - k)}.Quantile(1 - alpha/2)
	}
	return iv
}

// LowerBound is the lower end of the Clopper–Pearson interval.
func LowerBound(k, n int, confidence float64) float64 {
	if n <= 0 || k <= 0 {
		return 0
	}
	return distuv.Beta{Alpha: float64(k), Beta: float64(n - k + 1)}.Quantile((1 - confidence) / 2)
}

// BenjaminiHochberg adjusts p-values for the false discovery rate. The
// result is in input order and is monotone in the raw p-values.
func BenjaminiHochberg(pvals []float64) []float64 {
	n := len(pvals)
	if n == 0 {
		return nil
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return pvals[idx[i]] < pvals[idx[j]]
	})

	fdr := make([]float64, n)
	minP := 1.0
	for i := n - 1; i >= 0; i-- {
		orig := idx[i]
		adjusted := pvals[orig] * float64(n) / float64(i+1)
		if adjusted < minP {
			minP = adjusted
		}
		fdr[orig] = minP
	}
	return fdr
}

// Options controls Aggregate.
type Options struct {
	Smooth     bool
	Bounds     bool    // also compute interval bounds and their FDRs
	Confidence float64 // two-sided level used for Bounds

	// Lower, when set, supplies the reported lower bounds instead of
	// computing them from the final counts.
	Lower []float64
}

// Summary holds per-cell significance for one gene set, in cell order.
type Summary struct {
	PValues []float64
	FDR     []float64

	// Only set when Options.Bounds is true
	Lower   []float64
	FDRLow  []float64
	FDRHigh []float64
}

// Aggregate computes p-values, FDR and optionally interval bounds from
// per-cell counts. k and n must have equal length.
func Aggregate(k, n []int, opts Options) Summary {
	s := Summary{PValues: make([]float64, len(k))}
	for i := range k {
		s.PValues[i] = PValue(k[i], n[i], opts.Smooth)
	}
	s.FDR = BenjaminiHochberg(s.PValues)
	if !opts.Bounds {
		return s
	}

	s.Lower = make([]float64, len(k))
	upper := make([]float64, len(k))
	for i := range k {
		iv := ClopperPearson(k[i], n[i], opts.Confidence)
		s.Lower[i] = iv.Lower
		upper[i] = iv.Upper
	}
	if opts.Lower != nil {
		copy(s.Lower, opts.Lower)
	}
	s.FDRLow = BenjaminiHochberg(s.Lower)
	s.FDRHigh = BenjaminiHochberg(upper)
	return s
}
