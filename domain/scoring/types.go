package scoring

import (
	"fmt"
	"strings"
	"time"

	"genescore/domain/core"
)

// ============================================================================
// METHODS AND MODES
// ============================================================================

// Method selects how a cell's expression of a gene subset is summarised
type Method string

const (
	MethodMean      Method = "mean"         // mean expression over the subset
	MethodMeanZ     Method = "mean_z_score" // mean of per-gene z-scores
	MethodMeanRank  Method = "mean_rank"    // mean of per-gene normalised ranks

	DefaultMethod = MethodMean
)

// ParseMethod resolves a method name; the empty string means the default.
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case "", MethodMean:
		return MethodMean, nil
	case MethodMeanZ:
		return MethodMeanZ, nil
	case MethodMeanRank:
		return MethodMeanRank, nil
	}
	return "", core.NewConfigurationError("method", fmt.Sprintf("unknown scoring method %q", s))
}

// NeighborMode selects the gene statistics background genes are matched on
type NeighborMode string

const (
	NeighborNone         NeighborMode = "none"
	NeighborMean         NeighborMode = "mean"
	NeighborVariance     NeighborMode = "variance"
	NeighborMeanVariance NeighborMode = "mean_variance"
)

// ParseNeighborMode resolves a neighbour mode name; the empty string means none.
func ParseNeighborMode(s string) (NeighborMode, error) {
	switch NeighborMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", NeighborNone:
		return NeighborNone, nil
	case NeighborMean:
		return NeighborMean, nil
	case NeighborVariance:
		return NeighborVariance, nil
	case NeighborMeanVariance:
		return NeighborMeanVariance, nil
	}
	return "", core.NewConfigurationError("neighbors_method", fmt.Sprintf("unknown neighbour mode %q", s))
}

// SamplingMode records how null subsets were produced for a set
type SamplingMode string

const (
	SamplingNone       SamplingMode = "none"
	SamplingExhaustive SamplingMode = "exhaustive"
	SamplingRandom     SamplingMode = "random"
)

// ============================================================================
// PARAMETERS
// ============================================================================

// Params configures one scoring call. The zero value is not useful; start
// from DefaultParams.
type Params struct {
	Method        Method       `json:"method" yaml:"method"`
	Permutations  int          `json:"permutations" yaml:"nperm"`                            // null subsets budget, 0 = scores only
	DropFrequency int          `json:"drop_frequency" yaml:"drop_frequency"`                 // permutations between checkpoints, 0 = never drop
	DropThreshold float64      `json:"drop_p_value_threshold" yaml:"drop_p_value_threshold"` // freeze cells whose lower bound reaches this
	NeighborMode  NeighborMode `json:"neighbors_method" yaml:"neighbors_method"`
	Neighbors     int          `json:"n_neighbors" yaml:"n_neighbors"`
	Smooth        bool         `json:"smooth" yaml:"smooth"` // (k+1)/(n+2) instead of k/n
	Seed          uint64       `json:"seed" yaml:"seed"`
	Confidence    float64      `json:"confidence" yaml:"confidence"` // two-sided level of the p-value interval
	Workers       int          `json:"workers" yaml:"workers"`       // 0 = GOMAXPROCS
	GlobalFDR     bool         `json:"global_fdr" yaml:"global_fdr"` // batch only
}

// DefaultParams mirrors the command line defaults
func DefaultParams() Params {
	return Params{
		Method:        DefaultMethod,
		Permutations:  10000,
		DropFrequency: 1000,
		DropThreshold: 0.05,
		NeighborMode:  NeighborMean,
		Neighbors:     20,
		Smooth:        true,
		Confidence:    0.95,
	}
}

// Significance reports whether permutations are drawn at all
func (p Params) Significance() bool {
	return p.Permutations > 0
}

// Validate checks the parameters and normalises method and mode names.
func (p *Params) Validate() error {
	m, err := ParseMethod(string(p.Method))
	if err != nil {
		return err
	}
	p.Method = m

	mode, err := ParseNeighborMode(string(p.NeighborMode))
	if err != nil {
		return err
	}
	p.NeighborMode = mode

	if p.Permutations < 0 {
		return core.NewConfigurationError("permutations", "must not be negative")
	}
	if p.DropFrequency < 0 {
		return core.NewConfigurationError("drop_frequency", "must not be negative")
	}
	if p.DropFrequency > 0 && p.Permutations == 0 {
		return core.NewConfigurationError("permutations", "must be positive when drop_frequency is set")
	}
	if p.DropFrequency > 0 && (p.DropThreshold <= 0 || p.DropThreshold > 1) {
		return core.NewConfigurationError("drop_p_value_threshold", fmt.Sprintf("%g is outside (0, 1]", p.DropThreshold))
	}
	if p.Confidence <= 0 || p.Confidence >= 1 {
		return core.NewConfigurationError("confidence", fmt.Sprintf("%g is outside (0, 1)", p.Confidence))
	}
	if p.Neighbors < 0 {
		return core.NewConfigurationError("n_neighbors", "must not be negative")
	}
	if p.Workers < 0 {
		return core.NewConfigurationError("workers", "must not be negative")
	}
	return nil
}

// ============================================================================
// RESULTS
// ============================================================================

// CellResult is one output row: a cell's score and significance for a set.
type CellResult struct {
	CellID string  `json:"cell_id"`
	Score  float64 `json:"score"`
	PValue float64 `json:"p_value"`
	FDR    float64 `json:"fdr"`
	K      int     `json:"k"` // null scores ≥ observed
	N      int     `json:"n"` // null scores drawn

	// Present only when early stopping was enabled
	Bounds *CellBounds `json:"bounds,omitempty"`

	// Present only when the batch computed FDR across all sets
	GlobalFDR *float64 `json:"global_fdr,omitempty"`
}

// CellBounds brackets a cell's p-value and FDR with the confidence interval
// used for early stopping. PValueCI is the lower bound computed at the
// cell's last checkpoint, 0 if none was reached; FDRHigh uses the final
// counts.
type CellBounds struct {
	PValueCI float64 `json:"p_value_ci"` // lower bound of the p-value
	FDRLow   float64 `json:"fdr_low"`
	FDRHigh  float64 `json:"fdr_high"`
}

// SetResult carries the rows of one gene set plus how they were obtained.
type SetResult struct {
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	SetSize      int           `json:"set_size"`
	Cells        []CellResult  `json:"cells"`
	Mode         SamplingMode  `json:"mode"`
	PoolSize     int           `json:"pool_size"`
	Permutations int           `json:"permutations"` // subsets drawn
	Frozen       int           `json:"frozen"`       // cells stopped early
	Significance bool          `json:"significance"`
	WithBounds   bool          `json:"with_bounds"`
	Duration     time.Duration `json:"duration_ns"`
}

// Scores returns the observed scores in cell order.
func (r *SetResult) Scores() []float64 {
	scores := make([]float64, len(r.Cells))
	for i, c := range r.Cells {
		scores[i] = c.Score
	}
	return scores
}

// SetFailure records a set that could not be scored; the batch carries on.
type SetFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// BatchResult is the outcome of scoring several sets against one dataset.
type BatchResult struct {
	Sets      []*SetResult `json:"sets"`
	Failures  []SetFailure `json:"failures,omitempty"`
	GlobalFDR bool         `json:"global_fdr"`
}

// Set finds a result by set name.
func (b *BatchResult) Set(name string) (*SetResult, bool) {
	for _, s := range b.Sets {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Rows returns the total number of result rows over all sets.
func (b *BatchResult) Rows() int {
	n := 0
	for _, s := range b.Sets {
		n += len(s.Cells)
	}
	return n
}
