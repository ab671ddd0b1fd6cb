package engine

import (
	"genescore/internal/significance"
)

// cellState is the running permutation tally of one cell
type cellState struct {
	observed float64
	k        int     // null scores ≥ observed
	n        int     // null scores drawn
	lower    float64 // p-value bound at the last checkpoint
	active   bool
}

// StoppingController freezes cells whose non-significance is established.
// Every frequency permutations it computes the lower confidence bound of
// each active cell's p-value; cells whose bound reaches the threshold stop
// receiving permutations and keep their counts.
type StoppingController struct {
	frequency  int
	threshold  float64
	confidence float64
}

// NewStoppingController returns a controller; frequency 0 never freezes.
func NewStoppingController(frequency int, threshold, confidence float64) *StoppingController {
	return &StoppingController{frequency: frequency, threshold: threshold, confidence: confidence}
}

// Enabled reports whether checkpoints happen at all
func (c *StoppingController) Enabled() bool { return c.frequency > 0 }

// UntilCheckpoint returns how many permutations may run before the next
// checkpoint when drawn have run so far. It is 0 when checks are disabled.
func (c *StoppingController) UntilCheckpoint(drawn int) int {
	if !c.Enabled() {
		return 0
	}
	return c.frequency - drawn%c.frequency
}

// IsCheckpoint reports whether a check is due after drawn permutations
func (c *StoppingController) IsCheckpoint(drawn int) bool {
	return c.Enabled() && drawn > 0 && drawn%c.frequency == 0
}

// Checkpoint records the bound of every active cell, freezes qualifying
// cells and returns the rows still active, in the same order, plus the
// number frozen.
func (c *StoppingController) Checkpoint(states []cellState, active []int) ([]int, int) {
	kept := active[:0]
	frozen := 0
	for _, r := range active {
		st := &states[r]
		st.lower = significance.LowerBound(st.k, st.n, c.confidence)
		if st.lower >= c.threshold {
			st.active = false
			frozen++
			continue
		}
		kept = append(kept, r)
	}
	return kept, frozen
}
