package engine

import "genescore/domain/scoring"

// Observer is notified as the engine makes progress. Implementations must
// be safe for concurrent use; sets of a batch are scored in parallel.
type Observer interface {
	SetScored(result *scoring.SetResult)
	SetFailed(name string, err error)
	Permutations(n int)
}

// NopObserver ignores all notifications
type NopObserver struct{}

func (NopObserver) SetScored(*scoring.SetResult) {}
func (NopObserver) SetFailed(string, error)      {}
func (NopObserver) Permutations(int)             {}

// Observers fans every notification out to each member in order
type Observers []Observer

func (o Observers) SetScored(result *scoring.SetResult) {
	for _, obs := range o {
		obs.SetScored(result)
	}
}

func (o Observers) SetFailed(name string, err error) {
	for _, obs := range o {
		obs.SetFailed(name, err)
	}
}

func (o Observers) Permutations(n int) {
	for _, obs := range o {
		obs.Permutations(n)
	}
}
