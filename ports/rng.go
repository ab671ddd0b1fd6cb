package ports

import (
	"context"
	"math/rand/v2"
)

// RNGPort provides seeded random sources for deterministic operations
type RNGPort interface {
	// Stream returns a deterministic source for a named stream, for example
	// one gene set of a run. The same name and seed always yield the same
	// sequence, independent of which other streams were created.
	Stream(ctx context.Context, name string, seed uint64) (rand.Source, error)
}
