package rng

import (
	"context"
	"hash/fnv"
	"math/rand/v2"

	"genescore/ports"
)

// PCGAdapter implements ports.RNGPort with PCG streams. The stream name is
// hashed into the second PCG word so every gene set gets its own sequence.
type PCGAdapter struct{}

var _ ports.RNGPort = (*PCGAdapter)(nil)

// NewPCGAdapter creates the production RNG adapter
func NewPCGAdapter() *PCGAdapter {
	return &PCGAdapter{}
}

// Stream creates a deterministic source for the named stream
func (a *PCGAdapter) Stream(ctx context.Context, name string, seed uint64) (rand.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rand.NewPCG(seed, hashString(name)), nil
}

// hashString maps a stream name to 64 bits
func hashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
