package rng

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draw(t *testing.T, a *PCGAdapter, name string, seed uint64) []uint64 {
	t.Helper()
	src, err := a.Stream(context.Background(), name, seed)
	require.NoError(t, err)
	r := rand.New(src)
	out := make([]uint64, 8)
	for i := range out {
		out[i] = r.Uint64()
	}
	return out
}

func TestStreamDeterministic(t *testing.T) {
	a := NewPCGAdapter()
	assert.Equal(t, draw(t, a, "set-a", 1), draw(t, a, "set-a", 1))
	assert.NotEqual(t, draw(t, a, "set-a", 1), draw(t, a, "set-b", 1))
	assert.NotEqual(t, draw(t, a, "set-a", 1), draw(t, a, "set-a", 2))
}

func TestStreamCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPCGAdapter().Stream(ctx, "x", 0)
	assert.ErrorIs(t, err, context.Canceled)
}
