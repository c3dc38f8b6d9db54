package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBacking is a durable-layer stand-in that records call counts.
type memBacking struct {
	data map[string][]byte
	gets int
	sets int
	err  error
}

func newMemBacking() *memBacking {
	return &memBacking{data: map[string][]byte{}}
}

func (m *memBacking) GetCachedLookup(_ context.Context, key string) ([]byte, error) {
	m.gets++
	if m.err != nil {
		return nil, m.err
	}
	return m.data[key], nil
}

func (m *memBacking) SetCachedLookup(_ context.Context, key string, data []byte, _ time.Duration) error {
	m.sets++
	if m.err != nil {
		return m.err
	}
	m.data[key] = data
	return nil
}

func TestTiered_MemoryHitSkipsBacking(t *testing.T) {
	backing := newMemBacking()
	tc := NewTiered(New(10, time.Hour), backing)
	ctx := context.Background()

	require.NoError(t, tc.SetCachedLookup(ctx, "geocode:a", []byte("x"), time.Hour))
	assert.Equal(t, 1, backing.sets)

	for i := 0; i < 3; i++ {
		data, err := tc.GetCachedLookup(ctx, "geocode:a")
		require.NoError(t, err)
		assert.Equal(t, []byte("x"), data)
	}
	assert.Zero(t, backing.gets, "memory hits must not touch the durable layer")
}

func TestTiered_BackingHitPromotes(t *testing.T) {
	backing := newMemBacking()
	backing.data["rdap:b"] = []byte("y")
	tc := NewTiered(New(10, time.Hour), backing)
	ctx := context.Background()

	data, err := tc.GetCachedLookup(ctx, "rdap:b")
	require.NoError(t, err)
	assert.Equal(t, []byte("y"), data)
	assert.Equal(t, 1, backing.gets)

	// Second read is served from memory.
	data, err = tc.GetCachedLookup(ctx, "rdap:b")
	require.NoError(t, err)
	assert.Equal(t, []byte("y"), data)
	assert.Equal(t, 1, backing.gets)
}

func TestTiered_MissInBoth(t *testing.T) {
	tc := NewTiered(New(10, time.Hour), newMemBacking())

	data, err := tc.GetCachedLookup(context.Background(), "geocode:missing")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestTiered_BackingErrorSurfaces(t *testing.T) {
	backing := newMemBacking()
	backing.err = errors.New("connection refused")
	tc := NewTiered(New(10, time.Hour), backing)
	ctx := context.Background()

	_, err := tc.GetCachedLookup(ctx, "geocode:a")
	assert.Error(t, err)

	err = tc.SetCachedLookup(ctx, "geocode:a", []byte("x"), time.Hour)
	assert.Error(t, err)
}
