package cache

import (
	"context"
	"time"
)

// Backing is the durable lookup cache sitting behind the in-memory layer.
// The evidence store's lookup table satisfies it.
type Backing interface {
	GetCachedLookup(ctx context.Context, key string) ([]byte, error)
	SetCachedLookup(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// Tiered keeps a bounded in-memory copy of recent lookups in front of the
// durable cache, so a batch run resolves the same address or domain without
// a store round trip every time. Writes go to both layers; the durable layer
// remains the source of truth across runs.
type Tiered struct {
	mem     *LookupCache
	backing Backing
}

// NewTiered layers mem over backing.
func NewTiered(mem *LookupCache, backing Backing) *Tiered {
	return &Tiered{mem: mem, backing: backing}
}

// GetCachedLookup checks the memory layer first, then the durable layer,
// promoting durable hits into memory. A miss in both returns (nil, nil).
func (t *Tiered) GetCachedLookup(ctx context.Context, key string) ([]byte, error) {
	if data := t.mem.Get(key); data != nil {
		return data, nil
	}
	data, err := t.backing.GetCachedLookup(ctx, key)
	if err != nil || data == nil {
		return data, err
	}
	t.mem.Put(key, data)
	return data, nil
}

// SetCachedLookup writes to both layers.
func (t *Tiered) SetCachedLookup(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	t.mem.Put(key, data)
	return t.backing.SetCachedLookup(ctx, key, data, ttl)
}

// Stats reports the memory layer's counters.
func (t *Tiered) Stats() Stats {
	return t.mem.Stats()
}
