package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLookupCache_BasicGetPut(t *testing.T) {
	c := New(100, time.Hour)

	// Miss on empty cache.
	assert.Nil(t, c.Get("geocode:abc"))

	data := []byte(`{"lat":43.2557,"lon":-79.8711}`)
	c.Put("geocode:abc", data)
	assert.Equal(t, data, c.Get("geocode:abc"))

	// Different key is still a miss.
	assert.Nil(t, c.Get("geocode:def"))
}

func TestLookupCache_TTLExpiration(t *testing.T) {
	c := New(100, time.Hour)
	now := time.Now()
	c.nowFunc = func() time.Time { return now }

	c.Put("whois:example.ca", []byte("created 2015"))
	assert.NotNil(t, c.Get("whois:example.ca"))

	// Advance past the TTL; the entry expires lazily on the next Get.
	c.nowFunc = func() time.Time { return now.Add(2 * time.Hour) }
	assert.Nil(t, c.Get("whois:example.ca"))

	c.mu.Lock()
	_, exists := c.entries["whois:example.ca"]
	c.mu.Unlock()
	assert.False(t, exists)
}

func TestLookupCache_LRUEviction(t *testing.T) {
	c := New(3, time.Hour)

	c.Put("k:1", []byte("1"))
	c.Put("k:2", []byte("2"))
	c.Put("k:3", []byte("3"))

	// Cache is full. Adding a fourth should evict k:1 (oldest).
	c.Put("k:4", []byte("4"))

	assert.Nil(t, c.Get("k:1"))
	assert.NotNil(t, c.Get("k:2"))
	assert.NotNil(t, c.Get("k:3"))
	assert.NotNil(t, c.Get("k:4"))
}

func TestLookupCache_LRUEviction_AccessOrder(t *testing.T) {
	c := New(3, time.Hour)

	c.Put("k:1", []byte("1"))
	c.Put("k:2", []byte("2"))
	c.Put("k:3", []byte("3"))

	// Access k:1 to move it to back.
	c.Get("k:1")

	// Now k:2 is the oldest; adding k:4 evicts it.
	c.Put("k:4", []byte("4"))

	assert.NotNil(t, c.Get("k:1"))
	assert.Nil(t, c.Get("k:2"))
	assert.NotNil(t, c.Get("k:3"))
	assert.NotNil(t, c.Get("k:4"))
}

func TestLookupCache_Invalidate(t *testing.T) {
	c := New(100, time.Hour)

	c.Put(Key("geocode", "100 King St W"), []byte("a"))
	c.Put(Key("geocode", "200 Main St E"), []byte("b"))
	placesKey := Key("places", "100 King St W")
	c.Put(placesKey, []byte("c"))

	c.Invalidate("geocode")

	assert.Nil(t, c.Get(Key("geocode", "100 King St W")))
	assert.Nil(t, c.Get(Key("geocode", "200 Main St E")))
	assert.NotNil(t, c.Get(placesKey))
}

func TestLookupCache_Stats(t *testing.T) {
	c := New(100, time.Hour)

	c.Put("k:1", []byte("1"))
	c.Get("k:1")
	c.Get("k:1")
	c.Get("k:missing")

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 1e-9)
}

func TestKey_NormalizesInput(t *testing.T) {
	assert.Equal(t, Key("geocode", "100 King St W"), Key("geocode", "  100 KING ST W  "))
	assert.NotEqual(t, Key("geocode", "100 King St W"), Key("places", "100 King St W"))
	assert.NotEqual(t, Key("geocode", "100 King St W"), Key("geocode", "200 Main St E"))
}

func TestLookupCache_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	c := New(1000, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("k:%d", i%10)
			c.Put(key, []byte("v"))
			c.Get(key)
		}()
	}
	wg.Wait()
	// Just verifying no race/panic.
}
