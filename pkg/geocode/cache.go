package geocode

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// cachedLookup is the JSON payload stored per address. Non-matches are
// cached too so a known-bad address never hits the endpoint twice.
type cachedLookup struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Matched   bool    `json:"matched"`
}

// cacheKey returns SHA-256 hex of the normalized address for cache lookup.
func cacheKey(address string) string {
	normalized := ServiceName + "|" + strings.ToLower(strings.TrimSpace(address))
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

// checkCache looks up a cached result. Cache errors are logged and treated
// as misses; a broken cache must never fail a geocode.
func (c *Client) checkCache(ctx context.Context, key string) *cachedLookup {
	if c.cache == nil {
		return nil
	}

	data, err := c.cache.GetCachedLookup(ctx, key)
	if err != nil {
		zap.L().Debug("geocode cache read failed", zap.String("key", keyPrefix(key)), zap.Error(err))
		return nil
	}
	if data == nil {
		return nil
	}

	var cached cachedLookup
	if err := json.Unmarshal(data, &cached); err != nil {
		zap.L().Debug("geocode cache entry unreadable", zap.String("key", keyPrefix(key)), zap.Error(err))
		return nil
	}

	zap.L().Debug("geocode cache hit", zap.String("key", keyPrefix(key)), zap.Bool("matched", cached.Matched))
	return &cached
}

// storeCache writes a result (match or non-match) back to the cache.
func (c *Client) storeCache(ctx context.Context, key string, result *cachedLookup) {
	if c.cache == nil {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		zap.L().Warn("geocode cache encode failed", zap.Error(err))
		return
	}
	if err := c.cache.SetCachedLookup(ctx, key, data, c.cacheTTL); err != nil {
		zap.L().Warn("geocode cache write failed", zap.String("key", keyPrefix(key)), zap.Error(err))
	}
}

func keyPrefix(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
