package resilience

import (
	"context"
	"testing"
)

func TestServiceLimiters_GetOrCreate(t *testing.T) {
	sl := NewServiceLimiters(nil, RateLimitConfig{PerSecond: 10, Burst: 5})

	if sl.Get("nominatim") != sl.Get("nominatim") {
		t.Error("expected same limiter for same service")
	}
	if sl.Get("nominatim") == sl.Get("whois") {
		t.Error("expected different limiters for different services")
	}
}

func TestServiceLimiters_PerServiceConfig(t *testing.T) {
	sl := NewServiceLimiters(map[string]RateLimitConfig{
		"whois": {PerSecond: 1, Burst: 1},
	}, RateLimitConfig{PerSecond: 100, Burst: 10})

	// The configured service drains after its single burst token.
	if !sl.Allow("whois") {
		t.Error("expected first whois token to be available")
	}
	if sl.Allow("whois") {
		t.Error("expected whois bucket to be empty after one token")
	}

	// The fallback-configured service still has tokens.
	if !sl.Allow("nominatim") {
		t.Error("expected nominatim token from fallback config")
	}
}

func TestServiceLimiters_WaitHonorsContext(t *testing.T) {
	sl := NewServiceLimiters(map[string]RateLimitConfig{
		"slow": {PerSecond: 0.001, Burst: 1},
	}, RateLimitConfig{})

	// Drain the single token, then a cancelled wait must fail fast.
	if err := sl.Wait(context.Background(), "slow"); err != nil {
		t.Fatalf("unexpected error draining token: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sl.Wait(ctx, "slow"); err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestServiceLimiters_FallbackDefaults(t *testing.T) {
	sl := NewServiceLimiters(nil, RateLimitConfig{})

	// Zero-valued fallback gets usable defaults.
	if !sl.Allow("anything") {
		t.Error("expected a token from default fallback config")
	}
}
