package resilience

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// RateLimitConfig sets the token bucket parameters for one service.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second" mapstructure:"per_second"`
	Burst     int     `yaml:"burst" mapstructure:"burst"`
}

// ServiceLimiters manages token buckets keyed by service name. Every outbound
// enrichment call waits on its service's bucket before dialing.
type ServiceLimiters struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	configs  map[string]RateLimitConfig
	fallback RateLimitConfig
}

// NewServiceLimiters creates a registry with per-service overrides and a
// fallback for services without one.
func NewServiceLimiters(configs map[string]RateLimitConfig, fallback RateLimitConfig) *ServiceLimiters {
	if fallback.PerSecond <= 0 {
		fallback.PerSecond = 5
	}
	if fallback.Burst <= 0 {
		fallback.Burst = 5
	}
	return &ServiceLimiters{
		limiters: make(map[string]*rate.Limiter),
		configs:  configs,
		fallback: fallback,
	}
}

// Get returns the limiter for the named service, creating one if needed.
func (sl *ServiceLimiters) Get(service string) *rate.Limiter {
	sl.mu.RLock()
	lim, ok := sl.limiters[service]
	sl.mu.RUnlock()
	if ok {
		return lim
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	// Double-check after acquiring write lock.
	if lim, ok = sl.limiters[service]; ok {
		return lim
	}

	cfg, ok := sl.configs[service]
	if !ok || cfg.PerSecond <= 0 {
		cfg = sl.fallback
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	lim = rate.NewLimiter(rate.Limit(cfg.PerSecond), cfg.Burst)
	sl.limiters[service] = lim
	return lim
}

// Wait blocks until the named service's bucket grants a token or the context
// is cancelled.
func (sl *ServiceLimiters) Wait(ctx context.Context, service string) error {
	if err := sl.Get(service).Wait(ctx); err != nil {
		return eris.Wrapf(err, "rate limit wait for %s", service)
	}
	return nil
}

// Allow reports whether a token is immediately available without blocking.
func (sl *ServiceLimiters) Allow(service string) bool {
	return sl.Get(service).Allow()
}
