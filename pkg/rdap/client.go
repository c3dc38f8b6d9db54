// Package rdap looks up domain registration dates through an RDAP bootstrap
// endpoint and turns them into website age observations. Registration dates
// are stable, so lookups, including domains with no record, are cached for a
// long TTL.
package rdap

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/crestway-partners/leadscout/internal/resilience"
)

// ServiceName keys the rate limiter and circuit breaker for this client.
const ServiceName = "rdap"

const (
	defaultBaseURL   = "https://rdap.org"
	defaultUserAgent = "leadscout/1.0 (business lead pipeline)"
	defaultCacheTTL  = 90 * 24 * time.Hour
)

// ErrNoRecord is returned when the registry has no RDAP record for a domain.
// It is permanent; the domain either does not exist or its registry does not
// publish RDAP.
var ErrNoRecord = eris.New("rdap: no record")

// LookupCache persists lookup results between runs. The evidence store's
// lookup table satisfies it.
type LookupCache interface {
	GetCachedLookup(ctx context.Context, key string) ([]byte, error)
	SetCachedLookup(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL points the client at a specific RDAP service or test server.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(base, "/")
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithCache enables result caching with the given TTL. ttl <= 0 keeps the
// default of ninety days.
func WithCache(cache LookupCache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// Client queries one RDAP bootstrap endpoint. It does not rate-limit itself;
// callers hold the per-service limiter and breaker keyed by ServiceName.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	cache      LookupCache
	cacheTTL   time.Duration
	nowFunc    func() time.Time
}

// NewClient creates an RDAP client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		userAgent:  defaultUserAgent,
		cacheTTL:   defaultCacheTTL,
		nowFunc:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies this client to the resilience layer.
func (c *Client) Name() string { return ServiceName }

// rdapDomain is the subset of the RDAP domain response the client reads.
type rdapDomain struct {
	Events []struct {
		EventAction string    `json:"eventAction"`
		EventDate   time.Time `json:"eventDate"`
	} `json:"events"`
}

// cachedRecord persists the registration date rather than a derived age, so
// a cache hit months later still yields the correct current age.
type cachedRecord struct {
	RegisteredAt time.Time `json:"registered_at"`
	Found        bool      `json:"found"`
}

// RegisteredAt returns the registration date of a domain. The input may be a
// bare host or a full URL; scheme, port, path, and a leading www. are
// stripped.
func (c *Client) RegisteredAt(ctx context.Context, website string) (time.Time, error) {
	host := hostOf(website)
	if host == "" {
		return time.Time{}, resilience.NewPermanentError(eris.New("rdap: empty domain"), 0)
	}

	key := cacheKey(host)
	if cached := c.checkCache(ctx, key); cached != nil {
		if !cached.Found {
			return time.Time{}, resilience.NewPermanentError(eris.Wrapf(ErrNoRecord, "rdap: %s (cached)", host), 0)
		}
		return cached.RegisteredAt, nil
	}

	registered, err := c.fetch(ctx, host)
	if err != nil {
		if eris.Is(err, ErrNoRecord) {
			c.storeCache(ctx, key, &cachedRecord{Found: false})
		}
		return time.Time{}, err
	}

	c.storeCache(ctx, key, &cachedRecord{RegisteredAt: registered, Found: true})
	return registered, nil
}

// DomainAge returns the age of a domain's registration in years.
func (c *Client) DomainAge(ctx context.Context, website string) (float64, error) {
	registered, err := c.RegisteredAt(ctx, website)
	if err != nil {
		return 0, err
	}
	age := c.nowFunc().Sub(registered).Hours() / (24 * 365.25)
	return max(age, 0), nil
}

// fetch performs one /domain call and extracts the registration event.
func (c *Client) fetch(ctx context.Context, host string) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/domain/"+host, nil)
	if err != nil {
		return time.Time{}, eris.Wrap(err, "rdap: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/rdap+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return time.Time{}, resilience.NewTransientError(eris.Wrap(err, "rdap: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return time.Time{}, resilience.NewPermanentError(eris.Wrapf(ErrNoRecord, "rdap: %s", host), resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return time.Time{}, resilience.NewTransientError(
			eris.Errorf("rdap: endpoint returned status %d", resp.StatusCode), resp.StatusCode)
	default:
		return time.Time{}, resilience.NewPermanentError(
			eris.Errorf("rdap: endpoint returned status %d", resp.StatusCode), resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return time.Time{}, eris.Wrap(err, "rdap: read body")
	}

	var domain rdapDomain
	if err := json.Unmarshal(body, &domain); err != nil {
		return time.Time{}, eris.Wrap(err, "rdap: parse response")
	}

	for _, ev := range domain.Events {
		if ev.EventAction == "registration" && !ev.EventDate.IsZero() {
			return ev.EventDate, nil
		}
	}
	return time.Time{}, resilience.NewPermanentError(eris.Wrapf(ErrNoRecord, "rdap: %s has no registration event", host), 0)
}

// cacheKey builds a stable lookup key for one host, prefixed by service so
// rdap entries never collide with other cached lookups.
func cacheKey(host string) string {
	sum := sha256.Sum256([]byte(ServiceName + "|" + host))
	return hex.EncodeToString(sum[:])
}

// hostOf reduces a website value to its bare registrable host.
func hostOf(website string) string {
	s := strings.ToLower(strings.TrimSpace(website))
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	return s
}

func (c *Client) checkCache(ctx context.Context, key string) *cachedRecord {
	if c.cache == nil {
		return nil
	}
	data, err := c.cache.GetCachedLookup(ctx, key)
	if err != nil {
		zap.L().Debug("rdap cache read failed", zap.Error(err))
		return nil
	}
	if data == nil {
		return nil
	}

	var rec cachedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		zap.L().Debug("rdap cache entry corrupt, treating as miss", zap.Error(err))
		return nil
	}
	return &rec
}

func (c *Client) storeCache(ctx context.Context, key string, rec *cachedRecord) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := c.cache.SetCachedLookup(ctx, key, data, c.cacheTTL); err != nil {
		zap.L().Warn("rdap cache write failed", zap.Error(err))
	}
}
