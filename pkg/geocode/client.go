// Package geocode resolves postal addresses to WGS84 coordinates through a
// Nominatim-compatible endpoint. Lookups, including non-matches, are cached
// so repeated enrichment runs do not burn the public endpoint's quota.
package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/crestway-partners/leadscout/internal/resilience"
)

// ServiceName keys the rate limiter and circuit breaker for this client.
const ServiceName = "nominatim"

const (
	defaultBaseURL   = "https://nominatim.openstreetmap.org"
	defaultUserAgent = "leadscout/1.0 (business lead pipeline)"
	defaultCacheTTL  = 30 * 24 * time.Hour
)

// ErrNoMatch is returned when the endpoint finds no candidate for an
// address. It is permanent; retrying the same address will not help.
var ErrNoMatch = eris.New("geocode: no match")

// LookupCache persists geocode results between runs. The evidence store's
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

// WithBaseURL points the client at a self-hosted or test endpoint.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(base, "/")
	}
}

// WithUserAgent overrides the User-Agent header. Nominatim's usage policy
// requires an identifying agent.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithCountryCodes restricts matches to the given comma-separated ISO codes.
func WithCountryCodes(codes string) Option {
	return func(c *Client) {
		c.countryCodes = codes
	}
}

// WithCache enables result caching with the given TTL. ttl <= 0 keeps the
// default of thirty days.
func WithCache(cache LookupCache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// Client is a forward geocoder against one Nominatim-compatible endpoint.
// It does not rate-limit itself; callers hold the per-service limiter and
// breaker keyed by ServiceName.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	userAgent    string
	countryCodes string
	cache        LookupCache
	cacheTTL     time.Duration
}

// NewClient creates a geocoding client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		userAgent:  defaultUserAgent,
		cacheTTL:   defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies this client to the resilience layer.
func (c *Client) Name() string { return ServiceName }

// nominatimPlace is one element of the search response. The endpoint
// returns coordinates as strings.
type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode resolves one free-form address. A cached non-match short-circuits
// to ErrNoMatch without touching the network.
func (c *Client) Geocode(ctx context.Context, address string) (float64, float64, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return 0, 0, resilience.NewPermanentError(eris.New("geocode: empty address"), 0)
	}

	key := cacheKey(address)
	if cached := c.checkCache(ctx, key); cached != nil {
		if !cached.Matched {
			return 0, 0, resilience.NewPermanentError(eris.Wrapf(ErrNoMatch, "geocode: %q (cached)", address), 0)
		}
		return cached.Latitude, cached.Longitude, nil
	}

	lat, lon, err := c.search(ctx, address)
	if err != nil {
		if eris.Is(err, ErrNoMatch) {
			c.storeCache(ctx, key, &cachedLookup{Matched: false})
		}
		return 0, 0, err
	}

	c.storeCache(ctx, key, &cachedLookup{Latitude: lat, Longitude: lon, Matched: true})
	return lat, lon, nil
}

// search performs one /search call and parses the best candidate.
func (c *Client) search(ctx context.Context, address string) (float64, float64, error) {
	params := url.Values{
		"q":      {address},
		"format": {"jsonv2"},
		"limit":  {"1"},
	}
	if c.countryCodes != "" {
		params.Set("countrycodes", c.countryCodes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return 0, 0, eris.Wrap(err, "geocode: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, resilience.NewTransientError(eris.Wrap(err, "geocode: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return 0, 0, resilience.NewTransientError(
			eris.Errorf("geocode: endpoint returned status %d", resp.StatusCode), resp.StatusCode)
	default:
		return 0, 0, resilience.NewPermanentError(
			eris.Errorf("geocode: endpoint returned status %d", resp.StatusCode), resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, eris.Wrap(err, "geocode: read body")
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return 0, 0, eris.Wrap(err, "geocode: parse response")
	}
	if len(places) == 0 {
		return 0, 0, resilience.NewPermanentError(eris.Wrapf(ErrNoMatch, "geocode: %q", address), 0)
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "geocode: parse latitude %q", places[0].Lat)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "geocode: parse longitude %q", places[0].Lon)
	}
	return lat, lon, nil
}
