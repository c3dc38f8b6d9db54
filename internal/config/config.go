// Package config loads leadscout configuration from a YAML file and the
// environment, with environment variables taking precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/crestway-partners/leadscout/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Rules      RulesConfig      `yaml:"rules" mapstructure:"rules"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Geocode    GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the evidence store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int    `yaml:"max_conns" mapstructure:"max_conns"`
}

// RulesConfig points at the validation rule file and carries fallback values
// used when the file is absent or omits a section.
type RulesConfig struct {
	Path                       string   `yaml:"path" mapstructure:"path"`
	GeoCenterLat               float64  `yaml:"geo_center_lat" mapstructure:"geo_center_lat"`
	GeoCenterLon               float64  `yaml:"geo_center_lon" mapstructure:"geo_center_lon"`
	GeoRadiusKm                float64  `yaml:"geo_radius_km" mapstructure:"geo_radius_km"`
	AllowedCities              []string `yaml:"allowed_cities" mapstructure:"allowed_cities"`
	CategoryBlacklist          []string `yaml:"category_blacklist" mapstructure:"category_blacklist"`
	CategoryWhitelist          []string `yaml:"category_whitelist" mapstructure:"category_whitelist"`
	ReviewRequiredCategories   []string `yaml:"review_required_categories" mapstructure:"review_required_categories"`
	CorroborationMinSources    int      `yaml:"corroboration_min_sources" mapstructure:"corroboration_min_sources"`
	WebsiteMinAgeYears         float64  `yaml:"website_min_age_years" mapstructure:"website_min_age_years"`
	RevenueConfidenceThreshold float64  `yaml:"revenue_confidence_threshold" mapstructure:"revenue_confidence_threshold"`
}

// IngestConfig configures source registry fetching.
type IngestConfig struct {
	UserAgent        string             `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs      int                `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries       int                `yaml:"max_retries" mapstructure:"max_retries"`
	RateLimitPerHost map[string]float64 `yaml:"rate_limit_per_host" mapstructure:"rate_limit_per_host"`
}

// GeocodeConfig configures the Nominatim geocoder and its lookup cache.
type GeocodeConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent       string `yaml:"user_agent" mapstructure:"user_agent"`
	CountryCodes    string `yaml:"country_codes" mapstructure:"country_codes"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds" mapstructure:"cache_ttl_seconds"`
}

// PipelineConfig configures stage execution.
type PipelineConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// ResilienceConfig tunes the retry, circuit breaker, and rate limit layers
// shared by every outbound service call.
type ResilienceConfig struct {
	MaxRetries                 int                                   `yaml:"max_retries" mapstructure:"max_retries"`
	InitialBackoffMs           int                                   `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs               int                                   `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	BackoffMultiplier          float64                               `yaml:"backoff_multiplier" mapstructure:"backoff_multiplier"`
	JitterFraction             float64                               `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	CircuitFailureThreshold    int                                   `yaml:"circuit_breaker_failure_threshold" mapstructure:"circuit_breaker_failure_threshold"`
	CircuitRecoveryTimeoutSecs int                                   `yaml:"circuit_breaker_recovery_timeout_seconds" mapstructure:"circuit_breaker_recovery_timeout_seconds"`
	RateLimitPerService        map[string]resilience.RateLimitConfig `yaml:"rate_limit_per_service" mapstructure:"rate_limit_per_service"`
	RateLimitDefault           resilience.RateLimitConfig            `yaml:"rate_limit_default" mapstructure:"rate_limit_default"`
}

// Retry returns the retry policy described by this config.
func (c ResilienceConfig) Retry() resilience.RetryConfig {
	return resilience.FromRetryConfig(c.MaxRetries, c.InitialBackoffMs, c.MaxBackoffMs, c.BackoffMultiplier, c.JitterFraction)
}

// Circuit returns the breaker policy described by this config.
func (c ResilienceConfig) Circuit() resilience.CircuitBreakerConfig {
	return resilience.FromCircuitConfig(c.CircuitFailureThreshold, c.CircuitRecoveryTimeoutSecs)
}

// Limiters builds the per-service token bucket registry.
func (c ResilienceConfig) Limiters() *resilience.ServiceLimiters {
	return resilience.NewServiceLimiters(c.RateLimitPerService, c.RateLimitDefault)
}

// NotionConfig holds the Notion API token and review board database ID.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	ReviewDB string `yaml:"review_db" mapstructure:"review_db"`
}

// SalesforceConfig holds Salesforce auth settings. Either a session access
// token or the JWT triple (client ID, username, key path) must be set.
type SalesforceConfig struct {
	Domain      string `yaml:"domain" mapstructure:"domain"`
	AccessToken string `yaml:"access_token" mapstructure:"access_token"`
	ClientID    string `yaml:"client_id" mapstructure:"client_id"`
	Username    string `yaml:"username" mapstructure:"username"`
	KeyPath     string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL    string `yaml:"login_url" mapstructure:"login_url"`
	LeadSource  string `yaml:"lead_source" mapstructure:"lead_source"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".leadscout"))
	}

	// Environment
	v.SetEnvPrefix("LEADSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "leadscout.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("rules.path", "rules.yaml")
	v.SetDefault("rules.geo_center_lat", 43.2557)
	v.SetDefault("rules.geo_center_lon", -79.8711)
	v.SetDefault("rules.geo_radius_km", 50)
	v.SetDefault("rules.corroboration_min_sources", 2)
	v.SetDefault("rules.website_min_age_years", 3.0)
	v.SetDefault("rules.revenue_confidence_threshold", 0.6)
	v.SetDefault("ingest.user_agent", "leadscout/1.0")
	v.SetDefault("ingest.timeout_secs", 30)
	v.SetDefault("ingest.max_retries", 3)
	v.SetDefault("geocode.enabled", true)
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.country_codes", "ca")
	v.SetDefault("geocode.cache_ttl_seconds", 2592000)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("resilience.max_retries", 3)
	v.SetDefault("resilience.initial_backoff_ms", 500)
	v.SetDefault("resilience.max_backoff_ms", 30000)
	v.SetDefault("resilience.backoff_multiplier", 2.0)
	v.SetDefault("resilience.jitter_fraction", 0.2)
	v.SetDefault("resilience.circuit_breaker_failure_threshold", 5)
	v.SetDefault("resilience.circuit_breaker_recovery_timeout_seconds", 30)
	// Nominatim's usage policy caps anonymous clients at one request per second.
	v.SetDefault("resilience.rate_limit_per_service.nominatim.per_second", 1)
	v.SetDefault("resilience.rate_limit_per_service.nominatim.burst", 1)
	v.SetDefault("resilience.rate_limit_per_service.notion.per_second", 3)
	v.SetDefault("resilience.rate_limit_per_service.notion.burst", 3)
	v.SetDefault("resilience.rate_limit_per_service.salesforce.per_second", 5)
	v.SetDefault("resilience.rate_limit_per_service.salesforce.burst", 5)
	v.SetDefault("resilience.rate_limit_default.per_second", 5)
	v.SetDefault("resilience.rate_limit_default.burst", 5)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.lead_source", "LeadScout")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings a command depends on are present and
// within bounds. Mode names the command family: "pipeline" for the local
// stages, "review" for Notion sync, "push" for Salesforce sync, "serve" for
// the HTTP API.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "pipeline":
		problems = append(problems, c.storeProblems()...)
	case "review":
		problems = append(problems, c.storeProblems()...)
		if c.Notion.Token == "" {
			problems = append(problems, "notion.token is required")
		}
		if c.Notion.ReviewDB == "" {
			problems = append(problems, "notion.review_db is required")
		}
	case "push":
		problems = append(problems, c.storeProblems()...)
		if c.Salesforce.Domain == "" {
			problems = append(problems, "salesforce.domain is required")
		}
		if c.Salesforce.AccessToken == "" && (c.Salesforce.ClientID == "" || c.Salesforce.Username == "" || c.Salesforce.KeyPath == "") {
			problems = append(problems, "salesforce.access_token or the client_id/username/key_path triple is required")
		}
	case "serve":
		problems = append(problems, c.storeProblems()...)
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Pipeline.Workers < 1 || c.Pipeline.Workers > 32 {
		problems = append(problems, "pipeline.workers must be between 1 and 32")
	}
	if c.Rules.CorroborationMinSources < 1 {
		problems = append(problems, "rules.corroboration_min_sources must be >= 1")
	}
	if c.Rules.WebsiteMinAgeYears < 0 {
		problems = append(problems, "rules.website_min_age_years must be >= 0")
	}
	if c.Rules.RevenueConfidenceThreshold < 0 || c.Rules.RevenueConfidenceThreshold > 1 {
		problems = append(problems, "rules.revenue_confidence_threshold must be between 0 and 1")
	}
	if c.Rules.GeoRadiusKm <= 0 {
		problems = append(problems, "rules.geo_radius_km must be > 0")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) storeProblems() []string {
	var problems []string
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	return problems
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
