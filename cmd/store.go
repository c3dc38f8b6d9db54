package main

import (
	"context"
	"os"

	gosf "github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"

	"github.com/crestway-partners/leadscout/internal/evidence"
	sfpkg "github.com/crestway-partners/leadscout/pkg/salesforce"
)

func initStore(ctx context.Context) (evidence.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return evidence.NewSQLite(cfg.Store.Path)
	case "postgres":
		return evidence.NewPostgres(ctx, cfg.Store.DatabaseURL, &evidence.PoolConfig{
			MaxConns: int32(cfg.Store.MaxConns),
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initSalesforce authenticates with a session access token when one is set,
// otherwise through the JWT bearer flow.
func initSalesforce() (sfpkg.Client, error) {
	creds := gosf.Creds{Domain: cfg.Salesforce.Domain}

	if cfg.Salesforce.AccessToken != "" {
		creds.AccessToken = cfg.Salesforce.AccessToken
	} else {
		pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
		if err != nil {
			return nil, eris.Wrap(err, "read salesforce JWT private key")
		}
		creds.Domain = cfg.Salesforce.LoginURL
		creds.Username = cfg.Salesforce.Username
		creds.ConsumerKey = cfg.Salesforce.ClientID
		creds.ConsumerRSAPem = string(pemData)
	}

	sf, err := gosf.Init(creds)
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	rps := cfg.Resilience.RateLimitPerService["salesforce"].PerSecond
	return sfpkg.NewClient(sf, sfpkg.WithRateLimit(rps)), nil
}
