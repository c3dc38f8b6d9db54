package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/crestway-partners/leadscout/internal/ingest"
)

var importFieldMapPath string

var importCmd = &cobra.Command{
	Use:   "import <file-or-url>...",
	Short: "Import directory snapshots and discover their records",
	Long:  "Reads one or more directory exports (csv, tsv, json, xlsx, xml, zip), local or fetched over HTTP/FTP, and runs discovery on every parseable row.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		fm, err := loadFieldMap(importFieldMapPath)
		if err != nil {
			return err
		}

		httpFetcher := ingest.NewHTTPFetcher(ingest.HTTPOptions{
			UserAgent:    cfg.Ingest.UserAgent,
			Timeout:      time.Duration(cfg.Ingest.TimeoutSecs) * time.Second,
			MaxRetries:   cfg.Ingest.MaxRetries,
			RateLimiters: hostLimiters(cfg.Ingest.RateLimitPerHost),
		})
		ftpFetcher := ingest.NewFTPFetcher(ingest.FTPOptions{
			Timeout: time.Duration(cfg.Ingest.TimeoutSecs) * time.Second,
		})

		var totalCreated, totalDuplicates, totalSkipped, totalFailed int
		for _, arg := range args {
			path, cleanup, err := materialize(ctx, arg, httpFetcher, ftpFetcher)
			if err != nil {
				return err
			}

			drafts, skipped, err := ingest.ReadFile(ctx, path, fm, arg)
			cleanup()
			if err != nil {
				return eris.Wrapf(err, "import %s", arg)
			}

			created, duplicates, failed := 0, 0, 0
			for _, draft := range drafts {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				_, isNew, err := env.Orchestrator.Discover(ctx, draft)
				if err != nil {
					failed++
					zap.L().Warn("discovery failed",
						zap.String("name", draft.Name),
						zap.Error(err),
					)
					continue
				}
				if isNew {
					created++
				} else {
					duplicates++
				}
			}

			zap.L().Info("snapshot imported",
				zap.String("source", arg),
				zap.Int("created", created),
				zap.Int("duplicates", duplicates),
				zap.Int("skipped", skipped),
				zap.Int("failed", failed),
			)
			totalCreated += created
			totalDuplicates += duplicates
			totalSkipped += skipped
			totalFailed += failed
		}

		fmt.Printf("Imported %d sources: %d created, %d duplicates, %d skipped, %d failed\n",
			len(args), totalCreated, totalDuplicates, totalSkipped, totalFailed)
		return nil
	},
}

// materialize returns a local path for the argument, downloading it first
// when it is a URL. The cleanup func removes any temporary file.
func materialize(ctx context.Context, arg string, httpFetcher *ingest.HTTPFetcher, ftpFetcher *ingest.FTPFetcher) (string, func(), error) {
	if !strings.Contains(arg, "://") {
		return arg, func() {}, nil
	}

	fetcher, err := ingest.FetcherFor(arg, httpFetcher, ftpFetcher)
	if err != nil {
		return "", nil, err
	}

	// Keep the URL's extension so format detection still works.
	ext := filepath.Ext(strings.SplitN(arg, "?", 2)[0])
	tmp, err := os.CreateTemp("", "leadscout-*"+ext)
	if err != nil {
		return "", nil, eris.Wrap(err, "import: temp file")
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()

	size, err := fetcher.DownloadToFile(ctx, arg, tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath)
		return "", nil, eris.Wrapf(err, "import: download %s", arg)
	}
	zap.L().Info("snapshot downloaded",
		zap.String("url", arg),
		zap.Int64("bytes", size),
	)

	return tmpPath, func() { _ = os.Remove(tmpPath) }, nil
}

// loadFieldMap reads a YAML field map, or returns the default column names.
func loadFieldMap(path string) (ingest.FieldMap, error) {
	if path == "" {
		return ingest.DefaultFieldMap(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ingest.FieldMap{}, eris.Wrapf(err, "read field map %s", path)
	}
	fm := ingest.DefaultFieldMap()
	if err := yaml.Unmarshal(data, &fm); err != nil {
		return ingest.FieldMap{}, eris.Wrapf(err, "parse field map %s", path)
	}
	return fm, nil
}

// hostLimiters converts per-host requests-per-second settings into limiters.
func hostLimiters(perHost map[string]float64) map[string]*rate.Limiter {
	if len(perHost) == 0 {
		return nil
	}
	limiters := make(map[string]*rate.Limiter, len(perHost))
	for host, rps := range perHost {
		if rps <= 0 {
			continue
		}
		limiters[host] = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
	return limiters
}

func init() {
	importCmd.Flags().StringVar(&importFieldMapPath, "field-map", "", "YAML file mapping export columns to record fields")
	rootCmd.AddCommand(importCmd)
}
