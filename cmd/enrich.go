package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crestway-partners/leadscout/internal/evidence"
	"github.com/crestway-partners/leadscout/internal/model"
)

var (
	enrichID   string
	enrichCity string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Geocode pending records and collect source observations",
	Long:  "Runs the network stage for one record (--id) or for every discovered and geocoded record. Failed services are retried and breaker-guarded; records that lose every source stay put for the next run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if enrichID != "" {
			if err := env.Enricher.Enrich(ctx, enrichID); err != nil {
				return eris.Wrapf(err, "enrich %s", enrichID)
			}
			fmt.Printf("Enriched %s\n", enrichID)
			return nil
		}

		// Pending work lives in the two pre-enrichment stages.
		var processed, failed int
		for _, status := range []model.Status{model.StatusDiscovered, model.StatusGeocoded} {
			p, f, err := env.Enricher.EnrichAll(ctx, evidence.BusinessFilter{
				Status: status,
				City:   enrichCity,
			})
			processed += p
			failed += f
			if err != nil {
				return eris.Wrap(err, "enrich all")
			}
		}

		zap.L().Info("enrichment batch complete",
			zap.Int("processed", processed),
			zap.Int("failed", failed),
		)
		fmt.Printf("Enriched %d records (%d failed)\n", processed, failed)
		return nil
	},
}

func init() {
	enrichCmd.Flags().StringVar(&enrichID, "id", "", "enrich a single business by id")
	enrichCmd.Flags().StringVar(&enrichCity, "city", "", "restrict the batch to one city")
	rootCmd.AddCommand(enrichCmd)
}
