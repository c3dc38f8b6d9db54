package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crestway-partners/leadscout/internal/evidence"
	"github.com/crestway-partners/leadscout/internal/model"
)

var (
	validateID   string
	validateCity string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run the gate chain for one or all enriched records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if validateID != "" {
			status, reasons, err := env.Orchestrator.Validate(ctx, validateID)
			if err != nil {
				return eris.Wrapf(err, "validate %s", validateID)
			}
			fmt.Printf("%s -> %s\n", validateID, status)
			if len(reasons) > 0 {
				fmt.Printf("  %s\n", strings.Join(reasons, "; "))
			}
			return nil
		}

		summary, err := env.Orchestrator.ValidateAll(ctx, evidence.BusinessFilter{
			Status: model.StatusEnriched,
			City:   validateCity,
		})
		if err != nil {
			return eris.Wrap(err, "validate all")
		}

		zap.L().Info("validation batch complete",
			zap.Int("processed", summary.Processed),
			zap.Int("qualified", summary.Qualified),
			zap.Int("excluded", summary.Excluded),
			zap.Int("review", summary.Review),
			zap.Int("failed", summary.Failed),
		)
		fmt.Printf("Validated %d records: %d qualified, %d excluded, %d review, %d failed\n",
			summary.Processed, summary.Qualified, summary.Excluded, summary.Review, summary.Failed)
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateID, "id", "", "validate a single business by id")
	validateCmd.Flags().StringVar(&validateCity, "city", "", "restrict the batch to one city")
	rootCmd.AddCommand(validateCmd)
}
