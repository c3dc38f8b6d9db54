package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crestway-partners/leadscout/internal/report"
	"github.com/crestway-partners/leadscout/pkg/notion"
)

// boardResolvedStatus is set on cards whose lead has left the review queue.
const boardResolvedStatus = "Resolved"

var (
	reviewLimit int
	reviewJSON  bool
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Work the human review queue",
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List businesses parked for review with their gate verdicts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("pipeline"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		items, err := report.NewReporter(st).ReviewQueue(ctx, reviewLimit)
		if err != nil {
			return err
		}

		if reviewJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(items)
		}

		if len(items) == 0 {
			fmt.Println("Review queue is empty.")
			return nil
		}
		for _, item := range items {
			b := item.Business
			fmt.Printf("%s  %-30s %-12s gate=%s  %s\n",
				b.Fingerprint, b.OriginalName, b.City, item.RuleID, item.Reason)
		}
		fmt.Printf("\n%d records awaiting review\n", len(items))
		return nil
	},
}

var reviewNotifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Sync the review queue to the Notion board",
	Long:  "Upserts a card per parked lead, keyed by fingerprint, and resolves cards whose lead has since been re-validated out of the queue.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("review"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		items, err := report.NewReporter(st).ReviewQueue(ctx, 0)
		if err != nil {
			return err
		}

		board := notion.NewBoard(notion.NewClient(cfg.Notion.Token), cfg.Notion.ReviewDB)

		created, refreshed, err := board.PushAll(ctx, items)
		if err != nil {
			return eris.Wrap(err, "review notify")
		}

		stillParked := make(map[string]bool, len(items))
		for _, item := range items {
			stillParked[item.Business.Fingerprint] = true
		}
		resolved, err := board.Resolve(ctx, stillParked, boardResolvedStatus)
		if err != nil {
			return eris.Wrap(err, "review resolve")
		}

		zap.L().Info("review board synced",
			zap.Int("created", created),
			zap.Int("refreshed", refreshed),
			zap.Int("resolved", resolved),
		)
		fmt.Printf("Review board: %d created, %d refreshed, %d resolved\n", created, refreshed, resolved)
		return nil
	},
}

func init() {
	reviewListCmd.Flags().IntVar(&reviewLimit, "limit", 0, "cap the number of rows (0 = all)")
	reviewListCmd.Flags().BoolVar(&reviewJSON, "json", false, "emit the queue as JSON")
	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(reviewNotifyCmd)
	rootCmd.AddCommand(reviewCmd)
}
