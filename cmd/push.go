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
	"github.com/crestway-partners/leadscout/pkg/salesforce"
)

var pushLimit int

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push qualified leads to Salesforce",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("push"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sfClient, err := initSalesforce()
		if err != nil {
			return err
		}
		pusher := salesforce.NewPusher(sfClient, cfg.Salesforce.LeadSource)

		if err := pusher.EnsureSchema(ctx); err != nil {
			return eris.Wrap(err, "push: verify lead schema")
		}

		qualified, err := st.ListBusinesses(ctx, evidence.BusinessFilter{
			Status: model.StatusQualified,
			Limit:  pushLimit,
		})
		if err != nil {
			return err
		}
		if len(qualified) == 0 {
			fmt.Println("No qualified leads to push.")
			return nil
		}

		summary, err := pusher.PushAll(ctx, qualified)
		if err != nil {
			return eris.Wrap(err, "push")
		}

		zap.L().Info("salesforce push complete",
			zap.Int("created", summary.Created),
			zap.Int("updated", summary.Updated),
			zap.Int("failed", summary.Failed),
		)
		fmt.Printf("Pushed %d leads: %d created, %d updated, %d failed\n",
			len(qualified), summary.Created, summary.Updated, summary.Failed)
		return nil
	},
}

func init() {
	pushCmd.Flags().IntVar(&pushLimit, "limit", 0, "cap the number of leads pushed (0 = all)")
	rootCmd.AddCommand(pushCmd)
}
