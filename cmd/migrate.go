package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the evidence store schema and prune expired cache entries",
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

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}

		pruned, err := st.DeleteExpiredLookups(ctx)
		if err != nil {
			return eris.Wrap(err, "prune lookup cache")
		}

		zap.L().Info("migration complete",
			zap.String("driver", cfg.Store.Driver),
			zap.Int("pruned_lookups", pruned),
		)
		fmt.Printf("Schema up to date (%s), %d expired lookups pruned\n", cfg.Store.Driver, pruned)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
