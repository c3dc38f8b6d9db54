package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/crestway-partners/leadscout/internal/report"
)

var auditCmd = &cobra.Command{
	Use:   "audit <id|fingerprint>",
	Short: "Print the full evidence history for one business",
	Long:  "Emits the business record with every observation, validation, and exclusion row, so any verdict can be traced back to the evidence that produced it.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("pipeline"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		trail, err := report.NewReporter(st).Audit(ctx, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(trail)
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
}
