package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/crestway-partners/leadscout/internal/report"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the discovery-to-verdict funnel",
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

		snap, err := report.NewReporter(st).Funnel(ctx)
		if err != nil {
			return err
		}

		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}

		printFunnel(snap)
		return nil
	},
}

func printFunnel(snap *report.FunnelSnapshot) {
	fmt.Printf("--- Funnel (%s) ---\n", snap.CollectedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("discovered:      %6d\n", snap.Discovered)
	fmt.Printf("geocoded:        %6d\n", snap.Geocoded)
	fmt.Printf("enriched:        %6d\n", snap.Enriched)
	fmt.Printf("qualified:       %6d\n", snap.Qualified)
	fmt.Printf("excluded:        %6d\n", snap.Excluded)
	fmt.Printf("review_required: %6d\n", snap.Review)
	fmt.Printf("total:           %6d\n", snap.Total)
	fmt.Printf("qualified rate:  %6.1f%%\n", snap.QualifiedRate*100)

	if len(snap.GateFailures) == 0 {
		return
	}
	fmt.Println("\nGate failures:")
	gates := make([]string, 0, len(snap.GateFailures))
	for gate := range snap.GateFailures {
		gates = append(gates, gate)
	}
	sort.Strings(gates)
	for _, gate := range gates {
		fmt.Printf("  %-15s %6d\n", gate, snap.GateFailures[gate])
	}
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "emit the snapshot as JSON")
	rootCmd.AddCommand(statusCmd)
}
