package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/crestway-partners/leadscout/internal/export"
	"github.com/crestway-partners/leadscout/internal/model"
)

var (
	exportOut    string
	exportStatus string
	exportCity   string
	exportLimit  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export pipeline results",
}

var exportGeoJSONCmd = &cobra.Command{
	Use:   "geojson",
	Short: "Write qualified leads as a GeoJSON FeatureCollection",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("pipeline"); err != nil {
			return err
		}

		status := model.Status(exportStatus)
		if exportStatus != "" && !status.Valid() {
			return eris.Errorf("export: unknown status %q", exportStatus)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		var w io.Writer = os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return eris.Wrapf(err, "export: create %s", exportOut)
			}
			defer f.Close()
			w = f
		}

		n, err := export.WriteGeoJSON(ctx, st, w, export.GeoJSONOptions{
			Status: status,
			City:   exportCity,
			Limit:  exportLimit,
		})
		if err != nil {
			return err
		}

		if exportOut != "" {
			fmt.Printf("Wrote %d features to %s\n", n, exportOut)
		}
		return nil
	},
}

func init() {
	exportGeoJSONCmd.Flags().StringVar(&exportOut, "out", "", "output file (default stdout)")
	exportGeoJSONCmd.Flags().StringVar(&exportStatus, "status", "", "status to export (default qualified)")
	exportGeoJSONCmd.Flags().StringVar(&exportCity, "city", "", "restrict to one city")
	exportGeoJSONCmd.Flags().IntVar(&exportLimit, "limit", 0, "cap the number of features (0 = all)")
	exportCmd.AddCommand(exportGeoJSONCmd)
	rootCmd.AddCommand(exportCmd)
}
