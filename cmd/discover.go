package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crestway-partners/leadscout/internal/ingest"
	"github.com/crestway-partners/leadscout/internal/model"
)

var (
	discoverName      string
	discoverStreet    string
	discoverCity      string
	discoverPostal    string
	discoverPhone     string
	discoverWebsite   string
	discoverEmployees int
	discoverLat       float64
	discoverLon       float64
	discoverTypes     string
	discoverSourceURL string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover a single business record from flags",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		draft := model.Draft{
			Name:       discoverName,
			Street:     discoverStreet,
			City:       discoverCity,
			PostalCode: discoverPostal,
			Phone:      discoverPhone,
			Website:    discoverWebsite,
			PlaceTypes: ingest.SplitPlaceTypes(discoverTypes),
			SourceURL:  discoverSourceURL,
		}
		if cmd.Flags().Changed("employees") {
			draft.EmployeeCount = &discoverEmployees
		}
		if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon") {
			draft.Latitude = &discoverLat
			draft.Longitude = &discoverLon
		}

		b, created, err := env.Orchestrator.Discover(ctx, draft)
		if err != nil {
			return eris.Wrap(err, "discover")
		}

		zap.L().Info("discovery complete",
			zap.String("business_id", b.ID),
			zap.String("fingerprint", b.Fingerprint),
			zap.Bool("created", created),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	},
}

func init() {
	f := discoverCmd.Flags()
	f.StringVar(&discoverName, "name", "", "business name (required)")
	f.StringVar(&discoverStreet, "street", "", "street address")
	f.StringVar(&discoverCity, "city", "", "city")
	f.StringVar(&discoverPostal, "postal-code", "", "postal code")
	f.StringVar(&discoverPhone, "phone", "", "phone number")
	f.StringVar(&discoverWebsite, "website", "", "website URL")
	f.IntVar(&discoverEmployees, "employees", 0, "employee count")
	f.Float64Var(&discoverLat, "lat", 0, "latitude")
	f.Float64Var(&discoverLon, "lon", 0, "longitude")
	f.StringVar(&discoverTypes, "types", "", "place types, comma or semicolon separated")
	f.StringVar(&discoverSourceURL, "source-url", "manual://cli", "source attribution for seed observations")
	_ = discoverCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(discoverCmd)
}
