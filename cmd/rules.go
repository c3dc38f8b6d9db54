package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crestway-partners/leadscout/internal/rules"
)

// loadRules compiles the rule file into a Provider. When the file does not
// exist, the config-level defaults are compiled instead so a bare checkout
// still validates with the documented thresholds.
func loadRules() (*rules.Provider, error) {
	rs, err := rules.Load(cfg.Rules.Path)
	if err != nil {
		if !eris.Is(err, os.ErrNotExist) {
			return nil, err
		}
		zap.L().Info("rule file not found, compiling config defaults",
			zap.String("path", cfg.Rules.Path),
		)
		rs, err = rules.Compile(fileFromConfig())
		if err != nil {
			return nil, err
		}
	}
	return rules.NewProvider(rs, cfg.Rules.Path), nil
}

// fileFromConfig builds a rule file equivalent from the config's fallback
// values.
func fileFromConfig() rules.File {
	var f rules.File
	f.Category.Blacklist = cfg.Rules.CategoryBlacklist
	f.Category.Whitelist = cfg.Rules.CategoryWhitelist
	f.Category.ReviewRequired = cfg.Rules.ReviewRequiredCategories
	f.Geography.CenterLat = cfg.Rules.GeoCenterLat
	f.Geography.CenterLon = cfg.Rules.GeoCenterLon
	f.Geography.RadiusKm = cfg.Rules.GeoRadiusKm
	f.Geography.AllowedCities = cfg.Rules.AllowedCities
	f.Corroboration.MinSources = cfg.Rules.CorroborationMinSources
	f.Website.MinAgeYears = cfg.Rules.WebsiteMinAgeYears
	f.Revenue.ConfidenceThreshold = cfg.Rules.RevenueConfidenceThreshold
	return f
}

// ruleView is the JSON-friendly projection of a compiled RuleSet.
type ruleView struct {
	NameBlacklist              []string `json:"name_blacklist"`
	CategoryBlacklist          []string `json:"category_blacklist"`
	ReviewCategories           []string `json:"review_required_categories"`
	CategoryWhitelist          []string `json:"category_whitelist"`
	GeoCenterLat               float64  `json:"geo_center_lat"`
	GeoCenterLon               float64  `json:"geo_center_lon"`
	GeoRadiusKm                float64  `json:"geo_radius_km"`
	AllowedCities              []string `json:"allowed_cities"`
	MinSources                 int      `json:"corroboration_min_sources"`
	MinWebsiteAgeYears         float64  `json:"website_min_age_years"`
	RevenueConfidenceThreshold float64  `json:"revenue_confidence_threshold"`
}

func viewOf(rs *rules.RuleSet) ruleView {
	v := ruleView{
		NameBlacklist:              make([]string, 0, len(rs.NameBlacklist)),
		CategoryBlacklist:          sortedKeys(rs.CategoryBlacklist),
		ReviewCategories:           sortedKeys(rs.ReviewCategories),
		CategoryWhitelist:          sortedKeys(rs.CategoryWhitelist),
		GeoCenterLat:               rs.GeoCenterLat,
		GeoCenterLon:               rs.GeoCenterLon,
		GeoRadiusKm:                rs.GeoRadiusKm,
		AllowedCities:              sortedKeys(rs.AllowedCities),
		MinSources:                 rs.MinSources,
		MinWebsiteAgeYears:         rs.MinWebsiteAgeYears,
		RevenueConfidenceThreshold: rs.RevenueConfidenceThreshold,
	}
	for _, re := range rs.NameBlacklist {
		v.NameBlacklist = append(v.NameBlacklist, re.String())
	}
	return v
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect the validation rule configuration",
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Compile the rule file and report what it contains",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rs, err := rules.Load(cfg.Rules.Path)
		if err != nil {
			return eris.Wrap(err, "rules check")
		}

		fmt.Printf("Rule file OK: %s\n", cfg.Rules.Path)
		fmt.Printf("  name blacklist patterns:    %d\n", len(rs.NameBlacklist))
		fmt.Printf("  category blacklist:         %d\n", len(rs.CategoryBlacklist))
		fmt.Printf("  review-required categories: %d\n", len(rs.ReviewCategories))
		fmt.Printf("  category whitelist:         %d\n", len(rs.CategoryWhitelist))
		fmt.Printf("  allowed cities:             %d\n", len(rs.AllowedCities))
		fmt.Printf("  geography:                  %.4f,%.4f radius %.1f km\n", rs.GeoCenterLat, rs.GeoCenterLon, rs.GeoRadiusKm)
		fmt.Printf("  corroboration min sources:  %d\n", rs.MinSources)
		fmt.Printf("  website min age:            %.1f years\n", rs.MinWebsiteAgeYears)
		fmt.Printf("  revenue confidence:         %.2f\n", rs.RevenueConfidenceThreshold)
		return nil
	},
}

var rulesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective compiled rule set as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		provider, err := loadRules()
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(viewOf(provider.Current()))
	},
}

func init() {
	rulesCmd.AddCommand(rulesCheckCmd)
	rulesCmd.AddCommand(rulesShowCmd)
	rootCmd.AddCommand(rulesCmd)
}
