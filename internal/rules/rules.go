// Package rules loads and compiles the validation rule configuration. A
// compiled RuleSet is immutable; runtime changes happen only by swapping a
// whole new set through a Provider.
package rules

import (
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/crestway-partners/leadscout/internal/normalize"
)

// Defaults applied when the rule file leaves a threshold unset.
const (
	DefaultMinSources         = 2
	DefaultMinWebsiteAgeYears = 3.0
	DefaultRevenueConfidence  = 0.6
)

// File is the YAML shape of the rule file.
type File struct {
	Category struct {
		NameBlacklist  []string `yaml:"name_blacklist"`
		Blacklist      []string `yaml:"blacklist"`
		ReviewRequired []string `yaml:"review_required"`
		Whitelist      []string `yaml:"whitelist"`
	} `yaml:"category"`
	Geography struct {
		CenterLat     float64  `yaml:"center_lat"`
		CenterLon     float64  `yaml:"center_lon"`
		RadiusKm      float64  `yaml:"radius_km"`
		AllowedCities []string `yaml:"allowed_cities"`
	} `yaml:"geography"`
	Corroboration struct {
		MinSources int `yaml:"min_sources"`
	} `yaml:"corroboration"`
	Website struct {
		MinAgeYears float64 `yaml:"min_age_years"`
	} `yaml:"website"`
	Revenue struct {
		ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	} `yaml:"revenue"`
}

// RuleSet is the compiled rule configuration passed into every gate call.
// All collections are lookup sets keyed by normalized values.
type RuleSet struct {
	NameBlacklist     []*regexp.Regexp
	CategoryBlacklist map[string]bool
	ReviewCategories  map[string]bool
	CategoryWhitelist map[string]bool

	GeoCenterLat  float64
	GeoCenterLon  float64
	GeoRadiusKm   float64
	AllowedCities map[string]bool

	MinSources int

	MinWebsiteAgeYears float64

	RevenueConfidenceThreshold float64
}

// Load reads and compiles a rule file. The YAML has a top-level "rules" key.
func Load(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: read %s", path)
	}

	var wrapper struct {
		Rules File `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrapf(err, "rules: parse %s", path)
	}

	return Compile(wrapper.Rules)
}

// Compile turns a parsed rule file into an immutable RuleSet, applying
// defaults for unset thresholds and normalizing all match values. Invalid
// name blacklist patterns fail compilation; a rule that cannot match is a
// configuration error, not a runtime surprise.
func Compile(f File) (*RuleSet, error) {
	rs := &RuleSet{
		CategoryBlacklist: typeSet(f.Category.Blacklist),
		ReviewCategories:  typeSet(f.Category.ReviewRequired),
		CategoryWhitelist: typeSet(f.Category.Whitelist),

		GeoCenterLat: f.Geography.CenterLat,
		GeoCenterLon: f.Geography.CenterLon,
		GeoRadiusKm:  f.Geography.RadiusKm,

		MinSources:                 f.Corroboration.MinSources,
		MinWebsiteAgeYears:         f.Website.MinAgeYears,
		RevenueConfidenceThreshold: f.Revenue.ConfidenceThreshold,
	}

	for _, pattern := range f.Category.NameBlacklist {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, eris.Wrapf(err, "rules: bad name blacklist pattern %q", pattern)
		}
		rs.NameBlacklist = append(rs.NameBlacklist, re)
	}

	rs.AllowedCities = make(map[string]bool, len(f.Geography.AllowedCities))
	for _, city := range f.Geography.AllowedCities {
		if c := normalize.City(city); c != "" {
			rs.AllowedCities[c] = true
		}
	}

	if rs.MinSources <= 0 {
		rs.MinSources = DefaultMinSources
	}
	if rs.MinWebsiteAgeYears <= 0 {
		rs.MinWebsiteAgeYears = DefaultMinWebsiteAgeYears
	}
	if rs.RevenueConfidenceThreshold <= 0 {
		rs.RevenueConfidenceThreshold = DefaultRevenueConfidence
	}

	return rs, nil
}

// typeSet lowercases and trims place-type values into a lookup set.
func typeSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = true
		}
	}
	return set
}

// CityAllowed reports whether a raw city value is in the allowed set after
// normalization.
func (rs *RuleSet) CityAllowed(city string) bool {
	return rs.AllowedCities[normalize.City(city)]
}

// NameBlacklisted returns the first blacklist pattern matching the business
// name, or "" when none match.
func (rs *RuleSet) NameBlacklisted(name string) string {
	for _, re := range rs.NameBlacklist {
		if re.MatchString(name) {
			return re.String()
		}
	}
	return ""
}
