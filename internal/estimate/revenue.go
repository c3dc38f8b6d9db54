// Package estimate derives revenue signals from staff counts and per-category
// revenue benchmarks. Estimates are deterministic: the same categories and
// staff count always produce the same figure and confidence.
package estimate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// RevenueEstimate holds one benchmark-derived revenue figure.
type RevenueEstimate struct {
	Amount     int64   `json:"amount"`     // estimated annual revenue in dollars
	Confidence float64 `json:"confidence"` // 0.0-1.0
	Method     string  `json:"method"`     // "category_benchmark" or "default_benchmark"
	Category   string  `json:"category"`   // benchmark category used, "" for default
}

// revenuePerEmployee maps a place type to approximate annual revenue per
// employee in dollars. Figures are rounded industry medians for small
// owner-operated businesses.
var revenuePerEmployee = map[string]int64{
	"accounting":        170000,
	"automotive repair": 175000,
	"bakery":            60000,
	"cafe":              55000,
	"construction":      230000,
	"dental clinic":     200000,
	"electrician":       160000,
	"grocery":           220000,
	"gym":               70000,
	"landscaping":       110000,
	"law firm":          260000,
	"manufacturing":     280000,
	"plumber":           150000,
	"restaurant":        65000,
	"retail":            140000,
	"salon":             50000,
	"veterinary clinic": 165000,
}

// defaultRevenuePerEmployee is used when no observed category has a benchmark.
const defaultRevenuePerEmployee = 120000

// Estimate computes a revenue figure for a business from its observed place
// types and staff count. A staff count of zero is a reported value and yields
// a zero-revenue estimate; a negative count means the caller has no staff
// signal and gets nil.
//
// Category fallback: the lexicographically first observed category with a
// benchmark wins; with no benchmarked category the default per-employee
// figure applies at reduced confidence.
func Estimate(categories []string, employeeCount int) *RevenueEstimate {
	if employeeCount < 0 {
		return nil
	}

	normalized := make([]string, 0, len(categories))
	for _, c := range categories {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			normalized = append(normalized, c)
		}
	}
	sort.Strings(normalized)

	perEmployee := int64(defaultRevenuePerEmployee)
	method := "default_benchmark"
	matched := ""
	for _, c := range normalized {
		if v, ok := revenuePerEmployee[c]; ok {
			perEmployee = v
			method = "category_benchmark"
			matched = c
			break
		}
	}

	amount := perEmployee * int64(employeeCount)

	// Confidence calculation.
	confidence := 0.6
	if matched != "" {
		confidence += 0.2
	} else if len(normalized) == 0 {
		confidence -= 0.2
	}
	if employeeCount > 0 && employeeCount < 3 {
		confidence -= 0.1
	}
	confidence = math.Min(confidence, 0.9)
	confidence = math.Max(confidence, 0.1)

	zap.L().Debug("estimate: revenue computed",
		zap.Strings("categories", normalized),
		zap.String("category_used", matched),
		zap.Int("employee_count", employeeCount),
		zap.Int64("estimated_revenue", amount),
		zap.Float64("confidence", confidence),
	)

	return &RevenueEstimate{
		Amount:     amount,
		Confidence: confidence,
		Method:     method,
		Category:   matched,
	}
}

// Benchmark returns the per-employee revenue figure for a category and
// whether the category has one.
func Benchmark(category string) (int64, bool) {
	v, ok := revenuePerEmployee[strings.ToLower(strings.TrimSpace(category))]
	return v, ok
}

// FormatRevenue formats a revenue amount in human-readable form.
func FormatRevenue(amount int64) string {
	switch {
	case amount >= 1_000_000_000:
		return fmt.Sprintf("$%.1fB", float64(amount)/1_000_000_000)
	case amount >= 1_000_000:
		return fmt.Sprintf("$%.1fM", float64(amount)/1_000_000)
	case amount >= 1_000:
		return fmt.Sprintf("$%.0fK", float64(amount)/1_000)
	default:
		return fmt.Sprintf("$%d", amount)
	}
}
