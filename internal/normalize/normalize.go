// Package normalize turns raw directory text into comparable canonical forms.
// Every function is pure and total: no field kind fails, empty input yields
// empty output.
package normalize

import (
	"regexp"
	"strings"
)

// Kind identifies which canonicalization rules apply to a raw value.
type Kind string

const (
	KindName       Kind = "name"
	KindAddress    Kind = "address"
	KindPhone      Kind = "phone"
	KindPostalCode Kind = "postal_code"
	KindWebsite    Kind = "website"
	KindCity       Kind = "city"
)

// legalSuffixes are corporate designators stripped from the end of names.
var legalSuffixes = map[string]bool{
	"inc":  true,
	"ltd":  true,
	"corp": true,
	"llc":  true,
	"co":   true,
}

// streetAbbr maps lowercase street-type and direction abbreviations to their
// expanded forms. Applied token by token after punctuation stripping.
var streetAbbr = map[string]string{
	"st":   "street",
	"ave":  "avenue",
	"av":   "avenue",
	"rd":   "road",
	"dr":   "drive",
	"blvd": "boulevard",
	"cres": "crescent",
	"crt":  "court",
	"ct":   "court",
	"ln":   "lane",
	"pl":   "place",
	"pkwy": "parkway",
	"hwy":  "highway",
	"sq":   "square",
	"terr": "terrace",
	"e":    "east",
	"w":    "west",
	"n":    "north",
	"s":    "south",
}

// provinceSuffix matches a trailing ", ON" style province or state code on a
// city name.
var provinceSuffix = regexp.MustCompile(`(?i),\s*[a-z]{2}\.?\s*$`)

// Value canonicalizes raw according to kind. Unknown kinds fall back to
// lowercase plus punctuation stripping.
func Value(raw string, kind Kind) string {
	switch kind {
	case KindName:
		return Name(raw)
	case KindAddress:
		return Address(raw)
	case KindPhone:
		return Phone(raw)
	case KindPostalCode:
		return PostalCode(raw)
	case KindWebsite:
		return Website(raw)
	case KindCity:
		return City(raw)
	default:
		return collapse(stripPunct(strings.ToLower(raw)))
	}
}

// Name lowercases, strips punctuation, and removes trailing legal suffixes
// (inc, ltd, corp, llc, co). A name consisting only of a suffix word is kept.
func Name(raw string) string {
	tokens := strings.Fields(stripPunct(strings.ToLower(raw)))
	for len(tokens) > 1 && legalSuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// Address lowercases, strips punctuation, and expands street-type and
// direction abbreviations token by token.
func Address(raw string) string {
	tokens := strings.Fields(stripPunct(strings.ToLower(raw)))
	for i, tok := range tokens {
		if full, ok := streetAbbr[tok]; ok {
			tokens[i] = full
		}
	}
	return strings.Join(tokens, " ")
}

// StreetNumber extracts the leading run of digits from a street address.
// Returns "" when the address does not start with a digit.
func StreetNumber(raw string) string {
	s := strings.TrimSpace(raw)
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}

// Phone strips all non-digit characters and keeps the last 10 digits,
// dropping any country code prefix.
func Phone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return digits
}

// PostalCode uppercases and removes spaces. If the compact form matches the
// six-character alternating letter/digit Canadian pattern it is returned;
// anything else is returned trimmed but otherwise as-is.
func PostalCode(raw string) string {
	compact := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
	if isCanadianPostal(compact) {
		return compact
	}
	return strings.TrimSpace(raw)
}

// isCanadianPostal reports whether s is exactly A1A1A1 shaped.
func isCanadianPostal(s string) bool {
	if len(s) != 6 {
		return false
	}
	for i := 0; i < 6; i++ {
		c := s[i]
		if i%2 == 0 {
			if c < 'A' || c > 'Z' {
				return false
			}
		} else {
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return true
}

// PostalPrefix returns the first three characters of a normalized postal
// code, the forward sortation area for Canadian codes.
func PostalPrefix(raw string) string {
	code := PostalCode(raw)
	if len(code) < 3 {
		return code
	}
	return code[:3]
}

// Website lowercases, strips the scheme and a leading "www.", and keeps the
// domain only, dropping any path, query, or fragment.
func Website(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return s
}

// City lowercases and strips a trailing province suffix such as ", ON"
// before punctuation cleanup, so "Hamilton, ON" and "Hamilton" compare equal.
func City(raw string) string {
	s := provinceSuffix.ReplaceAllString(strings.TrimSpace(raw), "")
	return collapse(stripPunct(strings.ToLower(s)))
}

// stripPunct replaces every character outside [a-z0-9 ] with a space, except
// apostrophes, which are deleted so possessive and plain spellings produce
// the same tokens. Input is expected to be lowercased already.
func stripPunct(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		case r == '\'', r == '’':
			// "Governor's" must token-match "Governors", and a spaced
			// apostrophe would leave a stray "s" for the direction
			// expansion to misread as "south".
		default:
			b.WriteRune(' ')
		}
	}
	return b.String()
}

// collapse trims and squeezes runs of whitespace to single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
