package model

import (
	"strconv"
	"strings"
)

// ParseFloat parses a possibly-absent numeric string. Absent or malformed
// input returns ok=false so callers can treat it as missing evidence rather
// than an error.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseInt parses a possibly-absent integer string. Values with thousands
// separators ("1,200") are accepted since directory exports often carry them.
func ParseInt(s string) (int, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseBool parses a possibly-absent boolean string. Recognizes the forms
// strconv does plus yes/no.
func ParseBool(s string) (bool, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return false, false
	case "yes", "y":
		return true, true
	case "no", "n":
		return false, true
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, false
	}
	return v, true
}
