package normalize

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// fingerprintLen is the number of hex characters kept from the SHA-256 sum.
const fingerprintLen = 16

// Fingerprint computes the identity hash for a candidate business from its
// raw fields: SHA-256 over the '|'-joined normalized components
// [name, street number, street, city, postal prefix, phone], truncated to
// 16 hex characters. Empty components are omitted from the join rather than
// padded, so two records missing the same fields still match on the fields
// they share. Collisions between genuinely different businesses are accepted
// and carry no resolution mechanism.
func Fingerprint(name, street, city, postalCode, phone string) string {
	components := []string{
		Name(name),
		StreetNumber(street),
		Address(street),
		City(city),
		PostalPrefix(postalCode),
		Phone(phone),
	}

	parts := components[:0]
	for _, c := range components {
		if c != "" {
			parts = append(parts, c)
		}
	}

	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%x", h)[:fingerprintLen]
}
