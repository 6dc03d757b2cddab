// Package phone converts operator-entered mobile numbers into the canonical
// international form used as WhatsApp addresses.
package phone

import (
	"strings"

	"go.mau.fi/whatsmeow/types"
)

// DefaultCountryCode is prefixed to bare 10-digit national numbers.
const DefaultCountryCode = "91"

// Normalize strips every non-digit and prefixes DefaultCountryCode when exactly
// ten digits remain. Applying it to its own output returns the same value.
func Normalize(mobile string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, mobile)
	if len(cleaned) == 10 {
		cleaned = DefaultCountryCode + cleaned
	}
	return cleaned
}

// JID returns the user JID for a mobile number after normalization.
func JID(mobile string) (types.JID, bool) {
	n := Normalize(mobile)
	if n == "" {
		return types.EmptyJID, false
	}
	return types.NewJID(n, types.DefaultUserServer), true
}
