package domain

import (
	"strings"

	"golang.org/x/net/idna"
)

// DefaultSuffix is appended to queries that carry no dot.
const DefaultSuffix = ".com"

// NormalizeDomain turns user input into the form that is looked up and
// stored: trimmed, lower-cased, non-ASCII labels punycode-encoded, and
// DefaultSuffix appended when the input has no dot. ASCII input is only
// lower-cased and suffixed.
func NormalizeDomain(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return ""
	}
	// Punycode never validates, so it cannot fail on odd but ASCII input.
	if ascii, err := idna.Punycode.ToASCII(s); err == nil {
		s = ascii
	}
	if !strings.Contains(s, ".") {
		s += DefaultSuffix
	}
	return s
}

// NormalizeEmail lower-cases and trims a recipient address. Deliverability is
// not checked.
func NormalizeEmail(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

// BaseLabel returns the part of a query before the first dot, lower-cased.
func BaseLabel(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	label, _, _ := strings.Cut(q, ".")
	return label
}
