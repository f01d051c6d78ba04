// Package suggest builds alternative domain names for a query label. It is a
// pure function of its inputs and makes no network calls; availability
// filtering happens in the caller.
package suggest

import "github.com/ignite/domainwatch/internal/domain"

// PoolFactor bounds the candidate pool relative to the requested result count
// so callers can cap the lookups spent filtering it.
const PoolFactor = 3

// TLDs are tried first, in this order.
var TLDs = []string{".com", ".net", ".org", ".io", ".co", ".ai", ".xyz", ".tech", ".dev", ".app", ".tv", ".me", ".link", ".shop"}

// Prefixes are joined in front of the label under .com.
var Prefixes = []string{"get", "try", "the", "my", "use", "go", "hey", "join", "is", "do", "pro", "ultra"}

// Suffixes are joined after the label under .com.
var Suffixes = []string{"app", "hq", "space", "online", "site", "hub", "labs", "io", "dev", "pro", "tv", "cloud"}

// Chains are appended as label.<chain>.
var Chains = []string{"hub.io", "labs.io", "dev.io", "app.io", "online.io"}

// Keywords produce label+keyword+".com" variants.
var Keywords = []string{"app", "pro", "online", "ai"}

// PoolSize is the number of candidates before dedup.
func PoolSize() int {
	return len(TLDs) + len(Prefixes) + len(Suffixes) + len(Chains) + len(Keywords)
}

// Generate returns up to PoolFactor*maxResults unique candidates for query,
// in list order: TLD variants, prefix variants, suffix variants, chained
// variants, keyword variants. Only the text before the first dot of query is
// used as the label. Candidates are normalized like the query itself, so a
// non-ASCII label yields punycode names.
func Generate(query string, maxResults int) []string {
	if maxResults <= 0 {
		return []string{}
	}
	label := domain.BaseLabel(query)
	pool := PoolSize()
	limit := pool
	if maxResults <= pool/PoolFactor {
		limit = PoolFactor * maxResults
	}

	out := make([]string, 0, limit)
	seen := make(map[string]struct{}, limit)
	add := func(candidate string) bool {
		candidate = domain.NormalizeDomain(candidate)
		if _, ok := seen[candidate]; ok {
			return true
		}
		seen[candidate] = struct{}{}
		out = append(out, candidate)
		return len(out) < limit
	}

	for _, tld := range TLDs {
		if !add(label + tld) {
			return out
		}
	}
	for _, p := range Prefixes {
		if !add(p + label + ".com") {
			return out
		}
	}
	for _, s := range Suffixes {
		if !add(label + s + ".com") {
			return out
		}
	}
	for _, c := range Chains {
		if !add(label + "." + c) {
			return out
		}
	}
	for _, k := range Keywords {
		if !add(label + k + ".com") {
			return out
		}
	}
	return out
}
