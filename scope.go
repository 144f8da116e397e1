package oauthclient

import (
	"sort"
	"strings"
)

// Standard OpenID Connect scope values.
const (
	ScopeOpenID  = "openid"
	ScopeProfile = "profile"
	ScopeEmail   = "email"
	ScopeAddress = "address"
	ScopePhone   = "phone"
)

// ScopeString consolidates a set of scope identifiers into the
// space-delimited form used on the wire (RFC 6749 section 3.3).
// Duplicates and empty entries are dropped and the result is sorted, so
// the encoding of a scope set is canonical regardless of input order.
// Returns the empty string for an empty set.
func ScopeString(scopes []string) string {
	if len(scopes) == 0 {
		return ""
	}

	seen := make(map[string]struct{}, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return strings.Join(out, " ")
}

// ParseScopeString splits a space-delimited scope string into the set of
// scope identifiers it contains. Runs of whitespace are treated as a single
// delimiter. Returns nil for an empty string.
func ParseScopeString(scope string) []string {
	fields := strings.Fields(scope)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
