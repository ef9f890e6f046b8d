package resolver

import "strings"

// MatchFold returns the items whose field equals raw, ignoring case.
// An empty raw never matches.
func MatchFold[T any](items []T, field func(T) string, raw string) []T {
	if raw == "" {
		return nil
	}
	var out []T
	for _, it := range items {
		if strings.EqualFold(field(it), raw) {
			out = append(out, it)
		}
	}
	return out
}
