package resolver

import (
	"regexp"

	"github.com/google/uuid"
)

// tokenPattern matches Planner's opaque IDs (plans, buckets, tasks).
var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{20,40}$`)

// IDPredicate decides whether raw input is already a canonical ID.
type IDPredicate func(string) bool

// IsUUID accepts only the hyphenated 8-4-4-4-12 form.
func IsUUID(s string) bool {
	return len(s) == 36 && uuid.Validate(s) == nil
}

// IsCanonicalID accepts a UUID or an opaque 20-40 character URL-safe token.
func IsCanonicalID(s string) bool {
	return IsUUID(s) || tokenPattern.MatchString(s)
}
