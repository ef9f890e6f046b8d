package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/steveyegge/planner/internal/debug"
	"github.com/steveyegge/planner/internal/graph"
)

// UserDirectory is the slice of the Graph client user resolution needs.
type UserDirectory interface {
	User(ctx context.Context, login string) (*graph.User, error)
	SearchUsers(ctx context.Context, prefix string) ([]graph.User, error)
}

// UserResolver maps emails, UPNs, display-name prefixes, and object IDs to
// user object IDs.
type UserResolver struct {
	dir UserDirectory
}

// NewUserResolver creates a UserResolver backed by dir.
func NewUserResolver(dir UserDirectory) *UserResolver {
	return &UserResolver{dir: dir}
}

// Resolve returns the object ID for raw. Lookup order:
//
//  1. a UUID is returned as-is,
//  2. an exact GET /users/{raw} (email, UPN or ID),
//  3. a display-name prefix search, when enableSearch is set.
//
// Failures are *Error values coded UserNotFound or AmbiguousUser. Errors
// from the search itself are returned unchanged.
func (r *UserResolver) Resolve(ctx context.Context, raw string, enableSearch bool) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", userNotFound("User identifier is empty")
	}
	// Entra user object IDs are always UUIDs. Planner's token shape is not
	// accepted here; such input may be a mail nickname.
	if IsUUID(raw) {
		return raw, nil
	}

	u, err := r.dir.User(ctx, raw)
	if err == nil && u != nil && u.ID != "" {
		return u.ID, nil
	}
	if err != nil {
		debug.Logf("resolver: exact user lookup %q failed: %v\n", raw, err)
	}
	if !enableSearch {
		return "", userNotFound(fmt.Sprintf("User '%s' not found or not accessible", raw))
	}

	users, err := r.dir.SearchUsers(ctx, raw)
	if err != nil {
		return "", err
	}
	switch len(users) {
	case 0:
		return "", userNotFound(fmt.Sprintf("No users found matching '%s'", raw))
	case 1:
		return users[0].ID, nil
	}

	shown := users
	if len(shown) > MaxCandidates {
		shown = shown[:MaxCandidates]
	}
	suggestions := make([]string, 0, len(shown))
	for _, u := range shown {
		suggestions = append(suggestions, FormatUserSuggestion(u))
	}
	return "", &Error{
		Code:        CodeAmbiguousUser,
		Message:     fmt.Sprintf("Multiple users found matching '%s'. Please be more specific.", raw),
		Suggestions: suggestions,
		Hint:        ambiguousUserHint,
	}
}

// FormatUserSuggestion renders a user as "Display Name (email)".
func FormatUserSuggestion(u graph.User) string {
	return fmt.Sprintf("%s (%s)", u.DisplayName, u.Email())
}
