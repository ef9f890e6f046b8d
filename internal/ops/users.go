package ops

import (
	"context"
	"strings"

	"github.com/steveyegge/planner/internal/graph"
)

// SearchUsers lists users whose display name starts with prefix.
func (s *Service) SearchUsers(ctx context.Context, prefix string) ([]graph.User, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, invalidInput("Search text cannot be empty")
	}
	return s.api.SearchUsers(ctx, prefix)
}

// ResolveUser resolves one identifier to a user ID, searching by name if needed.
func (s *Service) ResolveUser(ctx context.Context, raw string) (string, error) {
	return s.users.Resolve(ctx, raw, true)
}

// ResolveUsers resolves a comma-separated list, reporting every failure at once.
func (s *Service) ResolveUsers(ctx context.Context, csv string) ([]string, error) {
	return s.users.ResolveBatch(ctx, csv)
}
