package ops

import (
	"context"
	"fmt"

	"github.com/steveyegge/planner/internal/graph"
	"github.com/steveyegge/planner/internal/resolver"
)

// ListPlans lists the signed-in user's plans with their owning group names.
func (s *Service) ListPlans(ctx context.Context) ([]graph.Plan, error) {
	plans, err := resolver.ListPlansWithGroups(ctx, s.api)
	if err != nil {
		return nil, err
	}
	return plans, nil
}

// ResolvePlan resolves a plan title or ID.
func (s *Service) ResolvePlan(ctx context.Context, raw string) (graph.Plan, error) {
	if err := requirePlan(raw); err != nil {
		return graph.Plan{}, err
	}
	return s.plans.Resolve(ctx, raw, "")
}

// planOwner returns the group that owns a plan; comments live there.
func (s *Service) planOwner(ctx context.Context, planID string) (string, error) {
	plan, err := s.api.Plan(ctx, planID)
	if err != nil {
		return "", err
	}
	if plan.Owner == "" {
		return "", &InputError{
			Code:    CodeNoGroupOwner,
			Message: fmt.Sprintf("Plan %s has no owner group", planID),
		}
	}
	return plan.Owner, nil
}
