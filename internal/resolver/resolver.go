// Package resolver turns operator input (names or IDs) into canonical
// Planner IDs.
//
// Input that already looks like a canonical ID is returned without any
// network call. Anything else is compared case-insensitively against one
// fresh listing of the scope. Results are never cached.
package resolver

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/planner/internal/graph"
	"github.com/steveyegge/planner/internal/telemetry"
)

const scopeName = "github.com/steveyegge/planner/resolver"

// Resolver resolves one kind of entity within a scope (a plan ID, a bucket ID,
// or nothing for the signed-in user's plans).
type Resolver[T any] struct {
	// Kind names the entity in messages ("Plan", "Bucket", "Task").
	Kind string
	IsID IDPredicate
	// List fetches every entity of the scope in one call.
	List func(ctx context.Context, scope string) ([]T, error)
	// Field returns the display value compared against the input.
	Field     func(T) string
	Candidate func(T) Candidate
	// FromID builds a stub entity for canonical-ID input. It must not do I/O.
	FromID func(id string) T
}

// Resolve returns the single entity raw refers to, or a *Error with code
// NotFound or Ambiguous.
func (r *Resolver[T]) Resolve(ctx context.Context, raw, scope string) (T, error) {
	var zero T
	if r.IsID(raw) {
		return r.FromID(raw), nil
	}

	ctx, span := telemetry.Tracer(scopeName).Start(ctx, "resolver.resolve",
		trace.WithAttributes(attribute.String("resolver.kind", r.Kind)),
	)
	defer span.End()

	items, err := r.List(ctx, scope)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return zero, err
	}

	matches := MatchFold(items, r.Field, raw)
	span.SetAttributes(attribute.Int("resolver.matches", len(matches)))
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return zero, notFound(r.Kind, raw, r.candidates(items, MaxCandidates))
	default:
		return zero, ambiguous(r.Kind, raw, r.candidates(matches, len(matches)))
	}
}

// ResolveIn is Resolve with a scope that is only computed when raw is not
// already a canonical ID.
func (r *Resolver[T]) ResolveIn(ctx context.Context, raw string, scope func(context.Context) (string, error)) (T, error) {
	if r.IsID(raw) {
		return r.FromID(raw), nil
	}
	s, err := scope(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return r.Resolve(ctx, raw, s)
}

func (r *Resolver[T]) candidates(items []T, limit int) []Candidate {
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]Candidate, 0, len(items))
	for _, it := range items {
		out = append(out, r.Candidate(it))
	}
	return out
}

// PlanLister is the slice of the Graph client plan resolution needs.
type PlanLister interface {
	MyPlans(ctx context.Context) ([]graph.Plan, error)
	Group(ctx context.Context, groupID string) (*graph.Group, error)
}

// NewPlanResolver resolves plan titles across the signed-in user's plans.
// Each listed plan is annotated with its owning group's display name; a
// group lookup failure leaves the name empty.
func NewPlanResolver(api PlanLister) *Resolver[graph.Plan] {
	return &Resolver[graph.Plan]{
		Kind: "Plan",
		IsID: IsCanonicalID,
		List: func(ctx context.Context, _ string) ([]graph.Plan, error) {
			return ListPlansWithGroups(ctx, api)
		},
		Field: func(p graph.Plan) string { return p.Title },
		Candidate: func(p graph.Plan) Candidate {
			return Candidate{ID: p.ID, Title: p.Title, GroupName: p.GroupName}
		},
		FromID: func(id string) graph.Plan { return graph.Plan{ID: id} },
	}
}

// ListPlansWithGroups lists plans and fills in GroupName, looking each
// owning group up once.
func ListPlansWithGroups(ctx context.Context, api PlanLister) ([]graph.Plan, error) {
	plans, err := api.MyPlans(ctx)
	if err != nil {
		return nil, err
	}
	names := map[string]string{}
	for i := range plans {
		owner := plans[i].Owner
		if owner == "" {
			continue
		}
		name, seen := names[owner]
		if !seen {
			if g, err := api.Group(ctx, owner); err == nil {
				name = g.DisplayName
			}
			names[owner] = name
		}
		plans[i].GroupName = name
	}
	return plans, nil
}

// BucketLister lists the buckets of a plan.
type BucketLister interface {
	PlanBuckets(ctx context.Context, planID string) ([]graph.Bucket, error)
}

// NewBucketResolver resolves bucket names within a plan.
func NewBucketResolver(api BucketLister) *Resolver[graph.Bucket] {
	return &Resolver[graph.Bucket]{
		Kind:  "Bucket",
		IsID:  IsCanonicalID,
		List:  api.PlanBuckets,
		Field: func(b graph.Bucket) string { return b.Name },
		Candidate: func(b graph.Bucket) Candidate {
			return Candidate{ID: b.ID, Name: b.Name}
		},
		FromID: func(id string) graph.Bucket { return graph.Bucket{ID: id} },
	}
}

// TaskLister lists the tasks of a plan or a bucket.
type TaskLister interface {
	PlanTasks(ctx context.Context, planID string) ([]graph.Task, error)
	BucketTasks(ctx context.Context, bucketID string) ([]graph.Task, error)
}

// NewTaskResolver resolves task titles within a plan.
func NewTaskResolver(api TaskLister) *Resolver[graph.Task] {
	return newTaskResolver(api.PlanTasks)
}

// NewBucketTaskResolver resolves task titles within a bucket.
func NewBucketTaskResolver(api TaskLister) *Resolver[graph.Task] {
	return newTaskResolver(api.BucketTasks)
}

func newTaskResolver(list func(context.Context, string) ([]graph.Task, error)) *Resolver[graph.Task] {
	return &Resolver[graph.Task]{
		Kind:  "Task",
		IsID:  IsCanonicalID,
		List:  list,
		Field: func(t graph.Task) string { return t.Title },
		Candidate: func(t graph.Task) Candidate {
			return Candidate{ID: t.ID, Title: t.Title, BucketID: t.BucketID}
		},
		FromID: func(id string) graph.Task { return graph.Task{ID: id} },
	}
}
