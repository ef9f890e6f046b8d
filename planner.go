// Package planner is the public entry point for driving Microsoft Planner
// by name: plans, buckets, tasks and users are resolved from what an
// operator types, and writes are made safe against concurrent edits.
//
// The CLI in cmd/planner is built on this package; other Go programs can
// use it the same way.
package planner

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/steveyegge/planner/internal/auth"
	"github.com/steveyegge/planner/internal/config"
	"github.com/steveyegge/planner/internal/debug"
	"github.com/steveyegge/planner/internal/graph"
	"github.com/steveyegge/planner/internal/mutate"
	"github.com/steveyegge/planner/internal/ops"
	"github.com/steveyegge/planner/internal/resolver"
	"github.com/steveyegge/planner/internal/telemetry"
)

// Core types
type (
	Plan        = graph.Plan
	Bucket      = graph.Bucket
	Task        = graph.Task
	BulkOutcome = mutate.BulkOutcome
	Failure     = mutate.Failure

	// Response is an entity as Graph returned it: the JSON body and its ETag.
	Response = graph.Response

	// ResolutionError is an expected failure to turn input into an entity.
	ResolutionError = resolver.Error
	// BatchError aggregates every failed identifier of a user batch.
	BatchError = resolver.BatchError
	Candidate  = resolver.Candidate
)

// Resolution error codes
const (
	CodeNotFound                 = resolver.CodeNotFound
	CodeAmbiguous                = resolver.CodeAmbiguous
	CodeUserNotFound             = resolver.CodeUserNotFound
	CodeAmbiguousUser            = resolver.CodeAmbiguousUser
	CodeBatchUserResolutionError = resolver.CodeBatchUserResolution
	CodeSubtaskNotFound          = resolver.CodeSubtaskNotFound
)

// Kind names an entity that can be resolved from operator input.
type Kind string

const (
	KindPlan   Kind = "plan"
	KindBucket Kind = "bucket"
	KindTask   Kind = "task"
	KindUser   Kind = "user"
)

// Entity is a resolved plan, bucket, task or user.
type Entity struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Planner runs operations for one signed-in user.
type Planner struct {
	svc *ops.Service
}

// New wraps an existing Graph client.
func New(api *graph.Client) *Planner {
	return &Planner{svc: ops.NewService(api)}
}

// Open signs in with cfg's cached credentials (or PLANNER_ACCESS_TOKEN)
// and returns a ready Planner.
func Open(ctx context.Context, cfg *config.Config) (*Planner, error) {
	ts, err := auth.TokenSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	hc := &http.Client{
		Transport: telemetry.WrapTransport(http.DefaultTransport),
		Timeout:   graph.DefaultTimeout,
	}
	api := graph.NewClient(cfg.GraphURL,
		graph.WithTokenSource(ts),
		graph.WithHTTPClient(hc),
		graph.WithThrottleHook(func(_ context.Context, method, path string, wait time.Duration) {
			debug.Notef("Rate limited on %s %s, retrying in %s\n", method, path, wait)
		}),
	)
	return New(api), nil
}

// Service exposes the full set of operations.
func (p *Planner) Service() *ops.Service { return p.svc }

// ResolveEntity turns raw into an entity of the given kind. scope is the
// plan (title or ID) for buckets and tasks; it is only consulted when raw
// is not already an ID.
func (p *Planner) ResolveEntity(ctx context.Context, kind Kind, raw, scope string) (Entity, error) {
	switch kind {
	case KindPlan:
		plan, err := p.svc.ResolvePlan(ctx, raw)
		if err != nil {
			return Entity{}, err
		}
		return Entity{Kind: kind, ID: plan.ID, Name: plan.Title}, nil
	case KindBucket:
		b, err := p.svc.ResolveBucket(ctx, scope, raw)
		if err != nil {
			return Entity{}, err
		}
		return Entity{Kind: kind, ID: b.ID, Name: b.Name}, nil
	case KindTask:
		t, err := p.svc.ResolveTask(ctx, scope, raw)
		if err != nil {
			return Entity{}, err
		}
		return Entity{Kind: kind, ID: t.ID, Name: t.Title}, nil
	case KindUser:
		id, err := p.svc.ResolveUser(ctx, raw)
		if err != nil {
			return Entity{}, err
		}
		return Entity{Kind: kind, ID: id}, nil
	default:
		return Entity{}, fmt.Errorf("unknown entity kind %q", kind)
	}
}

// ResolveUserBatch resolves a comma-separated list of user identifiers,
// reporting every failure in one *BatchError.
func (p *Planner) ResolveUserBatch(ctx context.Context, csv string) ([]string, error) {
	return p.svc.ResolveUsers(ctx, csv)
}

// MutateWithRetry PATCHes the entity at path with the current ETag,
// refetching and retrying once on a concurrent change. It returns the
// updated entity; use Response.Decode to read it into a Task or Bucket.
func (p *Planner) MutateWithRetry(ctx context.Context, path string, patch map[string]any) (*Response, error) {
	return p.svc.Mutator().Patch(ctx, path, patch)
}

// BulkChildOperation applies op to every task of a bucket. Individual
// failures are collected; the run never stops early.
func (p *Planner) BulkChildOperation(ctx context.Context, bucketID string, op func(context.Context, Task) error) (*BulkOutcome, error) {
	return p.svc.BulkChildOperation(ctx, bucketID, op)
}
