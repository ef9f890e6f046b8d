// Package mutate applies writes under Graph's optimistic concurrency.
//
// Every write is preceded by a fresh read for the entity's ETag. When the
// write loses to a concurrent change (412) the entity is read again and
// the write is attempted once more. A second conflict is returned.
package mutate

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/planner/internal/debug"
	"github.com/steveyegge/planner/internal/graph"
	"github.com/steveyegge/planner/internal/telemetry"
)

const (
	scopeName = "github.com/steveyegge/planner/mutate"

	// MaxAttempts bounds reads and writes per mutation.
	MaxAttempts = 2
)

// WithOptimisticRetry runs fetch then apply, and repeats both once if apply
// fails with a precondition conflict. fetch must return the state and ETag
// read from the service; apply must send that ETag with its write.
func WithOptimisticRetry[S, R any](
	ctx context.Context,
	fetch func(ctx context.Context) (S, string, error),
	apply func(ctx context.Context, state S, etag string) (R, error),
) (R, error) {
	var zero R
	ctx, span := telemetry.Tracer(scopeName).Start(ctx, "mutate.optimistic")
	defer span.End()

	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		state, etag, err := fetch(ctx)
		if err != nil {
			recordError(span, err)
			return zero, err
		}

		res, err := apply(ctx, state, etag)
		if err == nil {
			span.SetAttributes(attribute.Int("mutate.attempts", attempt))
			return res, nil
		}
		if !graph.IsConflict(err) {
			recordError(span, err)
			return zero, err
		}

		countConflict(ctx, attempt)
		debug.Logf("mutate: conflict on attempt %d/%d: %v\n", attempt, MaxAttempts, err)
		lastErr = err
	}

	err := fmt.Errorf("giving up after %d attempts: %w", MaxAttempts, lastErr)
	recordError(span, err)
	return zero, err
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func countConflict(ctx context.Context, attempt int) {
	c, err := telemetry.Meter(scopeName).Int64Counter("planner.mutate.conflicts",
		metric.WithDescription("Writes rejected with 412 Precondition Failed"),
	)
	if err != nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attribute.Int("mutate.attempt", attempt)))
}

// Transport is the part of the Graph client the Mutator writes through.
type Transport interface {
	Get(ctx context.Context, path string) (*graph.Response, error)
	Patch(ctx context.Context, path string, body any, etag string) (*graph.Response, error)
	Delete(ctx context.Context, path string, etag string) error
}

// Mutator performs ETag-guarded writes against single Graph resources.
type Mutator struct {
	api Transport
}

// New creates a Mutator writing through api.
func New(api Transport) *Mutator {
	return &Mutator{api: api}
}

// Patch overwrites fields on the resource at path and returns the updated
// resource.
func (m *Mutator) Patch(ctx context.Context, path string, fields map[string]any) (*graph.Response, error) {
	return m.Update(ctx, path, func(*graph.Response) (any, error) {
		return fields, nil
	})
}

// Update reads the resource at path and PATCHes the body build computes
// from that read. build runs again on the fresh read after a conflict. A
// nil body means the resource is already in the wanted state and nothing
// is written; the read is returned as is.
//
// The result is the representation Graph returns for the PATCH. When Graph
// answers 204 without a body the resource is read once more.
func (m *Mutator) Update(ctx context.Context, path string, build func(current *graph.Response) (any, error)) (*graph.Response, error) {
	return WithOptimisticRetry(ctx,
		func(ctx context.Context) (*graph.Response, string, error) {
			resp, err := m.api.Get(ctx, path)
			if err != nil {
				return nil, "", err
			}
			return resp, resp.ETag, nil
		},
		func(ctx context.Context, current *graph.Response, etag string) (*graph.Response, error) {
			body, err := build(current)
			if err != nil {
				return nil, err
			}
			if body == nil {
				return current, nil
			}
			updated, err := m.api.Patch(ctx, path, body, etag)
			if err != nil {
				return nil, err
			}
			if updated == nil || len(updated.Body) == 0 {
				return m.api.Get(ctx, path)
			}
			return updated, nil
		},
	)
}

// Delete removes the resource at path.
func (m *Mutator) Delete(ctx context.Context, path string) error {
	_, err := WithOptimisticRetry(ctx,
		func(ctx context.Context) (string, string, error) {
			resp, err := m.api.Get(ctx, path)
			if err != nil {
				return "", "", err
			}
			return path, resp.ETag, nil
		},
		func(ctx context.Context, path, etag string) (struct{}, error) {
			return struct{}{}, m.api.Delete(ctx, path, etag)
		},
	)
	return err
}
