package mutate

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/steveyegge/planner/internal/debug"
	"github.com/steveyegge/planner/internal/telemetry"
)

// Failure records one item a bulk run could not process.
type Failure struct {
	ItemID string `json:"itemId"`
	Error  string `json:"error"`
}

// BulkOutcome accounts for every item of a bulk run.
// SucceededCount+FailedCount always equals the snapshot size.
type BulkOutcome struct {
	OK             bool      `json:"ok"`
	SucceededCount int       `json:"succeededCount"`
	FailedCount    int       `json:"failedCount"`
	SucceededIDs   []string  `json:"succeededIds"`
	Failures       []Failure `json:"failures"`
}

// RunBulk lists the children once and applies op to each, in order. An
// item failure is recorded and the run continues. Only a failed listing is
// returned as an error.
func RunBulk[T any](
	ctx context.Context,
	list func(ctx context.Context) ([]T, error),
	id func(T) string,
	op func(ctx context.Context, item T) error,
) (*BulkOutcome, error) {
	items, err := list(ctx)
	if err != nil {
		return nil, err
	}

	out := &BulkOutcome{
		OK:           true,
		SucceededIDs: []string{},
		Failures:     []Failure{},
	}
	for _, it := range items {
		itemID := id(it)
		if err := op(ctx, it); err != nil {
			debug.Logf("bulk: item %s failed: %v\n", itemID, err)
			countBulkFailure(ctx)
			out.Failures = append(out.Failures, Failure{ItemID: itemID, Error: err.Error()})
			continue
		}
		out.SucceededIDs = append(out.SucceededIDs, itemID)
	}
	out.SucceededCount = len(out.SucceededIDs)
	out.FailedCount = len(out.Failures)
	return out, nil
}

func countBulkFailure(ctx context.Context) {
	c, err := telemetry.Meter(scopeName).Int64Counter("planner.bulk.failures",
		metric.WithDescription("Items that failed inside a bulk operation"),
	)
	if err != nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attribute.String("bulk.kind", "child")))
}
