package ops

import (
	"context"
	"strings"

	"github.com/steveyegge/planner/internal/graph"
	"github.com/steveyegge/planner/internal/mutate"
)

// ListBuckets lists the buckets of a plan.
func (s *Service) ListBuckets(ctx context.Context, planRaw string) ([]graph.Bucket, error) {
	plan, err := s.ResolvePlan(ctx, planRaw)
	if err != nil {
		return nil, err
	}
	return s.api.PlanBuckets(ctx, plan.ID)
}

// ResolveBucket resolves a bucket name within a plan, or a bucket ID.
func (s *Service) ResolveBucket(ctx context.Context, planRaw, bucketRaw string) (graph.Bucket, error) {
	return s.buckets.ResolveIn(ctx, bucketRaw, s.planScope(planRaw))
}

// CreateBucket adds a bucket at the start of a plan's board.
func (s *Service) CreateBucket(ctx context.Context, planRaw, name string) (*graph.Bucket, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidInput("Bucket name cannot be empty")
	}
	plan, err := s.ResolvePlan(ctx, planRaw)
	if err != nil {
		return nil, err
	}
	return s.api.CreateBucket(ctx, plan.ID, name, " !")
}

// RenameResult reports a bucket rename.
type RenameResult struct {
	BucketID string `json:"bucketId"`
	OldName  string `json:"oldName"`
	NewName  string `json:"newName"`
}

// RenameBucket renames a bucket. Renaming to the current name writes nothing.
func (s *Service) RenameBucket(ctx context.Context, planRaw, bucketRaw, newName string) (*RenameResult, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, invalidInput("Bucket name cannot be empty")
	}
	b, err := s.ResolveBucket(ctx, planRaw, bucketRaw)
	if err != nil {
		return nil, err
	}

	res := &RenameResult{BucketID: b.ID, NewName: newName}
	_, err = s.mut.Update(ctx, graph.BucketPath(b.ID), func(cur *graph.Response) (any, error) {
		var current graph.Bucket
		if err := cur.Decode(&current); err != nil {
			return nil, err
		}
		res.OldName = current.Name
		if current.Name == newName {
			return nil, nil
		}
		return map[string]any{"name": newName}, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// DeleteBucket deletes a bucket and returns its ID.
func (s *Service) DeleteBucket(ctx context.Context, planRaw, bucketRaw string) (string, error) {
	b, err := s.ResolveBucket(ctx, planRaw, bucketRaw)
	if err != nil {
		return "", err
	}
	if err := s.mut.Delete(ctx, graph.BucketPath(b.ID)); err != nil {
		return "", err
	}
	return b.ID, nil
}

// MoveBucketTasks moves every task of one bucket into another. Items that
// fail are reported in the outcome; the rest still move.
func (s *Service) MoveBucketTasks(ctx context.Context, planRaw, fromRaw, toRaw string) (*mutate.BulkOutcome, error) {
	from, err := s.ResolveBucket(ctx, planRaw, fromRaw)
	if err != nil {
		return nil, err
	}
	to, err := s.ResolveBucket(ctx, planRaw, toRaw)
	if err != nil {
		return nil, err
	}
	if from.ID == to.ID {
		return nil, invalidInput("Source and target bucket are the same")
	}

	return s.BulkChildOperation(ctx, from.ID, func(ctx context.Context, t graph.Task) error {
		_, err := s.mut.Patch(ctx, graph.TaskPath(t.ID), map[string]any{"bucketId": to.ID})
		return err
	})
}

// CompleteBucketTasks marks every incomplete task of a bucket complete.
func (s *Service) CompleteBucketTasks(ctx context.Context, planRaw, bucketRaw string) (*mutate.BulkOutcome, error) {
	b, err := s.ResolveBucket(ctx, planRaw, bucketRaw)
	if err != nil {
		return nil, err
	}
	return mutate.RunBulk(ctx,
		func(ctx context.Context) ([]graph.Task, error) {
			tasks, err := s.api.BucketTasks(ctx, b.ID)
			if err != nil {
				return nil, err
			}
			return incomplete(tasks), nil
		},
		taskID,
		func(ctx context.Context, t graph.Task) error {
			_, err := s.mut.Patch(ctx, graph.TaskPath(t.ID), map[string]any{"percentComplete": 100})
			return err
		},
	)
}

// BulkChildOperation applies op to every task currently in a bucket.
func (s *Service) BulkChildOperation(ctx context.Context, bucketID string, op func(context.Context, graph.Task) error) (*mutate.BulkOutcome, error) {
	return mutate.RunBulk(ctx,
		func(ctx context.Context) ([]graph.Task, error) { return s.api.BucketTasks(ctx, bucketID) },
		taskID,
		op,
	)
}

func taskID(t graph.Task) string { return t.ID }

func incomplete(tasks []graph.Task) []graph.Task {
	out := make([]graph.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.Completed() {
			out = append(out, t)
		}
	}
	return out
}
