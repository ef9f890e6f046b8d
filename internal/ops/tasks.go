package ops

import (
	"context"
	"strings"

	"github.com/steveyegge/planner/internal/graph"
	"github.com/steveyegge/planner/internal/labels"
	"github.com/steveyegge/planner/internal/timeparsing"
)

const assignmentType = "#microsoft.graph.plannerAssignment"

// TaskFilter selects the tasks ListTasks returns. Bucket wins over Plan.
type TaskFilter struct {
	Plan       string
	Bucket     string
	Incomplete bool
}

// ListTasks lists the tasks of a bucket or a plan.
func (s *Service) ListTasks(ctx context.Context, f TaskFilter) ([]graph.Task, error) {
	var (
		tasks []graph.Task
		err   error
	)
	if f.Bucket != "" {
		b, rerr := s.ResolveBucket(ctx, f.Plan, f.Bucket)
		if rerr != nil {
			return nil, rerr
		}
		tasks, err = s.api.BucketTasks(ctx, b.ID)
	} else {
		plan, rerr := s.ResolvePlan(ctx, f.Plan)
		if rerr != nil {
			return nil, rerr
		}
		tasks, err = s.api.PlanTasks(ctx, plan.ID)
	}
	if err != nil {
		return nil, err
	}
	if f.Incomplete {
		tasks = incomplete(tasks)
	}
	return tasks, nil
}

// ResolveTask resolves a task title within a plan, or a task ID.
func (s *Service) ResolveTask(ctx context.Context, planRaw, taskRaw string) (graph.Task, error) {
	return s.tasks.ResolveIn(ctx, taskRaw, s.planScope(planRaw))
}

// ResolveTaskInBucket resolves a task title within a bucket, or a task ID.
func (s *Service) ResolveTaskInBucket(ctx context.Context, planRaw, bucketRaw, taskRaw string) (graph.Task, error) {
	return s.bucketTasks.ResolveIn(ctx, taskRaw, func(ctx context.Context) (string, error) {
		b, err := s.ResolveBucket(ctx, planRaw, bucketRaw)
		if err != nil {
			return "", err
		}
		return b.ID, nil
	})
}

// TaskView is a task with its details and decoded labels.
type TaskView struct {
	graph.Task
	Description string    `json:"description"`
	Labels      []string  `json:"labels"`
	Subtasks    []Subtask `json:"subtasks"`
}

// GetTask fetches a task and its details.
func (s *Service) GetTask(ctx context.Context, planRaw, taskRaw string) (*TaskView, error) {
	ref, err := s.ResolveTask(ctx, planRaw, taskRaw)
	if err != nil {
		return nil, err
	}
	task, err := s.api.Task(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	details, err := s.api.TaskDetails(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	return &TaskView{
		Task:        *task,
		Description: details.Description,
		Labels:      labels.Names(labels.FromCategories(task.AppliedCategories)),
		Subtasks:    sortedSubtasks(details.Checklist),
	}, nil
}

// NewTask describes a task to create.
type NewTask struct {
	Plan        string
	Bucket      string
	Title       string
	Description string
	// Due is a calendar date (YYYY-MM-DD), an offset such as +3d, or a
	// phrase like "next monday".
	Due       string
	Assignees string
	Labels    string
}

// CreatedTask reports the IDs of a new task.
type CreatedTask struct {
	TaskID   string `json:"taskId"`
	PlanID   string `json:"planId"`
	BucketID string `json:"bucketId"`
}

// CreateTask validates and resolves everything up front, then creates the
// task. The description lives on the details resource and is written after.
func (s *Service) CreateTask(ctx context.Context, in NewTask) (*CreatedTask, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, invalidInput("Task title cannot be empty")
	}
	ls, err := labels.Parse(in.Labels)
	if err != nil {
		return nil, invalidInput("%v", err)
	}
	due, err := s.parseDue(in.Due)
	if err != nil {
		return nil, err
	}

	plan, err := s.ResolvePlan(ctx, in.Plan)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Bucket) == "" {
		return nil, invalidInput("A bucket is required to create a task")
	}
	bucket, err := s.buckets.Resolve(ctx, in.Bucket, plan.ID)
	if err != nil {
		return nil, err
	}
	assignees, err := s.users.ResolveBatch(ctx, in.Assignees)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"planId":   plan.ID,
		"bucketId": bucket.ID,
		"title":    title,
	}
	if due != "" {
		body["dueDateTime"] = due
	}
	if len(ls) > 0 {
		body["appliedCategories"] = labels.Categories(ls)
	}
	if len(assignees) > 0 {
		body["assignments"] = assignmentsFor(assignees)
	}

	task, err := s.api.CreateTask(ctx, body)
	if err != nil {
		return nil, err
	}
	if in.Description != "" {
		if _, err := s.mut.Patch(ctx, graph.TaskDetailsPath(task.ID), map[string]any{"description": in.Description}); err != nil {
			return nil, err
		}
	}
	return &CreatedTask{TaskID: task.ID, PlanID: plan.ID, BucketID: bucket.ID}, nil
}

// parseDue turns a due expression into the 17:00 UTC timestamp Planner
// shows as that calendar day.
func (s *Service) parseDue(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	day, err := timeparsing.ParseDay(raw, s.now().UTC())
	if err != nil {
		return "", invalidInput("Invalid due date '%s': expected YYYY-MM-DD, +3d or a day like 'tomorrow'", raw)
	}
	return day.Format(timeparsing.DateLayout) + "T17:00:00Z", nil
}

func assignmentsFor(userIDs []string) map[string]any {
	out := make(map[string]any, len(userIDs))
	for _, id := range userIDs {
		out[id] = map[string]any{"@odata.type": assignmentType, "orderHint": " !"}
	}
	return out
}

// TaskUpdate lists the fields to change; nil fields stay as they are.
type TaskUpdate struct {
	Title       *string
	Description *string
	// Labels replaces the label set; an empty string clears it.
	Labels *string
}

// UpdateResult reports which fields were written.
type UpdateResult struct {
	TaskID  string   `json:"taskId"`
	Updated []string `json:"updated"`
}

// UpdateTask changes a task. Task fields and the description are separate
// resources with separate ETags, so they are two independent mutations.
func (s *Service) UpdateTask(ctx context.Context, planRaw, taskRaw string, u TaskUpdate) (*UpdateResult, error) {
	if u.Title == nil && u.Description == nil && u.Labels == nil {
		return nil, invalidInput("Nothing to update: pass a title, description or labels")
	}
	var want []labels.Label
	if u.Labels != nil {
		var err error
		if want, err = labels.Parse(*u.Labels); err != nil {
			return nil, invalidInput("%v", err)
		}
	}
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return nil, invalidInput("Task title cannot be empty")
	}

	ref, err := s.ResolveTask(ctx, planRaw, taskRaw)
	if err != nil {
		return nil, err
	}
	res := &UpdateResult{TaskID: ref.ID, Updated: []string{}}

	if u.Title != nil || u.Labels != nil {
		_, err := s.mut.Update(ctx, graph.TaskPath(ref.ID), func(cur *graph.Response) (any, error) {
			var current graph.Task
			if err := cur.Decode(&current); err != nil {
				return nil, err
			}
			patch := map[string]any{}
			if u.Title != nil {
				patch["title"] = strings.TrimSpace(*u.Title)
			}
			if u.Labels != nil {
				if diff := labels.Diff(current.AppliedCategories, want); diff != nil {
					patch["appliedCategories"] = diff
				}
			}
			if len(patch) == 0 {
				return nil, nil
			}
			return patch, nil
		})
		if err != nil {
			return nil, err
		}
		if u.Title != nil {
			res.Updated = append(res.Updated, "title")
		}
		if u.Labels != nil {
			res.Updated = append(res.Updated, "labels")
		}
	}

	if u.Description != nil {
		if _, err := s.mut.Patch(ctx, graph.TaskDetailsPath(ref.ID), map[string]any{"description": *u.Description}); err != nil {
			return nil, err
		}
		res.Updated = append(res.Updated, "description")
	}
	return res, nil
}

// TaskResult is the reply of single-task writes.
type TaskResult struct {
	OK       bool   `json:"ok"`
	TaskID   string `json:"taskId"`
	BucketID string `json:"bucketId,omitempty"`
}

// CompleteTask sets a task to 100 percent.
func (s *Service) CompleteTask(ctx context.Context, planRaw, taskRaw string) (*TaskResult, error) {
	ref, err := s.ResolveTask(ctx, planRaw, taskRaw)
	if err != nil {
		return nil, err
	}
	if _, err := s.mut.Patch(ctx, graph.TaskPath(ref.ID), map[string]any{"percentComplete": 100}); err != nil {
		return nil, err
	}
	return &TaskResult{OK: true, TaskID: ref.ID}, nil
}

// MoveTask moves a task into another bucket of the same plan.
func (s *Service) MoveTask(ctx context.Context, planRaw, taskRaw, bucketRaw string) (*TaskResult, error) {
	ref, err := s.ResolveTask(ctx, planRaw, taskRaw)
	if err != nil {
		return nil, err
	}
	bucket, err := s.buckets.ResolveIn(ctx, bucketRaw, func(ctx context.Context) (string, error) {
		if planRaw != "" {
			return s.planScope(planRaw)(ctx)
		}
		task, err := s.api.Task(ctx, ref.ID)
		if err != nil {
			return "", err
		}
		return task.PlanID, nil
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.mut.Patch(ctx, graph.TaskPath(ref.ID), map[string]any{"bucketId": bucket.ID}); err != nil {
		return nil, err
	}
	return &TaskResult{OK: true, TaskID: ref.ID, BucketID: bucket.ID}, nil
}

// DeleteTask deletes a task.
func (s *Service) DeleteTask(ctx context.Context, planRaw, taskRaw string) (*TaskResult, error) {
	ref, err := s.ResolveTask(ctx, planRaw, taskRaw)
	if err != nil {
		return nil, err
	}
	if err := s.mut.Delete(ctx, graph.TaskPath(ref.ID)); err != nil {
		return nil, err
	}
	return &TaskResult{OK: true, TaskID: ref.ID}, nil
}

// SetLabels replaces a task's labels with csv ("" clears them).
func (s *Service) SetLabels(ctx context.Context, planRaw, taskRaw, csv string) (*UpdateResult, error) {
	return s.UpdateTask(ctx, planRaw, taskRaw, TaskUpdate{Labels: &csv})
}

// AssignResult reports an assignment change.
type AssignResult struct {
	TaskID   string   `json:"taskId"`
	Assigned []string `json:"assigned"`
}

// AssignTask adds assignees to a task, keeping existing ones. All
// identifiers are resolved before anything is written.
func (s *Service) AssignTask(ctx context.Context, planRaw, taskRaw, csv string) (*AssignResult, error) {
	userIDs, err := s.users.ResolveBatch(ctx, csv)
	if err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return nil, invalidInput("No assignees given")
	}
	ref, err := s.ResolveTask(ctx, planRaw, taskRaw)
	if err != nil {
		return nil, err
	}

	_, err = s.mut.Update(ctx, graph.TaskPath(ref.ID), func(cur *graph.Response) (any, error) {
		var current graph.Task
		if err := cur.Decode(&current); err != nil {
			return nil, err
		}
		var missing []string
		for _, id := range userIDs {
			if _, ok := current.Assignments[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) == 0 {
			return nil, nil
		}
		return map[string]any{"assignments": assignmentsFor(missing)}, nil
	})
	if err != nil {
		return nil, err
	}
	return &AssignResult{TaskID: ref.ID, Assigned: userIDs}, nil
}
