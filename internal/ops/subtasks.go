package ops

import (
	"context"
	"sort"
	"strings"

	"github.com/steveyegge/planner/internal/graph"
	"github.com/steveyegge/planner/internal/resolver"
)

const checklistItemType = "#microsoft.graph.plannerChecklistItem"

// Subtask is one checklist item of a task.
type Subtask struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	IsChecked bool   `json:"isChecked"`
	OrderHint string `json:"orderHint,omitempty"`
}

// SubtaskResult is the reply of subtask writes.
type SubtaskResult struct {
	OK        bool   `json:"ok"`
	TaskID    string `json:"taskId"`
	SubtaskID string `json:"subtaskId"`
}

func decodeDetails(cur *graph.Response) (*graph.TaskDetails, error) {
	var d graph.TaskDetails
	if err := cur.Decode(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// nextOrderHint places a new item after the greatest existing hint.
func nextOrderHint(checklist map[string]graph.ChecklistItem) string {
	greatest := ""
	for _, item := range checklist {
		if item.OrderHint > greatest {
			greatest = item.OrderHint
		}
	}
	if greatest == "" {
		return " !"
	}
	return greatest + " !"
}

// AddSubtask appends a checklist item. The item key is chosen once; each
// attempt writes only that key, so other items are never rewritten and a
// retried attempt that finds the key already present writes nothing.
func (s *Service) AddSubtask(ctx context.Context, planRaw, taskRaw, title string) (*SubtaskResult, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, invalidInput("Subtask title cannot be empty")
	}
	ref, err := s.ResolveTask(ctx, planRaw, taskRaw)
	if err != nil {
		return nil, err
	}

	key := s.newKey()
	_, err = s.mut.Update(ctx, graph.TaskDetailsPath(ref.ID), func(cur *graph.Response) (any, error) {
		details, err := decodeDetails(cur)
		if err != nil {
			return nil, err
		}
		if _, exists := details.Checklist[key]; exists {
			return nil, nil
		}
		return map[string]any{
			"checklist": map[string]any{
				key: map[string]any{
					"@odata.type": checklistItemType,
					"title":       title,
					"isChecked":   false,
					"orderHint":   nextOrderHint(details.Checklist),
				},
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &SubtaskResult{OK: true, TaskID: ref.ID, SubtaskID: key}, nil
}

// ListSubtasks returns a task's checklist in board order.
func (s *Service) ListSubtasks(ctx context.Context, planRaw, taskRaw string) ([]Subtask, error) {
	ref, err := s.ResolveTask(ctx, planRaw, taskRaw)
	if err != nil {
		return nil, err
	}
	details, err := s.api.TaskDetails(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	return sortedSubtasks(details.Checklist), nil
}

func sortedSubtasks(checklist map[string]graph.ChecklistItem) []Subtask {
	out := make([]Subtask, 0, len(checklist))
	for id, item := range checklist {
		out = append(out, Subtask{ID: id, Title: item.Title, IsChecked: item.IsChecked, OrderHint: item.OrderHint})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderHint != out[j].OrderHint {
			return out[i].OrderHint < out[j].OrderHint
		}
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CompleteSubtask checks the first checklist item whose title matches,
// ignoring case. The lookup is repeated on every attempt.
func (s *Service) CompleteSubtask(ctx context.Context, planRaw, taskRaw, title string) (*SubtaskResult, error) {
	ref, err := s.ResolveTask(ctx, planRaw, taskRaw)
	if err != nil {
		return nil, err
	}

	var found string
	_, err = s.mut.Update(ctx, graph.TaskDetailsPath(ref.ID), func(cur *graph.Response) (any, error) {
		details, err := decodeDetails(cur)
		if err != nil {
			return nil, err
		}
		found = ""
		for _, st := range sortedSubtasks(details.Checklist) {
			if strings.EqualFold(st.Title, strings.TrimSpace(title)) {
				found = st.ID
				break
			}
		}
		if found == "" {
			return nil, resolver.SubtaskNotFound(title)
		}
		if details.Checklist[found].IsChecked {
			return nil, nil
		}
		return map[string]any{
			"checklist": map[string]any{
				found: map[string]any{
					"@odata.type": checklistItemType,
					"isChecked":   true,
				},
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &SubtaskResult{OK: true, TaskID: ref.ID, SubtaskID: found}, nil
}
