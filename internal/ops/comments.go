package ops

import (
	"context"
	"strings"
	"time"

	"github.com/steveyegge/planner/internal/graph"
)

// Author identifies who wrote a comment.
type Author struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Comment is one post of a task's conversation thread.
type Comment struct {
	ID              string     `json:"id"`
	Author          Author     `json:"author"`
	Content         string     `json:"content"`
	CreatedDateTime *time.Time `json:"createdDateTime,omitempty"`
}

// CommentResult reports an added comment.
type CommentResult struct {
	OK       bool   `json:"ok"`
	TaskID   string `json:"taskId"`
	ThreadID string `json:"threadId"`
	// NewThread is set when the task had no thread and one was started.
	NewThread bool `json:"newThread"`
}

// ListComments returns the posts of a task's conversation thread. A task
// without a thread, or whose thread is gone, has no comments.
func (s *Service) ListComments(ctx context.Context, planRaw, taskRaw string) ([]Comment, error) {
	ref, err := s.ResolveTask(ctx, planRaw, taskRaw)
	if err != nil {
		return nil, err
	}
	task, err := s.api.Task(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	comments := []Comment{}
	if task.ConversationThreadID == "" {
		return comments, nil
	}
	group, err := s.planOwner(ctx, task.PlanID)
	if err != nil {
		return nil, err
	}

	posts, err := s.api.ThreadPosts(ctx, group, task.ConversationThreadID)
	if graph.IsNotFound(err) {
		return comments, nil
	}
	if err != nil {
		return nil, err
	}
	for _, p := range posts {
		c := Comment{ID: p.ID, Content: p.Body.Content, CreatedDateTime: p.CreatedDateTime}
		if p.From != nil {
			c.Author = Author{Name: p.From.EmailAddress.Name, Email: p.From.EmailAddress.Address}
		}
		comments = append(comments, c)
	}
	return comments, nil
}

// AddComment replies to the task's thread, starting one (and linking it to
// the task) when there is none.
func (s *Service) AddComment(ctx context.Context, planRaw, taskRaw, text string) (*CommentResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, invalidInput("Comment cannot be empty")
	}
	ref, err := s.ResolveTask(ctx, planRaw, taskRaw)
	if err != nil {
		return nil, err
	}
	task, err := s.api.Task(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	group, err := s.planOwner(ctx, task.PlanID)
	if err != nil {
		return nil, err
	}

	if task.ConversationThreadID != "" {
		if err := s.api.ReplyToThread(ctx, group, task.ConversationThreadID, text); err != nil {
			return nil, err
		}
		return &CommentResult{OK: true, TaskID: task.ID, ThreadID: task.ConversationThreadID}, nil
	}

	thread, err := s.api.CreateThread(ctx, group, task.Title, text)
	if err != nil {
		return nil, err
	}
	_, err = s.mut.Update(ctx, graph.TaskPath(task.ID), func(cur *graph.Response) (any, error) {
		var current graph.Task
		if err := cur.Decode(&current); err != nil {
			return nil, err
		}
		if current.ConversationThreadID != "" {
			return nil, nil
		}
		return map[string]any{"conversationThreadId": thread.ID}, nil
	})
	if err != nil {
		return nil, err
	}
	return &CommentResult{OK: true, TaskID: task.ID, ThreadID: thread.ID, NewThread: true}, nil
}
