package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// PlanPath returns the resource path of a plan.
func PlanPath(planID string) string { return "/planner/plans/" + url.PathEscape(planID) }

// BucketPath returns the resource path of a bucket.
func BucketPath(bucketID string) string { return "/planner/buckets/" + url.PathEscape(bucketID) }

// TaskPath returns the resource path of a task.
func TaskPath(taskID string) string { return "/planner/tasks/" + url.PathEscape(taskID) }

// TaskDetailsPath returns the resource path of a task's details.
func TaskDetailsPath(taskID string) string { return TaskPath(taskID) + "/details" }

func decodeAll[T any](raws []json.RawMessage, kind string) ([]T, error) {
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", kind, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *Client) getInto(ctx context.Context, path string, v any) (*Response, error) {
	resp, err := c.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	return resp, resp.Decode(v)
}

// MyPlans lists the plans the signed-in user is a member of.
func (c *Client) MyPlans(ctx context.Context) ([]Plan, error) {
	raws, err := c.List(ctx, "/me/planner/plans")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch plans: %w", err)
	}
	return decodeAll[Plan](raws, "plan")
}

// Plan fetches one plan.
func (c *Client) Plan(ctx context.Context, planID string) (*Plan, error) {
	var p Plan
	if _, err := c.getInto(ctx, PlanPath(planID), &p); err != nil {
		return nil, fmt.Errorf("failed to fetch plan %s: %w", planID, err)
	}
	return &p, nil
}

// Group fetches the group that owns a plan.
func (c *Client) Group(ctx context.Context, groupID string) (*Group, error) {
	var g Group
	if _, err := c.getInto(ctx, "/groups/"+url.PathEscape(groupID), &g); err != nil {
		return nil, fmt.Errorf("failed to fetch group %s: %w", groupID, err)
	}
	return &g, nil
}

// PlanBuckets lists the buckets of a plan.
func (c *Client) PlanBuckets(ctx context.Context, planID string) ([]Bucket, error) {
	raws, err := c.List(ctx, PlanPath(planID)+"/buckets")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch buckets: %w", err)
	}
	return decodeAll[Bucket](raws, "bucket")
}

// Bucket fetches one bucket.
func (c *Client) Bucket(ctx context.Context, bucketID string) (*Bucket, error) {
	var b Bucket
	resp, err := c.getInto(ctx, BucketPath(bucketID), &b)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bucket %s: %w", bucketID, err)
	}
	b.ETag = resp.ETag
	return &b, nil
}

// CreateBucket adds a bucket to a plan.
func (c *Client) CreateBucket(ctx context.Context, planID, name, orderHint string) (*Bucket, error) {
	body := map[string]any{"name": name, "planId": planID, "orderHint": orderHint}
	var b Bucket
	if err := c.Post(ctx, "/planner/buckets", body, &b); err != nil {
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	return &b, nil
}

// PlanTasks lists every task of a plan.
func (c *Client) PlanTasks(ctx context.Context, planID string) ([]Task, error) {
	raws, err := c.List(ctx, PlanPath(planID)+"/tasks")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tasks: %w", err)
	}
	return decodeAll[Task](raws, "task")
}

// BucketTasks lists every task of a bucket.
func (c *Client) BucketTasks(ctx context.Context, bucketID string) ([]Task, error) {
	raws, err := c.List(ctx, BucketPath(bucketID)+"/tasks")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tasks: %w", err)
	}
	return decodeAll[Task](raws, "task")
}

// Task fetches one task together with its ETag.
func (c *Client) Task(ctx context.Context, taskID string) (*Task, error) {
	var t Task
	resp, err := c.getInto(ctx, TaskPath(taskID), &t)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch task %s: %w", taskID, err)
	}
	t.ETag = resp.ETag
	return &t, nil
}

// TaskDetails fetches a task's description and checklist.
func (c *Client) TaskDetails(ctx context.Context, taskID string) (*TaskDetails, error) {
	var d TaskDetails
	resp, err := c.getInto(ctx, TaskDetailsPath(taskID), &d)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch task details %s: %w", taskID, err)
	}
	d.ETag = resp.ETag
	return &d, nil
}

// CreateTask creates a task from a raw Graph payload.
func (c *Client) CreateTask(ctx context.Context, body map[string]any) (*Task, error) {
	var t Task
	if err := c.Post(ctx, "/planner/tasks", body, &t); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return &t, nil
}

// User looks a user up by object ID or user principal name.
func (c *Client) User(ctx context.Context, login string) (*User, error) {
	var u User
	if _, err := c.getInto(ctx, "/users/"+url.PathEscape(login), &u); err != nil {
		return nil, fmt.Errorf("failed to fetch user %s: %w", login, err)
	}
	return &u, nil
}

// SearchUsers returns users whose display name starts with prefix.
func (c *Client) SearchUsers(ctx context.Context, prefix string) ([]User, error) {
	q := url.Values{}
	q.Set("$filter", fmt.Sprintf("startswith(displayName,'%s')", strings.ReplaceAll(prefix, "'", "''")))
	q.Set("$select", "id,displayName,userPrincipalName,mail")
	raws, err := c.List(ctx, "/users?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	return decodeAll[User](raws, "user")
}

func threadPath(groupID, threadID string) string {
	return "/groups/" + url.PathEscape(groupID) + "/threads/" + url.PathEscape(threadID)
}

// ThreadPosts lists the posts of a group conversation thread.
func (c *Client) ThreadPosts(ctx context.Context, groupID, threadID string) ([]Post, error) {
	raws, err := c.List(ctx, threadPath(groupID, threadID)+"/posts")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch comments: %w", err)
	}
	return decodeAll[Post](raws, "post")
}

// ReplyToThread appends a post to an existing thread.
func (c *Client) ReplyToThread(ctx context.Context, groupID, threadID, content string) error {
	body := map[string]any{
		"post": map[string]any{
			"body": ItemBody{ContentType: "text", Content: content},
		},
	}
	if err := c.Post(ctx, threadPath(groupID, threadID)+"/reply", body, nil); err != nil {
		return fmt.Errorf("failed to add comment: %w", err)
	}
	return nil
}

// CreateThread starts a new group thread whose first post is content.
func (c *Client) CreateThread(ctx context.Context, groupID, topic, content string) (*ConversationThread, error) {
	body := map[string]any{
		"topic": topic,
		"posts": []map[string]any{
			{"body": ItemBody{ContentType: "text", Content: content}},
		},
	}
	var th ConversationThread
	if err := c.Post(ctx, "/groups/"+url.PathEscape(groupID)+"/threads", body, &th); err != nil {
		return nil, fmt.Errorf("failed to create comment thread: %w", err)
	}
	return &th, nil
}
