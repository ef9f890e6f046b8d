package graph

import "time"

// Plan is a Planner plan owned by a Microsoft 365 group.
type Plan struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Owner string `json:"owner,omitempty"`
	// GroupName is filled in from the owning group; Graph does not return it.
	GroupName       string     `json:"groupName,omitempty"`
	CreatedDateTime *time.Time `json:"createdDateTime,omitempty"`
}

// Bucket is a column inside a plan.
type Bucket struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	PlanID    string `json:"planId,omitempty"`
	OrderHint string `json:"orderHint,omitempty"`
	ETag      string `json:"@odata.etag,omitempty"`
}

// Assignment is the value side of a task's assignments map.
type Assignment struct {
	ODataType        string     `json:"@odata.type,omitempty"`
	OrderHint        string     `json:"orderHint,omitempty"`
	AssignedDateTime *time.Time `json:"assignedDateTime,omitempty"`
}

// Task is a Planner task.
type Task struct {
	ID                   string                `json:"id"`
	Title                string                `json:"title"`
	PlanID               string                `json:"planId,omitempty"`
	BucketID             string                `json:"bucketId,omitempty"`
	PercentComplete      int                   `json:"percentComplete"`
	Priority             *int                  `json:"priority,omitempty"`
	DueDateTime          *time.Time            `json:"dueDateTime,omitempty"`
	CreatedDateTime      *time.Time            `json:"createdDateTime,omitempty"`
	CompletedDateTime    *time.Time            `json:"completedDateTime,omitempty"`
	ConversationThreadID string                `json:"conversationThreadId,omitempty"`
	Assignments          map[string]Assignment `json:"assignments,omitempty"`
	AppliedCategories    map[string]bool       `json:"appliedCategories,omitempty"`
	ETag                 string                `json:"@odata.etag,omitempty"`
}

// Completed reports whether the task is at 100 percent.
func (t Task) Completed() bool {
	return t.PercentComplete >= 100
}

// ChecklistItem is one entry in a task's checklist (a subtask).
type ChecklistItem struct {
	ODataType string `json:"@odata.type,omitempty"`
	Title     string `json:"title"`
	IsChecked bool   `json:"isChecked"`
	OrderHint string `json:"orderHint,omitempty"`
}

// TaskDetails carries the description and checklist of a task.
type TaskDetails struct {
	ID          string                   `json:"id"`
	Description string                   `json:"description"`
	Checklist   map[string]ChecklistItem `json:"checklist,omitempty"`
	ETag        string                   `json:"@odata.etag,omitempty"`
}

// User is a directory user.
type User struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail,omitempty"`
	UserPrincipalName string `json:"userPrincipalName,omitempty"`
}

// Email returns the mail address, falling back to the UPN.
func (u User) Email() string {
	if u.Mail != "" {
		return u.Mail
	}
	return u.UserPrincipalName
}

// Group is the Microsoft 365 group that owns a plan.
type Group struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// ItemBody is the body of a conversation post.
type ItemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// EmailAddress identifies a post author.
type EmailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
}

// Recipient wraps an EmailAddress.
type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

// Post is a message in a group conversation thread (a task comment).
type Post struct {
	ID                   string     `json:"id"`
	Body                 ItemBody   `json:"body"`
	From                 *Recipient `json:"from,omitempty"`
	CreatedDateTime      *time.Time `json:"createdDateTime,omitempty"`
	LastModifiedDateTime *time.Time `json:"lastModifiedDateTime,omitempty"`
}

// ConversationThread is a group thread; tasks link to one for comments.
type ConversationThread struct {
	ID    string `json:"id"`
	Topic string `json:"topic,omitempty"`
	Posts []Post `json:"posts,omitempty"`
}
