package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/planner/internal/graph"
	"github.com/steveyegge/planner/internal/resolver"
	"github.com/steveyegge/planner/internal/testutil"
)

const (
	imanID  = "6f1c2a9e-3b7d-4e2f-9a1c-5d8e7f6a4b3c"
	groupID = "3d0c9e7a-1b2c-4d5e-8f90-a1b2c3d4e5f6"
)

type fixture struct {
	mock   *testutil.GraphMock
	svc    *Service
	planID string
	todoID string
	doneID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := testutil.NewGraphMock(t)
	m.AddGroup(groupID, "Engineering")
	planID := m.AddPlan("Roadmap", groupID)
	todo := m.AddBucket(planID, "To Do")
	done := m.AddBucket(planID, "Done")
	m.AddUser(imanID, "Iman Ali", "iman@contoso.com", "iman@contoso.onmicrosoft.com")
	m.AddUser("u-john-1", "John Smith", "john.smith@contoso.com", "")
	m.AddUser("u-john-2", "John Doe", "", "jdoe@contoso.onmicrosoft.com")

	return &fixture{
		mock:   m,
		svc:    NewService(graph.NewClient(m.URL(), graph.WithToken("test-token"))),
		planID: planID,
		todoID: todo,
		doneID: done,
	}
}

func lastBody(t *testing.T, m *testutil.GraphMock, method, path string) map[string]any {
	t.Helper()
	reqs := m.Requests()
	for i := len(reqs) - 1; i >= 0; i-- {
		if reqs[i].Method == method && reqs[i].Path == path {
			var body map[string]any
			require.NoError(t, json.Unmarshal(reqs[i].Body, &body))
			return body
		}
	}
	t.Fatalf("no %s %s request recorded", method, path)
	return nil
}

func TestListPlansIncludesGroupName(t *testing.T) {
	f := newFixture(t)

	plans, err := f.svc.ListPlans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "Roadmap", plans[0].Title)
	assert.Equal(t, "Engineering", plans[0].GroupName)
}

func TestResolvePlanRequiresInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ResolvePlan(context.Background(), " ")

	var inErr *InputError
	require.ErrorAs(t, err, &inErr)
	assert.Equal(t, CodeMissingPlan, inErr.Code)
	assert.Empty(t, f.mock.Requests())
}

func TestCreateTaskResolvesEverything(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.CreateTask(context.Background(), NewTask{
		Plan:        "roadmap",
		Bucket:      "to do",
		Title:       "Ship v2",
		Description: "Cut the release branch",
		Due:         "2026-11-02",
		Assignees:   "iman@contoso.com",
		Labels:      "Label1,Label3",
	})
	require.NoError(t, err)
	assert.Equal(t, f.planID, created.PlanID)
	assert.Equal(t, f.todoID, created.BucketID)

	task := f.mock.Entity(graph.TaskPath(created.TaskID))
	require.NotNil(t, task)
	assert.Equal(t, "Ship v2", task["title"])
	assert.Equal(t, "2026-11-02T17:00:00Z", task["dueDateTime"])
	assert.Equal(t, map[string]any{"category1": true, "category3": true}, task["appliedCategories"])
	assignments := task["assignments"].(map[string]any)
	assert.Contains(t, assignments, imanID)

	details := f.mock.Entity(graph.TaskDetailsPath(created.TaskID))
	assert.Equal(t, "Cut the release branch", details["description"])
}

func TestCreateTaskBatchFailureWritesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateTask(context.Background(), NewTask{
		Plan:      f.planID,
		Bucket:    f.todoID,
		Title:     "Ship v2",
		Assignees: "John,Iman,Sarah",
	})

	var berr *resolver.BatchError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, []string{"Sarah"}, berr.NotFound)
	assert.Contains(t, berr.Ambiguous, "John")
	assert.Equal(t, []resolver.ResolvedUser{{Input: "Iman", UserID: imanID}}, berr.Resolved)
	assert.Zero(t, f.mock.Count(http.MethodPost, "/planner/tasks"))
}

func TestCreateTaskRejectsBadInputBeforeNetwork(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateTask(context.Background(), NewTask{Plan: "Roadmap", Bucket: "To Do", Title: "x", Due: "soonish"})
	var inErr *InputError
	require.ErrorAs(t, err, &inErr)
	assert.Equal(t, CodeInvalidInput, inErr.Code)

	_, err = f.svc.CreateTask(context.Background(), NewTask{Plan: "Roadmap", Bucket: "To Do", Title: "x", Labels: "Urgent"})
	require.ErrorAs(t, err, &inErr)

	assert.Empty(t, f.mock.Requests())
}

func TestCreateTaskRelativeDue(t *testing.T) {
	f := newFixture(t)
	f.svc.now = func() time.Time { return time.Date(2026, 10, 30, 23, 0, 0, 0, time.UTC) }

	created, err := f.svc.CreateTask(context.Background(), NewTask{Plan: "Roadmap", Bucket: "To Do", Title: "x", Due: "+3d"})
	require.NoError(t, err)
	assert.Equal(t, "2026-11-02T17:00:00Z", f.mock.Entity(graph.TaskPath(created.TaskID))["dueDateTime"])
}

func TestResolveTaskFixBugAmbiguous(t *testing.T) {
	f := newFixture(t)
	f.mock.AddTask(f.planID, f.todoID, "Fix Bug", nil)
	f.mock.AddTask(f.planID, f.doneID, "fix bug", nil)

	_, err := f.svc.CompleteTask(context.Background(), "Roadmap", "Fix Bug")

	var rerr *resolver.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, resolver.CodeAmbiguous, rerr.Code)
	assert.Len(t, rerr.Candidates, 2)
	for _, r := range f.mock.Requests() {
		assert.Equal(t, http.MethodGet, r.Method, "nothing written")
	}
}

func TestCompleteTaskRetriesConflictOnce(t *testing.T) {
	f := newFixture(t)
	id := f.mock.AddTask(f.planID, f.todoID, "Write docs", nil)
	path := graph.TaskPath(id)
	f.mock.Conflict(path, 1)

	res, err := f.svc.CompleteTask(context.Background(), "Roadmap", "write docs")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.EqualValues(t, 100, f.mock.Entity(path)["percentComplete"])
	assert.Equal(t, 2, f.mock.Count(http.MethodGet, path))
	assert.Equal(t, 2, f.mock.Count(http.MethodPatch, path))
}

func TestCompleteTaskGivesUpAfterSecondConflict(t *testing.T) {
	f := newFixture(t)
	id := f.mock.AddTask(f.planID, f.todoID, "Write docs", nil)
	path := graph.TaskPath(id)
	f.mock.Conflict(path, 2)

	_, err := f.svc.CompleteTask(context.Background(), f.planID, id)
	require.Error(t, err)
	assert.True(t, graph.IsConflict(err))
	assert.Equal(t, 2, f.mock.Count(http.MethodPatch, path))
	assert.EqualValues(t, 0, f.mock.Entity(path)["percentComplete"])
}

func TestCanonicalTaskIDSkipsPlanLookup(t *testing.T) {
	f := newFixture(t)
	id := f.mock.AddTask(f.planID, f.todoID, "Write docs", nil)

	_, err := f.svc.DeleteTask(context.Background(), "", id)
	require.NoError(t, err)
	assert.Nil(t, f.mock.Entity(graph.TaskPath(id)))
	assert.Zero(t, f.mock.Count(http.MethodGet, "/me/planner/plans"))
}

func TestUpdateTaskLabelsAndDescription(t *testing.T) {
	f := newFixture(t)
	id := f.mock.AddTask(f.planID, f.todoID, "Write docs", map[string]any{
		"appliedCategories": map[string]any{"category1": true, "category2": true},
	})
	title, desc, ls := "Write the docs", "All public APIs", "Label2,Label3"

	res, err := f.svc.UpdateTask(context.Background(), "Roadmap", id, TaskUpdate{Title: &title, Description: &desc, Labels: &ls})
	require.NoError(t, err)
	assert.Equal(t, []string{"title", "labels", "description"}, res.Updated)

	body := lastBody(t, f.mock, http.MethodPatch, graph.TaskPath(id))
	assert.Equal(t, map[string]any{"category1": false, "category3": true}, body["appliedCategories"])

	view, err := f.svc.GetTask(context.Background(), "Roadmap", id)
	require.NoError(t, err)
	assert.Equal(t, "Write the docs", view.Title)
	assert.Equal(t, "All public APIs", view.Description)
	assert.Equal(t, []string{"Label2", "Label3"}, view.Labels)
}

func TestUpdateTaskNeedsAField(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateTask(context.Background(), "Roadmap", "Write docs", TaskUpdate{})
	var inErr *InputError
	assert.ErrorAs(t, err, &inErr)
}

func TestMoveTaskByBucketName(t *testing.T) {
	f := newFixture(t)
	id := f.mock.AddTask(f.planID, f.todoID, "Write docs", nil)

	res, err := f.svc.MoveTask(context.Background(), "", id, "DONE")
	require.NoError(t, err)
	assert.Equal(t, f.doneID, res.BucketID)
	assert.Equal(t, f.doneID, f.mock.Entity(graph.TaskPath(id))["bucketId"])
}

func TestAssignTaskKeepsExistingAssignees(t *testing.T) {
	f := newFixture(t)
	id := f.mock.AddTask(f.planID, f.todoID, "Write docs", map[string]any{
		"assignments": map[string]any{"u-john-1": map[string]any{"orderHint": " !"}},
	})

	_, err := f.svc.AssignTask(context.Background(), "Roadmap", id, "iman@contoso.com")
	require.NoError(t, err)

	assignments := f.mock.Entity(graph.TaskPath(id))["assignments"].(map[string]any)
	assert.Contains(t, assignments, "u-john-1")
	assert.Contains(t, assignments, imanID)

	f.mock.ClearRequests()
	_, err = f.svc.AssignTask(context.Background(), "Roadmap", id, imanID)
	require.NoError(t, err)
	assert.Zero(t, f.mock.Count(http.MethodPatch, graph.TaskPath(id)), "already assigned")
}

func TestAddSubtaskWritesOnlyTheNewKey(t *testing.T) {
	f := newFixture(t)
	id := f.mock.AddTask(f.planID, f.todoID, "Write docs", nil)
	details := graph.TaskDetailsPath(id)
	f.mock.Put(details, map[string]any{
		"id":          id,
		"description": "",
		"checklist": map[string]any{
			"a": map[string]any{"title": "Outline", "isChecked": true, "orderHint": " !"},
			"b": map[string]any{"title": "Draft", "isChecked": false, "orderHint": "8585 !"},
		},
	})
	f.svc.newKey = func() string { return "new-key" }

	res, err := f.svc.AddSubtask(context.Background(), "Roadmap", id, "Review")
	require.NoError(t, err)
	assert.Equal(t, "new-key", res.SubtaskID)

	body := lastBody(t, f.mock, http.MethodPatch, details)
	checklist := body["checklist"].(map[string]any)
	require.Len(t, checklist, 1)
	item := checklist["new-key"].(map[string]any)
	assert.Equal(t, "#microsoft.graph.plannerChecklistItem", item["@odata.type"])
	assert.Equal(t, "8585 ! !", item["orderHint"])

	subtasks, err := f.svc.ListSubtasks(context.Background(), "Roadmap", id)
	require.NoError(t, err)
	require.Len(t, subtasks, 3)
	assert.Equal(t, []string{"Outline", "Draft", "Review"}, []string{subtasks[0].Title, subtasks[1].Title, subtasks[2].Title})
}

func TestAddSubtaskFirstItemAndConflict(t *testing.T) {
	f := newFixture(t)
	id := f.mock.AddTask(f.planID, f.todoID, "Write docs", nil)
	details := graph.TaskDetailsPath(id)
	f.mock.Conflict(details, 1)

	res, err := f.svc.AddSubtask(context.Background(), "Roadmap", id, "Outline")
	require.NoError(t, err)
	assert.Equal(t, 2, f.mock.Count(http.MethodPatch, details))

	checklist := f.mock.Entity(details)["checklist"].(map[string]any)
	require.Len(t, checklist, 1)
	item := checklist[res.SubtaskID].(map[string]any)
	assert.Equal(t, " !", item["orderHint"])
}

func TestCompleteSubtask(t *testing.T) {
	f := newFixture(t)
	id := f.mock.AddTask(f.planID, f.todoID, "Write docs", nil)
	details := graph.TaskDetailsPath(id)
	f.mock.Put(details, map[string]any{
		"id": id,
		"checklist": map[string]any{
			"a": map[string]any{"title": "Outline", "isChecked": false, "orderHint": " !"},
		},
	})

	res, err := f.svc.CompleteSubtask(context.Background(), "Roadmap", id, "OUTLINE")
	require.NoError(t, err)
	assert.Equal(t, "a", res.SubtaskID)

	body := lastBody(t, f.mock, http.MethodPatch, details)
	assert.Equal(t, map[string]any{
		"a": map[string]any{"@odata.type": "#microsoft.graph.plannerChecklistItem", "isChecked": true},
	}, body["checklist"])
	item := f.mock.Entity(details)["checklist"].(map[string]any)["a"].(map[string]any)
	assert.Equal(t, "Outline", item["title"])
	assert.Equal(t, true, item["isChecked"])

	_, err = f.svc.CompleteSubtask(context.Background(), "Roadmap", id, "Publish")
	assert.True(t, resolver.IsCode(err, resolver.CodeSubtaskNotFound))
}

func TestMoveBucketTasksPartialFailure(t *testing.T) {
	f := newFixture(t)
	var ids []string
	for _, title := range []string{"one", "two", "three", "four", "five"} {
		ids = append(ids, f.mock.AddTask(f.planID, f.todoID, title, nil))
	}
	f.mock.Conflict(graph.TaskPath(ids[1]), 2)
	f.mock.Conflict(graph.TaskPath(ids[3]), 2)

	out, err := f.svc.MoveBucketTasks(context.Background(), "Roadmap", "To Do", "Done")
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, 3, out.SucceededCount)
	assert.Equal(t, 2, out.FailedCount)
	assert.Equal(t, []string{ids[0], ids[2], ids[4]}, out.SucceededIDs)
	require.Len(t, out.Failures, 2)
	assert.Equal(t, ids[1], out.Failures[0].ItemID)
	assert.Equal(t, ids[3], out.Failures[1].ItemID)

	assert.Equal(t, f.doneID, f.mock.Entity(graph.TaskPath(ids[0]))["bucketId"])
	assert.Equal(t, f.todoID, f.mock.Entity(graph.TaskPath(ids[1]))["bucketId"])
}

func TestCompleteBucketTasksSkipsFinished(t *testing.T) {
	f := newFixture(t)
	open := f.mock.AddTask(f.planID, f.todoID, "open", nil)
	f.mock.AddTask(f.planID, f.todoID, "finished", map[string]any{"percentComplete": 100})

	out, err := f.svc.CompleteBucketTasks(context.Background(), "Roadmap", "To Do")
	require.NoError(t, err)
	assert.Equal(t, []string{open}, out.SucceededIDs)
}

func TestRenameAndDeleteBucket(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.RenameBucket(context.Background(), "Roadmap", "to do", "Backlog")
	require.NoError(t, err)
	assert.Equal(t, "To Do", res.OldName)
	assert.Equal(t, "Backlog", res.NewName)
	assert.Equal(t, "Backlog", f.mock.Entity(graph.BucketPath(f.todoID))["name"])

	id, err := f.svc.DeleteBucket(context.Background(), "Roadmap", "Backlog")
	require.NoError(t, err)
	assert.Equal(t, f.todoID, id)
	assert.Nil(t, f.mock.Entity(graph.BucketPath(f.todoID)))
}

func TestCreateBucket(t *testing.T) {
	f := newFixture(t)

	b, err := f.svc.CreateBucket(context.Background(), "Roadmap", "Review")
	require.NoError(t, err)
	assert.Equal(t, "Review", b.Name)

	body := lastBody(t, f.mock, http.MethodPost, "/planner/buckets")
	assert.Equal(t, " !", body["orderHint"])
	assert.Equal(t, f.planID, body["planId"])
}

func TestListTasksIncompleteInBucket(t *testing.T) {
	f := newFixture(t)
	open := f.mock.AddTask(f.planID, f.todoID, "open", nil)
	f.mock.AddTask(f.planID, f.todoID, "finished", map[string]any{"percentComplete": 100})
	f.mock.AddTask(f.planID, f.doneID, "elsewhere", nil)

	tasks, err := f.svc.ListTasks(context.Background(), TaskFilter{Plan: "Roadmap", Bucket: "To Do", Incomplete: true})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, open, tasks[0].ID)

	all, err := f.svc.ListTasks(context.Background(), TaskFilter{Plan: "Roadmap"})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestListComments(t *testing.T) {
	f := newFixture(t)
	withThread := f.mock.AddTask(f.planID, f.todoID, "Discussed", map[string]any{"conversationThreadId": "thread-1"})
	without := f.mock.AddTask(f.planID, f.todoID, "Quiet", nil)
	f.mock.AddThread(groupID, "thread-1", "First!", "Looks good")

	comments, err := f.svc.ListComments(context.Background(), "Roadmap", withThread)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "Looks good", comments[1].Content)

	none, err := f.svc.ListComments(context.Background(), "Roadmap", without)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListCommentsMissingThreadIsEmpty(t *testing.T) {
	f := newFixture(t)
	id := f.mock.AddTask(f.planID, f.todoID, "Orphan", map[string]any{"conversationThreadId": "gone"})

	comments, err := f.svc.ListComments(context.Background(), "Roadmap", id)
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestAddCommentStartsThread(t *testing.T) {
	f := newFixture(t)
	id := f.mock.AddTask(f.planID, f.todoID, "Quiet", nil)

	res, err := f.svc.AddComment(context.Background(), "Roadmap", id, "Kicking this off")
	require.NoError(t, err)
	assert.True(t, res.NewThread)
	assert.Equal(t, res.ThreadID, f.mock.Entity(graph.TaskPath(id))["conversationThreadId"])

	again, err := f.svc.AddComment(context.Background(), "Roadmap", id, "Follow-up")
	require.NoError(t, err)
	assert.False(t, again.NewThread)

	comments, err := f.svc.ListComments(context.Background(), "Roadmap", id)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "Follow-up", comments[1].Content)
}

func TestAddCommentRejectsEmpty(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AddComment(context.Background(), "Roadmap", "anything", "  ")
	var inErr *InputError
	assert.True(t, errors.As(err, &inErr))
}

func TestSearchAndResolveUsers(t *testing.T) {
	f := newFixture(t)

	users, err := f.svc.SearchUsers(context.Background(), "john")
	require.NoError(t, err)
	assert.Len(t, users, 2)

	id, err := f.svc.ResolveUser(context.Background(), "Iman")
	require.NoError(t, err)
	assert.Equal(t, imanID, id)

	ids, err := f.svc.ResolveUsers(context.Background(), "iman@contoso.com, John Smith")
	require.NoError(t, err)
	assert.Equal(t, []string{imanID, "u-john-1"}, ids)
}
