package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/planner/internal/config"
	"github.com/steveyegge/planner/internal/graph"
	"github.com/steveyegge/planner/internal/testutil"
)

type cliEnv struct {
	mock       *testutil.GraphMock
	configPath string
	planID     string
	todoID     string
	doneID     string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	m := testutil.NewGraphMock(t)
	m.AddGroup("g1", "Engineering")
	planID := m.AddPlan("Roadmap", "g1")
	todo := m.AddBucket(planID, "To Do")
	done := m.AddBucket(planID, "Done")
	m.AddUser("u-iman", "Iman Ali", "iman@contoso.com", "")
	m.AddUser("u-john-1", "John Smith", "john.smith@contoso.com", "")
	m.AddUser("u-john-2", "John Doe", "john.doe@contoso.com", "")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("PLANNER_CONFIG_PATH", configPath)
	t.Setenv("PLANNER_ACCESS_TOKEN", "cli-token")
	t.Setenv("PLANNER_GRAPH_URL", m.URL())
	for _, key := range []string{"PLANNER_DEFAULT_PLAN", "PLANNER_DEFAULT_BUCKET", "PLANNER_OTEL_ENABLED"} {
		t.Setenv(key, "")
	}
	t.Cleanup(config.ResetForTesting)

	return &cliEnv{mock: m, configPath: configPath, planID: planID, todoID: todo, doneID: done}
}

// runCLI runs one invocation and returns its exit code and stdout.
func runCLI(t *testing.T, args ...string) (int, []byte) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(context.Background(), args, &out, &errOut)
	return code, out.Bytes()
}

func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal(data, &v), "output: %s", data)
	return v
}

func TestListPlans(t *testing.T) {
	newCLIEnv(t)

	code, out := runCLI(t, "list-plans")
	require.Equal(t, 0, code, "%s", out)

	var plans []map[string]any
	require.NoError(t, json.Unmarshal(out, &plans))
	require.Len(t, plans, 1)
	assert.Equal(t, "Roadmap", plans[0]["title"])
	assert.Equal(t, "Engineering", plans[0]["groupName"])
}

func TestAddUsesConfiguredDefaults(t *testing.T) {
	env := newCLIEnv(t)

	code, out := runCLI(t, "set-defaults", "--plan", "Roadmap", "--bucket", "To Do")
	require.Equal(t, 0, code, "%s", out)
	assert.Equal(t, "Defaults saved", decode(t, out)["message"])

	code, out = runCLI(t, "add", "--title", "Ship v2", "--due", "2026-11-02", "--assignee", "iman@contoso.com", "--labels", "Label2")
	require.Equal(t, 0, code, "%s", out)

	res := decode(t, out)
	assert.Equal(t, env.planID, res["planId"])
	assert.Equal(t, env.todoID, res["bucketId"])
	task := env.mock.Entity(graph.TaskPath(res["taskId"].(string)))
	assert.Equal(t, "Ship v2", task["title"])
	assert.Equal(t, map[string]any{"category2": true}, task["appliedCategories"])
}

func TestAmbiguousTaskIsStructured(t *testing.T) {
	env := newCLIEnv(t)
	env.mock.AddTask(env.planID, env.todoID, "Fix Bug", nil)
	env.mock.AddTask(env.planID, env.doneID, "fix bug", nil)

	code, out := runCLI(t, "complete-task", "Fix Bug", "--plan", "Roadmap")
	assert.Equal(t, exitError, code)

	res := decode(t, out)
	assert.Equal(t, "Ambiguous", res["code"])
	assert.Len(t, res["candidates"], 2)
}

func TestBatchAssigneeFailure(t *testing.T) {
	env := newCLIEnv(t)

	code, out := runCLI(t, "add", "--title", "x", "--plan", "Roadmap", "--bucket", "To Do", "--assignee", "John,Iman,Sarah")
	assert.Equal(t, exitError, code)

	res := decode(t, out)
	assert.Equal(t, "BatchUserResolutionError", res["code"])
	assert.EqualValues(t, 1, res["resolvedCount"])
	assert.EqualValues(t, 1, res["notFoundCount"])
	assert.EqualValues(t, 1, res["ambiguousCount"])
	assert.Zero(t, env.mock.Count(http.MethodPost, "/planner/tasks"))
}

func TestMissingPlan(t *testing.T) {
	newCLIEnv(t)

	code, out := runCLI(t, "list-buckets")
	assert.Equal(t, exitError, code)
	assert.Equal(t, "MissingPlan", decode(t, out)["code"])
}

func TestBucketMoveTasksAndAlias(t *testing.T) {
	env := newCLIEnv(t)
	a := env.mock.AddTask(env.planID, env.todoID, "a", nil)
	b := env.mock.AddTask(env.planID, env.todoID, "b", nil)

	code, out := runCLI(t, "bucket", "move-tasks", "--plan", "Roadmap", "--from", "To Do", "--to", "Done")
	require.Equal(t, 0, code, "%s", out)
	res := decode(t, out)
	assert.EqualValues(t, 2, res["succeededCount"])
	assert.Equal(t, env.doneID, env.mock.Entity(graph.TaskPath(a))["bucketId"])
	assert.Equal(t, env.doneID, env.mock.Entity(graph.TaskPath(b))["bucketId"])

	code, out = runCLI(t, "move-bucket-tasks", "--plan", "Roadmap", "--from", "Done", "--to", "To Do")
	require.Equal(t, 0, code, "%s", out)
	assert.Equal(t, env.todoID, env.mock.Entity(graph.TaskPath(a))["bucketId"])
}

func TestSubtaskCommands(t *testing.T) {
	env := newCLIEnv(t)
	id := env.mock.AddTask(env.planID, env.todoID, "Write docs", nil)

	code, out := runCLI(t, "subtask", "add", "Write docs", "--plan", "Roadmap", "--title", "Outline")
	require.Equal(t, 0, code, "%s", out)

	code, out = runCLI(t, "subtask", "complete", id, "--title", "outline")
	require.Equal(t, 0, code, "%s", out)

	code, out = runCLI(t, "subtask", "list", id)
	require.Equal(t, 0, code, "%s", out)
	var items []map[string]any
	require.NoError(t, json.Unmarshal(out, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "Outline", items[0]["title"])
	assert.Equal(t, true, items[0]["isChecked"])

	code, out = runCLI(t, "subtask", "complete", id, "--title", "Publish")
	assert.Equal(t, exitError, code)
	assert.Equal(t, "SubtaskNotFound", decode(t, out)["code"])
}

func TestUserResolve(t *testing.T) {
	newCLIEnv(t)

	code, out := runCLI(t, "user", "resolve", "iman@contoso.com, John Smith")
	require.Equal(t, 0, code, "%s", out)
	assert.Equal(t, []any{"u-iman", "u-john-1"}, decode(t, out)["userIds"])
}

func TestConfigShow(t *testing.T) {
	env := newCLIEnv(t)
	require.NoError(t, os.WriteFile(env.configPath, []byte("tenant_id: contoso\n"), 0o600))

	code, out := runCLI(t, "config", "show")
	require.Equal(t, 0, code, "%s", out)
	res := decode(t, out)
	assert.Equal(t, env.configPath, res["path"])
	assert.Equal(t, "contoso", res["config"].(map[string]any)["tenantId"])
}

func TestErrorPayload(t *testing.T) {
	generic := errorPayload(errors.New("boom"))
	assert.Equal(t, genericError{Code: "Error", Message: "boom"}, generic)

	conflict := errorPayload(fmt.Errorf("giving up after 2 attempts: %w", &graph.APIError{StatusCode: http.StatusPreconditionFailed}))
	assert.Equal(t, "Conflict", conflict.(genericError).Code)
}

func TestUnknownFlagExitsWithError(t *testing.T) {
	newCLIEnv(t)

	code, out := runCLI(t, "list-plans", "--bogus")
	assert.Equal(t, exitError, code)
	assert.Equal(t, "Error", decode(t, out)["code"])
}
