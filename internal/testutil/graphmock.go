// Package testutil provides an in-memory Microsoft Graph Planner fake for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
)

// RecordedRequest stores information about a request made to the mock server.
type RecordedRequest struct {
	Method  string
	Path    string
	Query   string
	Headers http.Header
	Body    []byte
}

// MockResponse is a scripted reply served before the fake's own handling.
type MockResponse struct {
	StatusCode int
	Body       interface{}
	Headers    map[string]string
}

// GraphMock is an httptest server that behaves like the Planner endpoints:
// entities carry ETags, writes require If-Match, PATCH merges open-type
// maps per key, and collections are filtered from the stored entities.
type GraphMock struct {
	Server *httptest.Server
	mu     sync.Mutex

	requests []RecordedRequest

	// scripted replies keyed by "METHOD /path"
	scripted map[string][]MockResponse
	// pending conflicts keyed by path: the next writes fail with 412
	conflicts map[string]int

	entities map[string]map[string]any
	versions map[string]int
	order    []string
	users    []map[string]any
	nextID   int
}

// NewGraphMock starts a fake and registers its shutdown with t.
func NewGraphMock(t testing.TB) *GraphMock {
	m := &GraphMock{
		scripted:  map[string][]MockResponse{},
		conflicts: map[string]int{},
		entities:  map[string]map[string]any{},
		versions:  map[string]int{},
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handleRequest))
	if t != nil {
		t.Cleanup(m.Close)
	}
	return m
}

// URL returns the mock server URL.
func (m *GraphMock) URL() string {
	return m.Server.URL
}

// Close shuts down the mock server.
func (m *GraphMock) Close() {
	m.Server.Close()
}

// NewID returns a fresh opaque ID shaped like Planner's.
func (m *GraphMock) NewID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.newIDLocked()
}

func (m *GraphMock) newIDLocked() string {
	m.nextID++
	return fmt.Sprintf("mockid%022d", m.nextID)
}

// --- seeding ---

// AddGroup stores a group.
func (m *GraphMock) AddGroup(id, name string) {
	m.Put("/groups/"+id, map[string]any{"id": id, "displayName": name})
}

// AddPlan stores a plan and returns its ID.
func (m *GraphMock) AddPlan(title, ownerGroup string) string {
	id := m.NewID()
	m.Put("/planner/plans/"+id, map[string]any{"id": id, "title": title, "owner": ownerGroup})
	return id
}

// AddBucket stores a bucket and returns its ID.
func (m *GraphMock) AddBucket(planID, name string) string {
	id := m.NewID()
	m.Put("/planner/buckets/"+id, map[string]any{"id": id, "name": name, "planId": planID, "orderHint": " !"})
	return id
}

// AddTask stores a task (with empty details) and returns its ID. Extra
// fields are merged into the task body.
func (m *GraphMock) AddTask(planID, bucketID, title string, extra map[string]any) string {
	id := m.NewID()
	task := map[string]any{
		"id":              id,
		"title":           title,
		"planId":          planID,
		"bucketId":        bucketID,
		"percentComplete": 0,
	}
	for k, v := range extra {
		task[k] = v
	}
	m.Put("/planner/tasks/"+id, task)
	m.Put("/planner/tasks/"+id+"/details", map[string]any{"id": id, "description": "", "checklist": map[string]any{}})
	return id
}

// AddUser stores a directory user.
func (m *GraphMock) AddUser(id, displayName, mail, upn string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, map[string]any{
		"id": id, "displayName": displayName, "mail": mail, "userPrincipalName": upn,
	})
}

// AddThread stores a conversation thread with the given post bodies.
func (m *GraphMock) AddThread(groupID, threadID string, posts ...string) {
	items := make([]any, 0, len(posts))
	for i, p := range posts {
		items = append(items, map[string]any{
			"id":   fmt.Sprintf("%s-post%d", threadID, i+1),
			"body": map[string]any{"contentType": "text", "content": p},
		})
	}
	m.Put("/groups/"+groupID+"/threads/"+threadID, map[string]any{"id": threadID, "posts": items})
}

// --- scripting ---

// Script queues replies for "METHOD /path"; they are served in order before
// the fake handles the request itself.
func (m *GraphMock) Script(method, path string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := method + " " + path
	m.scripted[key] = append(m.scripted[key], responses...)
}

// Conflict makes the next n writes to path fail with 412, as if another
// client had changed the entity in between. Each one bumps the version.
func (m *GraphMock) Conflict(path string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts[path] += n
}

// --- inspection ---

// Entity returns a copy of the stored entity at path, or nil.
func (m *GraphMock) Entity(path string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[path]
	if !ok {
		return nil
	}
	return cloneMap(e)
}

// ETag returns the current ETag of the entity at path.
func (m *GraphMock) ETag(path string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.etagLocked(path)
}

// Requests returns all recorded requests.
func (m *GraphMock) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Count returns how many requests matched method and path.
func (m *GraphMock) Count(method, path string) int {
	n := 0
	for _, r := range m.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// ClearRequests clears all recorded requests.
func (m *GraphMock) ClearRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// --- handler ---

var (
	planCollection   = regexp.MustCompile(`^/planner/plans/([^/]+)/(buckets|tasks)$`)
	bucketTasks      = regexp.MustCompile(`^/planner/buckets/([^/]+)/tasks$`)
	threadPosts      = regexp.MustCompile(`^/groups/([^/]+)/threads/([^/]+)/posts$`)
	threadReply      = regexp.MustCompile(`^/groups/([^/]+)/threads/([^/]+)/reply$`)
	groupThreads     = regexp.MustCompile(`^/groups/([^/]+)/threads$`)
	userByLogin      = regexp.MustCompile(`^/users/([^/]+)$`)
	startswithFilter = regexp.MustCompile(`^startswith\(displayName,'(.*)'\)$`)
)

func (m *GraphMock) handleRequest(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	_ = r.Body.Close()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, RecordedRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.RawQuery,
		Headers: r.Header.Clone(),
		Body:    body,
	})

	key := r.Method + " " + r.URL.Path
	if queue := m.scripted[key]; len(queue) > 0 {
		resp := queue[0]
		m.scripted[key] = queue[1:]
		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		writeJSON(w, resp.StatusCode, resp.Body)
		return
	}

	switch r.Method {
	case http.MethodGet:
		m.handleGet(w, r)
	case http.MethodPost:
		m.handlePost(w, r, body)
	case http.MethodPatch:
		m.handlePatch(w, r, body)
	case http.MethodDelete:
		m.handleDelete(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", r.Method)
	}
}

func (m *GraphMock) handleGet(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/me/planner/plans":
		m.writeCollection(w, func(p string, e map[string]any) bool {
			return isEntity(p, "/planner/plans/")
		})
		return
	case planCollection.MatchString(path):
		sub := planCollection.FindStringSubmatch(path)
		prefix := "/planner/" + sub[2] + "/"
		m.writeCollection(w, func(p string, e map[string]any) bool {
			return isEntity(p, prefix) && e["planId"] == sub[1]
		})
		return
	case bucketTasks.MatchString(path):
		bucketID := bucketTasks.FindStringSubmatch(path)[1]
		m.writeCollection(w, func(p string, e map[string]any) bool {
			return isEntity(p, "/planner/tasks/") && e["bucketId"] == bucketID
		})
		return
	case threadPosts.MatchString(path):
		sub := threadPosts.FindStringSubmatch(path)
		thread, ok := m.entities["/groups/"+sub[1]+"/threads/"+sub[2]]
		if !ok {
			writeError(w, http.StatusNotFound, "ErrorItemNotFound", "thread not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"value": thread["posts"]})
		return
	case path == "/users":
		m.searchUsers(w, r)
		return
	case userByLogin.MatchString(path):
		login := strings.ToLower(userByLogin.FindStringSubmatch(path)[1])
		for _, u := range m.users {
			for _, f := range []string{"id", "mail", "userPrincipalName"} {
				if v, _ := u[f].(string); v != "" && strings.ToLower(v) == login {
					writeJSON(w, http.StatusOK, u)
					return
				}
			}
		}
		writeError(w, http.StatusNotFound, "Request_ResourceNotFound", "user not found")
		return
	}

	e, ok := m.entities[path]
	if !ok {
		writeError(w, http.StatusNotFound, "NotFound", "resource not found")
		return
	}
	m.writeEntity(w, http.StatusOK, path, e)
}

func (m *GraphMock) searchUsers(w http.ResponseWriter, r *http.Request) {
	sub := startswithFilter.FindStringSubmatch(r.URL.Query().Get("$filter"))
	if sub == nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "unsupported filter")
		return
	}
	prefix := strings.ToLower(strings.ReplaceAll(sub[1], "''", "'"))
	matches := []any{}
	for _, u := range m.users {
		if name, _ := u["displayName"].(string); strings.HasPrefix(strings.ToLower(name), prefix) {
			matches = append(matches, u)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"value": matches})
}

func (m *GraphMock) handlePost(w http.ResponseWriter, r *http.Request, body []byte) {
	var in map[string]any
	if err := json.Unmarshal(body, &in); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "invalid JSON")
		return
	}
	path := r.URL.Path

	switch {
	case path == "/planner/tasks":
		id := m.newIDLocked()
		in["id"] = id
		if _, ok := in["percentComplete"]; !ok {
			in["percentComplete"] = 0
		}
		m.putLocked("/planner/tasks/"+id, in)
		m.putLocked("/planner/tasks/"+id+"/details", map[string]any{"id": id, "description": "", "checklist": map[string]any{}})
		m.writeEntity(w, http.StatusCreated, "/planner/tasks/"+id, in)
	case path == "/planner/buckets":
		id := m.newIDLocked()
		in["id"] = id
		m.putLocked("/planner/buckets/"+id, in)
		m.writeEntity(w, http.StatusCreated, "/planner/buckets/"+id, in)
	case groupThreads.MatchString(path):
		groupID := groupThreads.FindStringSubmatch(path)[1]
		id := m.newIDLocked()
		posts, _ := in["posts"].([]any)
		for i, p := range posts {
			if pm, ok := p.(map[string]any); ok {
				pm["id"] = fmt.Sprintf("%s-post%d", id, i+1)
			}
		}
		thread := map[string]any{"id": id, "topic": in["topic"], "posts": posts}
		m.putLocked("/groups/"+groupID+"/threads/"+id, thread)
		writeJSON(w, http.StatusCreated, thread)
	case threadReply.MatchString(path):
		sub := threadReply.FindStringSubmatch(path)
		threadPath := "/groups/" + sub[1] + "/threads/" + sub[2]
		thread, ok := m.entities[threadPath]
		if !ok {
			writeError(w, http.StatusNotFound, "ErrorItemNotFound", "thread not found")
			return
		}
		post, _ := in["post"].(map[string]any)
		if post == nil {
			writeError(w, http.StatusBadRequest, "BadRequest", "missing post")
			return
		}
		posts, _ := thread["posts"].([]any)
		post["id"] = fmt.Sprintf("%s-post%d", sub[2], len(posts)+1)
		thread["posts"] = append(posts, post)
		w.WriteHeader(http.StatusAccepted)
	default:
		writeError(w, http.StatusNotFound, "NotFound", "no such collection")
	}
}

func (m *GraphMock) handlePatch(w http.ResponseWriter, r *http.Request, body []byte) {
	path := r.URL.Path
	e, ok := m.entities[path]
	if !ok {
		writeError(w, http.StatusNotFound, "NotFound", "resource not found")
		return
	}
	if !m.checkIfMatch(w, r, path) {
		return
	}

	var patch map[string]any
	if err := json.Unmarshal(body, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "invalid JSON")
		return
	}
	for k, v := range patch {
		if nested, ok := v.(map[string]any); ok {
			cur, _ := e[k].(map[string]any)
			e[k] = mergeOpenType(cur, nested)
			continue
		}
		e[k] = v
	}
	m.versions[path]++

	if r.Header.Get("Prefer") == "return=representation" {
		m.writeEntity(w, http.StatusOK, path, e)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *GraphMock) handleDelete(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if _, ok := m.entities[path]; !ok {
		writeError(w, http.StatusNotFound, "NotFound", "resource not found")
		return
	}
	if !m.checkIfMatch(w, r, path) {
		return
	}
	m.removeLocked(path)
	m.removeLocked(path + "/details")
	w.WriteHeader(http.StatusNoContent)
}

func (m *GraphMock) checkIfMatch(w http.ResponseWriter, r *http.Request, path string) bool {
	if m.conflicts[path] > 0 {
		m.conflicts[path]--
		m.versions[path]++
		writeError(w, http.StatusPreconditionFailed, "PreconditionFailed", "The entity has been modified")
		return false
	}
	if got := r.Header.Get("If-Match"); got != m.etagLocked(path) {
		writeError(w, http.StatusPreconditionFailed, "PreconditionFailed", "If-Match "+got+" does not match")
		return false
	}
	return true
}

// mergeOpenType merges per key; a null value removes the key.
func mergeOpenType(cur, patch map[string]any) map[string]any {
	out := cloneMap(cur)
	if out == nil {
		out = map[string]any{}
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			if existing, ok := out[k].(map[string]any); ok {
				out[k] = mergeOpenType(existing, nested)
				continue
			}
		}
		out[k] = v
	}
	return out
}

func (m *GraphMock) writeCollection(w http.ResponseWriter, keep func(path string, e map[string]any) bool) {
	items := []any{}
	for _, p := range m.order {
		e, ok := m.entities[p]
		if ok && keep(p, e) {
			item := cloneMap(e)
			item["@odata.etag"] = m.etagLocked(p)
			items = append(items, item)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"value": items})
}

func (m *GraphMock) writeEntity(w http.ResponseWriter, status int, path string, e map[string]any) {
	out := cloneMap(e)
	out["@odata.etag"] = m.etagLocked(path)
	writeJSON(w, status, out)
}

// Put stores (or replaces) the entity at path and bumps its version.
func (m *GraphMock) Put(path string, e map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(path, e)
}

func (m *GraphMock) putLocked(path string, e map[string]any) {
	if _, exists := m.entities[path]; !exists {
		m.order = append(m.order, path)
	}
	m.entities[path] = e
	m.versions[path]++
}

func (m *GraphMock) removeLocked(path string) {
	delete(m.entities, path)
}

func (m *GraphMock) etagLocked(path string) string {
	return fmt.Sprintf(`W/"v%d"`, m.versions[path])
}

// isEntity reports whether path is a direct child of prefix.
func isEntity(path, prefix string) bool {
	rest, ok := strings.CutPrefix(path, prefix)
	return ok && rest != "" && !strings.Contains(rest, "/")
}

// Helper functions

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	raw, _ := json.Marshal(in)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	if status == 0 {
		status = http.StatusOK
	}
	if v == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"code": code, "message": msg}})
}
