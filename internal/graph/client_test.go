package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	client := NewClient("https://graph.example.com/v1.0/", WithToken("test-token"))

	if client.BaseURL() != "https://graph.example.com/v1.0" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", client.BaseURL())
	}
	if client.httpClient == nil {
		t.Error("httpClient is nil")
	}
	if client.httpClient.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", client.httpClient.Timeout, DefaultTimeout)
	}

	if got := NewClient("").BaseURL(); got != DefaultBaseURL {
		t.Errorf("empty base URL = %q, want %q", got, DefaultBaseURL)
	}
}

func TestClientGetSetsHeadersAndETag(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-token" {
			t.Errorf("Authorization = %q, want %q", auth, "Bearer test-token")
		}
		if r.URL.Path != "/planner/tasks/t1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"t1","title":"Write docs","@odata.etag":"W/\"body-etag\""}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, WithToken("test-token"))
	resp, err := client.Get(context.Background(), "/planner/tasks/t1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if resp.ETag != `W/"body-etag"` {
		t.Errorf("ETag = %q, want body etag", resp.ETag)
	}

	var task Task
	if err := resp.Decode(&task); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if task.Title != "Write docs" {
		t.Errorf("Title = %q", task.Title)
	}
}

func TestClientETagFallsBackToHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `W/"header-etag"`)
		_, _ = w.Write([]byte(`{"id":"b1"}`))
	}))
	defer server.Close()

	resp, err := NewClient(server.URL).Get(context.Background(), "/planner/buckets/b1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if resp.ETag != `W/"header-etag"` {
		t.Errorf("ETag = %q, want header etag", resp.ETag)
	}
}

func TestClientPatchSendsIfMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.Header.Get("If-Match"); got != `W/"v1"` {
			t.Errorf("If-Match = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["title"] != "Renamed" {
			t.Errorf("body title = %v", body["title"])
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	resp, err := client.Patch(context.Background(), "/planner/tasks/t1", map[string]any{"title": "Renamed"}, `W/"v1"`)
	if err != nil {
		t.Fatalf("Patch failed: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent || resp.Body != nil {
		t.Errorf("204 reply should have no body, got %d %q", resp.StatusCode, resp.Body)
	}
}

func TestClientPreconditionFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPreconditionFailed)
		_, _ = w.Write([]byte(`{"error":{"code":"PreconditionFailed","message":"The etag does not match"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	err := client.Delete(context.Background(), "/planner/tasks/t1", `W/"stale"`)
	if !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Code != "PreconditionFailed" || apiErr.StatusCode != http.StatusPreconditionFailed {
		t.Errorf("unexpected APIError: %+v", apiErr)
	}
}

func TestClientNotFoundIsPermanent(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Get(context.Background(), "/planner/tasks/missing")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestClientRetriesOnceOnRateLimit(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"id":"p1","title":"Roadmap"}`))
	}))
	defer server.Close()

	var throttled []time.Duration
	client := NewClient(server.URL, WithThrottleHook(func(_ context.Context, _, _ string, d time.Duration) {
		throttled = append(throttled, d)
	}))

	plan, err := client.Plan(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if plan.Title != "Roadmap" {
		t.Errorf("Title = %q", plan.Title)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if len(throttled) != 1 || throttled[0] != 0 {
		t.Errorf("throttle hook calls = %v, want one with zero wait", throttled)
	}
}

func TestClientRateLimitRetryResendsBody(t *testing.T) {
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if len(bodies) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"b9","name":"Later"}`))
	}))
	defer server.Close()

	b, err := NewClient(server.URL).CreateBucket(context.Background(), "p1", "Later", " !")
	if err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}
	if b.ID != "b9" {
		t.Errorf("ID = %q", b.ID)
	}
	if len(bodies) != 2 || bodies[0] != bodies[1] || bodies[0] == "" {
		t.Errorf("retry must resend the same body, got %q", bodies)
	}
}

func TestClientRateLimitGivesUpAfterOneRetry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Get(context.Background(), "/me/planner/plans")
	if !IsThrottled(err) {
		t.Fatalf("expected throttled error, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestClientListFollowsNextLink(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "":
			fmt.Fprintf(w, `{"value":[{"id":"b1","name":"To do"}],"@odata.nextLink":"%s/planner/plans/p1/buckets?page=2"}`, server.URL)
		case "2":
			_, _ = w.Write([]byte(`{"value":[{"id":"b2","name":"Done"}]}`))
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	}))
	defer server.Close()

	buckets, err := NewClient(server.URL).PlanBuckets(context.Background(), "p1")
	if err != nil {
		t.Fatalf("PlanBuckets failed: %v", err)
	}
	if len(buckets) != 2 || buckets[0].Name != "To do" || buckets[1].Name != "Done" {
		t.Errorf("buckets = %+v", buckets)
	}
}

func TestSearchUsersEscapesQuotes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter := r.URL.Query().Get("$filter")
		if filter != "startswith(displayName,'O''Brien')" {
			t.Errorf("$filter = %q", filter)
		}
		if sel := r.URL.Query().Get("$select"); !strings.Contains(sel, "userPrincipalName") {
			t.Errorf("$select = %q", sel)
		}
		_, _ = w.Write([]byte(`{"value":[{"id":"u1","displayName":"O'Brien, Pat","mail":"pat@contoso.com"}]}`))
	}))
	defer server.Close()

	users, err := NewClient(server.URL).SearchUsers(context.Background(), "O'Brien")
	if err != nil {
		t.Fatalf("SearchUsers failed: %v", err)
	}
	if len(users) != 1 || users[0].Email() != "pat@contoso.com" {
		t.Errorf("users = %+v", users)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", DefaultRetryAfter},
		{"5", 5 * time.Second},
		{"0", 0},
		{"soon", DefaultRetryAfter},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestUserEmailFallsBackToUPN(t *testing.T) {
	u := User{DisplayName: "Iman", UserPrincipalName: "iman@contoso.onmicrosoft.com"}
	if u.Email() != "iman@contoso.onmicrosoft.com" {
		t.Errorf("Email() = %q", u.Email())
	}
}
