// Package graph is a thin client for the Microsoft Graph Planner endpoints.
//
// Every request is retried once when Graph answers 429, waiting for the
// Retry-After interval. Writes carry the caller's ETag in If-Match; a 412
// surfaces as ErrPreconditionFailed and is never retried here.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"

	"github.com/steveyegge/planner/internal/debug"
)

const (
	DefaultBaseURL    = "https://graph.microsoft.com/v1.0"
	DefaultTimeout    = 30 * time.Second
	DefaultRetryAfter = 2 * time.Second

	// MaxRateLimitRetries is the number of extra attempts after a 429.
	MaxRateLimitRetries = 1
)

// Client talks to one Graph endpoint on behalf of one signed-in user.
type Client struct {
	baseURL    string
	tokens     oauth2.TokenSource
	httpClient *http.Client
	onThrottle func(ctx context.Context, method, path string, wait time.Duration)
}

// Option configures a Client.
type Option func(*Client)

// WithTokenSource sets the source of bearer tokens.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithToken sets a fixed bearer token.
func WithToken(token string) Option {
	return func(c *Client) {
		c.tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithThrottleHook registers a callback invoked before a 429 retry.
func WithThrottleHook(fn func(ctx context.Context, method, path string, wait time.Duration)) Option {
	return func(c *Client) { c.onThrottle = fn }
}

// NewClient creates a Graph client rooted at baseURL (DefaultBaseURL when empty).
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the root URL requests are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Response is a decoded 2xx reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       json.RawMessage
	// ETag is the entity version: the @odata.etag body field, or the ETag header.
	ETag string
}

// Decode unmarshals the body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// Get fetches a single resource.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.request(ctx, http.MethodGet, path, nil, "")
}

// Post creates a resource and decodes the reply into out (if non-nil).
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	resp, err := c.request(ctx, http.MethodPost, path, body, "")
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// Patch updates a resource guarded by etag and returns the reply. Graph
// sends the updated representation when asked; a bare 204 has a nil Body.
func (c *Client) Patch(ctx context.Context, path string, body any, etag string) (*Response, error) {
	return c.request(ctx, http.MethodPatch, path, body, etag)
}

// Delete removes a resource guarded by etag.
func (c *Client) Delete(ctx context.Context, path string, etag string) error {
	_, err := c.request(ctx, http.MethodDelete, path, nil, etag)
	return err
}

type collectionPage struct {
	Value    []json.RawMessage `json:"value"`
	NextLink string            `json:"@odata.nextLink"`
}

// List fetches every item of a collection, following @odata.nextLink.
func (c *Client) List(ctx context.Context, path string) ([]json.RawMessage, error) {
	var all []json.RawMessage
	next := path
	for next != "" {
		resp, err := c.Get(ctx, next)
		if err != nil {
			return nil, err
		}
		var page collectionPage
		if err := resp.Decode(&page); err != nil {
			return nil, err
		}
		all = append(all, page.Value...)
		next = page.NextLink
	}
	if all == nil {
		all = []json.RawMessage{}
	}
	return all, nil
}

// retryAfterBackOff waits exactly as long as the last 429 asked for.
type retryAfterBackOff struct {
	wait time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration { return b.wait }
func (b *retryAfterBackOff) Reset()                     {}

// request sends one logical request, retrying once on 429.
func (c *Client) request(ctx context.Context, method, path string, body any, etag string) (*Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	wait := &retryAfterBackOff{wait: DefaultRetryAfter}
	var result *Response
	attempt := 0

	op := func() error {
		attempt++
		resp, err := c.send(ctx, method, path, payload, etag)
		if err != nil {
			return backoff.Permanent(err)
		}
		debug.Logf("graph: %s %s -> %d (attempt %d)\n", method, path, resp.StatusCode, attempt)

		if resp.StatusCode == http.StatusTooManyRequests {
			wait.wait = parseRetryAfter(resp.Header.Get("Retry-After"))
			return newAPIError(method, path, resp.StatusCode, resp.Body)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(newAPIError(method, path, resp.StatusCode, resp.Body))
		}
		result = resp
		return nil
	}

	notify := func(err error, d time.Duration) {
		debug.Logf("graph: %s %s throttled, retrying in %s\n", method, path, d)
		if c.onThrottle != nil {
			c.onThrottle(ctx, method, path, d)
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(wait, MaxRateLimitRetries), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}
	return result, nil
}

// send performs a single HTTP round trip.
func (c *Client) send(ctx context.Context, method, path string, payload []byte, etag string) (*Response, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if etag != "" {
		req.Header.Set("If-Match", etag)
	}
	if method == http.MethodPatch {
		req.Header.Set("Prefer", "return=representation")
	}
	if c.tokens != nil {
		tok, err := c.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to obtain access token: %w", err)
		}
		tok.SetAuthHeader(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		out.Body = nil
	}
	out.ETag = extractETag(out.Body, resp.Header)
	return out, nil
}

func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func extractETag(body []byte, header http.Header) string {
	if len(body) > 0 && body[0] == '{' {
		var probe struct {
			ETag string `json:"@odata.etag"`
		}
		if err := json.Unmarshal(body, &probe); err == nil && probe.ETag != "" {
			return probe.ETag
		}
	}
	return header.Get("ETag")
}

// parseRetryAfter reads a Retry-After value in seconds.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return DefaultRetryAfter
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		if when, perr := http.ParseTime(v); perr == nil {
			if d := time.Until(when); d > 0 {
				return d
			}
			return 0
		}
		return DefaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}

// IsThrottled reports whether err is a 429 that outlasted the retry.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
