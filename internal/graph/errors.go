package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrPreconditionFailed is returned when an If-Match write loses to a
	// concurrent change (HTTP 412).
	ErrPreconditionFailed = errors.New("precondition failed: entity changed since it was read")

	// ErrNotFound is returned for HTTP 404 responses.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited is returned when the service still throttles after the retry.
	ErrRateLimited = errors.New("rate limited")
)

// APIError is a non-2xx response from Graph.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("graph %s %s: %d %s: %s", e.Method, e.Path, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("graph %s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Is maps status codes onto the package sentinels so callers can use errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrPreconditionFailed:
		return e.StatusCode == http.StatusPreconditionFailed
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// IsConflict reports whether err is an optimistic-concurrency conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrPreconditionFailed)
}

// IsNotFound reports whether err is a 404 from Graph.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newAPIError(method, path string, status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Method: method, Path: path}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Code != "" {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		return apiErr
	}
	msg := string(body)
	if len(msg) > 512 {
		msg = msg[:512]
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	apiErr.Message = msg
	return apiErr
}
