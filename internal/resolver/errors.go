package resolver

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies a resolution failure. The values are part of the CLI's
// JSON output.
type Code string

const (
	CodeNotFound            Code = "NotFound"
	CodeAmbiguous           Code = "Ambiguous"
	CodeUserNotFound        Code = "UserNotFound"
	CodeAmbiguousUser       Code = "AmbiguousUser"
	CodeBatchUserResolution Code = "BatchUserResolutionError"
	CodeSubtaskNotFound     Code = "SubtaskNotFound"
)

const (
	// MaxCandidates caps NotFound candidates and user suggestions.
	MaxCandidates = 5

	ambiguousUserHint = "Use full email address or User ID for exact match"
)

// Candidate is a possible match reported back to the operator.
type Candidate struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	Name      string `json:"name,omitempty"`
	GroupName string `json:"groupName,omitempty"`
	BucketID  string `json:"bucketId,omitempty"`
}

// Error is an expected resolution failure. It is never retried.
type Error struct {
	Code        Code        `json:"code"`
	Message     string      `json:"message"`
	Candidates  []Candidate `json:"candidates,omitempty"`
	Suggestions []string    `json:"suggestions,omitempty"`
	Hint        string      `json:"hint,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// ErrorCode returns the machine-readable code.
func (e *Error) ErrorCode() string { return string(e.Code) }

// IsCode reports whether err carries the given resolution code.
func IsCode(err error, code Code) bool {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Code == code
	}
	var berr *BatchError
	if errors.As(err, &berr) {
		return code == CodeBatchUserResolution
	}
	return false
}

func notFound(kind, raw string, candidates []Candidate) *Error {
	if len(candidates) > MaxCandidates {
		candidates = candidates[:MaxCandidates]
	}
	return &Error{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s '%s' not found", kind, raw),
		Candidates: candidates,
	}
}

func ambiguous(kind, raw string, candidates []Candidate) *Error {
	return &Error{
		Code:       CodeAmbiguous,
		Message:    fmt.Sprintf("Multiple %ss match '%s'", strings.ToLower(kind), raw),
		Candidates: candidates,
	}
}

func userNotFound(msg string) *Error {
	return &Error{Code: CodeUserNotFound, Message: msg}
}

// SubtaskNotFound reports a checklist item that no title matched.
func SubtaskNotFound(raw string) *Error {
	return &Error{
		Code:    CodeSubtaskNotFound,
		Message: fmt.Sprintf("Subtask '%s' not found", raw),
	}
}
