package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const batchHint = "Please use full email addresses or User IDs for ambiguous/not-found identifiers"

// ResolvedUser records one successful entry of a batch.
type ResolvedUser struct {
	Input  string `json:"input"`
	UserID string `json:"userId"`
}

// BatchError aggregates every UserNotFound and AmbiguousUser outcome of a
// batch. Each distinct input appears in exactly one of Resolved, NotFound
// or Ambiguous.
type BatchError struct {
	Resolved  []ResolvedUser
	NotFound  []string
	Ambiguous map[string][]string

	ambiguousOrder []string
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("Failed to resolve %d user identifier(s)", e.FailedCount())
}

// ErrorCode returns the machine-readable code.
func (e *BatchError) ErrorCode() string { return string(CodeBatchUserResolution) }

// FailedCount is the number of distinct inputs that did not resolve.
func (e *BatchError) FailedCount() int {
	return len(e.NotFound) + len(e.Ambiguous)
}

// AmbiguousInputs returns the ambiguous inputs in the order they were given.
func (e *BatchError) AmbiguousInputs() []string {
	return append([]string(nil), e.ambiguousOrder...)
}

func (e *BatchError) addNotFound(input string) {
	for _, seen := range e.NotFound {
		if seen == input {
			return
		}
	}
	e.NotFound = append(e.NotFound, input)
}

func (e *BatchError) addAmbiguous(input string, suggestions []string) {
	if e.Ambiguous == nil {
		e.Ambiguous = map[string][]string{}
	}
	if _, seen := e.Ambiguous[input]; !seen {
		e.ambiguousOrder = append(e.ambiguousOrder, input)
	}
	e.Ambiguous[input] = suggestions
}

// orderedSuggestions keeps ambiguous inputs in input order when encoded.
type orderedSuggestions struct {
	keys []string
	m    map[string][]string
}

func (o orderedSuggestions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(o.m[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON renders the aggregated report. Empty categories are omitted.
func (e *BatchError) MarshalJSON() ([]byte, error) {
	type report struct {
		Code           string              `json:"code"`
		Message        string              `json:"message"`
		Resolved       []ResolvedUser      `json:"resolved,omitempty"`
		ResolvedCount  int                 `json:"resolvedCount,omitempty"`
		NotFound       []string            `json:"notFound,omitempty"`
		NotFoundCount  int                 `json:"notFoundCount,omitempty"`
		Ambiguous      *orderedSuggestions `json:"ambiguous,omitempty"`
		AmbiguousCount int                 `json:"ambiguousCount,omitempty"`
		Hint           string              `json:"hint"`
	}
	r := report{
		Code:          e.ErrorCode(),
		Message:       e.Error(),
		Resolved:      e.Resolved,
		ResolvedCount: len(e.Resolved),
		NotFound:      e.NotFound,
		NotFoundCount: len(e.NotFound),
		Hint:          batchHint,
	}
	if len(e.Ambiguous) > 0 {
		r.Ambiguous = &orderedSuggestions{keys: e.ambiguousOrder, m: e.Ambiguous}
		r.AmbiguousCount = len(e.Ambiguous)
	}
	return json.Marshal(r)
}

// SplitIdentifiers splits a comma-separated list, trimming and dropping
// empty entries.
func SplitIdentifiers(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ResolveBatch resolves a comma-separated list of user identifiers with
// search enabled. It never stops at the first UserNotFound or
// AmbiguousUser; those are collected into one *BatchError. Any other error
// aborts the batch and is returned unchanged.
func (r *UserResolver) ResolveBatch(ctx context.Context, csv string) ([]string, error) {
	inputs := SplitIdentifiers(csv)
	ids := make([]string, 0, len(inputs))
	report := &BatchError{}

	for _, input := range inputs {
		id, err := r.Resolve(ctx, input, true)
		if err == nil {
			ids = append(ids, id)
			report.Resolved = append(report.Resolved, ResolvedUser{Input: input, UserID: id})
			continue
		}

		var rerr *Error
		if !errors.As(err, &rerr) {
			return nil, err
		}
		switch rerr.Code {
		case CodeUserNotFound:
			report.addNotFound(input)
		case CodeAmbiguousUser:
			report.addAmbiguous(input, rerr.Suggestions)
		default:
			return nil, err
		}
	}

	if report.FailedCount() > 0 {
		return nil, report
	}
	return ids, nil
}
