package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/steveyegge/planner/internal/auth"
	"github.com/steveyegge/planner/internal/config"
	"github.com/steveyegge/planner/internal/graph"
	"github.com/steveyegge/planner/internal/ops"
	"github.com/steveyegge/planner/internal/resolver"
	"github.com/steveyegge/planner/internal/ui"
)

// exitError is the exit status of every failed command; scripts branch
// on the JSON code instead.
const exitError = 2

// codedError is an expected failure that renders as its own JSON payload.
type codedError interface {
	error
	ErrorCode() string
}

// genericError is the payload for failures without their own code.
type genericError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// outputJSON writes v as pretty-printed JSON.
func outputJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("error encoding JSON: %w", err)
	}
	return nil
}

// errorPayload picks the JSON document describing err.
func errorPayload(err error) interface{} {
	var coded codedError
	if errors.As(err, &coded) {
		return coded
	}
	if graph.IsConflict(err) {
		return genericError{Code: "Conflict", Message: err.Error()}
	}
	return genericError{Code: "Error", Message: err.Error()}
}

// reportError prints err as JSON on out, adds a human hint on errOut when
// it is a terminal, and returns the exit code.
func reportError(out, errOut io.Writer, err error) int {
	if encErr := outputJSON(out, errorPayload(err)); encErr != nil {
		_, _ = fmt.Fprintf(errOut, "Error: %v\n", err)
	}
	message, hint, details := describeError(err)
	ui.NewHinter(errOut).Failure(message, hint, details...)
	return exitError
}

// describeError extracts what a person needs from err.
func describeError(err error) (message, hint string, details []string) {
	var (
		rerr *resolver.Error
		berr *resolver.BatchError
		ierr *ops.InputError
		cerr *config.ConfigError
		aerr *auth.AuthError
	)
	switch {
	case errors.As(err, &berr):
		for _, input := range berr.NotFound {
			details = append(details, fmt.Sprintf("not found: %s", input))
		}
		for _, input := range berr.AmbiguousInputs() {
			details = append(details, fmt.Sprintf("ambiguous: %s", input))
		}
		return berr.Error(), "Use full email addresses or user IDs", details
	case errors.As(err, &rerr):
		for _, c := range rerr.Candidates {
			label := c.Title
			if label == "" {
				label = c.Name
			}
			details = append(details, fmt.Sprintf("%s (%s)", label, c.ID))
		}
		details = append(details, rerr.Suggestions...)
		hint = rerr.Hint
		if hint == "" && rerr.Code == resolver.CodeAmbiguous {
			hint = "Pass the ID to pick one"
		}
		return rerr.Message, hint, details
	case errors.As(err, &ierr):
		return ierr.Message, ierr.Hint, nil
	case errors.As(err, &cerr):
		return cerr.Message, cerr.Hint, nil
	case errors.As(err, &aerr):
		return aerr.Error(), aerr.Hint, nil
	case graph.IsConflict(err):
		return err.Error(), "Someone else changed it; run the command again", nil
	}
	return err.Error(), "", nil
}
