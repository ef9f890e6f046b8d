// Package ops implements the planner commands: every name the operator
// types goes through internal/resolver and every write goes through
// internal/mutate.
package ops

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/planner/internal/graph"
	"github.com/steveyegge/planner/internal/mutate"
	"github.com/steveyegge/planner/internal/resolver"
)

// Error codes for invalid operator input.
const (
	CodeMissingPlan  = "MissingPlan"
	CodeInvalidInput = "InvalidInput"
	CodeNoGroupOwner = "NoGroupOwner"
)

// InputError is a problem with what the operator asked for, found before
// any write.
type InputError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

func (e *InputError) Error() string { return e.Message }

// ErrorCode returns the machine-readable code.
func (e *InputError) ErrorCode() string { return e.Code }

func invalidInput(format string, args ...any) *InputError {
	return &InputError{Code: CodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// Service runs planner operations for one signed-in user.
type Service struct {
	api         *graph.Client
	mut         *mutate.Mutator
	plans       *resolver.Resolver[graph.Plan]
	buckets     *resolver.Resolver[graph.Bucket]
	tasks       *resolver.Resolver[graph.Task]
	bucketTasks *resolver.Resolver[graph.Task]
	users       *resolver.UserResolver
	newKey      func() string
	now         func() time.Time
}

// NewService wires resolvers and the mutator around api.
func NewService(api *graph.Client) *Service {
	return &Service{
		api:         api,
		mut:         mutate.New(api),
		plans:       resolver.NewPlanResolver(api),
		buckets:     resolver.NewBucketResolver(api),
		tasks:       resolver.NewTaskResolver(api),
		bucketTasks: resolver.NewBucketTaskResolver(api),
		users:       resolver.NewUserResolver(api),
		newKey:      uuid.NewString,
		now:         time.Now,
	}
}

// Mutator exposes the service's optimistic-concurrency writer.
func (s *Service) Mutator() *mutate.Mutator { return s.mut }

// Client exposes the underlying Graph client.
func (s *Service) Client() *graph.Client { return s.api }

// planScope returns a lazy scope function resolving planRaw to a plan ID.
func (s *Service) planScope(planRaw string) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		p, err := s.ResolvePlan(ctx, planRaw)
		if err != nil {
			return "", err
		}
		return p.ID, nil
	}
}

func requirePlan(planRaw string) error {
	if strings.TrimSpace(planRaw) == "" {
		return &InputError{
			Code:    CodeMissingPlan,
			Message: "No plan given and no default plan configured",
			Hint:    "Pass --plan or run 'planner set-defaults --plan <name>'",
		}
	}
	return nil
}
