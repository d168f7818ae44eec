package agent

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrEmptyAgentName = errors.New("agent name is empty")
	ErrNilAgent       = errors.New("agent is nil")
	ErrDuplicateAgent = errors.New("agent already registered")

	// ErrPermissionDenied prefixes failures caused by the execution policy.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrAgentPanic wraps a recovered agent panic.
	ErrAgentPanic = errors.New("agent panic")
)

// AgentNotFoundError is returned when a step names an agent the registry does not know.
type AgentNotFoundError struct {
	Name string
}

func (e *AgentNotFoundError) Error() string {
	return fmt.Sprintf("Agent %q not found in registry", e.Name)
}

// StepTimeoutError is returned when an agent call outlives the step timeout.
type StepTimeoutError struct {
	StepID  int
	Timeout time.Duration
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("step %d timed out after %s", e.StepID, e.Timeout)
}

// DeadlockError reports a plan where pending steps remain but none can run.
type DeadlockError struct {
	Pending []int
}

func (e *DeadlockError) Error() string {
	return fmt.Sprintf("deadlock detected: pending steps %v can never run (circular or missing dependencies)", e.Pending)
}

// RevisionExhaustedError is returned when the revision attempt budget is spent.
type RevisionExhaustedError struct {
	Attempt     int
	MaxAttempts int
}

func (e *RevisionExhaustedError) Error() string {
	return fmt.Sprintf("maximum revision attempts exceeded (attempt %d of %d)", e.Attempt, e.MaxAttempts)
}

// RevisionParseError is returned when the model's response is not a JSON array of steps.
type RevisionParseError struct {
	Raw string
	Err error
}

func (e *RevisionParseError) Error() string {
	return fmt.Sprintf("failed to parse revised plan: %v", e.Err)
}

func (e *RevisionParseError) Unwrap() error {
	return e.Err
}
