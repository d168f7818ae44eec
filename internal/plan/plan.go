package plan

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a step.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// Step represents a single unit of work bound to an agent command.
type Step struct {
	ID           int            `json:"id" yaml:"id"`
	Description  string         `json:"description" yaml:"description"`
	AgentName    string         `json:"agentName" yaml:"agent_name"`
	Command      string         `json:"command" yaml:"command"`
	Args         map[string]any `json:"args" yaml:"args"`
	Dependencies []int          `json:"dependencies" yaml:"dependencies"`
	Status       Status         `json:"status" yaml:"status"`
	Result       any            `json:"result,omitempty" yaml:"result,omitempty"`
	StartedAt    *time.Time     `json:"startedAt,omitempty" yaml:"started_at,omitempty"`
	EndedAt      *time.Time     `json:"endedAt,omitempty" yaml:"ended_at,omitempty"`
	DurationMs   int64          `json:"durationMs,omitempty" yaml:"duration_ms,omitempty"`
}

// Plan is an ordered list of steps. Order is never changed by the engine.
type Plan []Step

// Clone returns a deep copy of the step.
func (s Step) Clone() Step {
	out := s
	if s.Args != nil {
		out.Args = make(map[string]any, len(s.Args))
		for k, v := range s.Args {
			out.Args[k] = v
		}
	}
	if s.Dependencies != nil {
		out.Dependencies = append([]int(nil), s.Dependencies...)
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	return out
}

// Clone returns a deep copy of the plan.
func (p Plan) Clone() Plan {
	if p == nil {
		return nil
	}
	out := make(Plan, len(p))
	for i, s := range p {
		out[i] = s.Clone()
	}
	return out
}

// Find returns the index of the step with the given id, or -1.
func (p Plan) Find(id int) int {
	for i := range p {
		if p[i].ID == id {
			return i
		}
	}
	return -1
}

// IsRunnable reports whether step is pending and every dependency is completed.
// A dependency on an id missing from the plan is never satisfied.
func IsRunnable(step Step, p Plan) bool {
	if step.Status != StatusPending {
		return false
	}
	for _, dep := range step.Dependencies {
		idx := p.Find(dep)
		if idx < 0 || p[idx].Status != StatusCompleted {
			return false
		}
	}
	return true
}

// IsTerminal reports whether no step is pending or in progress.
func IsTerminal(p Plan) bool {
	for _, s := range p {
		if s.Status == StatusPending || s.Status == StatusInProgress {
			return false
		}
	}
	return true
}

// Runnable returns the steps that can start now, in plan order.
func Runnable(p Plan) []Step {
	var out []Step
	for _, s := range p {
		if IsRunnable(s, p) {
			out = append(out, s)
		}
	}
	return out
}

// Counts tallies steps by status.
func Counts(p Plan) map[Status]int {
	c := make(map[Status]int, 4)
	for _, s := range p {
		c[s.Status]++
	}
	return c
}

// Transition moves a step forward through pending -> in_progress -> completed|failed.
func Transition(s *Step, to Status) error {
	switch {
	case s.Status == StatusPending && to == StatusInProgress:
	case s.Status == StatusInProgress && (to == StatusCompleted || to == StatusFailed):
	default:
		return fmt.Errorf("%w: step %d %s -> %s", ErrInvalidTransition, s.ID, s.Status, to)
	}
	s.Status = to
	return nil
}

// Validate checks that step ids are unique and statuses are known. An empty
// status is accepted and means pending. Unknown dependency ids are left to the
// scheduler, which reports them as a deadlock.
func Validate(p Plan) error {
	seen := make(map[int]struct{}, len(p))
	for _, s := range p {
		if _, ok := seen[s.ID]; ok {
			return fmt.Errorf("plan: duplicate step id %d", s.ID)
		}
		seen[s.ID] = struct{}{}
		switch s.Status {
		case "", StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		default:
			return fmt.Errorf("plan: step %d has unknown status %q", s.ID, s.Status)
		}
	}
	return nil
}

// Normalize resets every step to a fresh pending state with non-nil args and dependencies.
func Normalize(p Plan) Plan {
	out := p.Clone()
	for i := range out {
		out[i].Status = StatusPending
		out[i].Result = nil
		out[i].StartedAt = nil
		out[i].EndedAt = nil
		out[i].DurationMs = 0
		if out[i].Dependencies == nil {
			out[i].Dependencies = []int{}
		}
		if out[i].Args == nil {
			out[i].Args = map[string]any{}
		}
	}
	return out
}
