package governance

import (
	"fmt"
	"strings"

	"github.com/rahul/stepwise/internal/observability"
	"github.com/rahul/stepwise/internal/plan"
)

// ErrorReport is the structured description of one failed step.
type ErrorReport struct {
	FailedStep    plan.Step `json:"failedStep"`
	Message       string    `json:"message"`
	IsRecoverable bool      `json:"isRecoverable"`
	RecoveryHint  string    `json:"recoveryHint"`
}

// Verdict is the recoverability decision a rule contributes.
type Verdict int

const (
	VerdictNone Verdict = iota
	VerdictRecoverable
	VerdictFatal
)

// Rule matches a lower-cased error message by substring. A rule may decide
// recoverability, provide a hint, or both.
type Rule struct {
	Name     string
	Keywords []string
	Verdict  Verdict
	Hint     func(step plan.Step) string
}

func (r Rule) matches(msg string) bool {
	for _, k := range r.Keywords {
		if strings.Contains(msg, k) {
			return true
		}
	}
	return false
}

const defaultHint = "Revise the step or its dependencies; the agent reported an error that a different command, arguments or ordering may avoid."

// DefaultRules is evaluated top to bottom. The first matching rule with a
// verdict decides recoverability; the first matching rule with a hint supplies
// the hint. Messages that no verdict rule matches are recoverable.
var DefaultRules = []Rule{
	{
		Name: "external",
		Keywords: []string{
			"api key", "authorization failed", "permission denied",
			"network unavailable", "service unavailable",
			"rate limit", "quota exceeded",
		},
		Verdict: VerdictFatal,
	},
	{
		Name:     "agent_not_found",
		Keywords: []string{"agent not found", "unknown agent", "not found in registry"},
		Verdict:  VerdictRecoverable,
		Hint: func(plan.Step) string {
			return "Check the agent name and ensure it exists in the registry."
		},
	},
	{
		Name:     "command_not_found",
		Keywords: []string{"command not found", "method not found"},
		Hint: func(s plan.Step) string {
			return fmt.Sprintf("The command %q is not supported by agent %q. Use a command the agent provides.", s.Command, s.AgentName)
		},
	},
	{
		Name:     "missing_parameter",
		Keywords: []string{"missing required", "required parameter"},
		Hint: func(plan.Step) string {
			return "Ensure all required parameters are provided with the correct types."
		},
	},
	{
		Name:     "invalid_value",
		Keywords: []string{"invalid value"},
		Hint: func(plan.Step) string {
			return "One of the argument values does not match the expected format. Check value types and formats."
		},
	},
	{
		Name:     "rate_limit",
		Keywords: []string{"rate limit", "quota"},
		Hint: func(plan.Step) string {
			return "The service is rate limited or out of quota; try again later."
		},
	},
}

// Classifier turns step failures into ErrorReports.
type Classifier struct {
	Rules []Rule
	Sink  observability.EventSink
}

// NewClassifier returns a classifier using DefaultRules. A nil sink discards events.
func NewClassifier(sink observability.EventSink) *Classifier {
	if sink == nil {
		sink = observability.NopSink{}
	}
	return &Classifier{Rules: DefaultRules, Sink: sink}
}

// Classify builds the report for a failed step and emits one step_failed event.
func (c *Classifier) Classify(step plan.Step, err error) ErrorReport {
	message := "unknown error"
	if err != nil {
		message = err.Error()
	}
	lower := strings.ToLower(message)

	verdict := VerdictNone
	hint := ""
	for _, r := range c.Rules {
		if !r.matches(lower) {
			continue
		}
		if verdict == VerdictNone && r.Verdict != VerdictNone {
			verdict = r.Verdict
		}
		if hint == "" && r.Hint != nil {
			hint = r.Hint(step)
		}
	}
	if hint == "" {
		hint = defaultHint
	}

	report := ErrorReport{
		FailedStep:    step,
		Message:       message,
		IsRecoverable: verdict != VerdictFatal,
		RecoveryHint:  hint,
	}

	if c.Sink != nil {
		c.Sink.LogEvent(observability.EventStepFailed, map[string]any{
			"stepId":        step.ID,
			"agentName":     step.AgentName,
			"command":       step.Command,
			"error":         message,
			"isRecoverable": report.IsRecoverable,
			"recoveryHint":  hint,
		}, fmt.Sprintf("Step %d failed: %s", step.ID, message))
	}
	return report
}
