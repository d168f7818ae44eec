package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rahul/stepwise/internal/llm"
	"github.com/rahul/stepwise/internal/observability"
	"github.com/rahul/stepwise/internal/plan"
	"github.com/rahul/stepwise/internal/trace"
)

const (
	DefaultMaxAttempts = 3
	DefaultTemperature = 0.2

	fallbackExplanation = "The plan was revised to work around the error from the previous run."
)

var errNotArray = errors.New("response is not a JSON array of steps")

// RevisionOptions tune one Revise call. Zero values fall back to the Reviser's defaults.
type RevisionOptions struct {
	TraceID     string
	Model       string
	Temperature float64
	MaxAttempts int
}

// Revision is a corrected plan plus a user-facing note on what changed.
type Revision struct {
	Plan        plan.Plan `json:"plan"`
	Explanation string    `json:"explanation"`
}

// Reviser asks a language model for a corrected plan after a failed run.
type Reviser struct {
	llm         llm.Completer
	prompts     *PromptManager
	tracer      *trace.Tracer
	sink        observability.EventSink
	agentNames  func() []string
	MaxAttempts int
	Model       string
	Temperature float64
}

type ReviserOption func(*Reviser)

func WithPrompts(pm *PromptManager) ReviserOption {
	return func(r *Reviser) { r.prompts = pm }
}

func WithTracer(t *trace.Tracer) ReviserOption {
	return func(r *Reviser) { r.tracer = t }
}

func WithRevisionSink(sink observability.EventSink) ReviserOption {
	return func(r *Reviser) { r.sink = sink }
}

// WithAgentNames lists the agents a revised plan may use in the prompt.
func WithAgentNames(names func() []string) ReviserOption {
	return func(r *Reviser) { r.agentNames = names }
}

func WithMaxAttempts(n int) ReviserOption {
	return func(r *Reviser) { r.MaxAttempts = n }
}

func WithModel(model string, temperature float64) ReviserOption {
	return func(r *Reviser) {
		r.Model = model
		r.Temperature = temperature
	}
}

func NewReviser(completer llm.Completer, opts ...ReviserOption) *Reviser {
	r := &Reviser{
		llm:         completer,
		prompts:     NewPromptManager(""),
		sink:        observability.NopSink{},
		MaxAttempts: DefaultMaxAttempts,
		Temperature: DefaultTemperature,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sink == nil {
		r.sink = observability.NopSink{}
	}
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = DefaultMaxAttempts
	}
	return r
}

// Revise returns a corrected plan for request. attempt is 1-based and is
// checked against the attempt budget before any model call.
func (r *Reviser) Revise(ctx context.Context, request string, failed plan.Plan, errMsg string, attempt int, opts RevisionOptions) (*Revision, error) {
	maxAttempts := r.MaxAttempts
	if opts.MaxAttempts > 0 {
		maxAttempts = opts.MaxAttempts
	}
	model := r.Model
	if opts.Model != "" {
		model = opts.Model
	}
	temperature := r.Temperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}

	if attempt > maxAttempts {
		err := &RevisionExhaustedError{Attempt: attempt, MaxAttempts: maxAttempts}
		r.fail(opts.TraceID, attempt, "", err)
		return nil, err
	}

	r.sink.LogEvent(observability.EventRevisionAttempt, map[string]any{
		"attempt":     attempt,
		"maxAttempts": maxAttempts,
		"error":       errMsg,
	}, fmt.Sprintf("Revising plan (attempt %d/%d)", attempt, maxAttempts))

	failedJSON, err := json.MarshalIndent(failed, "", "  ")
	if err != nil {
		r.fail(opts.TraceID, attempt, "", err)
		return nil, fmt.Errorf("encode failed plan: %w", err)
	}

	system, err := r.prompts.GetSystemPrompt()
	if err != nil {
		r.fail(opts.TraceID, attempt, "", err)
		return nil, err
	}
	data := RevisionData{
		System:      system,
		Request:     request,
		PlanJSON:    string(failedJSON),
		Error:       errMsg,
		Urgency:     urgency(attempt),
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
	}
	if data.Error == "" {
		data.Error = "unknown error"
	}
	if r.agentNames != nil {
		data.Agents = r.agentNames()
	}

	prompt, source, err := r.prompts.Render(RevisionTemplate, data)
	if err != nil {
		r.fail(opts.TraceID, attempt, "", err)
		return nil, err
	}
	r.addStep(opts.TraceID, trace.OpTemplateOperation, trace.Details{
		Metadata: map[string]any{"template": RevisionTemplate, "source": source, "attempt": attempt},
	})

	raw, err := r.llm.Complete(ctx, prompt, llm.Options{Model: model, Temperature: temperature, JSONOnly: true})
	if err != nil {
		r.fail(opts.TraceID, attempt, prompt, err)
		return nil, fmt.Errorf("revision request: %w", err)
	}

	revised, err := parseRevision(raw)
	if err != nil {
		r.fail(opts.TraceID, attempt, prompt, err)
		return nil, err
	}

	explanation := r.explain(ctx, request, string(failedJSON), revised, model, temperature, opts.TraceID)

	r.addStep(opts.TraceID, trace.OpPlanRevision, trace.Details{
		Prompt:      prompt,
		Result:      revised,
		Explanation: explanation,
		Metadata:    map[string]any{"attempt": attempt, "steps": len(revised)},
	})
	r.sink.LogEvent(observability.EventRevisionSuccess, map[string]any{
		"attempt": attempt,
		"steps":   len(revised),
	}, explanation)

	return &Revision{Plan: revised, Explanation: explanation}, nil
}

func (r *Reviser) explain(ctx context.Context, request, originalJSON string, revised plan.Plan, model string, temperature float64, traceID string) string {
	revisedJSON, err := json.MarshalIndent(revised, "", "  ")
	if err != nil {
		return fallbackExplanation
	}
	prompt, _, err := r.prompts.Render(ExplanationTemplate, ExplanationData{
		Request:      request,
		OriginalJSON: originalJSON,
		RevisedJSON:  string(revisedJSON),
	})
	if err != nil {
		return fallbackExplanation
	}
	out, err := r.llm.Complete(ctx, prompt, llm.Options{Model: model, Temperature: temperature})
	out = strings.TrimSpace(out)
	if err != nil || out == "" {
		details := trace.Details{Prompt: prompt, Explanation: fallbackExplanation, Metadata: map[string]any{"fallback": true}}
		if err != nil {
			details.Error = err.Error()
		}
		r.addStep(traceID, trace.OpPlanRevision, details)
		return fallbackExplanation
	}
	return out
}

func (r *Reviser) fail(traceID string, attempt int, prompt string, err error) {
	r.addStep(traceID, trace.OpPlanRevision, trace.Details{
		Prompt:   prompt,
		Error:    err.Error(),
		Metadata: map[string]any{"attempt": attempt},
	})
	r.sink.LogEvent(observability.EventRevisionFailed, map[string]any{
		"attempt": attempt,
		"error":   err.Error(),
	}, "Plan revision failed")
}

func (r *Reviser) addStep(traceID string, op trace.Operation, d trace.Details) {
	if r.tracer == nil || traceID == "" {
		return
	}
	r.tracer.AddStep(traceID, op, d)
}

func urgency(attempt int) string {
	switch {
	case attempt >= 3:
		return "CRITICAL: this is the last attempt, be precise. Previous revisions failed; check every agent name, command and dependency."
	case attempt == 2:
		return "IMPORTANT: the previous revision also failed. Take a different approach instead of repeating it."
	default:
		return ""
	}
}

// parseRevision decodes a model response into a normalized plan. Markdown
// code fences around the JSON are tolerated.
func parseRevision(raw string) (plan.Plan, error) {
	body := stripFences(raw)

	var top any
	if err := json.Unmarshal([]byte(body), &top); err != nil {
		return nil, &RevisionParseError{Raw: raw, Err: err}
	}
	if _, ok := top.([]any); !ok {
		return nil, &RevisionParseError{Raw: raw, Err: errNotArray}
	}

	var p plan.Plan
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, &RevisionParseError{Raw: raw, Err: err}
	}
	p = plan.Normalize(p)
	if err := plan.Validate(p); err != nil {
		return nil, &RevisionParseError{Raw: raw, Err: err}
	}
	return p, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
