package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/rahul/stepwise/internal/governance"
	"github.com/rahul/stepwise/internal/observability"
	"github.com/rahul/stepwise/internal/plan"
	"golang.org/x/sync/errgroup"
)

// ExecutionResult is the outcome of one Scheduler.Run call.
type ExecutionResult struct {
	Success         bool                     `json:"success"`
	Plan            plan.Plan                `json:"plan"`
	Summary         string                   `json:"summary"`
	TotalDurationMs int64                    `json:"totalDurationMs"`
	Error           string                   `json:"error,omitempty"`
	Report          *governance.ErrorReport  `json:"report,omitempty"`
	Reports         []governance.ErrorReport `json:"reports,omitempty"`
	Deadlocked      bool                     `json:"deadlocked,omitempty"`
}

// Recoverable reports whether a revision could plausibly fix the failure.
// Deadlocks are recoverable; step failures are recoverable only if every
// failed step was classified as such.
func (r *ExecutionResult) Recoverable() bool {
	if r.Success {
		return false
	}
	for _, rep := range r.Reports {
		if !rep.IsRecoverable {
			return false
		}
	}
	return true
}

// UpdateFunc receives a snapshot of the plan after every wave.
type UpdateFunc func(plan.Plan)

// Scheduler runs plans wave by wave: every step whose dependencies are
// completed is dispatched concurrently, and the next wave starts only after
// the whole wave has settled.
type Scheduler struct {
	registry    *Registry
	classifier  *governance.Classifier
	policy      governance.PolicyEngine
	sink        observability.EventSink
	stepTimeout time.Duration
	maxParallel int
	now         func() time.Time
}

type SchedulerOption func(*Scheduler)

func WithPolicy(p governance.PolicyEngine) SchedulerOption {
	return func(s *Scheduler) { s.policy = p }
}

func WithEventSink(sink observability.EventSink) SchedulerOption {
	return func(s *Scheduler) { s.sink = sink }
}

func WithClassifier(c *governance.Classifier) SchedulerOption {
	return func(s *Scheduler) { s.classifier = c }
}

// WithStepTimeout bounds every agent call. Zero disables the bound.
func WithStepTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.stepTimeout = d }
}

// WithMaxParallel caps how many steps of a wave run at once. Zero means no cap.
func WithMaxParallel(n int) SchedulerOption {
	return func(s *Scheduler) { s.maxParallel = n }
}

func NewScheduler(registry *Registry, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		registry: registry,
		sink:     observability.NopSink{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sink == nil {
		s.sink = observability.NopSink{}
	}
	if s.classifier == nil {
		s.classifier = governance.NewClassifier(s.sink)
	}
	return s
}

type stepOutcome struct {
	result  any
	err     error
	started time.Time
	ended   time.Time
}

// Run executes p to completion. The input plan is never modified.
//
// Step failures are recorded in the returned result and do not produce an
// error. A deadlock returns both the partial result and a *DeadlockError.
// onUpdate, when set, is called after every wave; panics from it propagate.
func (s *Scheduler) Run(ctx context.Context, p plan.Plan, onUpdate UpdateFunc) (*ExecutionResult, error) {
	start := s.now()
	working := p.Clone()
	var reports []governance.ErrorReport

	for !plan.IsTerminal(working) {
		wave := runnableIndexes(working)
		if len(wave) == 0 {
			pending := pendingIDs(working)
			if len(pending) == 0 {
				break
			}
			derr := &DeadlockError{Pending: pending}
			return s.finish(working, start, nil, derr), derr
		}

		outcomes := s.runWave(ctx, working, wave)

		for i, idx := range wave {
			step := &working[idx]
			out := outcomes[i]
			started, ended := out.started, out.ended
			step.StartedAt = &started
			step.EndedAt = &ended
			step.DurationMs = ended.Sub(started).Milliseconds()

			if out.err != nil {
				transition(step, plan.StatusFailed)
				reports = append(reports, s.classifier.Classify(step.Clone(), out.err))
				continue
			}

			transition(step, plan.StatusCompleted)
			step.Result = out.result
			s.sink.LogEvent(observability.EventStepCompleted, map[string]any{
				"stepId":     step.ID,
				"agentName":  step.AgentName,
				"command":    step.Command,
				"durationMs": step.DurationMs,
			}, fmt.Sprintf("Step %d completed", step.ID))
		}

		if onUpdate != nil {
			onUpdate(working.Clone())
		}

		if len(reports) > 0 {
			break
		}
	}

	return s.finish(working, start, reports, nil), nil
}

func (s *Scheduler) runWave(ctx context.Context, working plan.Plan, wave []int) []stepOutcome {
	steps := make([]plan.Step, len(wave))
	for i, idx := range wave {
		transition(&working[idx], plan.StatusInProgress)
		steps[i] = working[idx].Clone()
	}

	outcomes := make([]stepOutcome, len(wave))
	var g errgroup.Group
	if s.maxParallel > 0 {
		g.SetLimit(s.maxParallel)
	}
	for i := range steps {
		g.Go(func() error {
			step := steps[i]
			started := s.now()
			s.sink.LogEvent(observability.EventStepStarted, map[string]any{
				"stepId":    step.ID,
				"agentName": step.AgentName,
				"command":   step.Command,
			}, fmt.Sprintf("Step %d started: %s", step.ID, step.Description))

			res, err := s.executeStep(ctx, step)
			outcomes[i] = stepOutcome{result: res, err: err, started: started, ended: s.now()}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (s *Scheduler) executeStep(ctx context.Context, step plan.Step) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a, ok := s.registry.Resolve(step.AgentName)
	if !ok {
		return nil, &AgentNotFoundError{Name: step.AgentName}
	}

	if s.policy != nil {
		args, err := json.Marshal(step.Args)
		if err != nil {
			return nil, fmt.Errorf("invalid value in args: %w", err)
		}
		res, err := s.policy.Evaluate(ctx, governance.Request{
			Agent:     step.AgentName,
			Command:   step.Command,
			Arguments: string(args),
		})
		if err != nil {
			return nil, fmt.Errorf("policy evaluation: %w", err)
		}
		if res.Effect == governance.EffectDeny {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, res.Reason)
		}
	}

	req := Request{Command: step.Command, Args: step.Args}
	if s.stepTimeout <= 0 {
		return safeExecute(ctx, a, req)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.stepTimeout)
	defer cancel()

	type reply struct {
		result any
		err    error
	}
	ch := make(chan reply, 1)
	go func() {
		res, err := safeExecute(runCtx, a, req)
		ch <- reply{res, err}
	}()

	select {
	case r := <-ch:
		return r.result, r.err
	case <-runCtx.Done():
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &StepTimeoutError{StepID: step.ID, Timeout: s.stepTimeout}
		}
		return nil, runCtx.Err()
	}
}

func safeExecute(ctx context.Context, a Agent, req Request) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrAgentPanic, r)
		}
	}()
	return a.Execute(ctx, req)
}

func (s *Scheduler) finish(working plan.Plan, start time.Time, reports []governance.ErrorReport, deadlock *DeadlockError) *ExecutionResult {
	elapsed := s.now().Sub(start)
	completed := plan.Counts(working)[plan.StatusCompleted]

	res := &ExecutionResult{
		Plan:            working,
		TotalDurationMs: elapsed.Milliseconds(),
		Reports:         reports,
	}

	switch {
	case deadlock != nil:
		res.Deadlocked = true
		res.Error = deadlock.Error()
		res.Summary = fmt.Sprintf("Workflow deadlock after %d completed steps: steps %v can never run", completed, deadlock.Pending)
	case len(reports) > 0:
		res.Report = &reports[0]
		res.Error = failureMessage(reports)
		res.Summary = fmt.Sprintf("Workflow execution failed after %d completed steps", completed)
	default:
		if left := unfinished(working); len(left) > 0 {
			res.Error = "steps did not complete: " + strings.Join(left, ", ")
			res.Summary = fmt.Sprintf("Workflow execution failed after %d completed steps", completed)
			break
		}
		res.Success = true
		res.Summary = fmt.Sprintf("Workflow completed successfully (%d/%d steps) in %.1fs", completed, len(working), elapsed.Seconds())
	}

	payload := map[string]any{
		"completed":  completed,
		"total":      len(working),
		"durationMs": res.TotalDurationMs,
	}
	if res.Success {
		s.sink.LogEvent(observability.EventPlanCompleted, payload, res.Summary)
	} else {
		payload["error"] = res.Error
		s.sink.LogEvent(observability.EventPlanFailed, payload, res.Summary)
	}
	return res
}

func failureMessage(reports []governance.ErrorReport) string {
	lines := make([]string, 0, len(reports))
	for _, r := range reports {
		lines = append(lines, fmt.Sprintf("Step %d (%s.%s) failed: %s. Hint: %s",
			r.FailedStep.ID, r.FailedStep.AgentName, r.FailedStep.Command, r.Message, r.RecoveryHint))
	}
	return strings.Join(lines, "\n")
}

// unfinished describes every step that is not completed, such as steps
// handed in already failed or in progress.
func unfinished(p plan.Plan) []string {
	var out []string
	for _, s := range p {
		if s.Status != plan.StatusCompleted {
			out = append(out, fmt.Sprintf("step %d is %s", s.ID, s.Status))
		}
	}
	return out
}

func runnableIndexes(p plan.Plan) []int {
	var idx []int
	for i := range p {
		if plan.IsRunnable(p[i], p) {
			idx = append(idx, i)
		}
	}
	return idx
}

func pendingIDs(p plan.Plan) []int {
	var ids []int
	for _, s := range p {
		if s.Status == plan.StatusPending {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

func transition(step *plan.Step, to plan.Status) {
	if err := plan.Transition(step, to); err != nil {
		log.Printf("Warning: %v", err)
		step.Status = to
	}
}
