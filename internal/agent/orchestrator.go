package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rahul/stepwise/internal/observability"
	"github.com/rahul/stepwise/internal/plan"
	"github.com/rahul/stepwise/internal/trace"
)

// Outcome is everything produced while driving one request to completion.
type Outcome struct {
	TraceID   string           `json:"traceId,omitempty"`
	Result    *ExecutionResult `json:"result"`
	Revisions []Revision       `json:"revisions,omitempty"`
	Attempts  int              `json:"attempts"`
}

// Orchestrator runs a plan and, when the failure is recoverable, feeds it to
// the Reviser and runs the revised plan, until success or the revision budget
// is spent.
type Orchestrator struct {
	Scheduler *Scheduler
	Reviser   *Reviser
	Tracer    *trace.Tracer
	Sink      observability.EventSink
	Status    *observability.Status
}

func NewOrchestrator(s *Scheduler, r *Reviser, t *trace.Tracer, sink observability.EventSink) *Orchestrator {
	if sink == nil {
		sink = observability.NopSink{}
	}
	return &Orchestrator{Scheduler: s, Reviser: r, Tracer: t, Sink: sink}
}

// Execute runs p on behalf of request. Step failures that cannot be revised
// are returned in the outcome with a nil error; revision errors and
// unrevisable deadlocks are returned as errors alongside the last outcome.
func (o *Orchestrator) Execute(ctx context.Context, request string, p plan.Plan, onUpdate UpdateFunc) (*Outcome, error) {
	out := &Outcome{}
	if o.Tracer != nil {
		out.TraceID = o.Tracer.StartTrace(uuid.NewString())
	}

	o.Sink.LogEvent(observability.EventPlanGenerated, map[string]any{
		"steps":   len(p),
		"request": request,
		"traceId": out.TraceID,
	}, fmt.Sprintf("Plan with %d steps submitted", len(p)))
	o.addStep(out.TraceID, trace.OpPlanGeneration, trace.Details{
		Prompt: request,
		Result: p.Clone(),
	})

	update := onUpdate
	if o.Status != nil {
		o.Status.SetRole(observability.RoleRunning, request)
		defer o.Status.SetRole(observability.RoleIdle, "")
		update = func(snap plan.Plan) {
			o.Status.Observe(snap)
			if onUpdate != nil {
				onUpdate(snap)
			}
		}
	}

	current := p
	for {
		res, err := o.Scheduler.Run(ctx, current, update)
		out.Result = res
		o.recordRun(out.TraceID, res, err)

		if err == nil && res.Success {
			o.end(out.TraceID, res.Summary)
			return out, nil
		}

		var deadlock *DeadlockError
		if err != nil && !errors.As(err, &deadlock) {
			o.end(out.TraceID, res.Summary)
			return out, err
		}

		if o.Reviser == nil || !res.Recoverable() || ctx.Err() != nil {
			o.end(out.TraceID, res.Summary)
			return out, err
		}

		out.Attempts++
		if o.Status != nil {
			o.Status.SetRole(observability.RoleRevising, request)
		}
		rev, rerr := o.Reviser.Revise(ctx, request, res.Plan, res.Error, out.Attempts, RevisionOptions{TraceID: out.TraceID})
		if rerr != nil {
			o.end(out.TraceID, fmt.Sprintf("%s; revision failed: %v", res.Summary, rerr))
			return out, rerr
		}
		if o.Status != nil {
			o.Status.SetRole(observability.RoleRunning, request)
		}

		out.Revisions = append(out.Revisions, *rev)
		o.addStep(out.TraceID, trace.OpCheckpoint, trace.Details{
			Explanation: rev.Explanation,
			Metadata:    map[string]any{"attempt": out.Attempts, "steps": len(rev.Plan)},
		})
		current = rev.Plan
	}
}

func (o *Orchestrator) recordRun(traceID string, res *ExecutionResult, err error) {
	d := trace.Details{
		Result: res.Summary,
		Metadata: map[string]any{
			"success":    res.Success,
			"durationMs": res.TotalDurationMs,
			"counts":     plan.Counts(res.Plan),
		},
	}
	switch {
	case err != nil:
		d.Error = err.Error()
	case res.Error != "":
		d.Error = res.Error
	}
	o.addStep(traceID, trace.OpPlanExecution, d)
}

func (o *Orchestrator) addStep(traceID string, op trace.Operation, d trace.Details) {
	if o.Tracer == nil || traceID == "" {
		return
	}
	o.Tracer.AddStep(traceID, op, d)
}

func (o *Orchestrator) end(traceID, summary string) {
	if o.Tracer == nil || traceID == "" {
		return
	}
	o.Tracer.EndTrace(traceID, summary)
}
