package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rahul/stepwise/internal/governance"
	"github.com/rahul/stepwise/internal/observability"
	"github.com/rahul/stepwise/internal/plan"
	"github.com/rahul/stepwise/internal/trace"
)

func TestOrchestrator_RevisesThenSucceeds(t *testing.T) {
	rec := &recorder{}
	reg := newRegistry(t, map[string]Agent{"filesystem": rec.agent()})
	model := &scriptedLLM{replies: []scriptedReply{
		{text: `[{"id":1,"description":"list","agentName":"filesystem","command":"list","args":{"id":1}}]`},
		{text: "Used the filesystem agent instead."},
	}}
	tracer := trace.NewTracer()
	sink := &observability.MemorySink{}
	status := observability.NewStatus()

	o := NewOrchestrator(
		NewScheduler(reg, WithEventSink(sink)),
		NewReviser(model, WithTracer(tracer), WithRevisionSink(sink), WithAgentNames(reg.Names)),
		tracer,
		sink,
	)
	o.Status = status

	out, err := o.Execute(context.Background(), "list files", plan.Plan{step(1, "fs")}, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !out.Result.Success {
		t.Fatalf("expected success after revision: %+v", out.Result)
	}
	if out.Attempts != 1 || len(out.Revisions) != 1 {
		t.Errorf("attempts=%d revisions=%d", out.Attempts, len(out.Revisions))
	}
	if out.Revisions[0].Explanation != "Used the filesystem agent instead." {
		t.Errorf("explanation = %q", out.Revisions[0].Explanation)
	}

	tr, ok := tracer.GetTrace(out.TraceID)
	if !ok || tr.EndTime == nil {
		t.Fatalf("trace should be closed: %+v", tr)
	}
	ops := make([]trace.Operation, 0, len(tr.Steps))
	for _, s := range tr.Steps {
		ops = append(ops, s.Operation)
	}
	want := []trace.Operation{
		trace.OpPlanGeneration,
		trace.OpPlanExecution,
		trace.OpTemplateOperation,
		trace.OpPlanRevision,
		trace.OpCheckpoint,
		trace.OpPlanExecution,
	}
	if len(ops) != len(want) {
		t.Fatalf("ops = %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("op[%d] = %s, want %s", i, ops[i], want[i])
		}
	}

	if sink.Count(observability.EventPlanGenerated) != 1 || sink.Count(observability.EventPlanFailed) != 1 || sink.Count(observability.EventPlanCompleted) != 1 {
		t.Errorf("unexpected events: %+v", sink.Events())
	}
	snap := status.Snapshot()
	if snap.Role != observability.RoleIdle || snap.Wave != 2 {
		t.Errorf("status = %+v", snap)
	}
}

func TestOrchestrator_FatalFailureIsNotRevised(t *testing.T) {
	rec := &recorder{}
	reg := newRegistry(t, map[string]Agent{"shell": rec.agent()})
	policy := governance.NewDefaultPolicyEngine()
	policy.DenyAgent("shell")
	model := &scriptedLLM{}

	o := NewOrchestrator(NewScheduler(reg, WithPolicy(policy)), NewReviser(model), nil, nil)
	out, err := o.Execute(context.Background(), "rm -rf", plan.Plan{step(1, "shell")}, nil)
	if err != nil {
		t.Fatalf("fatal step failure should be reported in the outcome, got %v", err)
	}
	if out.Result.Success || out.Attempts != 0 {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if model.calls() != 0 {
		t.Error("fatal failures must not reach the model")
	}
}

func TestOrchestrator_RevisionBudgetExhausted(t *testing.T) {
	reg := newRegistry(t, nil)
	broken := `[{"id":1,"agentName":"still-missing","command":"run"}]`
	model := &scriptedLLM{replies: []scriptedReply{
		{text: broken}, {text: "try 1"},
		{text: broken}, {text: "try 2"},
	}}
	tracer := trace.NewTracer()

	o := NewOrchestrator(NewScheduler(reg), NewReviser(model, WithMaxAttempts(2), WithTracer(tracer)), tracer, nil)
	out, err := o.Execute(context.Background(), "req", plan.Plan{step(1, "missing")}, nil)

	var exhausted *RevisionExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected RevisionExhaustedError, got %v", err)
	}
	if exhausted.Attempt != 3 || exhausted.MaxAttempts != 2 {
		t.Errorf("exhausted = %+v", exhausted)
	}
	if out.Attempts != 3 || len(out.Revisions) != 2 {
		t.Errorf("attempts=%d revisions=%d", out.Attempts, len(out.Revisions))
	}
	if model.calls() != 4 {
		t.Errorf("model calls = %d, want 4", model.calls())
	}
	tr, _ := tracer.GetTrace(out.TraceID)
	if !strings.Contains(tr.Summary, "maximum revision attempts exceeded") {
		t.Errorf("summary = %q", tr.Summary)
	}
}

func TestOrchestrator_DeadlockWithoutReviser(t *testing.T) {
	rec := &recorder{}
	reg := newRegistry(t, map[string]Agent{"echo": rec.agent()})
	o := NewOrchestrator(NewScheduler(reg), nil, nil, nil)

	out, err := o.Execute(context.Background(), "req", plan.Plan{step(1, "echo", 2), step(2, "echo", 1)}, nil)
	var deadlock *DeadlockError
	if !errors.As(err, &deadlock) {
		t.Fatalf("expected DeadlockError, got %v", err)
	}
	if out.Result == nil || !out.Result.Deadlocked {
		t.Errorf("outcome should carry the deadlocked result: %+v", out.Result)
	}
}
