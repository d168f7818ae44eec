package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rahul/stepwise/internal/trace"
)

func newTestArchive(t *testing.T) *TraceArchive {
	t.Helper()
	a, err := NewTraceArchive(filepath.Join(t.TempDir(), "traces.db"))
	if err != nil {
		t.Fatalf("NewTraceArchive: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestTraceArchive_SaveAndGet(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(5 * time.Second)
	tr := trace.Trace{
		ID:        "t1",
		RequestID: "r1",
		StartTime: start,
		EndTime:   &end,
		Summary:   "ok",
		Steps: []trace.Step{
			{ID: "s1", Timestamp: start, Operation: trace.OpPlanExecution, Details: trace.Details{Error: "boom"}},
		},
	}
	if err := a.SaveTrace(ctx, tr); err != nil {
		t.Fatalf("SaveTrace: %v", err)
	}

	got, ok, err := a.GetTrace(ctx, "t1")
	if err != nil || !ok {
		t.Fatalf("GetTrace: ok=%v err=%v", ok, err)
	}
	if got.RequestID != "r1" || got.Summary != "ok" {
		t.Errorf("unexpected trace: %+v", got)
	}
	if !got.StartTime.Equal(start) || got.EndTime == nil || !got.EndTime.Equal(end) {
		t.Errorf("times not preserved: %v %v", got.StartTime, got.EndTime)
	}
	if len(got.Steps) != 1 || got.Steps[0].Details.Error != "boom" {
		t.Errorf("steps not preserved: %+v", got.Steps)
	}

	if _, ok, err := a.GetTrace(ctx, "missing"); ok || err != nil {
		t.Errorf("missing trace: ok=%v err=%v", ok, err)
	}
}

func TestTraceArchive_ListAndDelete(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		tr := trace.Trace{ID: id, StartTime: base.Add(time.Duration(i) * time.Hour)}
		if err := a.SaveTrace(ctx, tr); err != nil {
			t.Fatal(err)
		}
	}

	list, err := a.ListTraces(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "c" || list[1].ID != "b" {
		t.Errorf("unexpected order: %+v", list)
	}

	n, err := a.DeleteOlderThan(ctx, base.Add(90*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}
}

func TestTraceArchive_SubsecondOrdering(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	whole := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	half := whole.Add(500 * time.Millisecond)

	for id, start := range map[string]time.Time{"whole": whole, "half": half} {
		if err := a.SaveTrace(ctx, trace.Trace{ID: id, StartTime: start}); err != nil {
			t.Fatal(err)
		}
	}

	list, err := a.ListTraces(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "half" || list[1].ID != "whole" {
		t.Errorf("order = %+v, want half before whole", list)
	}

	n, err := a.DeleteOlderThan(ctx, whole.Add(250*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("deleted %d, want 1", n)
	}
	if _, ok, _ := a.GetTrace(ctx, "half"); !ok {
		t.Error("trace after the cutoff should remain")
	}
}
