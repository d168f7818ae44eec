package trace

import (
	"context"
	"log"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxAge is how long callers keep traces when no age is configured.
const DefaultMaxAge = 24 * time.Hour

// Operation classifies a trace step.
type Operation string

const (
	OpPlanGeneration    Operation = "plan_generation"
	OpPlanExecution     Operation = "plan_execution"
	OpPlanRevision      Operation = "plan_revision"
	OpCheckpoint        Operation = "checkpoint"
	OpTemplateOperation Operation = "template_operation"
)

// Details carries the payload of a trace step. All fields are optional.
type Details struct {
	Prompt      string         `json:"prompt,omitempty"`
	Result      any            `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Explanation string         `json:"explanation,omitempty"`
}

// Step is one recorded operation.
type Step struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Operation Operation `json:"operation"`
	Details   Details   `json:"details"`
}

// Trace is the ordered history of one logical request.
type Trace struct {
	ID        string     `json:"id"`
	RequestID string     `json:"requestId"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Steps     []Step     `json:"steps"`
	Summary   string     `json:"summary,omitempty"`
}

// Archive receives traces when they end.
type Archive interface {
	SaveTrace(ctx context.Context, tr Trace) error
}

// Tracer is an in-memory trace store safe for concurrent use.
type Tracer struct {
	mu      sync.RWMutex
	traces  map[string]*Trace
	archive Archive
	now     func() time.Time
}

func NewTracer() *Tracer {
	return &Tracer{traces: make(map[string]*Trace), now: time.Now}
}

// WithArchive mirrors ended traces to a. Archive failures are logged, not returned.
func (t *Tracer) WithArchive(a Archive) *Tracer {
	t.archive = a
	return t
}

func (t *Tracer) StartTrace(requestID string) string {
	id := uuid.NewString()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.traces[id] = &Trace{
		ID:        id,
		RequestID: requestID,
		StartTime: t.now(),
		Steps:     []Step{},
	}
	return id
}

// AddStep appends an operation to a trace. Unknown trace ids are ignored with a warning.
func (t *Tracer) AddStep(traceID string, op Operation, details Details) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.traces[traceID]
	if !ok {
		log.Printf("Warning: trace %s not found, dropping %s step", traceID, op)
		return
	}
	tr.Steps = append(tr.Steps, Step{
		ID:        uuid.NewString(),
		Timestamp: t.now(),
		Operation: op,
		Details:   copyDetails(details),
	})
}

// EndTrace closes a trace and returns a copy of it.
func (t *Tracer) EndTrace(traceID string, summary string) (Trace, bool) {
	t.mu.Lock()
	tr, ok := t.traces[traceID]
	if !ok {
		t.mu.Unlock()
		log.Printf("Warning: trace %s not found, cannot end it", traceID)
		return Trace{}, false
	}
	end := t.now()
	tr.EndTime = &end
	if summary != "" {
		tr.Summary = summary
	}
	out := copyTrace(tr)
	t.mu.Unlock()

	if t.archive != nil {
		if err := t.archive.SaveTrace(context.Background(), out); err != nil {
			log.Printf("Warning: failed to archive trace %s: %v", traceID, err)
		}
	}
	return out, true
}

func (t *Tracer) GetTrace(traceID string) (Trace, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tr, ok := t.traces[traceID]
	if !ok {
		return Trace{}, false
	}
	return copyTrace(tr), true
}

// GetRecentTraces returns up to n traces, newest first.
func (t *Tracer) GetRecentTraces(n int) []Trace {
	t.mu.RLock()
	out := make([]Trace, 0, len(t.traces))
	for _, tr := range t.traces {
		out = append(out, copyTrace(tr))
	}
	t.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func (t *Tracer) DeleteTrace(traceID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.traces[traceID]; !ok {
		return false
	}
	delete(t.traces, traceID)
	return true
}

// Cleanup removes traces that started more than maxAge ago and returns how many
// were removed. Cleanup(0) removes every trace started before now.
func (t *Tracer) Cleanup(maxAge time.Duration) int {
	threshold := t.now().Add(-maxAge)

	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, tr := range t.traces {
		if tr.StartTime.Before(threshold) {
			delete(t.traces, id)
			removed++
		}
	}
	return removed
}

func copyTrace(in *Trace) Trace {
	out := *in
	if in.EndTime != nil {
		end := *in.EndTime
		out.EndTime = &end
	}
	out.Steps = make([]Step, len(in.Steps))
	for i, s := range in.Steps {
		s.Details = copyDetails(s.Details)
		out.Steps[i] = s
	}
	return out
}

func copyDetails(in Details) Details {
	out := in
	out.Result = copyValue(in.Result)
	if in.Metadata != nil {
		out.Metadata = copyMap(in.Metadata)
	}
	return out
}

// copyValue returns a deep copy of v with the same dynamic type. Unexported
// struct fields are copied shallowly.
func copyValue(v any) any {
	if v == nil {
		return nil
	}
	return deepCopy(reflect.ValueOf(v)).Interface()
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func deepCopy(rv reflect.Value) reflect.Value {
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return rv
		}
		out := reflect.New(rv.Elem().Type())
		out.Elem().Set(deepCopy(rv.Elem()))
		return out
	case reflect.Interface:
		if rv.IsNil() {
			return rv
		}
		out := reflect.New(rv.Type()).Elem()
		out.Set(deepCopy(rv.Elem()))
		return out
	case reflect.Map:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
		}
		return out
	case reflect.Slice:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(deepCopy(rv.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(rv.Type()).Elem()
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(deepCopy(rv.Index(i)))
		}
		return out
	case reflect.Struct:
		out := reflect.New(rv.Type()).Elem()
		out.Set(rv)
		for i := 0; i < rv.NumField(); i++ {
			if f := out.Field(i); f.CanSet() {
				f.Set(deepCopy(rv.Field(i)))
			}
		}
		return out
	}
	return rv
}
