package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventPlanGenerated       EventType = "plan_generated"
	EventStepStarted         EventType = "step_started"
	EventStepCompleted       EventType = "step_completed"
	EventStepFailed          EventType = "step_failed"
	EventPlanCompleted       EventType = "plan_completed"
	EventPlanFailed          EventType = "plan_failed"
	EventRevisionAttempt     EventType = "plan_revision_attempt"
	EventRevisionSuccess     EventType = "plan_revision_success"
	EventRevisionFailed      EventType = "plan_revision_failed"
	EventLLM                 EventType = "llm"
	EventNotificationFailure EventType = "notification_failed"
)

// EventSink accepts structured events. Implementations must not block for long
// and must never panic; callers do not look at the outcome.
type EventSink interface {
	LogEvent(t EventType, payload map[string]any, message string)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) LogEvent(EventType, map[string]any, string) {}

// Event represents a structured log entry.
type Event struct {
	Type      EventType      `json:"type"`
	Message   string         `json:"message,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Logger handles structured logging.
type Logger struct {
	mu         sync.Mutex
	out        io.Writer
	llmLogPath string
	maxSize    int64
}

func NewLogger() *Logger {
	return NewLoggerTo(os.Stdout, filepath.Join("logs", "llm.jsonl"))
}

// NewLoggerTo writes events to out. LLM events are additionally appended to
// llmLogPath unless it is empty.
func NewLoggerTo(out io.Writer, llmLogPath string) *Logger {
	if out == nil {
		out = io.Discard
	}
	return &Logger{
		out:        out,
		llmLogPath: llmLogPath,
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event as one line.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		data = []byte(fmt.Sprintf("{\"type\":%q,\"error\":\"failed to marshal event: %v\"}", evt.Type, err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(data))

	if evt.Type == EventLLM && l.llmLogPath != "" {
		l.writeToFile(data)
	}
}

func (l *Logger) LogEvent(t EventType, payload map[string]any, message string) {
	l.Log(Event{Type: t, Payload: payload, Message: message})
}

func (l *Logger) LogLLM(model, prompt, response string, err error) {
	payload := map[string]any{
		"model":    model,
		"prompt":   prompt,
		"response": response,
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	l.Log(Event{Type: EventLLM, Payload: payload})
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

// Simple rotation: keep one .old file.
func (l *Logger) rotateLogs() {
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}
