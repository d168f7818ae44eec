package observability

import (
	"sync"
	"time"
)

// MemorySink keeps events in memory. Useful for tests and for replaying a run's
// events into a notification.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemorySink) LogEvent(t EventType, payload map[string]any, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Event{Type: t, Payload: payload, Message: message, Timestamp: time.Now()})
}

// Events returns a copy of the recorded events.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Count returns how many events of type t were recorded.
func (m *MemorySink) Count(t EventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// Fanout forwards every event to each sink.
type Fanout []EventSink

func (f Fanout) LogEvent(t EventType, payload map[string]any, message string) {
	for _, s := range f {
		if s != nil {
			s.LogEvent(t, payload, message)
		}
	}
}
