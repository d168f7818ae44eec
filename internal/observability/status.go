package observability

import (
	"sync"
	"time"

	"github.com/rahul/stepwise/internal/plan"
)

type Role string

const (
	RoleIdle     Role = "IDLE"
	RoleRunning  Role = "RUNNING"
	RoleRevising Role = "REVISING"
)

// Status tracks what the engine is doing for the CLI status line.
type Status struct {
	mu         sync.RWMutex
	role       Role
	task       string
	wave       int
	counts     map[plan.Status]int
	lastUpdate time.Time
}

func NewStatus() *Status {
	return &Status{role: RoleIdle, lastUpdate: time.Now()}
}

// SetRole updates the current role and task description.
func (s *Status) SetRole(role Role, task string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.role = role
	s.task = task
	s.lastUpdate = time.Now()
}

// Observe records a plan snapshot. It has the signature of a scheduler update callback.
func (s *Status) Observe(p plan.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wave++
	s.counts = plan.Counts(p)
	s.lastUpdate = time.Now()
}

// StatusSnapshot is a point-in-time copy of Status.
type StatusSnapshot struct {
	Role       Role
	Task       string
	Wave       int
	Counts     map[plan.Status]int
	LastUpdate time.Time
}

func (s *Status) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[plan.Status]int, len(s.counts))
	for k, v := range s.counts {
		counts[k] = v
	}
	return StatusSnapshot{
		Role:       s.role,
		Task:       s.task,
		Wave:       s.wave,
		Counts:     counts,
		LastUpdate: s.lastUpdate,
	}
}
