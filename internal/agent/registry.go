package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Request is what a step hands to its agent.
type Request struct {
	Command string         `json:"command"`
	Args    map[string]any `json:"args"`
}

// Agent executes commands on behalf of plan steps. The returned value must be
// JSON-serialisable; it becomes the step result.
type Agent interface {
	Execute(ctx context.Context, req Request) (any, error)
}

// AgentFunc adapts a function to the Agent interface.
type AgentFunc func(ctx context.Context, req Request) (any, error)

func (f AgentFunc) Execute(ctx context.Context, req Request) (any, error) {
	return f(ctx, req)
}

// Describer is implemented by agents that can describe themselves.
type Describer interface {
	Description() string
}

// Registry stores agents by name. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

func (r *Registry) Register(name string, a Agent) error {
	if name == "" {
		return ErrEmptyAgentName
	}
	if a == nil {
		return ErrNilAgent
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, name)
	}
	r.agents[name] = a
	return nil
}

// Resolve returns the agent registered under name.
func (r *Registry) Resolve(name string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	return a, ok
}

// Names returns the registered agent names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for n := range r.agents {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
