package governance

import (
	"context"
	"fmt"
	"regexp"
	"sync"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request describes a step about to be dispatched to an agent.
type Request struct {
	Agent     string
	Command   string
	Arguments string // JSON-encoded step args
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine decides whether a step may be executed.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine denies by agent name, by agent command and by argument pattern.
type DefaultPolicyEngine struct {
	mu             sync.RWMutex
	deniedAgents   map[string]bool
	deniedCommands map[string]bool
	deniedRegex    []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		deniedAgents:   make(map[string]bool),
		deniedCommands: make(map[string]bool),
	}
}

func (e *DefaultPolicyEngine) DenyAgent(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deniedAgents[name] = true
}

// DenyCommand blocks a single command of an agent.
func (e *DefaultPolicyEngine) DenyCommand(agent, command string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deniedCommands[agent+"."+command] = true
}

func (e *DefaultPolicyEngine) DenyArguments(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("governance: compile %q: %w", pattern, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deniedRegex = append(e.deniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.deniedAgents[req.Agent] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("agent '%s' is restricted by system policy", req.Agent),
		}, nil
	}
	if e.deniedCommands[req.Agent+"."+req.Command] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("command '%s' of agent '%s' is restricted by system policy", req.Command, req.Agent),
		}, nil
	}

	for _, re := range e.deniedRegex {
		if re.MatchString(req.Arguments) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("arguments match restricted pattern: %s", re.String()),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "approved by default policy",
	}, nil
}
