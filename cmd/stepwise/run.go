package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rahul/stepwise/internal/agent"
	"github.com/rahul/stepwise/internal/gateway"
	"github.com/rahul/stepwise/internal/observability"
	"github.com/rahul/stepwise/internal/plan"
	"github.com/rahul/stepwise/internal/trace"
	"github.com/spf13/cobra"
)

var (
	runRequest  string
	runNoRevise bool
	runNotify   bool
)

var errWorkflowFailed = errors.New("workflow failed")

var runCmd = &cobra.Command{
	Use:   "run <plan-file>",
	Short: "Execute a workflow plan, revising it on recoverable failures",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runPlan(ctx, args[0])
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <plan-file>",
	Short: "Check a workflow plan without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		return validatePlan(a, args[0])
	},
}

func init() {
	runCmd.Flags().StringVarP(&runRequest, "request", "r", "", "Request text passed to the revision model (defaults to the plan's request)")
	runCmd.Flags().BoolVar(&runNoRevise, "no-revise", false, "Do not ask the model to revise a failed plan")
	runCmd.Flags().BoolVar(&runNotify, "notify", true, "Send the outcome to the enabled gateways")
}

func runPlan(ctx context.Context, path string) error {
	doc, err := plan.LoadFile(path)
	if err != nil {
		return err
	}
	request := doc.Request
	if runRequest != "" {
		request = runRequest
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	interactive := observability.IsTerminal() && !quiet
	if interactive {
		observability.PrintBanner(os.Stderr)
	}

	gov, err := a.policy()
	if err != nil {
		return err
	}
	scheduler := agent.NewScheduler(a.registry,
		agent.WithPolicy(gov),
		agent.WithEventSink(a.logger),
		agent.WithStepTimeout(a.cfg.Engine.StepTimeout.Duration),
		agent.WithMaxParallel(a.cfg.Engine.MaxParallel),
	)

	tracer := trace.NewTracer()
	archive, err := a.openArchive()
	if err != nil {
		return err
	}
	if archive != nil {
		tracer.WithArchive(archive)
	}

	var reviser *agent.Reviser
	if !runNoRevise {
		completer, provider, err := a.completer()
		if err != nil {
			return err
		}
		if completer == nil {
			log.Printf("No enabled provider, failed plans will not be revised")
		} else {
			reviser = agent.NewReviser(completer,
				agent.WithPrompts(agent.NewPromptManager(a.cfg.App.Prompts)),
				agent.WithTracer(tracer),
				agent.WithRevisionSink(a.logger),
				agent.WithAgentNames(a.registry.Names),
				agent.WithMaxAttempts(a.cfg.Engine.MaxRevisionAttempts),
				agent.WithModel(provider.Model, provider.Temperature),
			)
		}
	}

	orch := agent.NewOrchestrator(scheduler, reviser, tracer, a.logger)
	orch.Status = observability.NewStatus()

	var onUpdate agent.UpdateFunc
	if interactive {
		onUpdate = func(plan.Plan) {
			fmt.Fprintln(os.Stderr, observability.StatusLine(orch.Status.Snapshot()))
		}
	}

	out, runErr := orch.Execute(ctx, request, doc.Steps, onUpdate)
	report := gateway.FormatOutcome(request, out)
	fmt.Println(report)

	if runNotify {
		if b := a.notifiers(); b.Len() > 0 {
			if err := b.Notify(report); err != nil {
				log.Printf("Warning: notification failed: %v", err)
			}
		}
	}

	prune(ctx, a, tracer)

	if runErr != nil {
		return runErr
	}
	if out.Result == nil || !out.Result.Success {
		return errWorkflowFailed
	}
	return nil
}

// prune drops traces older than the configured age from memory and the archive.
func prune(ctx context.Context, a *app, tracer *trace.Tracer) {
	maxAge := a.cfg.Engine.TraceMaxAge.Duration
	if maxAge <= 0 {
		maxAge = trace.DefaultMaxAge
	}
	tracer.Cleanup(maxAge)
	if a.archive == nil {
		return
	}
	if _, err := a.archive.DeleteOlderThan(ctx, time.Now().Add(-maxAge)); err != nil {
		log.Printf("Warning: failed to prune trace archive: %v", err)
	}
}

// validatePlan reports problems a run would hit: unknown agents and
// dependencies that can never be satisfied.
func validatePlan(a *app, path string) error {
	doc, err := plan.LoadFile(path)
	if err != nil {
		return err
	}

	var problems []string
	for _, st := range doc.Steps {
		if _, ok := a.registry.Resolve(st.AgentName); !ok {
			problems = append(problems, fmt.Sprintf("step %d: %s", st.ID, (&agent.AgentNotFoundError{Name: st.AgentName}).Error()))
		}
		for _, dep := range st.Dependencies {
			if doc.Steps.Find(dep) < 0 {
				problems = append(problems, fmt.Sprintf("step %d: depends on unknown step %d", st.ID, dep))
			}
		}
	}
	if cycle := findCycle(doc.Steps); len(cycle) > 0 {
		problems = append(problems, fmt.Sprintf("circular dependency between steps %v", cycle))
	}

	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Println("  -", p)
		}
		return fmt.Errorf("%s: %d problem(s)", path, len(problems))
	}
	fmt.Printf("%s: %d steps OK\n", path, len(doc.Steps))
	return nil
}

// findCycle returns the ids on one dependency cycle, or nil.
func findCycle(p plan.Plan) []int {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[int]int, len(p))
	var stack []int
	var cycle []int

	var visit func(id int) bool
	visit = func(id int) bool {
		idx := p.Find(id)
		if idx < 0 {
			return false
		}
		switch state[id] {
		case visiting:
			for i := len(stack) - 1; i >= 0; i-- {
				cycle = append([]int{stack[i]}, cycle...)
				if stack[i] == id {
					break
				}
			}
			return true
		case done:
			return false
		}
		state[id] = visiting
		stack = append(stack, id)
		for _, dep := range p[idx].Dependencies {
			if visit(dep) {
				return true
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return false
	}

	for _, st := range p {
		if visit(st.ID) {
			return cycle
		}
	}
	return nil
}
