package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"

	"github.com/rahul/stepwise/internal/agent"
	"github.com/rahul/stepwise/internal/gateway"
	"github.com/rahul/stepwise/internal/governance"
	"github.com/rahul/stepwise/internal/llm"
	"github.com/rahul/stepwise/internal/observability"
	"github.com/rahul/stepwise/internal/store"
	"github.com/rahul/stepwise/internal/tools"
	"github.com/rahul/stepwise/pkg/config"
)

// defaultDenyArguments blocks destructive shell commands regardless of config.
var defaultDenyArguments = []string{`rm\s+-rf`, `mkfs`, `shutdown`, `reboot`}

// app holds the wired components shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *observability.Logger
	registry *agent.Registry
	archive  *store.TraceArchive
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !rootCmd.PersistentFlags().Changed("config") {
		log.Printf("No config file at %s, using defaults", configPath)
		return config.Default(), nil
	}
	return nil, err
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	var out io.Writer = os.Stderr
	if quiet {
		out = io.Discard
	}
	a := &app{
		cfg:      cfg,
		logger:   observability.NewLoggerTo(out, cfg.App.LLMLog),
		registry: agent.NewRegistry(),
	}

	err = tools.RegisterDefaults(a.registry, tools.Settings{
		Workspace:     cfg.Agents.Workspace,
		DesktopURL:    cfg.Agents.DesktopURL,
		EnableShell:   cfg.Agents.EnableShell,
		EnableBrowser: cfg.Agents.EnableBrowser,
		Headless:      cfg.Agents.Headless,
		SearchResults: cfg.Agents.SearchResults,
	})
	if err != nil {
		return nil, fmt.Errorf("register agents: %w", err)
	}
	return a, nil
}

// openArchive opens the sqlite trace archive when memory.path is configured.
func (a *app) openArchive() (*store.TraceArchive, error) {
	if a.archive != nil {
		return a.archive, nil
	}
	if a.cfg.Memory.Path == "" {
		return nil, nil
	}
	archive, err := store.NewTraceArchive(a.cfg.Memory.Path)
	if err != nil {
		return nil, err
	}
	a.archive = archive
	return archive, nil
}

func (a *app) policy() (*governance.DefaultPolicyEngine, error) {
	gov := governance.NewDefaultPolicyEngine()
	deny := a.cfg.Engine.Deny
	for _, name := range deny.Agents {
		gov.DenyAgent(name)
	}
	for _, rule := range deny.Commands {
		agentName, command, ok := config.SplitCommand(rule)
		if !ok {
			return nil, fmt.Errorf("invalid deny command %q, want agent.command", rule)
		}
		gov.DenyCommand(agentName, command)
	}
	for _, pattern := range append(append([]string(nil), defaultDenyArguments...), deny.Arguments...) {
		if err := gov.DenyArguments(pattern); err != nil {
			return nil, err
		}
	}
	return gov, nil
}

// completer builds the revision model from the default provider. It returns
// nil when no provider is enabled.
func (a *app) completer() (llm.Completer, config.ProviderConfig, error) {
	name, p := a.cfg.GetDefaultProvider()
	if name == "" {
		return nil, p, nil
	}
	model, err := llm.NewModel(name, llm.ProviderSettings{
		APIKey:  p.APIKey,
		Model:   p.Model,
		BaseURL: p.BaseURL,
	})
	if err != nil {
		return nil, p, fmt.Errorf("provider %s: %w", name, err)
	}
	return llm.NewLangChain(model, a.logger), p, nil
}

func (a *app) notifiers() *gateway.Broadcast {
	b := gateway.NewBroadcast(a.logger)
	if tg, ok := a.cfg.GetTelegramConfig(); ok {
		gw, err := gateway.NewTelegramGateway(tg.Token)
		if err != nil {
			log.Printf("Warning: telegram gateway disabled: %v", err)
		} else {
			b.Add("telegram", gw, tg.ChatID)
		}
	}
	if dc, ok := a.cfg.GetDiscordConfig(); ok {
		gw, err := gateway.NewDiscordGateway(dc.Token)
		if err != nil {
			log.Printf("Warning: discord gateway disabled: %v", err)
		} else {
			b.Add("discord", gw, dc.ChatID)
		}
	}
	return b
}

func (a *app) close() {
	if browser, ok := a.registry.Resolve("browser"); ok {
		if c, ok := browser.(interface{ Close() }); ok {
			c.Close()
		}
	}
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			log.Printf("Warning: failed to close trace archive: %v", err)
		}
	}
}
