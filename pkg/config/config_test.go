package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_JSON(t *testing.T) {
	t.Setenv("TG_TOKEN", "secret-token")
	path := writeFile(t, "config.json", `{
		"app": {"name": "demo", "workspace": "/tmp/ws"},
		"providers": {
			"openai": {"api_key": "sk-test", "model": "gpt-4o-mini", "enabled": true},
			"ollama": {"model": "llama3", "enabled": false}
		},
		"gateways": {"telegram": {"token": "${TG_TOKEN}", "chat_id": "42", "enabled": true}},
		"memory": {"path": "stepwise.db"},
		"engine": {"step_timeout": "30s", "max_parallel": 4, "deny": {"agents": ["shell"], "commands": ["filesystem.delete"]}}
	}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.App.Name != "demo" || cfg.Agents.Workspace != "/tmp/ws" {
		t.Errorf("app = %+v agents = %+v", cfg.App, cfg.Agents)
	}
	if cfg.Engine.StepTimeout.Duration != 30*time.Second || cfg.Engine.MaxParallel != 4 {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.Engine.MaxRevisionAttempts != 3 || cfg.Engine.TraceMaxAge.Duration != 24*time.Hour {
		t.Errorf("defaults not applied: %+v", cfg.Engine)
	}
	name, p := cfg.GetDefaultProvider()
	if name != "openai" || p.APIKey != "sk-test" {
		t.Errorf("default provider = %s %+v", name, p)
	}
	tg, ok := cfg.GetTelegramConfig()
	if !ok || tg.Token != "secret-token" || tg.ChatID != "42" {
		t.Errorf("telegram = %+v %v", tg, ok)
	}
	if _, ok := cfg.GetDiscordConfig(); ok {
		t.Error("discord should be disabled")
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	t.Setenv(APIKeyEnv, "from-env")
	path := writeFile(t, "config.yaml", `
app:
  name: yaml-demo
providers:
  anthropic:
    model: claude-test
    enabled: true
engine:
  step_timeout: 90
  max_revision_attempts: 5
  trace_max_age: 2h
agents:
  workspace: ./work
  desktop_url: http://127.0.0.1:8765
  enable_shell: true
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Engine.StepTimeout.Duration != 90*time.Second {
		t.Errorf("step timeout = %v", cfg.Engine.StepTimeout)
	}
	if cfg.Engine.MaxRevisionAttempts != 5 || cfg.Engine.TraceMaxAge.Duration != 2*time.Hour {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.Agents.Workspace != "./work" || !cfg.Agents.EnableShell || cfg.Agents.DesktopURL == "" {
		t.Errorf("agents = %+v", cfg.Agents)
	}
	if _, p := cfg.GetDefaultProvider(); p.APIKey != "from-env" {
		t.Errorf("api key should come from %s, got %q", APIKeyEnv, p.APIKey)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadConfig(writeFile(t, "bad.json", `{"engine": {"step_timeout": "soon"}}`)); err == nil {
		t.Error("expected error for bad duration")
	}
}

func TestDefaultAndSplitCommand(t *testing.T) {
	cfg := Default()
	if cfg.Agents.Workspace != "." || cfg.Memory.Type != "sqlite" {
		t.Errorf("defaults = %+v", cfg)
	}

	a, c, ok := SplitCommand("filesystem.delete")
	if !ok || a != "filesystem" || c != "delete" {
		t.Errorf("split = %s %s %v", a, c, ok)
	}
	if _, _, ok := SplitCommand("nodot"); ok {
		t.Error("rule without a dot should be rejected")
	}
}
