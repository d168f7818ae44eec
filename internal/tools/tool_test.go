package tools

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/rahul/stepwise/internal/agent"
)

func TestIntArg(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]any
		want    int
		wantErr bool
	}{
		{"missing uses default", map[string]any{}, 7, false},
		{"json number", map[string]any{"n": float64(3)}, 3, false},
		{"go int", map[string]any{"n": 4}, 4, false},
		{"numeric string", map[string]any{"n": "5"}, 5, false},
		{"fraction", map[string]any{"n": 1.5}, 0, true},
		{"bool", map[string]any{"n": true}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := intArg(tt.args, "n", 7)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
			if err != nil && !strings.Contains(err.Error(), "invalid value") {
				t.Errorf("error should mention invalid value: %v", err)
			}
		})
	}
}

func TestRegisterDefaults(t *testing.T) {
	reg := agent.NewRegistry()
	err := RegisterDefaults(reg, Settings{Workspace: t.TempDir(), EnableShell: true, DesktopURL: DefaultDesktopURL})
	if err != nil {
		t.Fatal(err)
	}
	names := strings.Join(reg.Names(), ",")
	if names != "desktop,filesystem,shell,web" {
		t.Errorf("names = %s", names)
	}
}

func TestShellAgent(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	dir := t.TempDir()
	sh := NewShellAgent(dir)
	ctx := context.Background()

	res, err := sh.Execute(ctx, agent.Request{Command: "run", Args: map[string]any{"command": "pwd"}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out := res.(ShellResult); !strings.HasSuffix(out.Output, dir[strings.LastIndex(dir, "/")+1:]) || out.ExitCode != 0 {
		t.Errorf("result = %+v", out)
	}

	_, err = sh.Execute(ctx, agent.Request{Command: "run", Args: map[string]any{"command": "echo oops; exit 3"}})
	if err == nil || !strings.Contains(err.Error(), "oops") {
		t.Errorf("failing command: %v", err)
	}

	if _, err := sh.Execute(ctx, agent.Request{Command: "exec"}); err == nil || !strings.Contains(err.Error(), "command not found") {
		t.Errorf("unknown command: %v", err)
	}
}
