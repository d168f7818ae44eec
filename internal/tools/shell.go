package tools

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rahul/stepwise/internal/agent"
)

// ShellAgent runs commands through bash in Dir.
type ShellAgent struct {
	Dir string
}

func NewShellAgent(dir string) *ShellAgent {
	return &ShellAgent{Dir: dir}
}

func (s *ShellAgent) Description() string {
	return "Execute system shell commands. Command: run. Args: command."
}

// ShellResult is the result of a successful run.
type ShellResult struct {
	Output   string `json:"output"`
	ExitCode int    `json:"exitCode"`
}

func (s *ShellAgent) Execute(ctx context.Context, req agent.Request) (any, error) {
	if req.Command != "run" {
		return nil, unknownCommand("shell", req.Command)
	}
	line, err := stringArg(req.Args, "command")
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "bash", "-c", line)
	cmd.Dir = s.Dir
	output, err := cmd.CombinedOutput()

	result := strings.TrimSpace(string(output))
	if result == "" {
		result = "(no output)"
	}

	if err != nil {
		return nil, fmt.Errorf("command failed with error: %v\nOutput: %s", err, result)
	}
	return ShellResult{Output: result, ExitCode: cmd.ProcessState.ExitCode()}, nil
}
