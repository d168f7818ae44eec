package tools

import (
	"fmt"
	"math"
	"strconv"

	"github.com/rahul/stepwise/internal/agent"
)

// Settings selects and configures the built-in agents.
type Settings struct {
	Workspace     string
	DesktopURL    string
	EnableShell   bool
	EnableBrowser bool
	Headless      bool
	SearchResults int
}

// RegisterDefaults registers every built-in agent enabled by s.
func RegisterDefaults(reg *agent.Registry, s Settings) error {
	if err := reg.Register("filesystem", NewFilesystemAgent(s.Workspace)); err != nil {
		return err
	}

	web, err := NewWebAgent(s.SearchResults)
	if err != nil {
		return fmt.Errorf("web agent: %w", err)
	}
	if err := reg.Register("web", web); err != nil {
		return err
	}

	if s.EnableShell {
		if err := reg.Register("shell", NewShellAgent(s.Workspace)); err != nil {
			return err
		}
	}
	if s.EnableBrowser {
		if err := reg.Register("browser", NewBrowserAgent(s.Headless)); err != nil {
			return err
		}
	}
	if s.DesktopURL != "" {
		if err := reg.Register("desktop", NewDesktopAgent(s.DesktopURL, nil)); err != nil {
			return err
		}
	}
	return nil
}

func unknownCommand(agentName, command string) error {
	return fmt.Errorf("command not found: %q is not supported by %s", command, agentName)
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", fmt.Errorf("missing required parameter: %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("invalid value for %s: expected string, got %T", key, v)
	}
	if s == "" {
		return "", fmt.Errorf("missing required parameter: %s", key)
	}
	return s, nil
}

func optionalString(args map[string]any, key, def string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("invalid value for %s: expected string, got %T", key, v)
	}
	return s, nil
}

// numberArg accepts the numeric shapes produced by JSON, YAML and Go callers.
func numberArg(args map[string]any, key string) (float64, bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case float32:
		return float64(n), true, nil
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false, fmt.Errorf("invalid value for %s: %q is not a number", key, n)
		}
		return f, true, nil
	default:
		return 0, false, fmt.Errorf("invalid value for %s: expected number, got %T", key, v)
	}
}

func intArg(args map[string]any, key string, def int) (int, error) {
	f, ok, err := numberArg(args, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid value for %s: %v is not an integer", key, f)
	}
	return int(f), nil
}
