package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// APIKeyEnv fills the API key of the default provider when the file leaves it empty.
const APIKeyEnv = "STEPWISE_API_KEY"

type Config struct {
	App       AppConfig                 `json:"app" yaml:"app"`
	Gateways  map[string]GatewayConfig  `json:"gateways" yaml:"gateways"`
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Memory    MemoryConfig              `json:"memory" yaml:"memory"`
	Engine    EngineConfig              `json:"engine" yaml:"engine"`
	Agents    AgentsConfig              `json:"agents" yaml:"agents"`
}

type AppConfig struct {
	Name      string `json:"name" yaml:"name"`
	Workspace string `json:"workspace" yaml:"workspace"`
	Prompts   string `json:"prompts,omitempty" yaml:"prompts,omitempty"`
	LLMLog    string `json:"llm_log,omitempty" yaml:"llm_log,omitempty"`
}

type GatewayConfig struct {
	Token   string `json:"token" yaml:"token"`
	ChatID  string `json:"chat_id" yaml:"chat_id"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

type ProviderConfig struct {
	APIKey      string  `json:"api_key" yaml:"api_key"` // may be a ${ENV_VAR} reference
	Model       string  `json:"model" yaml:"model"`
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	Enabled     bool    `json:"enabled" yaml:"enabled"`
}

type MemoryConfig struct {
	Type string `json:"type" yaml:"type"`
	Path string `json:"path" yaml:"path"`
}

// EngineConfig tunes the scheduler and the revision loop.
type EngineConfig struct {
	StepTimeout         Duration   `json:"step_timeout" yaml:"step_timeout"`
	MaxParallel         int        `json:"max_parallel" yaml:"max_parallel"`
	MaxRevisionAttempts int        `json:"max_revision_attempts" yaml:"max_revision_attempts"`
	TraceMaxAge         Duration   `json:"trace_max_age" yaml:"trace_max_age"`
	Deny                DenyConfig `json:"deny" yaml:"deny"`
}

// DenyConfig lists what the execution policy refuses to run.
// Commands are written as "agent.command".
type DenyConfig struct {
	Agents    []string `json:"agents" yaml:"agents"`
	Commands  []string `json:"commands" yaml:"commands"`
	Arguments []string `json:"arguments" yaml:"arguments"`
}

type AgentsConfig struct {
	Workspace     string `json:"workspace" yaml:"workspace"`
	DesktopURL    string `json:"desktop_url" yaml:"desktop_url"`
	EnableShell   bool   `json:"enable_shell" yaml:"enable_shell"`
	EnableBrowser bool   `json:"enable_browser" yaml:"enable_browser"`
	Headless      bool   `json:"headless" yaml:"headless"`
	SearchResults int    `json:"search_results" yaml:"search_results"`
}

// Duration accepts Go duration strings ("30s") or a number of seconds.
type Duration struct {
	time.Duration
}

func (d *Duration) set(v any) error {
	switch x := v.(type) {
	case nil:
		d.Duration = 0
	case string:
		if x == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", x, err)
		}
		d.Duration = parsed
	case float64:
		d.Duration = time.Duration(x * float64(time.Second))
	case int:
		d.Duration = time.Duration(x) * time.Second
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads a JSON or YAML file, chosen by extension, and fills defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "stepwise"
	}
	if c.App.LLMLog == "" {
		c.App.LLMLog = filepath.Join("logs", "llm.jsonl")
	}
	if c.Agents.Workspace == "" {
		c.Agents.Workspace = c.App.Workspace
	}
	if c.Agents.Workspace == "" {
		c.Agents.Workspace = "."
	}
	if c.Memory.Type == "" {
		c.Memory.Type = "sqlite"
	}
	if c.Engine.MaxRevisionAttempts <= 0 {
		c.Engine.MaxRevisionAttempts = 3
	}
	if c.Engine.TraceMaxAge.Duration <= 0 {
		c.Engine.TraceMaxAge.Duration = 24 * time.Hour
	}

	for name, p := range c.Providers {
		p.APIKey = os.ExpandEnv(p.APIKey)
		c.Providers[name] = p
	}
	if name, p := c.GetDefaultProvider(); name != "" && p.APIKey == "" {
		p.APIKey = os.Getenv(APIKeyEnv)
		c.Providers[name] = p
	}
	for name, g := range c.Gateways {
		g.Token = os.ExpandEnv(g.Token)
		c.Gateways[name] = g
	}
}

// GetDefaultProvider returns the first enabled provider in name order.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p := c.Providers[name]; p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetGateway returns the named gateway config if it is enabled.
func (c *Config) GetGateway(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled {
		return g, true
	}
	return GatewayConfig{}, false
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	return c.GetGateway("telegram")
}

// GetDiscordConfig returns discord config if enabled
func (c *Config) GetDiscordConfig() (GatewayConfig, bool) {
	return c.GetGateway("discord")
}

// SplitCommand splits an "agent.command" deny rule.
func SplitCommand(rule string) (agentName, command string, ok bool) {
	agentName, command, ok = strings.Cut(rule, ".")
	if !ok || agentName == "" || command == "" {
		return "", "", false
	}
	return agentName, command, true
}
