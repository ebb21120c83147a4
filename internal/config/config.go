package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
)

// Config is the root configuration for kirabridge.
type Config struct {
	General   GeneralConfig   `json:"general"`
	Server    ServerConfig    `json:"server"`
	Memory    MemoryConfig    `json:"memory"`
	Personas  PersonasConfig  `json:"personas"`
	OneFlow   OneFlowConfig   `json:"oneflow"`
	Assembler AssemblerConfig `json:"assembler"`
	Agent     AgentConfig     `json:"agent"`
	Slack     SlackConfig     `json:"slack"`
	Metrics   MetricsConfig   `json:"metrics"`
	MCP       MCPConfig       `json:"mcp"`
}

type GeneralConfig struct {
	LogLevel   string `json:"logLevel"`
	LogFile    string `json:"logFile"`
	BasePrompt string `json:"basePrompt"` // system prompt the persona overlay is appended to
}

// ServerConfig configures the HTTP chat API and the desktop websocket.
type ServerConfig struct {
	Enabled    bool   `json:"enabled"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	WSPath     string `json:"wsPath"`
	BusBuffer  int    `json:"busBuffer"`
	MaxBodyKiB int    `json:"maxBodyKiB"`
}

type MemoryConfig struct {
	Enabled     bool   `json:"enabled"`
	DBPath      string `json:"dbPath"`
	SearchLimit int    `json:"searchLimit"`
	Extract     bool   `json:"extract"` // save facts stated in inbound messages
}

type PersonasConfig struct {
	Dir     string `json:"dir"`
	Default string `json:"default"`
	Watch   bool   `json:"watch"`
}

// OneFlowConfig configures the project/task context source.
type OneFlowConfig struct {
	Enabled        bool   `json:"enabled"`
	Mocked         bool   `json:"mocked"`
	APIBase        string `json:"apiBase"`
	APIKey         string `json:"apiKey"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type AssemblerConfig struct {
	SourceTimeoutMs int  `json:"sourceTimeoutMs"`
	Concurrent      bool `json:"concurrent"`
}

// AgentConfig selects the downstream agent. Mode "context" replies with the
// assembled context; "openai" calls an OpenAI-compatible chat completions API.
type AgentConfig struct {
	Mode          string  `json:"mode"`
	APIBase       string  `json:"apiBase"`
	APIKey        string  `json:"apiKey"`
	Model         string  `json:"model"`
	MaxTokens     int     `json:"maxTokens"`
	Temperature   float64 `json:"temperature"`
	TimeoutSecs   int     `json:"timeoutSeconds"`
	RatePerMinute float64 `json:"ratePerMinute"`
	Concurrency   int     `json:"concurrency"`
}

type SlackConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"botToken"`
	AppToken string `json:"appToken"` // required for Socket Mode
	Persona  string `json:"persona"`  // overrides personas.default for Slack messages
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// MCPConfig toggles the stdio MCP tool server.
type MCPConfig struct {
	Enabled bool `json:"enabled"`
}

// DefaultConfigDir returns the default config directory (~/.kirabridge).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kirabridge"
	}
	return filepath.Join(home, ".kirabridge")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a JSON config file. Comments and trailing commas are allowed,
// and ${VAR} / ${VAR:-default} references are expanded before parsing.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	data = jsonc.ToJSON([]byte(ExpandEnvVars(string(data))))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Memory.DBPath = ExpandPath(cfg.Memory.DBPath)
	cfg.Personas.Dir = ExpandPath(cfg.Personas.Dir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, or returns Defaults when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(ExpandPath(path)); os.IsNotExist(err) {
		cfg := Defaults()
		cfg.Memory.DBPath = ExpandPath(cfg.Memory.DBPath)
		cfg.Personas.Dir = ExpandPath(cfg.Personas.Dir)
		return cfg, nil
	}
	return Load(path)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset
// variable without a default is left as written.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		if val, ok := os.LookupEnv(groups[1]); ok && val != "" {
			return val
		}
		if hasDefault {
			return groups[2]
		}
		return match
	})
}

func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if !strings.HasPrefix(cfg.Server.WSPath, "/") {
		errs = append(errs, "server.wsPath must start with /")
	}

	if cfg.Memory.Enabled && cfg.Memory.DBPath == "" {
		errs = append(errs, "memory.dbPath is required when memory is enabled")
	}
	if cfg.Memory.SearchLimit < 1 || cfg.Memory.SearchLimit > 100 {
		errs = append(errs, "memory.searchLimit must be between 1 and 100")
	}

	if cfg.Personas.Dir == "" {
		errs = append(errs, "personas.dir is required")
	}

	if cfg.OneFlow.Enabled && !cfg.OneFlow.Mocked && (cfg.OneFlow.APIBase == "" || cfg.OneFlow.APIKey == "") {
		errs = append(errs, "oneflow.apiBase and oneflow.apiKey are required unless oneflow.mocked is set")
	}
	if cfg.OneFlow.TimeoutSeconds < 1 {
		errs = append(errs, "oneflow.timeoutSeconds must be >= 1")
	}

	if cfg.Assembler.SourceTimeoutMs < 1 || cfg.Assembler.SourceTimeoutMs > 120000 {
		errs = append(errs, "assembler.sourceTimeoutMs must be between 1 and 120000")
	}

	switch cfg.Agent.Mode {
	case "context":
	case "openai":
		if cfg.Agent.APIBase == "" {
			errs = append(errs, "agent.apiBase is required for openai mode")
		}
	default:
		errs = append(errs, "agent.mode must be one of: context, openai")
	}
	if cfg.Agent.Concurrency < 1 || cfg.Agent.Concurrency > 100 {
		errs = append(errs, "agent.concurrency must be between 1 and 100")
	}

	if cfg.Slack.Enabled && (cfg.Slack.BotToken == "" || cfg.Slack.AppToken == "") {
		errs = append(errs, "slack.botToken and slack.appToken are required when slack is enabled")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, "metrics.path must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
