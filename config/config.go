package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/supervisor/engine"
)

// ValidProviders lists the model providers the CLI can construct.
var ValidProviders = []string{"openai", "anthropic", "gemini", "mock"}

// Config is the runtime configuration of a supervisor process.
type Config struct {
	Model ModelConfig `yaml:"model"`

	// MaxIterations is the hard ceiling on worker invocations per session.
	MaxIterations int `yaml:"max_iterations"`
	// HistoryWindow is how many trailing messages the router shows the policy.
	HistoryWindow int `yaml:"history_window"`
	// StepTimeout is a Go duration string; empty means no bound.
	StepTimeout string `yaml:"step_timeout"`

	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Log        LogConfig        `yaml:"log"`

	// MaxConcurrentSessions bounds batch runs.
	MaxConcurrentSessions int `yaml:"max_concurrent_sessions"`

	// Team is an optional path to an HCL team definition.
	Team string `yaml:"team"`
}

// ModelConfig selects and tunes the LLM.
type ModelConfig struct {
	Provider    string  `yaml:"provider"`
	Name        string  `yaml:"name"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	APIKey      string  `yaml:"api_key"`
}

// CheckpointConfig selects the checkpoint backend.
type CheckpointConfig struct {
	Driver string `yaml:"driver"` // memory or sqlite
	Path   string `yaml:"path"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`  // json or text
	Backend string `yaml:"backend"` // zap or slog
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:    "openai",
			Name:        "gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		MaxIterations: engine.DefaultConfig.MaxIterations,
		HistoryWindow: engine.DefaultConfig.HistoryWindow,
		Checkpoint: CheckpointConfig{
			Driver: "memory",
			Path:   ".supervisor/checkpoints.db",
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "json",
			Backend: "zap",
		},
		MaxConcurrentSessions: 4,
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// Environment overrides are applied afterwards.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SUPERVISOR_PROVIDER"); v != "" {
		c.Model.Provider = v
	}
	if v := os.Getenv("SUPERVISOR_MODEL"); v != "" {
		c.Model.Name = v
	}
	if v := os.Getenv("SUPERVISOR_CHECKPOINT_PATH"); v != "" {
		c.Checkpoint.Driver = "sqlite"
		c.Checkpoint.Path = v
	}
	if v := os.Getenv("SUPERVISOR_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}

	if c.Model.APIKey != "" {
		return
	}
	switch c.Model.Provider {
	case "openai":
		c.Model.APIKey = os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		c.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	case "gemini":
		c.Model.APIKey = os.Getenv("GEMINI_API_KEY")
	}
}

// Validate checks the configuration for values the process cannot run with.
func (c *Config) Validate() error {
	validProvider := false
	for _, p := range ValidProviders {
		if c.Model.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid model provider: %s (valid: %v)", c.Model.Provider, ValidProviders)
	}

	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1, got %d", c.MaxIterations)
	}
	if c.HistoryWindow < 0 {
		return fmt.Errorf("history_window must not be negative, got %d", c.HistoryWindow)
	}
	if c.MaxConcurrentSessions < 1 {
		return fmt.Errorf("max_concurrent_sessions must be at least 1, got %d", c.MaxConcurrentSessions)
	}
	if c.StepTimeout != "" {
		d, err := time.ParseDuration(c.StepTimeout)
		if err != nil {
			return fmt.Errorf("invalid step_timeout %q: %w", c.StepTimeout, err)
		}
		if d < 0 {
			return fmt.Errorf("step_timeout must not be negative")
		}
	}

	switch c.Checkpoint.Driver {
	case "memory":
	case "sqlite":
		if c.Checkpoint.Path == "" {
			return fmt.Errorf("checkpoint.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("invalid checkpoint driver: %s (valid: memory, sqlite)", c.Checkpoint.Driver)
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Log.Format)
	}

	switch c.Log.Backend {
	case "zap", "slog":
	default:
		return fmt.Errorf("invalid log backend: %s (valid: zap, slog)", c.Log.Backend)
	}

	return nil
}

// GetStepTimeout returns the step timeout as a duration; zero when unset
// or unparsable.
func (c *Config) GetStepTimeout() time.Duration {
	d, err := time.ParseDuration(c.StepTimeout)
	if err != nil {
		return 0
	}
	return d
}

// EngineConfig converts the runtime settings to an engine.Config.
func (c *Config) EngineConfig() engine.Config {
	cfg := engine.DefaultConfig
	cfg.MaxIterations = c.MaxIterations
	cfg.HistoryWindow = c.HistoryWindow
	cfg.StepTimeout = c.GetStepTimeout()
	return cfg
}
