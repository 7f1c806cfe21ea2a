// Package config handles coxswain configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order. An explicit
// path (from the -config flag) is checked first by FindConfig; then
// ./coxswain.yaml, ~/.config/coxswain/config.yaml, /etc/coxswain/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"coxswain.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "coxswain", "config.yaml"))
	}
	paths = append(paths, "/etc/coxswain/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must
// exist. Otherwise the search paths are tried in order. Returns an empty
// path without error when nothing is found; defaults apply.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}
	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// Config holds all coxswain configuration.
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Agent     AgentConfig     `yaml:"agent"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	History   HistoryConfig   `yaml:"history"`
	Python    PythonConfig    `yaml:"python"`
	LogLevel  string          `yaml:"log_level"`
}

// LLMConfig defines the model provider connection.
type LLMConfig struct {
	// Provider selects the adapter: "openai" (any OpenAI-compatible
	// endpoint) or "gollm".
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	// APIKey may be left empty and supplied via COXSWAIN_API_KEY or
	// OPENAI_API_KEY instead.
	APIKey      string   `yaml:"api_key"`
	Model       string   `yaml:"model"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`
}

// AgentConfig tunes the step loop.
type AgentConfig struct {
	MaxSteps int `yaml:"max_steps"`
	// Language selects prompt and fallback-message language: "en" or "zh".
	Language string `yaml:"language"`
}

// WorkspaceConfig defines the root for file operations. All file tool
// paths are relative to this directory.
type WorkspaceConfig struct {
	Path string `yaml:"path"`
}

// HistoryConfig defines conversation persistence.
type HistoryConfig struct {
	// DBPath is the SQLite database file. Empty disables persistence.
	DBPath           string `yaml:"db_path"`
	FlushIntervalSec int    `yaml:"flush_interval_sec"`
	QueueSize        int    `yaml:"queue_size"`
}

// PythonConfig tunes the python execution tool.
type PythonConfig struct {
	Interpreter string `yaml:"interpreter"`
	TimeoutMS   int    `yaml:"timeout_ms"`
}

// Default returns the built-in configuration used when no file is found.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "openai",
			BaseURL:  "https://api.openai.com/v1",
			Model:    "gpt-4o-mini",
		},
		Agent: AgentConfig{
			MaxSteps: 10,
			Language: "en",
		},
		Workspace: WorkspaceConfig{
			Path: "workspace",
		},
		History: HistoryConfig{
			DBPath:           "coxswain.db",
			FlushIntervalSec: 5,
			QueueSize:        64,
		},
		Python: PythonConfig{
			Interpreter: "python3",
			TimeoutMS:   30000,
		},
		LogLevel: "info",
	}
}

// Load reads the config at path, applies defaults for unset fields, and
// overlays environment overrides. An empty path loads pure defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the config. The API key
// falls back to COXSWAIN_API_KEY, then OPENAI_API_KEY.
func applyEnv(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		if v := os.Getenv("COXSWAIN_API_KEY"); v != "" {
			cfg.LLM.APIKey = v
		} else if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			cfg.LLM.APIKey = v
		}
	}
	if v := os.Getenv("COXSWAIN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// Validate checks field values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LLM.Provider {
	case "openai", "gollm":
	default:
		return fmt.Errorf("unknown llm provider %q (expected openai or gollm)", c.LLM.Provider)
	}
	switch c.Agent.Language {
	case "en", "zh":
	default:
		return fmt.Errorf("unknown language %q (expected en or zh)", c.Agent.Language)
	}
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be positive, got %d", c.Agent.MaxSteps)
	}
	return nil
}

// FlushInterval returns the history flush interval as a duration.
func (c *Config) FlushInterval() time.Duration {
	if c.History.FlushIntervalSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.History.FlushIntervalSec) * time.Second
}
