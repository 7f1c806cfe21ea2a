package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coxswain.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("Provider = %q", cfg.LLM.Provider)
	}
	if cfg.Agent.MaxSteps != 10 {
		t.Errorf("MaxSteps = %d", cfg.Agent.MaxSteps)
	}
	if cfg.Python.Interpreter != "python3" {
		t.Errorf("Interpreter = %q", cfg.Python.Interpreter)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  model: local-model
  base_url: http://localhost:8080/v1
agent:
  max_steps: 4
  language: zh
log_level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Model != "local-model" {
		t.Errorf("Model = %q", cfg.LLM.Model)
	}
	if cfg.Agent.MaxSteps != 4 || cfg.Agent.Language != "zh" {
		t.Errorf("Agent = %+v", cfg.Agent)
	}
	// Unset fields keep their defaults.
	if cfg.History.DBPath != "coxswain.db" {
		t.Errorf("DBPath = %q", cfg.History.DBPath)
	}
}

func TestLoadEnvAPIKey(t *testing.T) {
	t.Setenv("COXSWAIN_API_KEY", "sk-from-env")
	t.Setenv("OPENAI_API_KEY", "sk-fallback")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q, COXSWAIN_API_KEY should win", cfg.LLM.APIKey)
	}
}

func TestLoadEnvAPIKeyFallback(t *testing.T) {
	t.Setenv("COXSWAIN_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-fallback")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "sk-fallback" {
		t.Errorf("APIKey = %q", cfg.LLM.APIKey)
	}
}

func TestLoadFileAPIKeyBeatsEnv(t *testing.T) {
	t.Setenv("COXSWAIN_API_KEY", "sk-env")
	path := writeConfig(t, "llm:\n  api_key: sk-file\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "sk-file" {
		t.Errorf("APIKey = %q, file value should win", cfg.LLM.APIKey)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	for name, content := range map[string]string{
		"bad provider":  "llm:\n  provider: anthropic\n",
		"bad language":  "agent:\n  language: fr\n",
		"bad log level": "log_level: verbose\n",
		"bad max steps": "agent:\n  max_steps: -1\n",
	} {
		path := writeConfig(t, content)
		if _, err := Load(path); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestFindConfigExplicitMustExist(t *testing.T) {
	if _, err := FindConfig("/no/such/file.yaml"); err == nil {
		t.Error("expected error for missing explicit config")
	}
	path := writeConfig(t, "log_level: info\n")
	got, err := FindConfig(path)
	if err != nil || got != path {
		t.Errorf("FindConfig = %q, %v", got, err)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"info":    slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLogLevel(in)
		if err != nil {
			t.Errorf("ParseLogLevel(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}
