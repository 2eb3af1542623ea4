package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("AppData", dir)
	return dir
}

func TestDefaultConfig(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base url", func(c *Config) { c.API.BaseURL = "" }},
		{"base url not a url", func(c *Config) { c.API.BaseURL = "license server" }},
		{"zero timeout", func(c *Config) { c.API.Timeout = 0 }},
		{"unknown backend", func(c *Config) { c.Store.Backend = "plaintext" }},
		{"file backend without dir", func(c *Config) { c.Store.Backend = BackendFile; c.Store.Dir = "" }},
		{"empty service", func(c *Config) { c.Store.Service = "" }},
		{"public agent address", func(c *Config) { c.Agent.Addr = "0.0.0.0:7787" }},
		{"agent address without port", func(c *Config) { c.Agent.Addr = "127.0.0.1" }},
		{"refresh too often", func(c *Config) { c.Agent.RefreshInterval = time.Second }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidate_Normalizes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "DEBUG"
	cfg.Store.Backend = "Memory"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Store.Backend != BackendMemory {
		t.Errorf("got level %q backend %q, want lowercased", cfg.Logging.Level, cfg.Store.Backend)
	}
}

func TestValidate_LocalhostAgent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Agent.Addr = "localhost:9000"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("localhost should be accepted: %v", err)
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Agent.Addr != "127.0.0.1:7787" {
		t.Errorf("Agent.Addr = %q, want default", cfg.Agent.Addr)
	}
	if cfg.Store.Dir == "" {
		t.Error("Store.Dir should default to the vault dir")
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "licensegate.yaml")
	yml := `
api:
  base_url: https://licenses.example.com/v2
  timeout: 10s
store:
  backend: memory
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LICENSEGATE_LOG_LEVEL", "warn")
	t.Setenv("LICENSEGATE_AGENT_REFRESH_INTERVAL", "2h")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.API.BaseURL != "https://licenses.example.com/v2" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 10*time.Second {
		t.Errorf("API.Timeout = %v, want 10s", cfg.API.Timeout)
	}
	if cfg.Store.Backend != BackendMemory {
		t.Errorf("Store.Backend = %q, want memory", cfg.Store.Backend)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, env should win over file", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json from file", cfg.Logging.Format)
	}
	if cfg.Agent.RefreshInterval != 2*time.Hour {
		t.Errorf("Agent.RefreshInterval = %v, want 2h", cfg.Agent.RefreshInterval)
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	dir := isolate(t)
	if _, err := Load(filepath.Join(dir, "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoad_BadYAML(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("api: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	isolate(t)
	t.Setenv("LICENSEGATE_API_TIMEOUT", "soon")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unparsable duration")
	}
}

func TestLoggingHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(LoggingConfig{Level: "warn", Format: "json"}.Handler(&buf))

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("expected JSON record, got %q", out)
	}

	h := LoggingConfig{Level: "debug", Format: "text"}.Handler(&buf)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be enabled")
	}
}
