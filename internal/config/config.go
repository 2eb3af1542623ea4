package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/KevinTCoughlin/licensegate/internal/credstore"
	"github.com/KevinTCoughlin/licensegate/internal/licenseapi"
)

// EnvPrefix prefixes every environment override, e.g. LICENSEGATE_API_BASE_URL.
const EnvPrefix = "LICENSEGATE"

// Store backends.
const (
	BackendKeyring = "keyring"
	BackendFile    = "file"
	BackendMemory  = "memory"
)

// Config holds all licensegate settings.
type Config struct {
	API     APIConfig     `yaml:"api" envconfig:"API"`
	Store   StoreConfig   `yaml:"store" envconfig:"STORE"`
	Agent   AgentConfig   `yaml:"agent" envconfig:"AGENT"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOG"`
}

// APIConfig configures the license server client.
type APIConfig struct {
	BaseURL       string        `yaml:"base_url" envconfig:"BASE_URL" validate:"required,url"`
	Timeout       time.Duration `yaml:"timeout" envconfig:"TIMEOUT" validate:"gt=0"`
	ProbeAddr     string        `yaml:"probe_addr" envconfig:"PROBE_ADDR"`
	ProbeInterval time.Duration `yaml:"probe_interval" envconfig:"PROBE_INTERVAL" validate:"gt=0"`
}

// StoreConfig selects where license records are kept.
type StoreConfig struct {
	Backend string `yaml:"backend" envconfig:"BACKEND" validate:"oneof=keyring file memory"`
	Service string `yaml:"service" envconfig:"SERVICE" validate:"required"`
	Dir     string `yaml:"dir" envconfig:"DIR"`
}

// AgentConfig configures the background agent.
type AgentConfig struct {
	Addr            string        `yaml:"addr" envconfig:"ADDR" validate:"required,hostname_port"`
	RefreshInterval time.Duration `yaml:"refresh_interval" envconfig:"REFRESH_INTERVAL" validate:"gte=1m"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" envconfig:"FORMAT" validate:"oneof=text json"`
}

// DefaultConfig returns a Config with the production defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:       licenseapi.DefaultBaseURL,
			Timeout:       licenseapi.DefaultTimeout,
			ProbeInterval: licenseapi.DefaultProbeInterval,
		},
		Store: StoreConfig{
			Backend: BackendKeyring,
			Service: credstore.DefaultService,
		},
		Agent: AgentConfig{
			Addr:            "127.0.0.1:7787",
			RefreshInterval: 6 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

var validate = validator.New()

// Validate checks that all config values are valid.
func (c *Config) Validate() error {
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)
	c.Store.Backend = strings.ToLower(c.Store.Backend)

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s %q: must satisfy %s", fe.Namespace(), fmt.Sprint(fe.Value()), fe.Tag())
		}
		return err
	}

	host, _, err := net.SplitHostPort(c.Agent.Addr)
	if err != nil {
		return fmt.Errorf("invalid agent address %q: %w", c.Agent.Addr, err)
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return fmt.Errorf("invalid agent address %q: must be a loopback address", c.Agent.Addr)
	}
	if c.Store.Backend == BackendFile && c.Store.Dir == "" {
		return fmt.Errorf("store directory must be set for the file backend")
	}
	return nil
}

// DefaultPath returns the config file location under the user config dir.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "licensegate", "config.yaml")
}

// DefaultVaultDir returns the file vault location under the user config dir.
func DefaultVaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "licensegate", "vault")
}

// Load builds a Config from defaults, the YAML file at path and LICENSEGATE_*
// environment variables, in that order of precedence. A missing file at the
// default path is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Store.Dir = DefaultVaultDir()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Handler builds the slog handler described by the config.
func (l LoggingConfig) Handler(w io.Writer) slog.Handler {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
