// Package config loads the reqmgr YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"reqmgr/internal/db"
)

// Config models reqmgr.yaml.
type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Auth struct {
		SessionTimeout int    `yaml:"session_timeout"`
		SessionSecret  string `yaml:"session_secret"`
	} `yaml:"auth"`
	Output struct {
		DefaultFormat string `yaml:"default_format"`
		MaxRows       int    `yaml:"max_rows"`
	} `yaml:"output"`
	Scheduler struct {
		PollInterval int `yaml:"poll_interval"`
		MaxInterval  int `yaml:"max_interval"`
	} `yaml:"scheduler"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	cfg.Database.Path = db.DefaultPath()
	cfg.Auth.SessionTimeout = 3600
	cfg.Auth.SessionSecret = "reqmgr-local-session"
	cfg.Output.DefaultFormat = "table"
	cfg.Output.MaxRows = 50
	cfg.Scheduler.PollInterval = 60
	cfg.Scheduler.MaxInterval = 300
	return &cfg
}

// SessionTimeout returns the configured session lifetime.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.Auth.SessionTimeout) * time.Second
}

// PollInterval returns the scheduler base interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Scheduler.PollInterval) * time.Second
}

// MaxInterval returns the scheduler backoff cap.
func (c *Config) MaxInterval() time.Duration {
	return time.Duration(c.Scheduler.MaxInterval) * time.Second
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("config.database.path is required")
	}
	if c.Auth.SessionTimeout <= 0 {
		return fmt.Errorf("config.auth.session_timeout must be positive")
	}
	switch c.Output.DefaultFormat {
	case "table", "json", "csv":
	default:
		return fmt.Errorf("config.output.default_format must be table, json or csv")
	}
	if c.Output.MaxRows <= 0 {
		return fmt.Errorf("config.output.max_rows must be positive")
	}
	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("config.scheduler.poll_interval must be positive")
	}
	if c.Scheduler.MaxInterval < c.Scheduler.PollInterval {
		return fmt.Errorf("config.scheduler.max_interval must be at least poll_interval")
	}
	return nil
}

// SearchPaths returns the config file locations in precedence order: the
// REQMGR_CONFIG environment variable, the working directory, the user's
// config directory, then the system directory.
func SearchPaths() []string {
	var paths []string
	if env := os.Getenv("REQMGR_CONFIG"); env != "" {
		paths = append(paths, env)
	}
	paths = append(paths, "reqmgr.yaml", "reqmgr.yml")
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".reqmgr", "config.yaml"),
			filepath.Join(home, ".reqmgr", "config.yml"),
		)
	}
	paths = append(paths,
		"/etc/reqmgr/config.yaml",
		"/etc/reqmgr/config.yml",
	)
	return paths
}

// Load reads config from path, or walks the search paths when path is empty.
// Missing files fall through to the defaults.
func Load(path string) (*Config, error) {
	if path != "" {
		return FromFile(path)
	}
	for _, p := range SearchPaths() {
		cfg, err := FromFile(p)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return Default(), nil
}

// FromFile reads YAML config from the given path, filling unset fields from
// the defaults.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GenerateDefault returns default config YAML suitable for writing to disk.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `database:
  path: users.db

auth:
  session_timeout: 3600
  session_secret: reqmgr-local-session

output:
  default_format: table
  max_rows: 50

scheduler:
  poll_interval: 60
  max_interval: 300
`
