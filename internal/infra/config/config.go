// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the client configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Storage StorageConfig `yaml:"storage"`
	Prefs   PrefsConfig   `yaml:"prefs"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig represents the TTS server connection.
type ServerConfig struct {
	URL        string `yaml:"url" default:"http://localhost:8000" validate:"required,url"`
	TimeoutSec int    `yaml:"timeout_sec" default:"120" validate:"gte=1,lte=600"`
}

// AuthConfig represents authentication configuration.
type AuthConfig struct {
	// Token, when set, overrides the persisted login token.
	Token string `yaml:"token"`
}

// StorageConfig represents the history database configuration.
type StorageConfig struct {
	Path       string `yaml:"path" default:"~/.local/share/mobiletts/history.db" validate:"required"`
	MaxEntries int    `yaml:"max_entries" default:"100" validate:"gte=0"`
}

// PrefsConfig represents the user settings file configuration.
type PrefsConfig struct {
	Path string `yaml:"path" default:"~/.config/mobiletts/settings.toml" validate:"required"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Output string `yaml:"output" default:"stderr"` // "stdout", "stderr" or a file path
}

// Load loads configuration from a YAML file. An empty path yields the
// defaults. Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	var cfg Config

	// Defaults go first so explicit zero values in the file survive.
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	}

	// Override with environment variables
	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() error {
	if v := os.Getenv("MOBILETTS_SERVER_URL"); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv("MOBILETTS_TOKEN"); v != "" {
		c.Auth.Token = v
	}
	if v := os.Getenv("MOBILETTS_DB_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("MOBILETTS_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("MOBILETTS_MAX_ENTRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid MOBILETTS_MAX_ENTRIES: %q", v)
		}
		c.Storage.MaxEntries = n
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// Timeout returns the server request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Server.TimeoutSec) * time.Second
}

// expandPaths resolves "~" in file paths.
func (c *Config) expandPaths() error {
	if c.Storage.Path != ":memory:" {
		p, err := expandPath(c.Storage.Path)
		if err != nil {
			return errors.Wrap(err, "invalid storage path")
		}
		c.Storage.Path = p
	}

	p, err := expandPath(c.Prefs.Path)
	if err != nil {
		return errors.Wrap(err, "invalid prefs path")
	}
	c.Prefs.Path = p
	return nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", errors.New("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "failed to resolve home dir")
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
