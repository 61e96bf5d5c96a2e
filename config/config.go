// Package config loads agentdesk settings from defaults, an optional YAML
// file and AGENTDESK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file base name searched for without --config.
const FileName = "agentdesk"

// EnvPrefix prefixes environment overrides: model.name -> AGENTDESK_MODEL_NAME.
const EnvPrefix = "AGENTDESK"

// Config holds all configuration for agentdesk.
type Config struct {
	Model      ModelConfig      `mapstructure:"model"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	AgentsFile string           `mapstructure:"agents_file"`
	Store      StoreConfig      `mapstructure:"store"`
	Google     GoogleConfig     `mapstructure:"google"`
	Log        LogConfig        `mapstructure:"log"`
	Server     ServerConfig     `mapstructure:"server"`
}

// ModelConfig selects the LLM provider shared by supervisor and workers.
type ModelConfig struct {
	// Provider is gemini, openai or anthropic.
	Provider    string  `mapstructure:"provider"`
	Name        string  `mapstructure:"name"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int64   `mapstructure:"max_tokens"`
	// APIKey may be empty; providers then read their own environment variable.
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// RetryConfig parameterizes the transient-error retry wrapper.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
}

// SupervisorConfig holds routing limits.
type SupervisorConfig struct {
	MaxCycles int    `mapstructure:"max_cycles"`
	Enhancer  string `mapstructure:"enhancer"`
}

// WorkerConfig holds worker tool loop limits.
type WorkerConfig struct {
	MaxRounds int `mapstructure:"max_rounds"`
}

// StoreConfig selects transcript storage. An empty Path keeps transcripts
// in memory.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// GoogleConfig holds Google API credentials.
type GoogleConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr    string `mapstructure:"addr"`
	Metrics bool   `mapstructure:"metrics"`
}

// Load reads configuration. When path is empty it looks for agentdesk.yaml
// in the working directory and then the user config directory; a missing
// file is not an error. Environment variables take precedence over the file.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(userConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	return decode(v)
}

// Default returns the built-in defaults, ignoring files and environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	cfg, err := decode(v)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "gemini", "openai", "anthropic":
	default:
		return fmt.Errorf("config: unknown model provider %q", c.Model.Provider)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config: retry.max_attempts must be >= 1")
	}
	if c.Supervisor.MaxCycles < 1 {
		return fmt.Errorf("config: supervisor.max_cycles must be >= 1")
	}
	if c.Worker.MaxRounds < 1 {
		return fmt.Errorf("config: worker.max_rounds must be >= 1")
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Model.APIKey = os.ExpandEnv(cfg.Model.APIKey)
	cfg.Google.CredentialsFile = os.ExpandEnv(cfg.Google.CredentialsFile)

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during
// Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("model.provider", "gemini")
	v.SetDefault("model.name", "")
	v.SetDefault("model.temperature", 0.5)
	v.SetDefault("model.max_tokens", 0)
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.base_url", "")

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.cooldown", "60s")

	v.SetDefault("supervisor.max_cycles", 25)
	v.SetDefault("supervisor.enhancer", "enhancer")

	v.SetDefault("worker.max_rounds", 10)

	v.SetDefault("agents_file", "agents.yaml")

	v.SetDefault("store.path", "")

	v.SetDefault("google.credentials_file", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.metrics", true)
}

func userConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "agentdesk")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "agentdesk")
	}
	return filepath.Join(home, ".config", "agentdesk")
}
