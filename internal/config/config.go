// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`

	// File sink, rotated by lumberjack. Empty LogFile disables it.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// ClientConfig configures the hosted-session protocol client.
type ClientConfig struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey         string        `mapstructure:"api_key" yaml:"api_key"`
	ProjectID      string        `mapstructure:"project_id" yaml:"project_id"`
	ModelAPIKey    string        `mapstructure:"model_api_key" yaml:"model_api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// AgentConfig configures the local step-orchestration engine.
type AgentConfig struct {
	ModelName    string        `mapstructure:"model_name" yaml:"model_name"`
	ModelAPIKey  string        `mapstructure:"model_api_key" yaml:"model_api_key"`
	MaxSteps     int           `mapstructure:"max_steps" yaml:"max_steps"`
	APITimeout   time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	SystemPrompt string        `mapstructure:"system_prompt" yaml:"system_prompt"`
}

// BrowserConfig configures the action executor's pacing against the page.
type BrowserConfig struct {
	ActionDelay   time.Duration `mapstructure:"action_delay" yaml:"action_delay"`
	SettleDelay   time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	RecordReplay  bool          `mapstructure:"record_replay" yaml:"record_replay"`
	DrawCursor    bool          `mapstructure:"draw_cursor" yaml:"draw_cursor"`
	DefaultWaitMs int           `mapstructure:"default_wait_ms" yaml:"default_wait_ms"`
}

// Config is the full application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Client  ClientConfig  `mapstructure:"client" yaml:"client"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
}

// SetDefaults registers every default on the given viper instance. Flags and
// environment variables bound by the CLI layer override these.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "webpilot")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.max_size_mb", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age_days", 14)
	v.SetDefault("logger.compress", true)

	v.SetDefault("client.base_url", "https://api.webpilot.dev/v1")
	v.SetDefault("client.request_timeout", 10*time.Minute)

	v.SetDefault("agent.model_name", "gemini-2.5-flash")
	v.SetDefault("agent.max_steps", 20)
	v.SetDefault("agent.api_timeout", 2*time.Minute)

	v.SetDefault("browser.action_delay", time.Second)
	v.SetDefault("browser.settle_delay", 300*time.Millisecond)
	v.SetDefault("browser.record_replay", false)
	v.SetDefault("browser.draw_cursor", true)
	v.SetDefault("browser.default_wait_ms", 1000)
}

// NewConfigFromViper unmarshals a fully-populated viper instance into a
// Config, validating the few fields the core cannot run without.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if cfg.Agent.MaxSteps < 0 {
		return nil, fmt.Errorf("agent.max_steps must not be negative (got %d)", cfg.Agent.MaxSteps)
	}
	return &cfg, nil
}

// NewDefaultConfig builds a Config carrying only the defaults. Useful for
// tests and library embedding.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	if err != nil {
		// Defaults always unmarshal; a failure here is a programming error.
		panic(err)
	}
	return cfg
}
