// Package config loads the runtime configuration of realtimemesh from a YAML
// file, REALTIMEMESH_* environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g.
// REALTIMEMESH_ESCALATION_MAX_ITERATIONS.
const EnvPrefix = "REALTIMEMESH"

// Reasoning providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config is the complete runtime configuration.
type Config struct {
	Realtime   RealtimeConfig   `mapstructure:"realtime"`
	Reasoning  ReasoningConfig  `mapstructure:"reasoning"`
	Escalation EscalationConfig `mapstructure:"escalation"`
	Guardrail  GuardrailConfig  `mapstructure:"guardrail"`
	Session    SessionConfig    `mapstructure:"session"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Log        LogConfig        `mapstructure:"log"`
}

// RealtimeConfig configures the realtime websocket connection.
type RealtimeConfig struct {
	URL                string        `mapstructure:"url"`
	Model              string        `mapstructure:"model"`
	APIKey             string        `mapstructure:"api_key"`
	TranscriptionModel string        `mapstructure:"transcription_model"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
}

// ReasoningConfig selects the out-of-band reasoning provider.
type ReasoningConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
}

// EscalationConfig bounds the supervisor loop.
type EscalationConfig struct {
	MaxIterations int           `mapstructure:"max_iterations"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// GuardrailConfig configures output classification.
type GuardrailConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Model   string        `mapstructure:"model"`
	Brand   string        `mapstructure:"brand"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SessionConfig configures per-session behavior.
type SessionConfig struct {
	AutoContinueFirstHandoff bool          `mapstructure:"auto_continue_first_handoff"`
	OpeningMessage           string        `mapstructure:"opening_message"`
	MaxDuration              time.Duration `mapstructure:"max_duration"`
}

// EngineConfig configures connection admission.
type EngineConfig struct {
	MaxSessions int `mapstructure:"max_sessions"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NewViper returns a viper instance with defaults and environment binding
// applied. Callers may bind flags before passing it to LoadFrom.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("realtime.url", "wss://api.openai.com/v1/realtime")
	v.SetDefault("realtime.model", "gpt-4o-realtime-preview")
	v.SetDefault("realtime.api_key", "")
	v.SetDefault("realtime.transcription_model", "whisper-1")
	v.SetDefault("realtime.write_timeout", 10*time.Second)

	v.SetDefault("reasoning.provider", ProviderOpenAI)
	v.SetDefault("reasoning.model", "gpt-4.1")
	v.SetDefault("reasoning.api_key", "")
	v.SetDefault("reasoning.base_url", "")

	v.SetDefault("escalation.max_iterations", 8)
	v.SetDefault("escalation.timeout", 20*time.Second)

	v.SetDefault("guardrail.enabled", true)
	v.SetDefault("guardrail.model", "gpt-4o-mini")
	v.SetDefault("guardrail.brand", "")
	v.SetDefault("guardrail.timeout", 10*time.Second)

	v.SetDefault("session.auto_continue_first_handoff", true)
	v.SetDefault("session.opening_message", "")
	v.SetDefault("session.max_duration", time.Duration(0))

	v.SetDefault("engine.max_sessions", 10)

	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.namespace", "realtimemesh")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("realtime.api_key", EnvPrefix+"_REALTIME_API_KEY", "OPENAI_API_KEY")

	return v
}

// Load reads the optional YAML file at path on top of defaults and
// environment variables.
func Load(path string) (*Config, error) {
	return LoadFrom(NewViper(), path)
}

// LoadFrom is like Load but uses a prepared viper instance.
func LoadFrom(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.resolveKeys()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolveKeys falls back to the provider's conventional environment variable
// for the reasoning API key.
func (c *Config) resolveKeys() {
	if c.Reasoning.APIKey != "" {
		return
	}
	switch c.Reasoning.Provider {
	case ProviderOpenAI:
		c.Reasoning.APIKey = os.Getenv("OPENAI_API_KEY")
	case ProviderAnthropic:
		c.Reasoning.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Realtime.URL == "" {
		result = multierror.Append(result, errors.New("realtime.url is required"))
	}
	switch c.Reasoning.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		result = multierror.Append(result, fmt.Errorf("reasoning.provider %q is not supported", c.Reasoning.Provider))
	}
	if c.Escalation.MaxIterations < 0 {
		result = multierror.Append(result, errors.New("escalation.max_iterations must not be negative"))
	}
	if c.Escalation.Timeout < 0 {
		result = multierror.Append(result, errors.New("escalation.timeout must not be negative"))
	}
	if c.Guardrail.Timeout < 0 {
		result = multierror.Append(result, errors.New("guardrail.timeout must not be negative"))
	}
	if c.Session.MaxDuration < 0 {
		result = multierror.Append(result, errors.New("session.max_duration must not be negative"))
	}
	if c.Engine.MaxSessions < 0 {
		result = multierror.Append(result, errors.New("engine.max_sessions must not be negative"))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		result = multierror.Append(result, fmt.Errorf("log.format %q must be json or text", c.Log.Format))
	}

	return result.ErrorOrNil()
}
