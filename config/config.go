// Package config loads the externally tunable engine settings from an
// optional YAML file plus SLOTFLOW_* environment overrides. None of the
// runtime knobs (iteration cap, truncation window, timeouts, confidence
// thresholds) are hardcoded anywhere else.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RedisConfig configures the optional Redis session backend.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LoggingConfig configures the engine logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// Config is the full engine configuration.
type Config struct {
	// IterationCap bounds reason/act cycles per incoming message.
	IterationCap int `mapstructure:"iteration_cap"`
	// HistoryWindow is the number of recent turns kept when truncating
	// conversation history for the reasoning loop.
	HistoryWindow int `mapstructure:"history_window"`
	// ToolTimeout bounds each individual tool call.
	ToolTimeout time.Duration `mapstructure:"tool_timeout"`
	// OracleTimeout bounds each oracle call (slot fallback and reason steps).
	OracleTimeout time.Duration `mapstructure:"oracle_timeout"`
	// RequestDeadline is the end-to-end budget for one handled message.
	RequestDeadline time.Duration `mapstructure:"request_deadline"`
	// ConfidenceThreshold is the minimum slot-resolution confidence accepted
	// without clarification.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	// EchoBackMargin widens the accept band above ConfidenceThreshold inside
	// which accepted values are echoed back for correction.
	EchoBackMargin float64 `mapstructure:"echo_back_margin"`
	// DeviationThreshold is the minimum classifier confidence required to
	// treat a failed resolution as a deviation rather than a bad selection.
	DeviationThreshold float64 `mapstructure:"deviation_threshold"`

	Redis   RedisConfig   `mapstructure:"redis"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// Default returns the baseline configuration applied before file and env
// overrides.
func Default() Config {
	return Config{
		IterationCap:        5,
		HistoryWindow:       10,
		ToolTimeout:         15 * time.Second,
		OracleTimeout:       10 * time.Second,
		RequestDeadline:     60 * time.Second,
		ConfidenceThreshold: 0.6,
		EchoBackMargin:      0.15,
		DeviationThreshold:  0.5,
		Redis:               RedisConfig{TTL: 24 * time.Hour},
		Logging:             LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads configuration from path (optional; empty path skips the file)
// merged over defaults, with SLOTFLOW_* environment variables taking
// precedence (e.g. SLOTFLOW_ITERATION_CAP=8, SLOTFLOW_REDIS_ADDR=...).
func Load(path string) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("iteration_cap", def.IterationCap)
	v.SetDefault("history_window", def.HistoryWindow)
	v.SetDefault("tool_timeout", def.ToolTimeout)
	v.SetDefault("oracle_timeout", def.OracleTimeout)
	v.SetDefault("request_deadline", def.RequestDeadline)
	v.SetDefault("confidence_threshold", def.ConfidenceThreshold)
	v.SetDefault("echo_back_margin", def.EchoBackMargin)
	v.SetDefault("deviation_threshold", def.DeviationThreshold)
	v.SetDefault("redis.addr", def.Redis.Addr)
	v.SetDefault("redis.db", def.Redis.DB)
	v.SetDefault("redis.ttl", def.Redis.TTL)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)

	v.SetEnvPrefix("SLOTFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that would break loop termination or the
// resolution decision policy.
func (c *Config) Validate() error {
	if c.IterationCap < 1 {
		return fmt.Errorf("iteration_cap must be >= 1, got %d", c.IterationCap)
	}
	if c.HistoryWindow < 1 {
		return fmt.Errorf("history_window must be >= 1, got %d", c.HistoryWindow)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be in [0,1], got %v", c.ConfidenceThreshold)
	}
	if c.DeviationThreshold < 0 || c.DeviationThreshold > 1 {
		return fmt.Errorf("deviation_threshold must be in [0,1], got %v", c.DeviationThreshold)
	}
	if c.ToolTimeout <= 0 || c.OracleTimeout <= 0 || c.RequestDeadline <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}
