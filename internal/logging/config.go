package logging

import (
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/transcriptrag/internal/config"
)

// Config holds logger settings.
type Config struct {
	Level       zapcore.Level
	Format      string // "json" or "console"
	Stdout      bool
	OTEL        bool
	ServiceName string
	Sampling    SamplingConfig
	Caller      bool
	// StacktraceLevel adds stack traces at and above this level.
	StacktraceLevel zapcore.Level
	Redaction       RedactionConfig
}

// SamplingConfig limits entries below error level: per Tick, the first
// Initial entries with the same message pass, then every Thereafter-th.
type SamplingConfig struct {
	Enabled    bool
	Tick       time.Duration
	Initial    int
	Thereafter int
}

// RedactionConfig lists field names whose values are always replaced and
// patterns whose matches are masked inside string values.
type RedactionConfig struct {
	Enabled  bool
	Fields   []string
	Patterns []string
}

// NewDefaultConfig returns JSON output at info level with sampling and
// redaction enabled.
func NewDefaultConfig() *Config {
	return &Config{
		Level:       zapcore.InfoLevel,
		Format:      "json",
		Stdout:      true,
		ServiceName: "transcriptrag",
		Sampling: SamplingConfig{
			Enabled:    true,
			Tick:       time.Second,
			Initial:    100,
			Thereafter: 10,
		},
		Caller:          true,
		StacktraceLevel: zapcore.ErrorLevel,
		Redaction: RedactionConfig{
			Enabled: true,
			Fields: []string{
				"password", "secret", "token", "api_key", "apikey",
				"authorization", "bearer", "credential",
				"openai_api_key", "youtube_api_key",
			},
			Patterns: []string{
				`(?i)bearer\s+\S+`,
				`(?i)\b(api[_-]?)?key=[^&\s"]+`,
				`\bsk-[A-Za-z0-9_-]{8,}`,
			},
		},
	}
}

// FromConfig maps the user-facing logging section onto a Config. Telemetry
// output is enabled together with OpenTelemetry export.
func FromConfig(lc config.LoggingConfig, obs config.ObservabilityConfig) (*Config, error) {
	cfg := NewDefaultConfig()
	if lc.Level != "" {
		level, err := LevelFromString(lc.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
		}
		cfg.Level = level
	}
	if lc.Format != "" {
		cfg.Format = lc.Format
	}
	if cfg.Level <= zapcore.DebugLevel {
		// Sampling hides the detail debug output is asked for.
		cfg.Sampling.Enabled = false
	}
	cfg.OTEL = obs.EnableTelemetry
	if obs.ServiceName != "" {
		cfg.ServiceName = obs.ServiceName
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if !c.Stdout && !c.OTEL {
		return fmt.Errorf("at least one output must be enabled (stdout or otel)")
	}
	if c.Sampling.Enabled && c.Sampling.Tick <= 0 {
		return fmt.Errorf("sampling tick must be > 0 when sampling enabled")
	}
	if c.Redaction.Enabled {
		for _, pattern := range c.Redaction.Patterns {
			if len(pattern) > 200 {
				return fmt.Errorf("redaction pattern too long (max 200 chars): %q", pattern)
			}
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("invalid redaction pattern %q: %w", pattern, err)
			}
		}
	}
	return nil
}
