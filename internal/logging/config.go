// internal/logging/config.go
package logging

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ragindex/internal/config"
	"go.uber.org/zap/zapcore"
)

// TraceLevel sits below Debug. Scroll pages and per-chunk decisions of the
// indexer log here.
const TraceLevel = zapcore.Level(-2)

// ParseLevel accepts the zap level names plus "trace".
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.EqualFold(s, "trace") {
		return TraceLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}

func levelName(l zapcore.Level) string {
	if l == TraceLevel {
		return "trace"
	}
	return l.String()
}

// Config holds logging configuration.
type Config struct {
	Level  zapcore.Level
	Format string
	Output OutputConfig
	// Sampling thins Trace through Info. Warn and above always pass.
	Sampling SamplingConfig
	Caller   bool
	// StacktraceLevel is the lowest level that carries a stacktrace.
	StacktraceLevel zapcore.Level
	Fields          map[string]string
	Redaction       RedactionConfig
}

// OutputConfig controls where logs are written.
type OutputConfig struct {
	Console bool
	// Stderr moves console output to stderr so ragctl keeps stdout for results.
	Stderr bool
	// OTEL forwards entries to the OpenTelemetry log provider, when one is given.
	OTEL bool
}

// SamplingConfig is applied per message per Tick.
type SamplingConfig struct {
	Enabled    bool
	Tick       time.Duration
	Initial    int
	Thereafter int
}

// RedactionConfig lists field keys and value patterns the console encoder masks.
// A key matches when its last dotted segment equals, or ends in "_" plus,
// the last segment of a listed field.
type RedactionConfig struct {
	Enabled  bool
	Fields   []string
	Patterns []string
}

const maxPatternLen = 200

// DefaultRedactionFields are the generic credential names plus every
// config.Secret path, so a new secret in the config is masked without
// touching this package.
func DefaultRedactionFields() []string {
	fields := []string{"password", "authorization", "bearer", "credential", "private_key", "access_key"}
	return append(fields, config.SecretPaths()...)
}

// DefaultRedactionPatterns match credentials embedded in free text: bearer
// headers, key=value pairs, OpenAI and Jina keys, AWS access key IDs.
func DefaultRedactionPatterns() []string {
	return []string{
		`(?i)bearer\s+\S+`,
		`(?i)(api[_-]?key|secret[_-]?key|token)[=:]\s*\S+`,
		`\bsk-[A-Za-z0-9_-]{16,}`,
		`\bjina_[A-Za-z0-9]{16,}`,
		`\bAKIA[0-9A-Z]{16}\b`,
	}
}

// NewDefaultConfig returns console JSON at info with sampling and redaction on.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Output: OutputConfig{Console: true},
		Sampling: SamplingConfig{
			Enabled:    true,
			Tick:       time.Second,
			Initial:    100,
			Thereafter: 10,
		},
		Caller:          true,
		StacktraceLevel: zapcore.ErrorLevel,
		Fields:          map[string]string{"service": "ragindex"},
		Redaction: RedactionConfig{
			Enabled:  true,
			Fields:   DefaultRedactionFields(),
			Patterns: DefaultRedactionPatterns(),
		},
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be json or console, got %q", c.Format)
	}
	if !c.Output.Console && !c.Output.OTEL {
		return errors.New("no log output enabled")
	}
	if c.Sampling.Enabled {
		if c.Sampling.Tick <= 0 {
			return errors.New("sampling tick must be positive")
		}
		if c.Sampling.Initial < 1 || c.Sampling.Thereafter < 0 {
			return fmt.Errorf("sampling initial must be >= 1 and thereafter >= 0, got %d/%d",
				c.Sampling.Initial, c.Sampling.Thereafter)
		}
	}
	for k, v := range c.Fields {
		if k == "" || v == "" {
			return fmt.Errorf("constant field %q must have a key and a value", k)
		}
	}
	if c.Redaction.Enabled {
		if _, err := compilePatterns(c.Redaction.Patterns); err != nil {
			return err
		}
	}
	return nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if len(p) > maxPatternLen {
			return nil, fmt.Errorf("redaction pattern longer than %d chars: %q", maxPatternLen, p)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// FromSettings builds a logger config from the logging section of the
// ragindex config file. Unset values keep their defaults; extra redaction
// fields are added to the default list.
func FromSettings(s config.LoggingConfig) (*Config, error) {
	cfg := NewDefaultConfig()
	if s.Level != "" {
		lvl, err := ParseLevel(s.Level)
		if err != nil {
			return nil, err
		}
		cfg.Level = lvl
	}
	if s.Format != "" {
		cfg.Format = s.Format
	}
	cfg.Redaction.Fields = append(cfg.Redaction.Fields, s.RedactFields...)
	return cfg, cfg.Validate()
}
