// internal/logging/core.go
package logging

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const instrumentationName = "github.com/fyrsmithlabs/ragindex/internal/logging"

// SampledTotal counts entries the sampler dropped.
// Labels: level
var SampledTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ragindex",
		Subsystem: "logging",
		Name:      "sampled_entries_total",
		Help:      "Log entries dropped by sampling",
	},
	[]string{"level"},
)

// newCore tees the console writer and the OTEL bridge, then samples the result.
// A nil w or provider skips that output.
func newCore(cfg *Config, provider log.LoggerProvider, w zapcore.WriteSyncer) (zapcore.Core, error) {
	var cores []zapcore.Core
	if cfg.Output.Console && w != nil {
		enc, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(enc, w, cfg.Level))
	}
	if cfg.Output.OTEL && provider != nil {
		// The bridge has no level of its own.
		bridge := otelzap.NewCore(instrumentationName, otelzap.WithLoggerProvider(provider))
		cores = append(cores, levelRange{Core: bridge, min: cfg.Level, max: zapcore.FatalLevel})
	}
	if len(cores) == 0 {
		return nil, errors.New("no log output available")
	}
	return sampled(zapcore.NewTee(cores...), cfg.Sampling), nil
}

func newEncoder(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "ts"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeLevel = func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(levelName(l))
	}
	if format == "console" {
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

// sampled routes Warn and above around the sampler.
func sampled(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}
	hook := zapcore.SamplerHook(func(e zapcore.Entry, dec zapcore.SamplingDecision) {
		if dec&zapcore.LogDropped != 0 {
			SampledTotal.WithLabelValues(levelName(e.Level)).Inc()
		}
	})
	return zapcore.NewTee(
		levelRange{Core: core, min: zapcore.WarnLevel, max: zapcore.FatalLevel},
		zapcore.NewSamplerWithOptions(
			levelRange{Core: core, min: TraceLevel, max: zapcore.InfoLevel},
			cfg.Tick, cfg.Initial, cfg.Thereafter, hook,
		),
	)
}

// levelRange admits entries with min <= level <= max.
type levelRange struct {
	zapcore.Core
	min, max zapcore.Level
}

func (r levelRange) Enabled(l zapcore.Level) bool {
	return l >= r.min && l <= r.max && r.Core.Enabled(l)
}

func (r levelRange) With(fields []zapcore.Field) zapcore.Core {
	return levelRange{Core: r.Core.With(fields), min: r.min, max: r.max}
}

func (r levelRange) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if e.Level < r.min || e.Level > r.max {
		return ce
	}
	return r.Core.Check(e, ce)
}
