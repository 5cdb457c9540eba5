package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// bufferLogger builds a console logger writing JSON lines into the returned buffer.
func bufferLogger(t *testing.T, mutate func(*Config)) (*Logger, *bytes.Buffer) {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Sampling.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}
	var buf bytes.Buffer
	logger, err := newLogger(cfg, nil, zapcore.AddSync(&buf))
	require.NoError(t, err)
	return logger, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestNewLogger_WritesContextFields(t *testing.T) {
	logger, buf := bufferLogger(t, nil)

	ctx := WithTenantID(context.Background(), "t1")
	ctx = WithEntity(ctx, "doc-1", "document")
	logger.Info(ctx, "entity indexed", zap.Int("count", 3))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	line := lines[0]
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "entity indexed", line["msg"])
	assert.Equal(t, "t1", line["tenant.id"])
	assert.Equal(t, "doc-1", line["entity.id"])
	assert.Equal(t, "document", line["entity.type"])
	assert.Equal(t, "ragindex", line["service"])
	assert.EqualValues(t, 3, line["count"])
	assert.Contains(t, line["caller"], "logger_test.go", "caller must be the call site, not the wrapper")
}

func TestNewLogger_TraceLevelName(t *testing.T) {
	logger, buf := bufferLogger(t, func(c *Config) { c.Level = TraceLevel })

	logger.Trace(context.Background(), "scroll page", zap.Int("points", 256))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "trace", lines[0]["level"])
}

func TestNewLogger_LevelFilter(t *testing.T) {
	logger, buf := bufferLogger(t, func(c *Config) { c.Level = zapcore.WarnLevel })
	ctx := context.Background()

	logger.Debug(ctx, "chunk reused")
	logger.Info(ctx, "entity indexed")
	logger.Warn(ctx, "rerank fallback")
	logger.Error(ctx, "upsert failed")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "rerank fallback", lines[0]["msg"])
	assert.Equal(t, "upsert failed", lines[1]["msg"])
	assert.NotEmpty(t, lines[1]["stacktrace"])
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"

	_, err := NewLogger(cfg, nil)
	assert.ErrorContains(t, err, "invalid logging config")
}

func TestNewLogger_OTELWithoutProviderFails(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output = OutputConfig{OTEL: true}

	_, err := NewLogger(cfg, nil)
	assert.ErrorContains(t, err, "no log output available")
}

func TestLogger_LevelMethods(t *testing.T) {
	core, observed := observer.New(TraceLevel)
	logger := &Logger{zap: zap.New(core)}
	ctx := WithTenantID(context.Background(), "t1")

	tests := []struct {
		level zapcore.Level
		log   func(context.Context, string, ...zap.Field)
	}{
		{TraceLevel, logger.Trace},
		{zapcore.DebugLevel, logger.Debug},
		{zapcore.InfoLevel, logger.Info},
		{zapcore.WarnLevel, logger.Warn},
		{zapcore.ErrorLevel, logger.Error},
	}
	for _, tt := range tests {
		t.Run(levelName(tt.level), func(t *testing.T) {
			observed.TakeAll()
			tt.log(ctx, "points deleted", zap.Int("count", 2))

			logs := observed.All()
			require.Len(t, logs, 1)
			assert.Equal(t, tt.level, logs[0].Level)
			assert.Equal(t, map[string]interface{}{"tenant.id": "t1", "count": int64(2)}, logs[0].ContextMap())
		})
	}
}

func TestLogger_WithAndNamed(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := &Logger{zap: zap.New(core)}

	logger.Named("indexer").With(zap.String("component", "qdrant")).Info(context.Background(), "collection ready")

	logs := observed.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "indexer", logs[0].LoggerName)
	assert.Equal(t, "qdrant", logs[0].ContextMap()["component"])
}

func TestLogger_Zap(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := &Logger{zap: zap.New(core)}

	logger.Zap().Info("http request")

	assert.Equal(t, 1, observed.FilterMessage("http request").Len())
}

func TestNewNop(t *testing.T) {
	logger := NewNop()

	assert.NotPanics(t, func() {
		logger.Error(context.Background(), "ignored")
	})
	assert.NoError(t, logger.Sync())
}
