package logging

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/ragindex/internal/telemetry"
)

func TestSampled_WarnAndAboveBypass(t *testing.T) {
	core, observed := observer.New(TraceLevel)
	logger := zap.New(sampled(core, SamplingConfig{
		Enabled:    true,
		Tick:       time.Minute,
		Initial:    2,
		Thereafter: 0,
	}))
	droppedBefore := testutil.ToFloat64(SampledTotal.WithLabelValues("info"))

	for i := 0; i < 5; i++ {
		logger.Info("chunk reused")
		logger.Warn("rerank fallback")
		logger.Error("upsert failed")
	}

	assert.Equal(t, 2, observed.FilterMessage("chunk reused").Len())
	assert.Equal(t, 5, observed.FilterMessage("rerank fallback").Len())
	assert.Equal(t, 5, observed.FilterMessage("upsert failed").Len())
	assert.Equal(t, 3.0, testutil.ToFloat64(SampledTotal.WithLabelValues("info"))-droppedBefore)
}

func TestSampled_Disabled(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)

	assert.Equal(t, core, sampled(core, SamplingConfig{}))
}

func TestLevelRange(t *testing.T) {
	core, observed := observer.New(TraceLevel)
	r := levelRange{Core: core, min: zapcore.DebugLevel, max: zapcore.InfoLevel}

	assert.False(t, r.Enabled(TraceLevel))
	assert.True(t, r.Enabled(zapcore.DebugLevel))
	assert.True(t, r.Enabled(zapcore.InfoLevel))
	assert.False(t, r.Enabled(zapcore.WarnLevel))

	logger := zap.New(r).With(zap.String("component", "indexer"))
	logger.Info("kept")
	logger.Warn("dropped")

	logs := observed.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "kept", logs[0].Message)
	assert.Equal(t, "indexer", logs[0].ContextMap()["component"])
}

func TestNewCore_BridgesToOTEL(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	cfg := NewDefaultConfig()
	cfg.Output = OutputConfig{Console: true, OTEL: true}
	cfg.Sampling.Enabled = false

	var buf bytes.Buffer
	logger, err := newLogger(cfg, tel.LoggerProvider(), zapcore.AddSync(&buf))
	require.NoError(t, err)

	ctx := WithTenantID(context.Background(), "t1")
	logger.Debug(ctx, "below level")
	logger.Info(ctx, "entity indexed", zap.Int("count", 2))

	assert.Contains(t, buf.String(), "entity indexed")
	records := tel.LogRecords()
	require.Len(t, records, 1)
	assert.Equal(t, "entity indexed", records[0].Body().AsString())
	assert.Equal(t, log.SeverityInfo, records[0].Severity())

	attrs := map[string]string{}
	records[0].WalkAttributes(func(kv log.KeyValue) bool {
		attrs[kv.Key] = kv.Value.String()
		return true
	})
	assert.Equal(t, "t1", attrs["tenant.id"])
}

func TestNewCore_OTELOnly(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	cfg := NewDefaultConfig()
	cfg.Output = OutputConfig{OTEL: true}

	logger, err := newLogger(cfg, tel.LoggerProvider(), nil)
	require.NoError(t, err)

	logger.Warn(context.Background(), "rerank fallback")
	assert.Len(t, tel.LogRecords(), 1)
}
