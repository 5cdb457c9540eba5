package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResource(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.ServiceVersion = "1.4.0"

	attrs := map[string]string{}
	for _, kv := range newResource(cfg).Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsString()
	}
	assert.Equal(t, "ragindex", attrs["service.name"])
	assert.Equal(t, "1.4.0", attrs["service.version"])
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "otel.example.com:4318", stripScheme("https://otel.example.com:4318"))
	assert.Equal(t, "localhost:4318", stripScheme("http://localhost:4318"))
	assert.Equal(t, "localhost:4317", stripScheme("localhost:4317"))
}

func TestNewExporters_BothProtocols(t *testing.T) {
	for _, protocol := range []string{"grpc", protocolHTTP} {
		t.Run(protocol, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Protocol = protocol

			// Exporters connect lazily, so construction succeeds without a collector.
			spanExp, err := newSpanExporter(context.Background(), cfg)
			require.NoError(t, err)
			require.NoError(t, spanExp.Shutdown(context.Background()))

			metricExp, err := newMetricExporter(context.Background(), cfg)
			require.NoError(t, err)
			require.NoError(t, metricExp.Shutdown(context.Background()))
		})
	}
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Metrics.Enabled = false

	mp, err := newMeterProvider(context.Background(), cfg, newResource(cfg))
	require.NoError(t, err)
	assert.Nil(t, mp)
}

func TestNewLoggerProvider(t *testing.T) {
	cfg := NewDefaultConfig()

	lp, err := newLoggerProvider(context.Background(), cfg, newResource(cfg))
	require.NoError(t, err)
	require.NotNil(t, lp)
	assert.NotNil(t, lp.Logger("ragindex.test"))
	require.NoError(t, lp.Shutdown(context.Background()))

	cfg.Logs.Enabled = false
	lp, err = newLoggerProvider(context.Background(), cfg, newResource(cfg))
	require.NoError(t, err)
	assert.Nil(t, lp)
}
