package telemetry

import (
	"context"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

// TestTelemetry keeps spans, metrics and log records in memory. Nothing is
// installed globally; hand its providers to the code under test.
type TestTelemetry struct {
	*Telemetry

	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
	logs   *logRecorder
}

// NewTestTelemetry returns an enabled instance with synchronous exporters.
func NewTestTelemetry() *TestTelemetry {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	logs := &logRecorder{}

	return &TestTelemetry{
		Telemetry: &Telemetry{
			config:         cfg,
			logger:         zap.NewNop(),
			tracerProvider: trace.NewTracerProvider(trace.WithSpanProcessor(spans)),
			meterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
			logProvider:    sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(logs))),
		},
		spans:  spans,
		reader: reader,
		logs:   logs,
	}
}

// Span returns the last ended span called name.
func (tt *TestTelemetry) Span(tb testing.TB, name string) trace.ReadOnlySpan {
	tb.Helper()
	ended := tt.spans.Ended()
	for i := len(ended) - 1; i >= 0; i-- {
		if ended[i].Name() == name {
			return ended[i]
		}
	}
	names := make([]string, 0, len(ended))
	for _, s := range ended {
		names = append(names, s.Name())
	}
	tb.Fatalf("no ended span %q; got %v", name, names)
	return nil
}

// SpanAttr returns the value of key on the last ended span called name.
func (tt *TestTelemetry) SpanAttr(tb testing.TB, name string, key attribute.Key) attribute.Value {
	tb.Helper()
	for _, kv := range tt.Span(tb, name).Attributes() {
		if kv.Key == key {
			return kv.Value
		}
	}
	tb.Fatalf("span %q has no attribute %s", name, key)
	return attribute.Value{}
}

func (tt *TestTelemetry) collect(tb testing.TB) metricdata.ResourceMetrics {
	tb.Helper()
	var rm metricdata.ResourceMetrics
	if err := tt.reader.Collect(context.Background(), &rm); err != nil {
		tb.Fatalf("collect metrics: %v", err)
	}
	return rm
}

func (tt *TestTelemetry) find(tb testing.TB, name string) metricdata.Aggregation {
	tb.Helper()
	for _, sm := range tt.collect(tb).ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m.Data
			}
		}
	}
	tb.Fatalf("no metric %q recorded", name)
	return nil
}

// Int64Sum returns the value of counter name for the data point carrying
// exactly attrs. A missing point is zero.
func (tt *TestTelemetry) Int64Sum(tb testing.TB, name string, attrs ...attribute.KeyValue) int64 {
	tb.Helper()
	sum, ok := tt.find(tb, name).(metricdata.Sum[int64])
	if !ok {
		tb.Fatalf("metric %q is not an int64 sum", name)
	}
	want := attribute.NewSet(attrs...)
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Equals(&want) {
			return dp.Value
		}
	}
	return 0
}

// HistogramCount returns how many values histogram name recorded across all
// attribute sets.
func (tt *TestTelemetry) HistogramCount(tb testing.TB, name string) uint64 {
	tb.Helper()
	hist, ok := tt.find(tb, name).(metricdata.Histogram[float64])
	if !ok {
		tb.Fatalf("metric %q is not a float64 histogram", name)
	}
	var n uint64
	for _, dp := range hist.DataPoints {
		n += dp.Count
	}
	return n
}

// LogRecords returns every record emitted through LoggerProvider.
func (tt *TestTelemetry) LogRecords() []sdklog.Record {
	return tt.logs.all()
}

// logRecorder is an sdklog.Exporter that keeps clones of what it receives.
type logRecorder struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (r *logRecorder) Export(_ context.Context, records []sdklog.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range records {
		r.records = append(r.records, records[i].Clone())
	}
	return nil
}

func (r *logRecorder) Shutdown(context.Context) error   { return nil }
func (r *logRecorder) ForceFlush(context.Context) error { return nil }

func (r *logRecorder) all() []sdklog.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sdklog.Record(nil), r.records...)
}
