// Package telemetry starts the OpenTelemetry providers of a ragctl process.
//
// Traces and metrics go out over OTLP gRPC, or HTTP/protobuf when protocol
// is "http/protobuf". Log records go out over OTLP gRPC only; the logging
// package bridges zap entries into LoggerProvider.
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry), bootLogger)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
//	ix, err := indexer.New(store, embedder, splitter, logger, indexer.WithTelemetry(tel))
//
// A provider that fails to start is skipped and logged as "telemetry
// degraded"; export errors after startup are logged as "telemetry export
// failed". Neither stops indexing.
//
// # Configuration
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc
//	  service_name: "ragindex"
//
// # Testing
//
// TestTelemetry records in memory and installs nothing globally:
//
//	tel := telemetry.NewTestTelemetry()
//	ix, _ := indexer.New(store, embedder, splitter, nil, indexer.WithTelemetry(tel.Telemetry))
//	...
//	tel.Int64Sum(t, "ragindex.indexer.chunks_total", attribute.String("outcome", "reused"))
package telemetry
