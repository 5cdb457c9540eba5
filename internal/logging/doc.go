// Package logging is the zap setup shared by ragctl and the HTTP server.
//
// Every Logger method takes a context and prepends its trace, tenant,
// entity and request fields:
//
//	ctx = logging.WithTenantID(ctx, "t1")
//	ctx = logging.WithEntity(ctx, "doc-1", "document")
//	logger.Info(ctx, "points upserted", zap.Int("count", 12))
//
//	{"level":"info","msg":"points upserted","service":"ragindex","tenant.id":"t1","entity.id":"doc-1","entity.type":"document","count":12}
//
// Console output goes through a redacting encoder. Keys whose last segment
// names a credential (every config.Secret path, plus access_key, password
// and similar) print as [REDACTED], and bearer headers, OpenAI and Jina keys
// and AWS key IDs are cut out of free text. Log configured credentials with
// Secret so the raw value never reaches a core:
//
//	logger.Info(ctx, "engine ready", logging.Secret("reader.token", cfg.Reader.Token))
//
// With an OpenTelemetry LoggerProvider, entries are also bridged through
// otelzap. Sampling thins repeated Trace to Info messages and counts what it
// drops in ragindex_logging_sampled_entries_total; Warn and above always pass.
//
// Tests use NewTestLogger and its Assert helpers.
package logging
