// Package indexer keeps the vector footprint of a content entity in step
// with its text, re-embedding only chunks whose text is new.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragindex/internal/logging"
	"github.com/fyrsmithlabs/ragindex/internal/telemetry"
	"github.com/fyrsmithlabs/ragindex/internal/vectorstore"
)

const instrumentationName = "github.com/fyrsmithlabs/ragindex/internal/indexer"

// ErrPartialConvergence is returned when the old points were deleted but
// the new set could not be written. The entity has no searchable content
// until IndexEntity is retried.
var ErrPartialConvergence = errors.New("entity points deleted but upsert failed")

// ErrReservedKey is returned when a payload patch targets a key owned by the indexer.
var ErrReservedKey = errors.New("payload key is reserved")

// Splitter chunks entity text.
type Splitter interface {
	Chunk(text string) ([]string, error)
}

// Result summarizes one IndexEntity run.
type Result struct {
	Chunks   int `json:"chunks"`
	Reused   int `json:"reused"`
	Embedded int `json:"embedded"`
	Deleted  int `json:"deleted"`
	// Bytes is the estimated size of the written point set.
	Bytes int64 `json:"bytes"`
	// Redacted counts secrets removed from the text before chunking.
	Redacted int `json:"redacted,omitempty"`
}

// Indexer converges stored points to an entity's current chunking.
type Indexer struct {
	store    vectorstore.Store
	embedder vectorstore.Embedder
	splitter Splitter
	logger   *logging.Logger
	pageSize int

	tracer   trace.Tracer
	meters   metric.MeterProvider
	chunks   metric.Int64Counter
	duration metric.Float64Histogram
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithScrollPageSize sets the page size used to read existing points.
func WithScrollPageSize(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.pageSize = n
		}
	}
}

// WithTelemetry records spans and metrics through tel instead of the otel
// globals.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(ix *Indexer) {
		if tel != nil {
			ix.tracer = tel.Tracer(instrumentationName)
			ix.meters = tel.MeterProvider()
		}
	}
}

// New creates an Indexer. logger may be nil.
func New(store vectorstore.Store, embedder vectorstore.Embedder, splitter Splitter, logger *logging.Logger, opts ...Option) (*Indexer, error) {
	if store == nil {
		return nil, fmt.Errorf("vector store cannot be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if splitter == nil {
		return nil, fmt.Errorf("splitter cannot be nil")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	ix := &Indexer{
		store:    store,
		embedder: embedder,
		splitter: splitter,
		logger:   logger.Named("indexer"),
		pageSize: vectorstore.DefaultScrollPageSize,
		tracer:   otel.Tracer(instrumentationName),
		meters:   otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(ix)
	}

	meter := ix.meters.Meter(instrumentationName)
	var err error
	ix.chunks, err = meter.Int64Counter(
		"ragindex.indexer.chunks_total",
		metric.WithDescription("Chunks written by the indexer, labeled by outcome (reused, embedded)"),
		metric.WithUnit("{chunk}"),
	)
	if err != nil {
		ix.logger.Warn(context.Background(), "failed to create chunks counter", zap.Error(err))
	}
	ix.duration, err = meter.Float64Histogram(
		"ragindex.indexer.run_duration_seconds",
		metric.WithDescription("Duration of IndexEntity runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		ix.logger.Warn(context.Background(), "failed to create duration histogram", zap.Error(err))
	}
	return ix, nil
}

// IndexEntity chunks text and replaces the entity's stored points with the
// new chunk set. Chunks whose exact text is already stored reuse the stored
// vector; the rest are embedded in a single call. Nothing is deleted when
// chunking, reading or embedding fails.
func (ix *Indexer) IndexEntity(ctx context.Context, entity vectorstore.EntityRef, text string, metadata vectorstore.Payload) (Result, error) {
	if err := entity.Validate(); err != nil {
		return Result{}, err
	}
	ctx = logging.WithTenantID(ctx, entity.TenantID)
	ctx = logging.WithEntity(ctx, entity.ID, string(entity.NodeType))
	ctx, span := ix.tracer.Start(ctx, "indexer.IndexEntity", trace.WithAttributes(
		attribute.String("entity.type", string(entity.NodeType)),
	))
	defer span.End()
	start := time.Now()

	res, err := ix.indexEntity(ctx, entity, text, metadata)
	if ix.duration != nil {
		ix.duration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.Bool("success", err == nil)))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}

	span.SetAttributes(
		attribute.Int("chunks.count", res.Chunks),
		attribute.Int("chunks.reused", res.Reused),
		attribute.Int("chunks.embedded", res.Embedded),
	)
	span.SetStatus(codes.Ok, "")
	return res, nil
}

func (ix *Indexer) indexEntity(ctx context.Context, entity vectorstore.EntityRef, text string, metadata vectorstore.Payload) (Result, error) {
	chunks, err := ix.splitter.Chunk(text)
	if err != nil {
		return Result{}, fmt.Errorf("chunk text: %w", err)
	}

	existing, err := vectorstore.FetchEntity(ctx, ix.store, entity, ix.pageSize)
	if err != nil {
		return Result{}, fmt.Errorf("fetch existing points: %w", err)
	}

	diff := ComputeDiff(entity, chunks, existing, metadata)
	if len(diff.ToEmbed) > 0 {
		vectors, err := ix.embedder.EmbedDocuments(ctx, diff.ToEmbed)
		if err != nil {
			ix.logger.Warn(ctx, "embedding failed, index left untouched",
				zap.Int("to_embed", len(diff.ToEmbed)),
				zap.Error(err),
			)
			return Result{}, fmt.Errorf("embed %d chunks: %w", len(diff.ToEmbed), err)
		}
		if err := diff.Fill(vectors); err != nil {
			return Result{}, fmt.Errorf("embed %d chunks: %w", len(diff.ToEmbed), err)
		}
	}

	res := Result{
		Chunks:   len(diff.Points),
		Reused:   diff.Reused,
		Embedded: diff.Embedded(),
		Deleted:  diff.Existing,
		Bytes:    vectorstore.EstimateSize(diff.Points),
	}

	if diff.Existing > 0 {
		if err := ix.store.Delete(ctx, entity.Filter()); err != nil {
			return Result{}, fmt.Errorf("delete existing points: %w", err)
		}
		ix.logger.Info(ctx, "entity points deleted", zap.Int("count", diff.Existing))
	}

	if len(diff.Points) > 0 {
		if err := ix.store.Upsert(ctx, diff.Points); err != nil {
			ix.logger.Error(ctx, "upsert failed after delete",
				zap.Int("deleted", diff.Existing),
				zap.Int("count", len(diff.Points)),
				zap.Error(err),
			)
			return Result{Deleted: diff.Existing}, fmt.Errorf("%w: %v", ErrPartialConvergence, err)
		}
	}

	ix.recordChunks(ctx, res)
	ix.logger.Info(ctx, "entity indexed",
		zap.Int("count", res.Chunks),
		zap.Int("reused", res.Reused),
		zap.Int("embedded", res.Embedded),
		zap.Int64("bytes", res.Bytes),
	)
	return res, nil
}

func (ix *Indexer) recordChunks(ctx context.Context, res Result) {
	if ix.chunks == nil {
		return
	}
	ix.chunks.Add(ctx, int64(res.Reused), metric.WithAttributes(attribute.String("outcome", "reused")))
	ix.chunks.Add(ctx, int64(res.Embedded), metric.WithAttributes(attribute.String("outcome", "embedded")))
}

// DeleteEntity removes every point of the entity.
func (ix *Indexer) DeleteEntity(ctx context.Context, entity vectorstore.EntityRef) error {
	if err := entity.Validate(); err != nil {
		return err
	}
	ctx = logging.WithTenantID(ctx, entity.TenantID)
	ctx = logging.WithEntity(ctx, entity.ID, string(entity.NodeType))

	if err := ix.store.Delete(ctx, entity.Filter()); err != nil {
		return fmt.Errorf("delete entity points: %w", err)
	}
	ix.logger.Info(ctx, "entity points deleted")
	return nil
}

// UpdatePayload merges patch into every point of the listed entities of
// one tenant. Keys owned by the indexer cannot be patched.
func (ix *Indexer) UpdatePayload(ctx context.Context, tenantID string, nodeType vectorstore.NodeType, entityIDs []string, patch vectorstore.Payload) error {
	if tenantID == "" {
		return vectorstore.ErrMissingTenant
	}
	if err := nodeType.Validate(); err != nil {
		return fmt.Errorf("%w: %v", vectorstore.ErrInvalidEntity, err)
	}
	for _, k := range reservedKeys {
		if _, ok := patch[k]; ok {
			return fmt.Errorf("%w: %s", ErrReservedKey, k)
		}
	}
	if len(entityIDs) == 0 || len(patch) == 0 {
		return nil
	}

	ctx = logging.WithTenantID(ctx, tenantID)
	filter := vectorstore.TenantFilter(tenantID).
		And(vectorstore.AnyOf(nodeType.EntityKey(), entityIDs...))
	if err := ix.store.SetPayload(ctx, filter, patch); err != nil {
		return fmt.Errorf("update payload: %w", err)
	}

	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	ix.logger.Info(ctx, "entity payloads updated",
		zap.String("entity.type", string(nodeType)),
		zap.Int("entities", len(entityIDs)),
		zap.Strings("keys", keys),
	)
	return nil
}
