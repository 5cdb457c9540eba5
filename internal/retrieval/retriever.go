// Package retrieval answers tenant-scoped similarity queries against the
// vector store.
package retrieval

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
	"github.com/fyrsmithlabs/ragindex/internal/vectorstore"
)

const instrumentationName = "github.com/fyrsmithlabs/ragindex/internal/retrieval"

// DefaultLimit is used when a query does not set a positive limit.
const DefaultLimit = 10

// ErrEmptyQuery is returned when neither query text nor a vector is given.
var ErrEmptyQuery = errors.New("query text or vector is required")

// Filter narrows a query beyond the mandatory tenant scope. Each non-empty
// field adds one any-of condition; conditions are combined with AND.
type Filter struct {
	NodeTypes   []vectorstore.NodeType
	URLs        []string
	DocIDs      []string
	ResourceIDs []string
	ProjectIDs  []string
}

// Query describes one retrieval.
type Query struct {
	TenantID string
	Text     string
	// Vector skips query embedding when set.
	Vector []float32
	Filter Filter
	Limit  int
}

// Hit is a retrieved chunk with its similarity score.
type Hit struct {
	vectorstore.ContentPayload
	Score float32 `json:"score"`
}

// Retriever embeds queries and searches the store.
type Retriever struct {
	store    vectorstore.Store
	embedder vectorstore.Embedder
	logger   *logging.Logger

	tracer   trace.Tracer
	duration metric.Float64Histogram
}

// New creates a Retriever. logger may be nil.
func New(store vectorstore.Store, embedder vectorstore.Embedder, logger *logging.Logger) (*Retriever, error) {
	if store == nil {
		return nil, fmt.Errorf("vector store cannot be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	r := &Retriever{
		store:    store,
		embedder: embedder,
		logger:   logger.Named("retrieval"),
		tracer:   otel.Tracer(instrumentationName),
	}
	var err error
	r.duration, err = otel.Meter(instrumentationName).Float64Histogram(
		"ragindex.retrieval.duration_seconds",
		metric.WithDescription("Duration of retrieval queries, including query embedding"),
		metric.WithUnit("s"),
	)
	if err != nil {
		r.logger.Warn(context.Background(), "failed to create duration histogram", zap.Error(err))
	}
	return r, nil
}

// BuildFilter returns the store filter for a query: tenantId first, then
// one any-of condition per non-empty field.
func BuildFilter(tenantID string, f Filter) vectorstore.Filter {
	filter := vectorstore.TenantFilter(tenantID)
	if len(f.NodeTypes) > 0 {
		types := make([]string, len(f.NodeTypes))
		for i, t := range f.NodeTypes {
			types[i] = string(t)
		}
		filter = filter.And(vectorstore.AnyOf(vectorstore.KeyNodeType, types...))
	}
	for _, c := range []struct {
		key    string
		values []string
	}{
		{vectorstore.KeyURL, f.URLs},
		{vectorstore.KeyDocID, f.DocIDs},
		{vectorstore.KeyResourceID, f.ResourceIDs},
		{vectorstore.KeyProjectID, f.ProjectIDs},
	} {
		if len(c.values) > 0 {
			filter = filter.And(vectorstore.AnyOf(c.key, c.values...))
		}
	}
	return filter
}

// Retrieve returns the chunks of q.TenantID most similar to the query, in
// the store's similarity order.
func (r *Retriever) Retrieve(ctx context.Context, q Query) ([]Hit, error) {
	if q.TenantID == "" {
		return nil, vectorstore.ErrMissingTenant
	}
	if q.Text == "" && len(q.Vector) == 0 {
		return nil, ErrEmptyQuery
	}
	for _, t := range q.Filter.NodeTypes {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", vectorstore.ErrInvalidFilter, err)
		}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	ctx = logging.WithTenantID(ctx, q.TenantID)
	ctx, span := r.tracer.Start(ctx, "retrieval.Retrieve", trace.WithAttributes(
		attribute.Int("limit", limit),
		attribute.Bool("precomputed_vector", len(q.Vector) > 0),
	))
	defer span.End()
	start := time.Now()

	hits, err := r.retrieve(ctx, q, limit)
	if r.duration != nil {
		r.duration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.Bool("success", err == nil)))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("results.count", len(hits)))
	span.SetStatus(codes.Ok, "")
	return hits, nil
}

func (r *Retriever) retrieve(ctx context.Context, q Query, limit int) ([]Hit, error) {
	vector := q.Vector
	if len(vector) == 0 {
		v, err := r.embedder.EmbedQuery(ctx, q.Text)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		vector = v
	}

	points, err := r.store.Search(ctx, vector, BuildFilter(q.TenantID, q.Filter), limit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, Hit{ContentPayload: p.Payload.ToContentPayload(), Score: p.Score})
	}
	r.logger.Debug(ctx, "retrieval completed", zap.Int("count", len(hits)), zap.Int("limit", limit))
	return hits, nil
}
