// Package qdrant implements vectorstore.Store over the Qdrant gRPC API.
//
// All tenants share one collection; isolation is enforced by payload
// filters on tenantId, which EnsureCollection indexes as a keyword field.
package qdrant

import (
	"context"
	"errors"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/fyrsmithlabs/ragindex/internal/logging"
	"github.com/fyrsmithlabs/ragindex/internal/vectorstore"
)

const instrumentationName = "github.com/fyrsmithlabs/ragindex/internal/qdrant"

// indexedFields receive a keyword payload index on collection creation.
var indexedFields = []string{
	vectorstore.KeyTenantID,
	vectorstore.KeyDocID,
	vectorstore.KeyResourceID,
	vectorstore.KeyNodeType,
	vectorstore.KeyProjectID,
	vectorstore.KeyURL,
}

// pointsAPI is the subset of *qdrant.Client used by Client.
type pointsAPI interface {
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, request *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	ScrollAndOffset(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	SetPayload(ctx context.Context, request *qdrant.SetPayloadPoints) (*qdrant.UpdateResult, error)
	Close() error
}

// Client is a vectorstore.Store backed by one Qdrant collection.
type Client struct {
	api    pointsAPI
	config *ClientConfig
	logger *logging.Logger
	tracer trace.Tracer
}

// NewClient connects to Qdrant and performs a health check.
func NewClient(config *ClientConfig, logger *logging.Logger) (*Client, error) {
	if config == nil {
		config = DefaultClientConfig()
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	qdrantConfig := &qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		APIKey: config.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	}
	if !config.UseTLS {
		qdrantConfig.GrpcOptions = append(qdrantConfig.GrpcOptions,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	}

	api, err := qdrant.NewClient(qdrantConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	c := newClient(api, config, logger)

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	logger.Info(ctx, "connecting to qdrant",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.CollectionName),
	)

	if err := c.Health(ctx); err != nil {
		_ = api.Close()
		logger.Error(ctx, "qdrant health check failed",
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
			zap.Error(err),
		)
		return nil, fmt.Errorf("health check failed: %w", err)
	}

	logger.Info(ctx, "qdrant connection established",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
	)
	return c, nil
}

func newClient(api pointsAPI, config *ClientConfig, logger *logging.Logger) *Client {
	return &Client{
		api:    api,
		config: config,
		logger: logger.Named("qdrant"),
		tracer: otel.Tracer(instrumentationName),
	}
}

// Health checks that the Qdrant server answers.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.api.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	return nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.api.Close()
}

// Collection returns the configured collection name.
func (c *Client) Collection() string {
	return c.config.CollectionName
}

// EnsureCollection creates the collection with the given vector dimension
// and keyword payload indexes if it does not exist yet.
func (c *Client) EnsureCollection(ctx context.Context, dimension int) error {
	ctx, span := c.startSpan(ctx, "qdrant.EnsureCollection")
	defer span.End()

	if dimension <= 0 {
		err := fmt.Errorf("invalid vector dimension: %d", dimension)
		endSpan(span, err)
		return err
	}

	var exists bool
	err := c.retryOperation(ctx, "collection_exists", func() error {
		var err error
		exists, err = c.api.CollectionExists(ctx, c.config.CollectionName)
		return err
	})
	if err != nil {
		endSpan(span, err)
		return fmt.Errorf("check collection %s: %w", c.config.CollectionName, err)
	}
	if exists {
		endSpan(span, nil)
		return nil
	}

	err = c.api.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: c.config.CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: c.config.Distance,
		}),
	})
	if err != nil {
		endSpan(span, err)
		return fmt.Errorf("create collection %s: %w", c.config.CollectionName, err)
	}

	for _, field := range indexedFields {
		_, err := c.api.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: c.config.CollectionName,
			Wait:           qdrant.PtrOf(true),
			FieldName:      field,
			FieldType:      qdrant.PtrOf(qdrant.FieldType_FieldTypeKeyword),
		})
		if err != nil {
			endSpan(span, err)
			return fmt.Errorf("create payload index %s: %w", field, err)
		}
	}

	c.logger.Info(ctx, "collection created",
		zap.String("collection", c.config.CollectionName),
		zap.Int("dimension", dimension),
		zap.Strings("indexed_fields", indexedFields),
	)
	endSpan(span, nil)
	return nil
}

// Upsert implements vectorstore.Store.
func (c *Client) Upsert(ctx context.Context, points []vectorstore.Point) error {
	if len(points) == 0 {
		return nil
	}
	ctx, span := c.startSpan(ctx, "qdrant.Upsert", attribute.Int("points.count", len(points)))
	defer span.End()

	qpoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		if p.ID == "" || len(p.Vector) == 0 {
			err := fmt.Errorf("%w: id and vector are required", vectorstore.ErrInvalidPoint)
			endSpan(span, err)
			return err
		}
		qp, err := convertToQdrantPoint(p)
		if err != nil {
			err = fmt.Errorf("%w: %v", vectorstore.ErrInvalidPoint, err)
			endSpan(span, err)
			return err
		}
		qpoints = append(qpoints, qp)
	}

	err := c.retryOperation(ctx, "upsert", func() error {
		_, err := c.api.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: c.config.CollectionName,
			Wait:           qdrant.PtrOf(true),
			Points:         qpoints,
		})
		return err
	})
	endSpan(span, err)
	if err != nil {
		return fmt.Errorf("upsert %d points: %w", len(points), err)
	}
	return nil
}

// Delete implements vectorstore.Store. An empty filter is refused.
func (c *Client) Delete(ctx context.Context, filter vectorstore.Filter) error {
	ctx, span := c.startSpan(ctx, "qdrant.Delete")
	defer span.End()

	qfilter, err := c.requireFilter(filter)
	if err != nil {
		endSpan(span, err)
		return err
	}

	err = c.retryOperation(ctx, "delete", func() error {
		_, err := c.api.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: c.config.CollectionName,
			Wait:           qdrant.PtrOf(true),
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: qfilter},
			},
		})
		return err
	})
	endSpan(span, err)
	if err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	return nil
}

// Scroll implements vectorstore.Store.
func (c *Client) Scroll(ctx context.Context, filter vectorstore.Filter, offset string, limit int) (vectorstore.ScrollPage, error) {
	ctx, span := c.startSpan(ctx, "qdrant.Scroll", attribute.Int("scroll.limit", limit))
	defer span.End()

	qfilter, err := convertToQdrantFilter(filter)
	if err != nil {
		endSpan(span, err)
		return vectorstore.ScrollPage{}, err
	}
	if limit <= 0 {
		limit = vectorstore.DefaultScrollPageSize
	}

	req := &qdrant.ScrollPoints{
		CollectionName: c.config.CollectionName,
		Filter:         qfilter,
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	}
	if offset != "" {
		req.Offset = parsePointID(offset)
	}

	var (
		retrieved []*qdrant.RetrievedPoint
		next      *qdrant.PointId
	)
	err = c.retryOperation(ctx, "scroll", func() error {
		var err error
		retrieved, next, err = c.api.ScrollAndOffset(ctx, req)
		return err
	})
	if err != nil {
		endSpan(span, err)
		return vectorstore.ScrollPage{}, fmt.Errorf("scroll points: %w", err)
	}

	page := vectorstore.ScrollPage{
		Points:     make([]vectorstore.Point, 0, len(retrieved)),
		NextOffset: extractPointID(next),
	}
	for _, p := range retrieved {
		page.Points = append(page.Points, convertFromQdrantRetrievedPoint(p))
	}
	span.SetAttributes(attribute.Int("points.count", len(page.Points)))
	endSpan(span, nil)
	return page, nil
}

// Search implements vectorstore.Store.
func (c *Client) Search(ctx context.Context, vector []float32, filter vectorstore.Filter, limit int) ([]vectorstore.ScoredPoint, error) {
	ctx, span := c.startSpan(ctx, "qdrant.Search", attribute.Int("search.limit", limit))
	defer span.End()

	if len(vector) == 0 {
		err := errors.New("search vector is empty")
		endSpan(span, err)
		return nil, err
	}
	qfilter, err := convertToQdrantFilter(filter)
	if err != nil {
		endSpan(span, err)
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	var scored []*qdrant.ScoredPoint
	err = c.retryOperation(ctx, "search", func() error {
		var err error
		scored, err = c.api.Query(ctx, &qdrant.QueryPoints{
			CollectionName: c.config.CollectionName,
			Query:          qdrant.NewQuery(vector...),
			Filter:         qfilter,
			Limit:          qdrant.PtrOf(uint64(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		return err
	})
	if err != nil {
		endSpan(span, err)
		return nil, fmt.Errorf("search points: %w", err)
	}

	results := make([]vectorstore.ScoredPoint, 0, len(scored))
	for _, p := range scored {
		results = append(results, convertFromQdrantScoredPoint(p))
	}
	span.SetAttributes(attribute.Int("results.count", len(results)))
	endSpan(span, nil)
	return results, nil
}

// SetPayload implements vectorstore.Store.
func (c *Client) SetPayload(ctx context.Context, filter vectorstore.Filter, payload vectorstore.Payload) error {
	ctx, span := c.startSpan(ctx, "qdrant.SetPayload", attribute.Int("payload.keys", len(payload)))
	defer span.End()

	if len(payload) == 0 {
		endSpan(span, nil)
		return nil
	}
	qfilter, err := c.requireFilter(filter)
	if err != nil {
		endSpan(span, err)
		return err
	}
	qpayload, err := convertToQdrantPayload(payload)
	if err != nil {
		endSpan(span, err)
		return fmt.Errorf("convert payload: %w", err)
	}

	err = c.retryOperation(ctx, "set_payload", func() error {
		_, err := c.api.SetPayload(ctx, &qdrant.SetPayloadPoints{
			CollectionName: c.config.CollectionName,
			Wait:           qdrant.PtrOf(true),
			Payload:        qpayload,
			PointsSelector: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: qfilter},
			},
		})
		return err
	})
	endSpan(span, err)
	if err != nil {
		return fmt.Errorf("set payload: %w", err)
	}
	return nil
}

// requireFilter converts filter and refuses an empty one, which Qdrant
// would otherwise apply to the whole collection.
func (c *Client) requireFilter(filter vectorstore.Filter) (*qdrant.Filter, error) {
	qfilter, err := convertToQdrantFilter(filter)
	if err != nil {
		return nil, err
	}
	if qfilter == nil {
		return nil, fmt.Errorf("%w: destructive call without conditions", vectorstore.ErrInvalidFilter)
	}
	return qfilter, nil
}

func (c *Client) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.collection.name", c.config.CollectionName))
	return c.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

var _ vectorstore.Store = (*Client)(nil)
