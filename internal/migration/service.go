// Package migration copies the vector footprint of one entity into another,
// possibly owned by a different tenant.
package migration

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragindex/internal/logging"
	"github.com/fyrsmithlabs/ragindex/internal/vectorstore"
)

const instrumentationName = "github.com/fyrsmithlabs/ragindex/internal/migration"

// ErrSameEntity is returned when source and target are the same entity.
var ErrSameEntity = errors.New("source and target entity are the same")

// Result reports what a duplication wrote.
type Result struct {
	PointsCount int   `json:"pointsCount"`
	Bytes       int64 `json:"bytes"`
}

// Service duplicates entities.
type Service struct {
	store    vectorstore.Store
	logger   *logging.Logger
	pageSize int

	tracer trace.Tracer
	copied metric.Int64Counter
}

// NewService creates a Service. logger may be nil; pageSize <= 0 uses the
// store default.
func NewService(store vectorstore.Store, logger *logging.Logger, pageSize int) (*Service, error) {
	if store == nil {
		return nil, errors.New("vector store is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	s := &Service{
		store:    store,
		logger:   logger.Named("migration"),
		pageSize: pageSize,
		tracer:   otel.Tracer(instrumentationName),
	}
	var err error
	s.copied, err = otel.Meter(instrumentationName).Int64Counter(
		"ragindex.migration.points_copied_total",
		metric.WithDescription("Points written by entity duplication"),
		metric.WithUnit("{point}"),
	)
	if err != nil {
		s.logger.Warn(context.Background(), "failed to create copied counter", zap.Error(err))
	}
	return s, nil
}

// DuplicateEntity copies every point of src into dst. Ids are re-derived
// from dst and each point's seq; the tenant and entity payload fields are
// rewritten. src is not modified. A source without points yields a zero
// Result and no error.
func (s *Service) DuplicateEntity(ctx context.Context, src, dst vectorstore.EntityRef) (Result, error) {
	if err := src.Validate(); err != nil {
		return Result{}, fmt.Errorf("source: %w", err)
	}
	if err := dst.Validate(); err != nil {
		return Result{}, fmt.Errorf("target: %w", err)
	}
	if src == dst {
		return Result{}, ErrSameEntity
	}

	ctx = logging.WithTenantID(ctx, dst.TenantID)
	ctx = logging.WithEntity(ctx, dst.ID, string(dst.NodeType))
	ctx, span := s.tracer.Start(ctx, "migration.DuplicateEntity", trace.WithAttributes(
		attribute.Bool("cross_tenant", src.TenantID != dst.TenantID),
	))
	defer span.End()

	res, err := s.duplicate(ctx, src, dst)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(attribute.Int("points.count", res.PointsCount))
	span.SetStatus(codes.Ok, "")
	return res, nil
}

func (s *Service) duplicate(ctx context.Context, src, dst vectorstore.EntityRef) (Result, error) {
	points, err := vectorstore.FetchEntity(ctx, s.store, src, s.pageSize)
	if err != nil {
		return Result{}, fmt.Errorf("fetch source points: %w", err)
	}
	if len(points) == 0 {
		s.logger.Info(ctx, "source entity has no points, nothing duplicated",
			zap.String("source", src.String()))
		return Result{}, nil
	}

	rekeyed := make([]vectorstore.Point, len(points))
	for i, p := range points {
		rekeyed[i] = dst.Rekey(p)
	}
	if err := s.store.Upsert(ctx, rekeyed); err != nil {
		return Result{}, fmt.Errorf("upsert duplicated points: %w", err)
	}

	res := Result{PointsCount: len(rekeyed), Bytes: vectorstore.EstimateSize(rekeyed)}
	if s.copied != nil {
		s.copied.Add(ctx, int64(res.PointsCount))
	}
	s.logger.Info(ctx, "entity duplicated",
		zap.String("source", src.String()),
		zap.Int("count", res.PointsCount),
		zap.Int64("bytes", res.Bytes),
	)
	return res, nil
}
