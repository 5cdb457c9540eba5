package serializer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragindex/internal/logging"
	"github.com/fyrsmithlabs/ragindex/internal/vectorstore"
)

// Result reports what Deserialize wrote.
type Result struct {
	PointsCount int   `json:"pointsCount"`
	Bytes       int64 `json:"bytes"`
}

// Serializer moves entity point sets between the store and blobs.
type Serializer struct {
	store    vectorstore.Store
	logger   *logging.Logger
	pageSize int
}

// New creates a Serializer. logger may be nil; pageSize <= 0 uses the
// store default.
func New(store vectorstore.Store, logger *logging.Logger, pageSize int) (*Serializer, error) {
	if store == nil {
		return nil, errors.New("vector store is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Serializer{store: store, logger: logger.Named("serializer"), pageSize: pageSize}, nil
}

// Serialize encodes every point of entity, in seq order.
func (s *Serializer) Serialize(ctx context.Context, entity vectorstore.EntityRef) ([]byte, error) {
	if err := entity.Validate(); err != nil {
		return nil, err
	}
	ctx = logging.WithTenantID(ctx, entity.TenantID)
	ctx = logging.WithEntity(ctx, entity.ID, string(entity.NodeType))

	points, err := vectorstore.FetchEntity(ctx, s.store, entity, s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("fetch points: %w", err)
	}

	records := make([]Record, len(points))
	for i, p := range points {
		if records[i], err = NewRecord(entity, p); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := Encode(&buf, records); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "entity serialized",
		zap.Int("count", len(records)),
		zap.Int("bytes", buf.Len()),
	)
	return buf.Bytes(), nil
}

// Deserialize decodes blob and upserts its points into target. Each point
// gets an id derived from target and its seq, and the tenant and entity
// payload fields are rewritten. The blob is fully decoded and validated
// before anything is written.
func (s *Serializer) Deserialize(ctx context.Context, target vectorstore.EntityRef, blob []byte) (Result, error) {
	if err := target.Validate(); err != nil {
		return Result{}, err
	}
	ctx = logging.WithTenantID(ctx, target.TenantID)
	ctx = logging.WithEntity(ctx, target.ID, string(target.NodeType))

	points, err := decodePoints(target, blob)
	if err != nil {
		s.logger.Warn(ctx, "rejected serialized blob", zap.Int("bytes", len(blob)), zap.Error(err))
		return Result{}, err
	}
	if len(points) == 0 {
		s.logger.Info(ctx, "serialized blob holds no points")
		return Result{}, nil
	}

	if err := s.store.Upsert(ctx, points); err != nil {
		return Result{}, fmt.Errorf("upsert imported points: %w", err)
	}
	res := Result{PointsCount: len(points), Bytes: vectorstore.EstimateSize(points)}
	s.logger.Info(ctx, "entity deserialized",
		zap.Int("count", res.PointsCount),
		zap.Int64("bytes", res.Bytes),
	)
	return res, nil
}

func decodePoints(target vectorstore.EntityRef, blob []byte) ([]vectorstore.Point, error) {
	records, err := Decode(blob)
	if err != nil {
		return nil, err
	}

	points := make([]vectorstore.Point, 0, len(records))
	seen := make(map[int]bool, len(records))
	for _, r := range records {
		p, err := r.Point()
		if err != nil {
			return nil, err
		}
		if _, ok := p.Payload[vectorstore.KeySeq]; !ok {
			return nil, fmt.Errorf("%w: point %s has no seq", ErrMalformedBlob, r.ID)
		}
		seq := p.Payload.Seq()
		if seq < 0 || seen[seq] {
			return nil, fmt.Errorf("%w: invalid or duplicate seq %d", ErrMalformedBlob, seq)
		}
		seen[seq] = true
		p.Payload[vectorstore.KeySeq] = seq
		points = append(points, target.Rekey(p))
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Payload.Seq() < points[j].Payload.Seq()
	})
	return points, nil
}
