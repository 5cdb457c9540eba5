package serializer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragindex/internal/blobstore"
	"github.com/fyrsmithlabs/ragindex/internal/logging"
	"github.com/fyrsmithlabs/ragindex/internal/vectorstore"
)

// maxBlobSize bounds how much of an object Import reads.
const maxBlobSize = 256 << 20

// Exporter stores serialized entities in a bucket.
type Exporter struct {
	serializer *Serializer
	bucket     *blobstore.Bucket
	logger     *logging.Logger
}

// NewExporter creates an Exporter. logger may be nil.
func NewExporter(s *Serializer, bucket *blobstore.Bucket, logger *logging.Logger) (*Exporter, error) {
	if s == nil {
		return nil, errors.New("serializer is required")
	}
	if bucket == nil {
		return nil, errors.New("bucket is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Exporter{serializer: s, bucket: bucket, logger: logger.Named("exporter")}, nil
}

// ObjectKey returns the key an entity is exported under:
// vectors/<tenant>/<nodeType>/<entity>.avro. The tenant and entity id are
// escaped as single path segments, so an id containing slashes or dot
// segments stays under its own tenant prefix.
func ObjectKey(e vectorstore.EntityRef) string {
	return "vectors/" + keySegment(e.TenantID) + "/" + keySegment(string(e.NodeType)) + "/" + keySegment(e.ID) + ".avro"
}

func keySegment(s string) string {
	if s == "." || s == ".." {
		return strings.ReplaceAll(s, ".", "%2E")
	}
	return url.PathEscape(s)
}

// Export serializes entity and stores it under ObjectKey(entity).
func (x *Exporter) Export(ctx context.Context, entity vectorstore.EntityRef) (string, error) {
	blob, err := x.serializer.Serialize(ctx, entity)
	if err != nil {
		return "", err
	}
	key := ObjectKey(entity)
	if err := x.bucket.Put(ctx, key, blob); err != nil {
		return "", err
	}
	x.logger.Info(logging.WithTenantID(ctx, entity.TenantID), "entity exported",
		zap.String("bucket", x.bucket.Name()),
		zap.String("key", key),
		zap.Int("bytes", len(blob)),
	)
	return key, nil
}

// Import reads key and deserializes it into target. A missing object fails
// with blobstore.ErrObjectNotFound; an empty one with ErrEmptyBlob.
func (x *Exporter) Import(ctx context.Context, key string, target vectorstore.EntityRef) (Result, error) {
	exists, err := x.bucket.Exists(ctx, key)
	if err != nil {
		return Result{}, err
	}
	if !exists {
		return Result{}, fmt.Errorf("%w: %s/%s", blobstore.ErrObjectNotFound, x.bucket.Name(), key)
	}

	r, err := x.bucket.Get(ctx, key)
	if err != nil {
		return Result{}, err
	}
	defer r.Close()

	blob, err := io.ReadAll(io.LimitReader(r, maxBlobSize+1))
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", key, err)
	}
	if len(blob) > maxBlobSize {
		return Result{}, fmt.Errorf("%w: %s exceeds %d bytes", ErrMalformedBlob, key, maxBlobSize)
	}
	return x.serializer.Deserialize(ctx, target, blob)
}
