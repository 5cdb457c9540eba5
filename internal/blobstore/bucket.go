package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragindex/internal/config"
	"github.com/fyrsmithlabs/ragindex/internal/logging"
)

// Bucket binds an ObjectStore to one bucket.
//
// Get substitutes an empty stream for a missing object; callers that must
// tell "missing" from "empty" use Exists or Stat.
type Bucket struct {
	store  ObjectStore
	name   string
	logger *logging.Logger
}

// NewBucket wraps store. logger may be nil.
func NewBucket(store ObjectStore, name string, logger *logging.Logger) (*Bucket, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	if name == "" {
		return nil, errors.New("bucket name is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Bucket{store: store, name: name, logger: logger.Named("blobstore")}, nil
}

// FromSettings returns the bucket configured by cfg: S3 when enabled, a
// local directory when cfg.Dir is set, nil otherwise.
func FromSettings(cfg config.BlobConfig, logger *logging.Logger) (*Bucket, error) {
	var (
		store ObjectStore
		err   error
	)
	switch {
	case cfg.Enabled:
		store, err = NewS3Client(cfg)
	case cfg.Dir != "":
		store, err = NewLocalStore(cfg.Dir)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return NewBucket(store, cfg.Bucket, logger)
}

// Name returns the bucket name.
func (b *Bucket) Name() string { return b.name }

// EnsureBucket creates the bucket if it does not exist.
func (b *Bucket) EnsureBucket(ctx context.Context) error {
	exists, err := b.store.BucketExists(ctx, b.name)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", b.name, err)
	}
	if exists {
		return nil
	}
	if err := b.store.MakeBucket(ctx, b.name); err != nil {
		return fmt.Errorf("creating bucket %s: %w", b.name, err)
	}
	b.logger.Info(ctx, "bucket created", zap.String("bucket", b.name))
	return nil
}

// Put writes data under key, replacing any existing object.
func (b *Bucket) Put(ctx context.Context, key string, data []byte) error {
	if err := b.store.PutObject(ctx, b.name, key, bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	b.logger.Debug(ctx, "object stored", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

// Get opens key for reading. A missing object yields an empty stream and
// no error.
func (b *Bucket) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := b.store.GetObject(ctx, b.name, key)
	if errors.Is(err, ErrObjectNotFound) {
		b.logger.Debug(ctx, "object not found, returning empty stream", zap.String("key", key))
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return r, nil
}

// Stat describes key. A missing object returns ErrObjectNotFound.
func (b *Bucket) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	info, err := b.store.StatObject(ctx, b.name, key)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("stat %s: %w", key, err)
	}
	return info, nil
}

// Exists reports whether key is stored.
func (b *Bucket) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.store.StatObject(ctx, b.name, key)
	if errors.Is(err, ErrObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return true, nil
}

// Remove deletes key. Removing a missing object is not an error.
func (b *Bucket) Remove(ctx context.Context, key string) error {
	err := b.store.RemoveObject(ctx, b.name, key)
	if err != nil && !errors.Is(err, ErrObjectNotFound) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	b.logger.Debug(ctx, "object removed", zap.String("key", key))
	return nil
}
