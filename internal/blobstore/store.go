// Package blobstore persists serialized vector exports in object storage.
//
// ObjectStore is the raw client surface: S3Client talks to MinIO or any S3
// endpoint through minio-go, LocalStore keeps objects on disk. Bucket wraps
// either with the configured bucket name.
package blobstore

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrObjectNotFound is returned when a key does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrBucketNotFound is returned when the bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStore is the raw object client.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string) error
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64) error
	// GetObject returns ErrObjectNotFound for a missing key.
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	// StatObject returns ErrObjectNotFound for a missing key.
	StatObject(ctx context.Context, bucket, key string) (ObjectInfo, error)
	RemoveObject(ctx context.Context, bucket, key string) error
}
