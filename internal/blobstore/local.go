package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps objects under root/<bucket>/<key> on disk.
type LocalStore struct {
	root string
}

// NewLocalStore creates a store rooted at root.
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, errors.New("local blob directory is required")
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}
	return &LocalStore{root: root}, nil
}

func (l *LocalStore) path(bucket, key string) (string, error) {
	if bucket == "" || key == "" {
		return "", errors.New("bucket and key are required")
	}
	base := filepath.Join(l.root, bucket)
	p := filepath.Join(base, filepath.FromSlash(key))
	if !strings.HasPrefix(p, base+string(filepath.Separator)) {
		return "", fmt.Errorf("object key %q escapes bucket", key)
	}
	return p, nil
}

// BucketExists implements ObjectStore.
func (l *LocalStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	info, err := os.Stat(filepath.Join(l.root, bucket))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// MakeBucket implements ObjectStore.
func (l *LocalStore) MakeBucket(ctx context.Context, bucket string) error {
	if bucket == "" {
		return errors.New("bucket name is required")
	}
	return os.MkdirAll(filepath.Join(l.root, bucket), 0o700)
}

// PutObject implements ObjectStore.
func (l *LocalStore) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64) error {
	p, err := l.path(bucket, key)
	if err != nil {
		return err
	}
	if ok, err := l.BucketExists(ctx, bucket); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}

// GetObject implements ObjectStore.
func (l *LocalStore) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	p, err := l.path(bucket, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
	}
	return f, err
}

// StatObject implements ObjectStore.
func (l *LocalStore) StatObject(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	p, err := l.path(bucket, key)
	if err != nil {
		return ObjectInfo{}, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return ObjectInfo{}, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
	}
	if err != nil {
		return ObjectInfo{}, err
	}
	return ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime()}, nil
}

// RemoveObject implements ObjectStore. Removing a missing key is not an error.
func (l *LocalStore) RemoveObject(ctx context.Context, bucket, key string) error {
	p, err := l.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
