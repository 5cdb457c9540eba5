package blobstore

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragindex/internal/config"
)

func newLocalBucket(t *testing.T) *Bucket {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	b, err := NewBucket(store, "exports", nil)
	require.NoError(t, err)
	require.NoError(t, b.EnsureBucket(context.Background()))
	return b
}

// brokenStore fails every call with err.
type brokenStore struct{ err error }

func (s brokenStore) BucketExists(context.Context, string) (bool, error) { return false, s.err }
func (s brokenStore) MakeBucket(context.Context, string) error           { return s.err }
func (s brokenStore) PutObject(context.Context, string, string, io.Reader, int64) error {
	return s.err
}
func (s brokenStore) GetObject(context.Context, string, string) (io.ReadCloser, error) {
	return nil, s.err
}
func (s brokenStore) StatObject(context.Context, string, string) (ObjectInfo, error) {
	return ObjectInfo{}, s.err
}
func (s brokenStore) RemoveObject(context.Context, string, string) error { return s.err }

func TestBucket_PutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := newLocalBucket(t)

	require.NoError(t, b.Put(ctx, "vectors/t1/doc-1.avro", []byte("payload")))

	r, err := b.Get(ctx, "vectors/t1/doc-1.avro")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	info, err := b.Stat(ctx, "vectors/t1/doc-1.avro")
	require.NoError(t, err)
	assert.Equal(t, int64(7), info.Size)
}

func TestBucket_GetMissingReturnsEmptyStream(t *testing.T) {
	b := newLocalBucket(t)

	r, err := b.Get(context.Background(), "vectors/t1/missing.avro")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.NoError(t, r.Close())
}

func TestBucket_ExistsAndStat(t *testing.T) {
	ctx := context.Background()
	b := newLocalBucket(t)

	ok, err := b.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = b.Stat(ctx, "k")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	require.NoError(t, b.Put(ctx, "k", []byte{}))
	ok, err = b.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok, "an empty object still exists")
}

func TestBucket_Remove(t *testing.T) {
	ctx := context.Background()
	b := newLocalBucket(t)

	require.NoError(t, b.Put(ctx, "k", []byte("x")))
	require.NoError(t, b.Remove(ctx, "k"))
	ok, err := b.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, b.Remove(ctx, "k"), "removing a missing object is not an error")
}

func TestBucket_EnsureBucketIdempotent(t *testing.T) {
	b := newLocalBucket(t)
	assert.NoError(t, b.EnsureBucket(context.Background()))
}

func TestBucket_PropagatesStoreErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection refused")
	b, err := NewBucket(brokenStore{err: boom}, "exports", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, b.Put(ctx, "k", []byte("x")), boom)
	_, err = b.Get(ctx, "k")
	assert.ErrorIs(t, err, boom)
	_, err = b.Exists(ctx, "k")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, b.Remove(ctx, "k"), boom)
	assert.ErrorIs(t, b.EnsureBucket(ctx), boom)
}

func TestBucket_NotFoundFromStoreIsEmptyStream(t *testing.T) {
	b, err := NewBucket(brokenStore{err: ErrObjectNotFound}, "exports", nil)
	require.NoError(t, err)

	r, err := b.Get(context.Background(), "k")
	require.NoError(t, err)
	data, _ := io.ReadAll(r)
	assert.Empty(t, data)
}

func TestNewBucket_Validation(t *testing.T) {
	_, err := NewBucket(nil, "b", nil)
	assert.Error(t, err)
	_, err = NewBucket(brokenStore{}, "", nil)
	assert.Error(t, err)
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	b := newLocalBucket(t)
	err := b.Put(context.Background(), "../../etc/passwd", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes bucket")
}

func TestLocalStore_PutWithoutBucket(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	b, err := NewBucket(store, "absent", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, b.Put(context.Background(), "k", []byte("x")), ErrBucketNotFound)
}

func TestFromSettings(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		cfg     config.BlobConfig
		wantNil bool
		wantErr bool
	}{
		{"disabled", config.BlobConfig{Bucket: "ragindex"}, true, false},
		{"local dir", config.BlobConfig{Bucket: "ragindex", Dir: dir}, false, false},
		{"s3", config.BlobConfig{Enabled: true, Endpoint: "localhost:9000", Bucket: "ragindex", AccessKey: "a", SecretKey: "s"}, false, false},
		{"s3 url endpoint", config.BlobConfig{Enabled: true, Endpoint: "https://s3.example.com", Bucket: "ragindex"}, false, false},
		{"s3 without endpoint", config.BlobConfig{Enabled: true, Bucket: "ragindex"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := FromSettings(tt.cfg, nil)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, b)
				return
			}
			require.NotNil(t, b)
			assert.Equal(t, "ragindex", b.Name())
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no such key", minio.ErrorResponse{Code: "NoSuchKey"}, ErrObjectNotFound},
		{"no such bucket", minio.ErrorResponse{Code: "NoSuchBucket"}, ErrBucketNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.err), tt.want)
		})
	}

	other := minio.ErrorResponse{Code: "AccessDenied"}
	assert.Equal(t, error(other), classify(other))
	assert.NoError(t, classify(nil))
}
