package migration

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/ragindex/internal/embeddings/embeddingstest"
	"github.com/fyrsmithlabs/ragindex/internal/indexer"
	"github.com/fyrsmithlabs/ragindex/internal/logging"
	"github.com/fyrsmithlabs/ragindex/internal/vectorstore"
)

type failingUpsert struct {
	vectorstore.Store
}

func (failingUpsert) Upsert(context.Context, []vectorstore.Point) error {
	return errors.New("qdrant unavailable")
}

func seed(t *testing.T, store vectorstore.Store, ref vectorstore.EntityRef, text string) {
	t.Helper()
	ix, err := indexer.New(store, &embeddingstest.LetterEmbedder{}, embeddingstest.Splitter{}, nil)
	require.NoError(t, err)
	_, err = ix.IndexEntity(context.Background(), ref, text, vectorstore.Payload{"title": "Notes"})
	require.NoError(t, err)
}

func fetch(t *testing.T, store vectorstore.Store, ref vectorstore.EntityRef) []vectorstore.Point {
	t.Helper()
	points, err := vectorstore.FetchEntity(context.Background(), store, ref, 0)
	require.NoError(t, err)
	return points
}

func TestDuplicateEntity_CrossTenant(t *testing.T) {
	ctx := context.Background()
	mem := vectorstore.NewMemoryStore()
	store := vectorstore.NewTenantGuard(mem, nil)
	src := vectorstore.Document("t1", "doc-1")
	dst := vectorstore.Document("t2", "doc-copy")
	seed(t, store, src, "hello world|foo bar|baz qux")
	before := fetch(t, store, src)

	tl := logging.NewTestLogger()
	svc, err := NewService(store, tl.Logger, 2)
	require.NoError(t, err)

	res, err := svc.DuplicateEntity(ctx, src, dst)
	require.NoError(t, err)
	assert.Equal(t, 3, res.PointsCount)
	assert.Positive(t, res.Bytes)

	copied := fetch(t, store, dst)
	require.Len(t, copied, 3)
	for i, p := range copied {
		assert.Equal(t, dst.PointID(i), p.ID)
		assert.Equal(t, "t2", p.Payload.TenantID())
		assert.Equal(t, "doc-copy", p.Payload.EntityID())
		assert.Equal(t, i, p.Payload.Seq())
		assert.Equal(t, before[i].Payload.Content(), p.Payload.Content())
		assert.Equal(t, "Notes", p.Payload.String(vectorstore.KeyTitle))
		assert.Equal(t, before[i].Vector, p.Vector)
	}

	assert.Equal(t, before, fetch(t, store, src), "source points are untouched")
	assert.Equal(t, 6, mem.Len())
	tl.AssertLogged(t, zapcore.InfoLevel, "entity duplicated")
	tl.AssertField(t, "entity duplicated", "tenant.id", "t2")
	tl.AssertField(t, "entity duplicated", "count", int64(3))
}

func TestDuplicateEntity_DocumentToResource(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	src := vectorstore.Document("t1", "doc-1")
	dst := vectorstore.Resource("t1", "res-1")
	seed(t, store, src, "a|b")

	svc, err := NewService(store, nil, 0)
	require.NoError(t, err)
	res, err := svc.DuplicateEntity(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, res.PointsCount)

	for _, p := range fetch(t, store, dst) {
		assert.Equal(t, vectorstore.NodeResource, p.Payload.NodeType())
		assert.Equal(t, "res-1", p.Payload.String(vectorstore.KeyResourceID))
		assert.NotContains(t, p.Payload, vectorstore.KeyDocID)
	}
}

func TestDuplicateEntity_EmptySource(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	svc, err := NewService(store, nil, 0)
	require.NoError(t, err)

	res, err := svc.DuplicateEntity(context.Background(),
		vectorstore.Document("t1", "missing"), vectorstore.Document("t2", "copy"))
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Zero(t, store.Len())
}

func TestDuplicateEntity_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     vectorstore.EntityRef
		dst     vectorstore.EntityRef
		wantErr error
	}{
		{"invalid source", vectorstore.Document("", "d"), vectorstore.Document("t2", "d"), vectorstore.ErrInvalidEntity},
		{"invalid target", vectorstore.Document("t1", "d"), vectorstore.EntityRef{TenantID: "t2", ID: "d", NodeType: "canvas"}, vectorstore.ErrInvalidEntity},
		{"same entity", vectorstore.Document("t1", "d"), vectorstore.Document("t1", "d"), ErrSameEntity},
	}

	svc, err := NewService(vectorstore.NewMemoryStore(), nil, 0)
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.DuplicateEntity(context.Background(), tt.src, tt.dst)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDuplicateEntity_UpsertFailure(t *testing.T) {
	mem := vectorstore.NewMemoryStore()
	src := vectorstore.Document("t1", "doc-1")
	seed(t, mem, src, "a|b")

	svc, err := NewService(failingUpsert{Store: mem}, nil, 0)
	require.NoError(t, err)

	_, err = svc.DuplicateEntity(context.Background(), src, vectorstore.Document("t2", "doc-1"))
	require.Error(t, err)
	assert.Equal(t, 2, mem.Len())
}

func TestNewService_RequiresStore(t *testing.T) {
	_, err := NewService(nil, nil, 0)
	assert.Error(t, err)
}
