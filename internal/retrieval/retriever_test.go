package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragindex/internal/embeddings/embeddingstest"
	"github.com/fyrsmithlabs/ragindex/internal/indexer"
	"github.com/fyrsmithlabs/ragindex/internal/vectorstore"
)

// searchRecorder captures the filter and limit of the last Search call.
type searchRecorder struct {
	vectorstore.Store
	filter vectorstore.Filter
	limit  int
	err    error
}

func (s *searchRecorder) Search(ctx context.Context, v []float32, f vectorstore.Filter, limit int) ([]vectorstore.ScoredPoint, error) {
	s.filter = f
	s.limit = limit
	if s.err != nil {
		return nil, s.err
	}
	return s.Store.Search(ctx, v, f, limit)
}

type env struct {
	store    *vectorstore.MemoryStore
	embedder *embeddingstest.LetterEmbedder
	indexer  *indexer.Indexer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		store:    vectorstore.NewMemoryStore(),
		embedder: &embeddingstest.LetterEmbedder{},
	}
	ix, err := indexer.New(vectorstore.NewTenantGuard(e.store, nil), e.embedder, embeddingstest.Splitter{}, nil)
	require.NoError(t, err)
	e.indexer = ix
	return e
}

func (e *env) index(t *testing.T, ref vectorstore.EntityRef, text string, meta vectorstore.Payload) {
	t.Helper()
	_, err := e.indexer.IndexEntity(context.Background(), ref, text, meta)
	require.NoError(t, err)
}

func TestRetrieve_ExampleScenario(t *testing.T) {
	e := newEnv(t)
	doc := vectorstore.Document("t1", "doc-1")
	e.index(t, doc, "hello world|foo bar", nil)
	e.index(t, doc, "hello world|foo bar|baz qux", nil)

	r, err := New(vectorstore.NewTenantGuard(e.store, nil), e.embedder, nil)
	require.NoError(t, err)

	hits, err := r.Retrieve(context.Background(), Query{TenantID: "t1", Text: "hello", Limit: 1})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 0, hits[0].Seq)
	assert.Equal(t, "hello world", hits[0].Content)
	assert.Equal(t, "doc-1", hits[0].DocID)
	assert.Equal(t, []string{"hello"}, e.embedder.QueryCalls())
}

func TestRetrieve_TenantIsolation(t *testing.T) {
	e := newEnv(t)
	e.index(t, vectorstore.Document("t1", "shared"), "alpha beta|gamma", nil)
	e.index(t, vectorstore.Document("t2", "shared"), "alpha beta|gamma|delta", nil)
	assert.Equal(t, 5, e.store.Len())

	r, err := New(e.store, e.embedder, nil)
	require.NoError(t, err)

	hits, err := r.Retrieve(context.Background(), Query{TenantID: "t1", Text: "alpha", Limit: 50})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Equal(t, "t1", h.TenantID)
	}
}

func TestRetrieve_PrecomputedVectorSkipsEmbedding(t *testing.T) {
	e := newEnv(t)
	e.index(t, vectorstore.Document("t1", "d"), "hello world|foo bar", nil)
	e.embedder.Reset()

	r, err := New(e.store, e.embedder, nil)
	require.NoError(t, err)

	hits, err := r.Retrieve(context.Background(), Query{
		TenantID: "t1",
		Vector:   embeddingstest.Letters("foo"),
		Limit:    1,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "foo bar", hits[0].Content)
	assert.Empty(t, e.embedder.QueryCalls())
}

func TestRetrieve_DefaultLimit(t *testing.T) {
	rec := &searchRecorder{Store: vectorstore.NewMemoryStore()}
	r, err := New(rec, &embeddingstest.LetterEmbedder{}, nil)
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), Query{TenantID: "t1", Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, rec.limit)
}

func TestRetrieve_Filters(t *testing.T) {
	e := newEnv(t)
	e.index(t, vectorstore.Document("t1", "d1"), "apple pie", vectorstore.Payload{"projectId": "p1"})
	e.index(t, vectorstore.Document("t1", "d2"), "apple tart", vectorstore.Payload{"projectId": "p2"})
	e.index(t, vectorstore.Resource("t1", "r1"), "apple juice", vectorstore.Payload{"url": "https://example.com/a"})

	r, err := New(e.store, e.embedder, nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"no filter", Filter{}, []string{"apple juice", "apple pie", "apple tart"}},
		{"node type", Filter{NodeTypes: []vectorstore.NodeType{vectorstore.NodeResource}}, []string{"apple juice"}},
		{"doc ids", Filter{DocIDs: []string{"d1", "d2"}}, []string{"apple pie", "apple tart"}},
		{"resource ids", Filter{ResourceIDs: []string{"r1"}}, []string{"apple juice"}},
		{"project ids", Filter{ProjectIDs: []string{"p2"}}, []string{"apple tart"}},
		{"urls", Filter{URLs: []string{"https://example.com/a"}}, []string{"apple juice"}},
		{"conjunction", Filter{DocIDs: []string{"d1"}, ProjectIDs: []string{"p2"}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := r.Retrieve(context.Background(), Query{TenantID: "t1", Text: "apple", Filter: tt.filter})
			require.NoError(t, err)
			var got []string
			for _, h := range hits {
				got = append(got, h.Content)
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestBuildFilter(t *testing.T) {
	f := BuildFilter("t1", Filter{
		NodeTypes: []vectorstore.NodeType{vectorstore.NodeDocument},
		DocIDs:    []string{"a", "b"},
	})

	tenant, ok := f.TenantID()
	require.True(t, ok)
	assert.Equal(t, "t1", tenant)
	require.Len(t, f.Must, 3)
	assert.Equal(t, vectorstore.KeyNodeType, f.Must[1].Key)
	assert.Equal(t, []string{"document"}, f.Must[1].Match.Any)
	assert.Equal(t, vectorstore.KeyDocID, f.Must[2].Key)
	assert.Equal(t, []string{"a", "b"}, f.Must[2].Match.Any)
	assert.NoError(t, f.Validate())
}

func TestRetrieve_Errors(t *testing.T) {
	storeErr := errors.New("qdrant down")
	tests := []struct {
		name     string
		query    Query
		storeErr error
		failEmb  bool
		wantErr  error
	}{
		{"missing tenant", Query{Text: "x"}, nil, false, vectorstore.ErrMissingTenant},
		{"empty query", Query{TenantID: "t1"}, nil, false, ErrEmptyQuery},
		{"bad node type", Query{TenantID: "t1", Text: "x", Filter: Filter{NodeTypes: []vectorstore.NodeType{"canvas"}}}, nil, false, vectorstore.ErrInvalidFilter},
		{"embedding failure", Query{TenantID: "t1", Text: "x"}, nil, true, embeddingstest.ErrInjected},
		{"store failure", Query{TenantID: "t1", Text: "x"}, storeErr, false, storeErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &searchRecorder{Store: vectorstore.NewMemoryStore(), err: tt.storeErr}
			r, err := New(rec, &embeddingstest.LetterEmbedder{Fail: tt.failEmb}, nil)
			require.NoError(t, err)

			_, err = r.Retrieve(context.Background(), tt.query)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, &embeddingstest.LetterEmbedder{}, nil)
	assert.Error(t, err)
	_, err = New(vectorstore.NewMemoryStore(), nil, nil)
	assert.Error(t, err)
}
