package qdrant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/ragindex/internal/logging"
	"github.com/fyrsmithlabs/ragindex/internal/vectorstore"
)

// fakeAPI records requests and returns canned responses.
type fakeAPI struct {
	exists      bool
	created     *qdrant.CreateCollection
	indexes     []string
	upserts     []*qdrant.UpsertPoints
	deletes     []*qdrant.DeletePoints
	setPayloads []*qdrant.SetPayloadPoints
	scrolls     []*qdrant.ScrollPoints
	queries     []*qdrant.QueryPoints

	scrollResult []*qdrant.RetrievedPoint
	scrollNext   *qdrant.PointId
	queryResult  []*qdrant.ScoredPoint

	// failures is consumed by Upsert, one error per call.
	failures []error
	closed   bool
}

func (f *fakeAPI) HealthCheck(context.Context) (*qdrant.HealthCheckReply, error) {
	return &qdrant.HealthCheckReply{}, nil
}

func (f *fakeAPI) CollectionExists(context.Context, string) (bool, error) { return f.exists, nil }

func (f *fakeAPI) CreateCollection(_ context.Context, r *qdrant.CreateCollection) error {
	f.created = r
	return nil
}

func (f *fakeAPI) CreateFieldIndex(_ context.Context, r *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error) {
	f.indexes = append(f.indexes, r.GetFieldName())
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeAPI) Upsert(_ context.Context, r *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return nil, err
	}
	f.upserts = append(f.upserts, r)
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeAPI) Delete(_ context.Context, r *qdrant.DeletePoints) (*qdrant.UpdateResult, error) {
	f.deletes = append(f.deletes, r)
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeAPI) ScrollAndOffset(_ context.Context, r *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error) {
	f.scrolls = append(f.scrolls, r)
	return f.scrollResult, f.scrollNext, nil
}

func (f *fakeAPI) Query(_ context.Context, r *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.queries = append(f.queries, r)
	return f.queryResult, nil
}

func (f *fakeAPI) SetPayload(_ context.Context, r *qdrant.SetPayloadPoints) (*qdrant.UpdateResult, error) {
	f.setPayloads = append(f.setPayloads, r)
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeAPI) Close() error {
	f.closed = true
	return nil
}

func newTestClient(api pointsAPI, logger *logging.Logger) *Client {
	cfg := DefaultClientConfig()
	cfg.RetryBackoff = time.Millisecond
	if logger == nil {
		logger = logging.NewNop()
	}
	return newClient(api, cfg, logger)
}

func TestClientConfig_ApplyDefaults(t *testing.T) {
	cfg := &ClientConfig{Host: "qdrant.internal"}
	cfg.ApplyDefaults()

	assert.Equal(t, "qdrant.internal", cfg.Host)
	assert.Equal(t, 6334, cfg.Port)
	assert.Equal(t, "ragindex_passages", cfg.CollectionName)
	assert.Equal(t, 50*1024*1024, cfg.MaxMessageSize)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, time.Second, cfg.RetryBackoff)
	assert.Equal(t, qdrant.Distance_Cosine, cfg.Distance)
}

func TestClientConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ClientConfig)
		wantErr string
	}{
		{"valid", func(*ClientConfig) {}, ""},
		{"empty host", func(c *ClientConfig) { c.Host = "" }, "host is required"},
		{"port too large", func(c *ClientConfig) { c.Port = 70000 }, "invalid port"},
		{"no collection", func(c *ClientConfig) { c.CollectionName = "" }, "collection name is required"},
		{"negative retries", func(c *ClientConfig) { c.RetryAttempts = -1 }, "invalid retry attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultClientConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewClient_RequiresLogger(t *testing.T) {
	_, err := NewClient(nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logger is required")
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"unavailable", status.Error(codes.Unavailable, "down"), true},
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), true},
		{"aborted", status.Error(codes.Aborted, "conflict"), true},
		{"exhausted", status.Error(codes.ResourceExhausted, "busy"), true},
		{"invalid argument", status.Error(codes.InvalidArgument, "bad"), false},
		{"not found", status.Error(codes.NotFound, "missing"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransientError(tt.err))
		})
	}
}

func TestRetryOperation_Logging(t *testing.T) {
	ctx := context.Background()

	t.Run("recovers after transient failure", func(t *testing.T) {
		tl := logging.NewTestLogger()
		api := &fakeAPI{failures: []error{status.Error(codes.Unavailable, "down")}}
		c := newTestClient(api, tl.Logger)

		err := c.Upsert(ctx, []vectorstore.Point{testPoint("t1", "doc-1", 0)})
		require.NoError(t, err)
		assert.Len(t, api.upserts, 1)
		tl.AssertLogged(t, zapcore.DebugLevel, "retrying operation after transient error")
		tl.AssertLogged(t, zapcore.InfoLevel, "operation recovered after retries")
	})

	t.Run("gives up after retries", func(t *testing.T) {
		tl := logging.NewTestLogger()
		transient := status.Error(codes.Unavailable, "down")
		api := &fakeAPI{failures: []error{transient, transient, transient, transient}}
		c := newTestClient(api, tl.Logger)

		err := c.Upsert(ctx, []vectorstore.Point{testPoint("t1", "doc-1", 0)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed after 3 retries")
		tl.AssertLogged(t, zapcore.WarnLevel, "operation failed after all retries exhausted")
	})

	t.Run("permanent error is not retried", func(t *testing.T) {
		tl := logging.NewTestLogger()
		api := &fakeAPI{failures: []error{status.Error(codes.InvalidArgument, "bad")}}
		c := newTestClient(api, tl.Logger)

		err := c.Upsert(ctx, []vectorstore.Point{testPoint("t1", "doc-1", 0)})
		require.Error(t, err)
		assert.Empty(t, api.upserts)
		tl.AssertNotLogged(t, zapcore.DebugLevel, "retrying operation")
	})
}

func TestClient_EnsureCollection(t *testing.T) {
	ctx := context.Background()

	t.Run("creates collection and indexes", func(t *testing.T) {
		api := &fakeAPI{}
		c := newTestClient(api, nil)

		require.NoError(t, c.EnsureCollection(ctx, 1536))
		require.NotNil(t, api.created)
		assert.Equal(t, "ragindex_passages", api.created.GetCollectionName())
		assert.Equal(t, uint64(1536), api.created.GetVectorsConfig().GetParams().GetSize())
		assert.ElementsMatch(t, indexedFields, api.indexes)
	})

	t.Run("existing collection is left alone", func(t *testing.T) {
		api := &fakeAPI{exists: true}
		c := newTestClient(api, nil)

		require.NoError(t, c.EnsureCollection(ctx, 1536))
		assert.Nil(t, api.created)
		assert.Empty(t, api.indexes)
	})

	t.Run("rejects zero dimension", func(t *testing.T) {
		c := newTestClient(&fakeAPI{}, nil)
		assert.Error(t, c.EnsureCollection(ctx, 0))
	})
}

func TestClient_Upsert(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	c := newTestClient(api, nil)

	p := testPoint("t1", "doc-1", 2)
	require.NoError(t, c.Upsert(ctx, []vectorstore.Point{p}))
	require.Len(t, api.upserts, 1)

	req := api.upserts[0]
	assert.True(t, req.GetWait())
	require.Len(t, req.GetPoints(), 1)
	got := req.GetPoints()[0]
	assert.Equal(t, p.ID, got.GetId().GetUuid())
	assert.Equal(t, "t1", got.GetPayload()[vectorstore.KeyTenantID].GetStringValue())
	assert.Equal(t, int64(2), got.GetPayload()[vectorstore.KeySeq].GetIntegerValue())

	t.Run("empty batch is a no-op", func(t *testing.T) {
		require.NoError(t, c.Upsert(ctx, nil))
		assert.Len(t, api.upserts, 1)
	})

	t.Run("point without vector", func(t *testing.T) {
		bad := testPoint("t1", "doc-1", 0)
		bad.Vector = nil
		err := c.Upsert(ctx, []vectorstore.Point{bad})
		assert.ErrorIs(t, err, vectorstore.ErrInvalidPoint)
	})
}

func TestClient_Delete(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	c := newTestClient(api, nil)

	filter := vectorstore.EntityFilter("t1", vectorstore.NodeDocument, "doc-1")
	require.NoError(t, c.Delete(ctx, filter))
	require.Len(t, api.deletes, 1)

	must := api.deletes[0].GetPoints().GetFilter().GetMust()
	require.Len(t, must, 2)
	assert.Equal(t, vectorstore.KeyTenantID, must[0].GetField().GetKey())
	assert.Equal(t, "t1", must[0].GetField().GetMatch().GetKeyword())
	assert.Equal(t, vectorstore.KeyDocID, must[1].GetField().GetKey())

	err := c.Delete(ctx, vectorstore.Filter{})
	assert.ErrorIs(t, err, vectorstore.ErrInvalidFilter)
	assert.Len(t, api.deletes, 1)
}

func TestClient_Scroll(t *testing.T) {
	ctx := context.Background()
	p := testPoint("t1", "doc-1", 0)
	nextID := vectorstore.PointID("t1", "doc-1", 1)
	api := &fakeAPI{
		scrollResult: []*qdrant.RetrievedPoint{{
			Id:      qdrant.NewIDUUID(p.ID),
			Payload: map[string]*qdrant.Value{vectorstore.KeyContent: {Kind: &qdrant.Value_StringValue{StringValue: "hello"}}},
			Vectors: &qdrant.VectorsOutput{VectorsOptions: &qdrant.VectorsOutput_Vector{
				Vector: &qdrant.VectorOutput{Vector: &qdrant.VectorOutput_Dense{Dense: &qdrant.DenseVector{Data: []float32{1, 0}}}},
			}},
		}},
		scrollNext: qdrant.NewIDUUID(nextID),
	}
	c := newTestClient(api, nil)

	page, err := c.Scroll(ctx, vectorstore.TenantFilter("t1"), p.ID, 5)
	require.NoError(t, err)
	require.Len(t, page.Points, 1)
	assert.Equal(t, p.ID, page.Points[0].ID)
	assert.Equal(t, "hello", page.Points[0].Payload.Content())
	assert.Equal(t, []float32{1, 0}, page.Points[0].Vector)
	assert.Equal(t, nextID, page.NextOffset)

	req := api.scrolls[0]
	assert.Equal(t, uint32(5), req.GetLimit())
	assert.Equal(t, p.ID, req.GetOffset().GetUuid())
}

func TestClient_Search(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{
		queryResult: []*qdrant.ScoredPoint{
			{Id: qdrant.NewIDUUID("a"), Score: 0.9},
			{Id: qdrant.NewIDNum(7), Score: 0.5},
		},
	}
	c := newTestClient(api, nil)

	filter := vectorstore.TenantFilter("t1").And(vectorstore.AnyOf(vectorstore.KeyNodeType, "document", "resource"))
	results, err := c.Search(ctx, []float32{1, 0}, filter, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "7", results[1].ID)
	assert.InDelta(t, 0.9, results[0].Score, 1e-6)

	req := api.queries[0]
	assert.Equal(t, uint64(10), req.GetLimit())
	must := req.GetFilter().GetMust()
	require.Len(t, must, 2)
	assert.Equal(t, []string{"document", "resource"}, must[1].GetField().GetMatch().GetKeywords().GetStrings())

	_, err = c.Search(ctx, nil, filter, 3)
	assert.Error(t, err)
}

func TestClient_SetPayload(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	c := newTestClient(api, nil)

	filter := vectorstore.TenantFilter("t1").And(vectorstore.AnyOf(vectorstore.KeyDocID, "d1", "d2"))
	require.NoError(t, c.SetPayload(ctx, filter, vectorstore.Payload{vectorstore.KeyProjectID: "p9"}))
	require.Len(t, api.setPayloads, 1)
	assert.Equal(t, "p9", api.setPayloads[0].GetPayload()[vectorstore.KeyProjectID].GetStringValue())

	require.NoError(t, c.SetPayload(ctx, filter, nil))
	assert.Len(t, api.setPayloads, 1)
}

func TestClient_Close(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(api, nil)
	require.NoError(t, c.Close())
	assert.True(t, api.closed)
}

func testPoint(tenant, doc string, seq int) vectorstore.Point {
	return vectorstore.Point{
		ID:     vectorstore.PointID(tenant, doc, seq),
		Vector: []float32{0.1, 0.2},
		Payload: vectorstore.Payload{
			vectorstore.KeyTenantID: tenant,
			vectorstore.KeyNodeType: string(vectorstore.NodeDocument),
			vectorstore.KeyDocID:    doc,
			vectorstore.KeySeq:      seq,
			vectorstore.KeyContent:  "chunk",
		},
	}
}
