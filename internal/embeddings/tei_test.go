package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTEIServer(t *testing.T, status int) (*httptest.Server, *[]teiRequest) {
	t.Helper()
	var received []teiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/info":
			_ = json.NewEncoder(w).Encode(teiInfo{ModelID: "BAAI/bge-small-en-v1.5"})
			return
		case "/embed":
		default:
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req teiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		received = append(received, req)

		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte("model overloaded"))
			return
		}

		n := 1
		if list, ok := req.Inputs.([]any); ok {
			n = len(list)
		}
		out := make([][]float32, n)
		for i := range out {
			out[i] = []float32{float32(i), 0.5, 0.25}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)
	return srv, &received
}

func TestTEIProvider_EmbedDocuments(t *testing.T) {
	srv, received := newTEIServer(t, http.StatusOK)
	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL + "/", Model: "BAAI/bge-small-en-v1.5", APIKey: "secret"})
	require.NoError(t, err)

	vectors, err := p.EmbedDocuments(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{2, 0.5, 0.25}, vectors[2])
	require.Len(t, *received, 1)
	assert.True(t, (*received)[0].Truncate)
}

func TestTEIProvider_EmbedQuery(t *testing.T) {
	srv, _ := newTEIServer(t, http.StatusOK)
	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL, APIKey: "secret"})
	require.NoError(t, err)

	v, err := p.EmbedQuery(context.Background(), "what is qdrant")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0.5, 0.25}, v)
}

func TestTEIProvider_Errors(t *testing.T) {
	srv, _ := newTEIServer(t, http.StatusServiceUnavailable)
	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL, APIKey: "secret"})
	require.NoError(t, err)

	_, err = p.EmbedDocuments(context.Background(), []string{"a"})
	require.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "status 503")

	_, err = p.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = p.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestTEIProvider_ListModels(t *testing.T) {
	srv, _ := newTEIServer(t, http.StatusOK)
	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	models, err := p.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []ModelInfo{{Name: "BAAI/bge-small-en-v1.5", Dimension: 384}}, models)
}
