package reranker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragindex/internal/config"
	"github.com/fyrsmithlabs/ragindex/internal/retrieval"
)

func TestJinaModel_Score(t *testing.T) {
	var got jinaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer jina-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "jina-reranker-v2-base-multilingual",
			"results": [
				{"index": 1, "document": {"text": "beta"}, "relevance_score": 0.91},
				{"index": 0, "document": {"text": "alpha"}, "relevance_score": 0.12}
			]
		}`))
	}))
	defer server.Close()

	m, err := NewJinaModel(JinaConfig{URL: server.URL, APIKey: "jina-key"})
	require.NoError(t, err)

	scores, err := m.Score(context.Background(), "which one", []string{"alpha", "beta"}, 2)
	require.NoError(t, err)

	assert.Equal(t, "which one", got.Query)
	assert.Equal(t, defaultJinaModel, got.Model)
	assert.Equal(t, 2, got.TopN)
	assert.Equal(t, []string{"alpha", "beta"}, got.Documents)

	require.Len(t, scores, 2)
	assert.Equal(t, Score{Index: 1, Relevance: 0.91}, scores[0])
	assert.Equal(t, Score{Index: 0, Relevance: 0.12}, scores[1])
	assert.Equal(t, defaultJinaModel, m.Name())
}

func TestJinaModel_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"server error", http.StatusInternalServerError, `{"detail":"boom"}`, "status 500"},
		{"unauthorized", http.StatusUnauthorized, `{"detail":"bad key"}`, "status 401"},
		{"malformed body", http.StatusOK, `{"results": [`, "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			m, err := NewJinaModel(JinaConfig{URL: server.URL, APIKey: "k"})
			require.NoError(t, err)

			_, err = m.Score(context.Background(), "q", []string{"a"}, 0)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestJinaModel_NoDocumentsSkipsRequest(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	m, err := NewJinaModel(JinaConfig{URL: server.URL, APIKey: "k"})
	require.NoError(t, err)

	scores, err := m.Score(context.Background(), "q", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, scores)
	assert.False(t, called)
}

func TestJinaModel_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	m, err := NewJinaModel(JinaConfig{URL: server.URL, APIKey: "k", Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	_, err = m.Score(context.Background(), "q", []string{"a"}, 0)
	assert.Error(t, err)
}

func TestRerank_JinaOutageFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	m, err := NewJinaModel(JinaConfig{URL: server.URL, APIKey: "k"})
	require.NoError(t, err)
	r, err := New(m, nil)
	require.NoError(t, err)

	got := r.Rerank(context.Background(), "q", []retrieval.Hit{hit("d", 0, "a"), hit("d", 1, "b")}, 0, 0.5)
	require.Len(t, got, 2)
	assert.True(t, got[0].Fallback)
	assert.Equal(t, "a", got[0].Content)
}

func TestNewModel(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.RerankerConfig
		wantName string
		wantErr  bool
	}{
		{"jina", config.RerankerConfig{Provider: "jina", APIKey: "k", Model: "jina-reranker-m0"}, "jina-reranker-m0", false},
		{"jina without key degrades", config.RerankerConfig{Provider: "jina"}, "none", false},
		{"overlap", config.RerankerConfig{Provider: "overlap"}, "term-overlap", false},
		{"none", config.RerankerConfig{Provider: "none"}, "none", false},
		{"unknown", config.RerankerConfig{Provider: "cohere"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewModel(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, m.Name())
		})
	}
}

func TestUnavailableModel(t *testing.T) {
	_, err := unavailable{}.Score(context.Background(), "q", []string{"a"}, 0)
	assert.ErrorIs(t, err, ErrModelUnavailable)
}
