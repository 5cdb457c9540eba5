package reranker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTermOverlapModel_Score(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		docs        []string
		topN        int
		wantIndexes []int
	}{
		{
			name:        "empty documents",
			query:       "test query",
			docs:        []string{},
			wantIndexes: []int{},
		},
		{
			name:        "single document",
			query:       "authentication error",
			docs:        []string{"authentication failed due to invalid token"},
			wantIndexes: []int{0},
		},
		{
			name:  "ranked by overlap",
			query: "authentication token retry",
			docs: []string{
				"use retry with exponential backoff for authentication",
				"invalid request parameter",
				"token refresh and retry authentication handling",
			},
			wantIndexes: []int{2, 0, 1},
		},
		{
			name:  "topN limits results",
			query: "error handling",
			docs: []string{
				"error handling patterns",
				"error recovery strategies",
				"logging and monitoring",
			},
			topN:        2,
			wantIndexes: []int{0, 1},
		},
		{
			name:        "stopword-only query scores zero in index order",
			query:       "the and of",
			docs:        []string{"first", "second"},
			wantIndexes: []int{0, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scores, err := NewTermOverlapModel().Score(context.Background(), tt.query, tt.docs, tt.topN)
			require.NoError(t, err)

			got := make([]int, len(scores))
			for i, s := range scores {
				got[i] = s.Index
				assert.GreaterOrEqual(t, s.Relevance, 0.0)
				assert.LessOrEqual(t, s.Relevance, 1.0)
			}
			assert.Equal(t, tt.wantIndexes, got)
		})
	}
}

func TestTermOverlapModel_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewTermOverlapModel().Score(ctx, "q", []string{"d"}, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"Hello World", []string{"hello", "world"}},
		{"The quick brown fox", []string{"quick", "brown", "fox"}},
		{"authentication-error_handling", []string{"authentication", "error_handling"}},
		{"a to of", []string{}},
		{"", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenize(tt.input))
		})
	}
}

func TestTermOverlap(t *testing.T) {
	tests := []struct {
		name  string
		query []string
		doc   []string
		want  float64
	}{
		{"full overlap", []string{"auth", "token"}, []string{"auth", "token", "extra"}, 1.0},
		{"half overlap", []string{"auth", "retry"}, []string{"auth", "token"}, 0.5},
		{"no overlap", []string{"auth"}, []string{"token"}, 0},
		{"duplicate query terms counted once", []string{"auth", "auth", "retry"}, []string{"auth"}, 0.5},
		{"empty query", nil, []string{"auth"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, termOverlap(tt.query, tt.doc), 1e-9)
		})
	}
}
