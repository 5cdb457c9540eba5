// Package reranker re-scores retrieved chunks with a relevance model.
package reranker

import (
	"context"
	"errors"
)

// ErrModelUnavailable is returned by models that cannot serve requests,
// including the "none" provider. Rerank degrades to fallback scores on it.
var ErrModelUnavailable = errors.New("relevance model unavailable")

// Score is the relevance of one document, identified by its index in the
// request's document list.
type Score struct {
	Index     int
	Relevance float64
}

// Model is an external relevance model.
type Model interface {
	// Score rates documents against query. topN bounds the number of
	// returned scores; 0 asks for all of them. Scores may come back in
	// any order.
	Score(ctx context.Context, query string, documents []string, topN int) ([]Score, error)

	// Name identifies the model in logs.
	Name() string
}

// unavailable is the model behind the "none" provider.
type unavailable struct{}

func (unavailable) Score(context.Context, string, []string, int) ([]Score, error) {
	return nil, ErrModelUnavailable
}

func (unavailable) Name() string { return "none" }
