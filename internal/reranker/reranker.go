package reranker

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragindex/internal/logging"
	"github.com/fyrsmithlabs/ragindex/internal/retrieval"
)

const instrumentationName = "github.com/fyrsmithlabs/ragindex/internal/reranker"

// ScoredResult is a retrieval hit with its relevance score.
type ScoredResult struct {
	retrieval.Hit
	RelevanceScore float64 `json:"relevanceScore"`
	// Fallback is set when the score is synthetic.
	Fallback bool `json:"fallback,omitempty"`
}

// Reranker re-scores retrieval hits with a Model.
type Reranker struct {
	model  Model
	logger *logging.Logger
	tracer trace.Tracer
}

// New creates a Reranker. logger may be nil.
func New(model Model, logger *logging.Logger) (*Reranker, error) {
	if model == nil {
		return nil, fmt.Errorf("relevance model cannot be nil")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Reranker{
		model:  model,
		logger: logger.Named("reranker"),
		tracer: otel.Tracer(instrumentationName),
	}, nil
}

// Model returns the underlying relevance model.
func (r *Reranker) Model() Model { return r.model }

// Rerank scores results against query.
//
// Results are deduplicated by content before the model call; the first
// result carrying a given content keeps its place. Scores below threshold
// are dropped and the rest are returned most relevant first, at most topN
// of them (topN <= 0 means all).
//
// Rerank never fails on model errors: it returns every input result in
// its original order with synthetic scores 1 - i*0.1.
func (r *Reranker) Rerank(ctx context.Context, query string, results []retrieval.Hit, topN int, threshold float64) []ScoredResult {
	if len(results) == 0 {
		return []ScoredResult{}
	}

	ctx, span := r.tracer.Start(ctx, "reranker.Rerank", trace.WithAttributes(
		attribute.String("model", r.model.Name()),
		attribute.Int("results.count", len(results)),
	))
	defer span.End()

	unique, documents := dedupe(results)
	requested := topN
	if requested <= 0 || requested > len(documents) {
		requested = len(documents)
	}

	scores, err := r.model.Score(ctx, query, documents, requested)
	if err == nil {
		err = checkScores(scores, len(documents))
	}
	if err != nil {
		if errors.Is(err, ErrModelUnavailable) {
			r.logger.Debug(ctx, "relevance model unavailable, using fallback order", zap.String("model", r.model.Name()))
		} else {
			r.logger.Warn(ctx, "rerank failed, using fallback order",
				zap.String("model", r.model.Name()),
				zap.Int("count", len(results)),
				zap.Error(err),
			)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Fallback(results)
	}

	sortScores(scores)
	out := make([]ScoredResult, 0, len(scores))
	for _, s := range scores {
		if s.Relevance < threshold {
			continue
		}
		out = append(out, ScoredResult{Hit: unique[s.Index], RelevanceScore: s.Relevance})
		if len(out) == requested {
			break
		}
	}

	span.SetAttributes(attribute.Int("reranked.count", len(out)))
	span.SetStatus(codes.Ok, "")
	r.logger.Debug(ctx, "results reranked",
		zap.Int("input", len(results)),
		zap.Int("unique", len(documents)),
		zap.Int("kept", len(out)),
	)
	return out
}

// Fallback scores results by rank: 1 - i*0.1, in input order.
func Fallback(results []retrieval.Hit) []ScoredResult {
	out := make([]ScoredResult, len(results))
	for i, h := range results {
		out[i] = ScoredResult{Hit: h, RelevanceScore: 1 - float64(i)*0.1, Fallback: true}
	}
	return out
}

func dedupe(results []retrieval.Hit) ([]retrieval.Hit, []string) {
	seen := make(map[string]bool, len(results))
	unique := make([]retrieval.Hit, 0, len(results))
	documents := make([]string, 0, len(results))
	for _, h := range results {
		if seen[h.Content] {
			continue
		}
		seen[h.Content] = true
		unique = append(unique, h)
		documents = append(documents, h.Content)
	}
	return unique, documents
}

func checkScores(scores []Score, n int) error {
	for _, s := range scores {
		if s.Index < 0 || s.Index >= n {
			return fmt.Errorf("model returned index %d for %d documents", s.Index, n)
		}
	}
	return nil
}

// sortScores orders by relevance, highest first, ties by index.
func sortScores(scores []Score) {
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Relevance != scores[j].Relevance {
			return scores[i].Relevance > scores[j].Relevance
		}
		return scores[i].Index < scores[j].Index
	})
}
