package reranker

import (
	"context"
	"strings"
)

// TermOverlapModel scores documents by the share of distinct query terms
// they contain. It needs no network and serves as the offline backend.
type TermOverlapModel struct{}

// NewTermOverlapModel creates a TermOverlapModel.
func NewTermOverlapModel() *TermOverlapModel {
	return &TermOverlapModel{}
}

// Score implements Model.
func (m *TermOverlapModel) Score(ctx context.Context, query string, documents []string, topN int) ([]Score, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queryTokens := tokenize(query)
	scores := make([]Score, len(documents))
	for i, doc := range documents {
		scores[i] = Score{Index: i, Relevance: termOverlap(queryTokens, tokenize(doc))}
	}
	sortScores(scores)
	if topN > 0 && len(scores) > topN {
		scores = scores[:topN]
	}
	return scores, nil
}

// Name implements Model.
func (m *TermOverlapModel) Name() string { return "term-overlap" }

// tokenize lowercases text, splits on non-alphanumerics and drops
// stopwords and tokens shorter than three characters.
func tokenize(text string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isAlphanumeric(r)
	})

	filtered := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if !stopwords[token] && len(token) > 2 {
			filtered = append(filtered, token)
		}
	}
	return filtered
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_'
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
	"are": true, "be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "can": true, "this": true,
	"that": true, "these": true, "those": true, "i": true, "you": true, "he": true,
	"she": true, "it": true, "we": true, "they": true, "what": true, "which": true,
	"who": true, "when": true, "where": true, "why": true, "how": true,
}

// termOverlap returns the fraction of distinct query tokens present in
// the document, in [0, 1].
func termOverlap(queryTokens, docTokens []string) float64 {
	distinct := make(map[string]bool, len(queryTokens))
	for _, t := range queryTokens {
		distinct[t] = true
	}
	if len(distinct) == 0 {
		return 0
	}

	docSet := make(map[string]bool, len(docTokens))
	for _, t := range docTokens {
		docSet[t] = true
	}
	matched := 0
	for t := range distinct {
		if docSet[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(distinct))
}
