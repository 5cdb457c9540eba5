// Package embeddingstest provides deterministic embedders for tests.
package embeddingstest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode"
)

// Dimension is the size of LetterEmbedder vectors.
const Dimension = 26

// ErrInjected is returned when Fail is set.
var ErrInjected = errors.New("injected embedding failure")

// LetterEmbedder embeds text as its a-z letter histogram and records every
// call. Texts sharing letters are cosine-similar, which is enough to test
// ranking without a model.
type LetterEmbedder struct {
	mu sync.Mutex
	// Fail makes every call return ErrInjected.
	Fail bool

	docCalls   [][]string
	queryCalls []string
}

// EmbedDocuments implements vectorstore.Embedder.
func (e *LetterEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.docCalls = append(e.docCalls, append([]string(nil), texts...))
	if e.Fail {
		return nil, ErrInjected
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Letters(t)
	}
	return out, nil
}

// EmbedQuery implements vectorstore.Embedder.
func (e *LetterEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.queryCalls = append(e.queryCalls, text)
	if e.Fail {
		return nil, ErrInjected
	}
	return Letters(text), nil
}

// DocumentCalls returns the text batches passed to EmbedDocuments.
func (e *LetterEmbedder) DocumentCalls() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]string(nil), e.docCalls...)
}

// QueryCalls returns the texts passed to EmbedQuery.
func (e *LetterEmbedder) QueryCalls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.queryCalls...)
}

// Reset clears recorded calls.
func (e *LetterEmbedder) Reset() {
	e.mu.Lock()
	e.docCalls = nil
	e.queryCalls = nil
	e.mu.Unlock()
}

// Dimension returns Dimension.
func (e *LetterEmbedder) Dimension() int { return Dimension }

// Model returns a fixed model name.
func (e *LetterEmbedder) Model() string { return "letters" }

// Close is a no-op.
func (e *LetterEmbedder) Close() error { return nil }

// Letters returns the letter histogram of text. Text without letters maps
// to a unit vector on the first axis so that no vector is all zeros.
func Letters(text string) []float32 {
	v := make([]float32, Dimension)
	var found bool
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' && unicode.IsLetter(r) {
			v[r-'a']++
			found = true
		}
	}
	if !found {
		v[0] = 1
	}
	return v
}

// Splitter chunks on a separator, for tests that need exact chunk control.
type Splitter struct {
	Sep string
}

// Chunk splits text on Sep, dropping empty pieces.
func (s Splitter) Chunk(text string) ([]string, error) {
	sep := s.Sep
	if sep == "" {
		sep = "|"
	}
	out := []string{}
	for _, part := range strings.Split(text, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out, nil
}
