// Package chunker splits entity text into the ordered chunks that become
// vector points.
//
// Chunking is pure and deterministic: the same text and size always yield
// the same chunks, which the indexer relies on to reuse existing vectors.
package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/fyrsmithlabs/ragindex/internal/config"
)

// DefaultChunkSize is the target chunk length in runes.
const DefaultChunkSize = 1000

// markdownSeparators are tried in order, coarsest first.
var markdownSeparators = []string{
	"\n# ",
	"\n## ",
	"\n### ",
	"\n#### ",
	"\n##### ",
	"\n###### ",
	"```\n\n",
	"\n\n***\n\n",
	"\n\n---\n\n",
	"\n\n___\n\n",
	"\n\n",
	"\n",
	" ",
	"",
}

var (
	imagePattern     = regexp.MustCompile(`!\[[^\]]*?\]\([^)]*?\)`)
	linkPattern      = regexp.MustCompile(`\[([^\]]+?)\]\([^)]*?\)`)
	trailingSpace    = regexp.MustCompile(`[ \t]+\n`)
	excessiveNewline = regexp.MustCompile(`\n{3,}`)
)

// Normalize strips markdown images, replaces links with their text and
// canonicalizes whitespace so formatting-only edits chunk identically.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = imagePattern.ReplaceAllString(text, "")
	text = linkPattern.ReplaceAllString(text, "$1")
	text = trailingSpace.ReplaceAllString(text, "\n")
	text = excessiveNewline.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Chunker splits normalized markdown with no overlap between chunks.
type Chunker struct {
	size int
}

// New returns a Chunker. A non-positive size selects DefaultChunkSize.
func New(size int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &Chunker{size: size}
}

// FromSettings builds a Chunker from the chunker config section.
func FromSettings(s config.ChunkerConfig) *Chunker {
	return New(s.ChunkSize)
}

// Size returns the target chunk size in runes.
func (c *Chunker) Size() int {
	return c.size
}

// Chunk normalizes text and splits it. Empty or whitespace-only input
// yields an empty slice.
func (c *Chunker) Chunk(text string) ([]string, error) {
	return Chunk(text, c.size)
}

// Chunk normalizes text and splits it into chunks of at most targetSize
// runes where separators allow.
func Chunk(text string, targetSize int) ([]string, error) {
	if targetSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", targetSize)
	}

	normalized := Normalize(text)
	if normalized == "" {
		return []string{}, nil
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(targetSize),
		textsplitter.WithChunkOverlap(0),
		textsplitter.WithSeparators(markdownSeparators),
	)
	parts, err := splitter.SplitText(normalized)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}

	chunks := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			chunks = append(chunks, p)
		}
	}
	return chunks, nil
}
