package vectorstore

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for vector store operations.
var (
	// ErrMissingTenant is returned when a read or destructive write is not
	// scoped to a tenant. Stores fail closed instead of returning empty results.
	ErrMissingTenant = errors.New("tenant filter missing")

	// ErrInvalidFilter indicates a malformed filter condition.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrInvalidPoint indicates a point without id or vector.
	ErrInvalidPoint = errors.New("invalid point")
)

// DefaultScrollPageSize is used by ScrollAll when pageSize is not positive.
const DefaultScrollPageSize = 256

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments returns one vector per input text, in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single query text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ScrollPage is one page of a cursor-paged read.
type ScrollPage struct {
	Points []Point
	// NextOffset is empty when there are no more pages.
	NextOffset string
}

// Store is the capability interface over a point-based vector database.
//
// Every operation is scoped by a Filter. Implementations:
//   - qdrant.Client: Qdrant over gRPC
//   - ChromemStore: embedded chromem-go, optionally persisted to disk
//   - MemoryStore: in-process, for tests and local runs
//
// Wrap either in a TenantGuard to reject unscoped calls.
type Store interface {
	// Upsert inserts or replaces points by id.
	Upsert(ctx context.Context, points []Point) error

	// Delete removes every point matching filter.
	Delete(ctx context.Context, filter Filter) error

	// Scroll returns up to limit points matching filter, ordered by id,
	// starting at offset (empty for the first page). Vectors are included.
	Scroll(ctx context.Context, filter Filter, offset string, limit int) (ScrollPage, error)

	// Search returns up to limit points matching filter, most similar first.
	Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]ScoredPoint, error)

	// SetPayload merges payload into every point matching filter.
	SetPayload(ctx context.Context, filter Filter, payload Payload) error
}

// ScrollAll follows the scroll cursor until the result set is exhausted.
func ScrollAll(ctx context.Context, s Store, filter Filter, pageSize int) ([]Point, error) {
	if pageSize <= 0 {
		pageSize = DefaultScrollPageSize
	}

	var (
		all    []Point
		offset string
	)
	for {
		page, err := s.Scroll(ctx, filter, offset, pageSize)
		if err != nil {
			return nil, fmt.Errorf("scroll from %q: %w", offset, err)
		}
		all = append(all, page.Points...)
		if page.NextOffset == "" || page.NextOffset == offset {
			return all, nil
		}
		offset = page.NextOffset
	}
}
