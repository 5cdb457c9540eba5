package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store with cosine similarity search.
// Scroll orders points by id, matching Qdrant's scroll order.
type MemoryStore struct {
	mu     sync.RWMutex
	points map[string]Point
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{points: make(map[string]Point)}
}

// Len returns the number of stored points.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

// Upsert implements Store.
func (m *MemoryStore) Upsert(ctx context.Context, points []Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, p := range points {
		if p.ID == "" || len(p.Vector) == 0 {
			return fmt.Errorf("%w: id=%q dims=%d", ErrInvalidPoint, p.ID, len(p.Vector))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		m.points[p.ID] = p.Clone()
	}
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(ctx context.Context, filter Filter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := filter.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if filter.Matches(p.Payload) {
			delete(m.points, id)
		}
	}
	return nil
}

// Scroll implements Store.
func (m *MemoryStore) Scroll(ctx context.Context, filter Filter, offset string, limit int) (ScrollPage, error) {
	if err := ctx.Err(); err != nil {
		return ScrollPage{}, err
	}
	if err := filter.Validate(); err != nil {
		return ScrollPage{}, err
	}
	if limit <= 0 {
		limit = DefaultScrollPageSize
	}

	matched := m.matching(filter)
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	start := sort.Search(len(matched), func(i int) bool { return matched[i].ID >= offset })
	end := start + limit
	page := ScrollPage{}
	if end < len(matched) {
		page.NextOffset = matched[end].ID
	} else {
		end = len(matched)
	}
	page.Points = matched[start:end]
	return page, nil
}

// Search implements Store.
func (m *MemoryStore) Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]ScoredPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	matched := m.matching(filter)
	scored := make([]ScoredPoint, 0, len(matched))
	for _, p := range matched {
		if len(p.Vector) != len(vector) {
			continue
		}
		scored = append(scored, ScoredPoint{Point: p, Score: cosine(vector, p.Vector)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// SetPayload implements Store.
func (m *MemoryStore) SetPayload(ctx context.Context, filter Filter, payload Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := filter.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if !filter.Matches(p.Payload) {
			continue
		}
		merged := p.Payload.Clone()
		for k, v := range payload {
			merged[k] = v
		}
		p.Payload = merged
		m.points[id] = p
	}
	return nil
}

// matching returns copies of the points satisfying filter.
func (m *MemoryStore) matching(filter Filter) []Point {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Point, 0, len(m.points))
	for _, p := range m.points {
		if filter.Matches(p.Payload) {
			out = append(out, p.Clone())
		}
	}
	return out
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*TenantGuard)(nil)
)
