package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragindex/internal/logging"
)

var chromemTracer = otel.Tracer("github.com/fyrsmithlabs/ragindex/internal/vectorstore/chromem")

// ErrInvalidConfig indicates an invalid store configuration.
var ErrInvalidConfig = errors.New("invalid store config")

// Metadata keys of a chromem document. chromem metadata is string-only, so
// the full payload travels as JSON next to the tenant used for prefiltering.
const (
	chromemTenantKey  = "tenantId"
	chromemPayloadKey = "payload"
)

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	// Path is the persistence directory. Empty keeps everything in memory.
	// A leading ~ expands to the home directory.
	Path string

	// Compress gzips the persisted documents.
	Compress bool

	// Collection is the single collection shared by all tenants.
	Collection string

	// Dimension of every stored vector.
	Dimension int
}

// ApplyDefaults fills unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "ragindex"
	}
}

// Validate checks the configuration.
func (c *ChromemConfig) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Collection) == "" {
		return fmt.Errorf("%w: collection is required", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore is a Store over an embedded chromem-go collection.
//
// chromem normalizes vectors on insert, so Scroll returns unit vectors.
// Cosine scores are unaffected. Filters other than the tenant are applied
// after the tenant prefilter, which keeps every operation linear in the
// size of one tenant.
type ChromemStore struct {
	db     *chromem.DB
	col    *chromem.Collection
	config ChromemConfig
	logger *logging.Logger

	// mu serializes writes against the count-then-query reads.
	mu sync.RWMutex
}

// NewChromemStore opens or creates the store.
func NewChromemStore(config ChromemConfig, logger *logging.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	db := chromem.NewDB()
	path := ""
	if config.Path != "" {
		var err error
		if path, err = expandChromemPath(config.Path); err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		if db, err = NewResilientChromemDB(path, config.Compress, logger); err != nil {
			return nil, fmt.Errorf("opening chromem DB: %w", err)
		}
	}

	col, err := db.GetOrCreateCollection(config.Collection, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("getting collection %s: %w", config.Collection, err)
	}

	logger.Info(context.Background(), "chromem store opened",
		zap.String("path", path),
		zap.Bool("compress", config.Compress),
		zap.String("collection", config.Collection),
		zap.Int("dimension", config.Dimension),
		zap.Int("points", col.Count()),
	)
	return &ChromemStore{db: db, col: col, config: config, logger: logger}, nil
}

// noEmbedding rejects text queries. Points always arrive with vectors.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem store does not embed text")
}

// expandChromemPath expands ~ to the home directory.
func expandChromemPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Len returns the number of stored points across tenants.
func (s *ChromemStore) Len() int { return s.col.Count() }

// Upsert implements Store.
func (s *ChromemStore) Upsert(ctx context.Context, points []Point) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()
	span.SetAttributes(attribute.Int("points", len(points)))

	if len(points) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(points))
	for _, p := range points {
		if p.ID == "" || len(p.Vector) == 0 {
			return fmt.Errorf("%w: id=%q dims=%d", ErrInvalidPoint, p.ID, len(p.Vector))
		}
		if len(p.Vector) != s.config.Dimension {
			return fmt.Errorf("%w: id=%q dims=%d, want %d", ErrInvalidPoint, p.ID, len(p.Vector), s.config.Dimension)
		}
		doc, err := toChromemDocument(p)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.col.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert failed")
		return fmt.Errorf("adding documents: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *ChromemStore) Delete(ctx context.Context, filter Filter) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Delete")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	matched, err := s.matching(ctx, filter)
	if err != nil {
		return err
	}
	if len(matched) == 0 {
		return nil
	}
	ids := make([]string, len(matched))
	for i, p := range matched {
		ids[i] = p.ID
	}
	span.SetAttributes(attribute.Int("points", len(ids)))
	if err := s.col.Delete(ctx, nil, nil, ids...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return fmt.Errorf("deleting documents: %w", err)
	}
	return nil
}

// Scroll implements Store.
func (s *ChromemStore) Scroll(ctx context.Context, filter Filter, offset string, limit int) (ScrollPage, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Scroll")
	defer span.End()

	if limit <= 0 {
		limit = DefaultScrollPageSize
	}
	s.mu.RLock()
	matched, err := s.matching(ctx, filter)
	s.mu.RUnlock()
	if err != nil {
		return ScrollPage{}, err
	}
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
func (s *ChromemStore) Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]ScoredPoint, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("limit", limit))

	if len(vector) != s.config.Dimension {
		return nil, fmt.Errorf("%w: query dims=%d, want %d", ErrInvalidPoint, len(vector), s.config.Dimension)
	}
	s.mu.RLock()
	results, err := s.query(ctx, vector, filter)
	s.mu.RUnlock()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, err
	}

	hits := make([]ScoredPoint, 0, len(results))
	for _, r := range results {
		p, err := fromChromemResult(r)
		if err != nil {
			return nil, err
		}
		if !filter.Matches(p.Payload) {
			continue
		}
		hits = append(hits, ScoredPoint{Point: p, Score: r.Similarity})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// SetPayload implements Store.
func (s *ChromemStore) SetPayload(ctx context.Context, filter Filter, payload Payload) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.SetPayload")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	matched, err := s.matching(ctx, filter)
	if err != nil {
		return err
	}
	if len(matched) == 0 {
		return nil
	}

	docs := make([]chromem.Document, 0, len(matched))
	for _, p := range matched {
		for k, v := range payload {
			p.Payload[k] = v
		}
		doc, err := toChromemDocument(p)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}
	span.SetAttributes(attribute.Int("points", len(docs)))
	if err := s.col.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "set payload failed")
		return fmt.Errorf("rewriting documents: %w", err)
	}
	return nil
}

// matching returns every point satisfying filter.
func (s *ChromemStore) matching(ctx context.Context, filter Filter) ([]Point, error) {
	results, err := s.query(ctx, s.scanVector(), filter)
	if err != nil {
		return nil, err
	}
	out := make([]Point, 0, len(results))
	for _, r := range results {
		p, err := fromChromemResult(r)
		if err != nil {
			return nil, err
		}
		if filter.Matches(p.Payload) {
			out = append(out, p)
		}
	}
	return out, nil
}

// query returns all documents of the filter's tenant, ranked against vector.
// chromem caps nResults at the collection size, not the filtered size.
func (s *ChromemStore) query(ctx context.Context, vector []float32, filter Filter) ([]chromem.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	var where map[string]string
	if tenantID, ok := filter.TenantID(); ok {
		where = map[string]string{chromemTenantKey: tenantID}
	}

	n := s.col.Count()
	if n == 0 {
		return nil, nil
	}
	results, err := s.col.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}
	return results, nil
}

// scanVector is a unit vector used to enumerate documents.
func (s *ChromemStore) scanVector() []float32 {
	v := make([]float32, s.config.Dimension)
	x := float32(1 / math.Sqrt(float64(s.config.Dimension)))
	for i := range v {
		v[i] = x
	}
	return v
}

func toChromemDocument(p Point) (chromem.Document, error) {
	raw, err := json.Marshal(p.Payload)
	if err != nil {
		return chromem.Document{}, fmt.Errorf("encoding payload of %s: %w", p.ID, err)
	}
	vec := make([]float32, len(p.Vector))
	copy(vec, p.Vector)
	return chromem.Document{
		ID:        p.ID,
		Embedding: vec,
		Content:   p.Payload.Content(),
		Metadata: map[string]string{
			chromemTenantKey:  p.Payload.TenantID(),
			chromemPayloadKey: string(raw),
		},
	}, nil
}

func fromChromemResult(r chromem.Result) (Point, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(r.Metadata[chromemPayloadKey])))
	dec.UseNumber()
	var payload Payload
	if err := dec.Decode(&payload); err != nil {
		return Point{}, fmt.Errorf("decoding payload of %s: %w", r.ID, err)
	}
	if payload == nil {
		payload = Payload{}
	}
	for k, v := range payload {
		if n, ok := v.(json.Number); ok {
			payload[k] = numberValue(n)
		}
	}
	vec := make([]float32, len(r.Embedding))
	copy(vec, r.Embedding)
	return Point{ID: r.ID, Vector: vec, Payload: payload}, nil
}

// numberValue keeps integers integral after the JSON round trip.
func numberValue(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	f, _ := n.Float64()
	return f
}

var _ Store = (*ChromemStore)(nil)
