package vectorstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragindex/internal/logging"
)

func newChromem(t *testing.T, path string) *ChromemStore {
	t.Helper()
	s, err := NewChromemStore(ChromemConfig{Path: path, Dimension: 2}, logging.NewNop())
	require.NoError(t, err)
	return s
}

func TestChromemConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ChromemConfig
		wantErr bool
	}{
		{"valid", ChromemConfig{Dimension: 384}, false},
		{"zero dimension", ChromemConfig{}, true},
		{"blank collection", ChromemConfig{Dimension: 8, Collection: "  "}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.ApplyDefaults()
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewChromemStore_ExpandsHomePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	_, err := NewChromemStore(ChromemConfig{Path: "~/vectors", Dimension: 2}, nil)
	require.NoError(t, err)
	assert.DirExists(t, home+"/vectors")
}

func TestChromemStore_UpsertScrollRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newChromem(t, "")

	require.NoError(t, s.Upsert(ctx, []Point{
		docPoint("t1", "d1", 0, "alpha", 3, 4),
		docPoint("t1", "d1", 1, "beta", 0, 2),
		docPoint("t2", "d1", 0, "other tenant", 1, 0),
	}))
	assert.Equal(t, 3, s.Len())

	points, err := ScrollAll(ctx, s, EntityFilter("t1", NodeDocument, "d1"), 1)
	require.NoError(t, err)
	require.Len(t, points, 2)

	bySeq := map[int]Point{}
	for _, p := range points {
		bySeq[p.Payload.Seq()] = p
	}
	assert.Equal(t, "alpha", bySeq[0].Payload.Content())
	assert.Equal(t, "t1", bySeq[0].Payload.TenantID())
	assert.InDelta(t, 0.6, bySeq[0].Vector[0], 1e-6, "stored vectors are normalized")
	assert.InDelta(t, 0.8, bySeq[0].Vector[1], 1e-6)
	assert.Equal(t, "beta", bySeq[1].Payload.Content())
}

func TestChromemStore_UpsertRejectsWrongDimension(t *testing.T) {
	s := newChromem(t, "")
	err := s.Upsert(context.Background(), []Point{docPoint("t1", "d1", 0, "a", 1, 2, 3)})
	assert.ErrorIs(t, err, ErrInvalidPoint)
	assert.Zero(t, s.Len())
}

func TestChromemStore_ScrollPagingOrdersByID(t *testing.T) {
	ctx := context.Background()
	s := newChromem(t, "")

	var points []Point
	for i := 0; i < 5; i++ {
		points = append(points, docPoint("t1", "d1", i, fmt.Sprintf("c%d", i), 1, float32(i)))
	}
	require.NoError(t, s.Upsert(ctx, points))

	var ids []string
	offset := ""
	for {
		page, err := s.Scroll(ctx, TenantFilter("t1"), offset, 2)
		require.NoError(t, err)
		for _, p := range page.Points {
			ids = append(ids, p.ID)
		}
		if page.NextOffset == "" {
			break
		}
		offset = page.NextOffset
	}
	require.Len(t, ids, 5)
	assert.IsIncreasing(t, ids)
}

func TestChromemStore_SearchFiltersAndRanks(t *testing.T) {
	ctx := context.Background()
	s := newChromem(t, "")
	require.NoError(t, s.Upsert(ctx, []Point{
		docPoint("t1", "d1", 0, "near", 1, 0),
		docPoint("t1", "d2", 0, "far", 0, 1),
		docPoint("t1", "d1", 1, "middle", 1, 1),
		docPoint("t2", "d1", 0, "foreign", 1, 0),
	}))

	hits, err := s.Search(ctx, []float32{1, 0}, TenantFilter("t1"), 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "near", hits[0].Payload.Content())
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, "middle", hits[1].Payload.Content())

	hits, err = s.Search(ctx, []float32{1, 0}, TenantFilter("t1").And(Eq(KeyDocID, "d2")), 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "far", hits[0].Payload.Content())

	_, err = s.Search(ctx, []float32{1}, TenantFilter("t1"), 1)
	assert.ErrorIs(t, err, ErrInvalidPoint)
}

func TestChromemStore_SearchEmptyCollection(t *testing.T) {
	hits, err := newChromem(t, "").Search(context.Background(), []float32{1, 0}, TenantFilter("t1"), 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestChromemStore_DeleteAndSetPayload(t *testing.T) {
	ctx := context.Background()
	s := newChromem(t, "")
	require.NoError(t, s.Upsert(ctx, []Point{
		docPoint("t1", "d1", 0, "a", 1, 0),
		docPoint("t1", "d2", 0, "b", 0, 1),
		docPoint("t2", "d1", 0, "c", 1, 1),
	}))

	require.NoError(t, s.SetPayload(ctx, EntityFilter("t1", NodeDocument, "d2"), Payload{KeyTitle: "Guide"}))
	points, err := ScrollAll(ctx, s, EntityFilter("t1", NodeDocument, "d2"), 0)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "Guide", points[0].Payload.String(KeyTitle))
	assert.Equal(t, "b", points[0].Payload.Content())

	require.NoError(t, s.Delete(ctx, EntityFilter("t1", NodeDocument, "d1")))
	assert.Equal(t, 2, s.Len())
	points, err = ScrollAll(ctx, s, TenantFilter("t2"), 0)
	require.NoError(t, err)
	assert.Len(t, points, 1, "other tenant untouched")

	assert.NoError(t, s.Delete(ctx, EntityFilter("t1", NodeDocument, "missing")))
	assert.Error(t, s.Delete(ctx, Filter{Must: []Condition{{Key: KeyDocID}}}))
}

func TestChromemStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := newChromem(t, dir)
	require.NoError(t, s.Upsert(ctx, []Point{docPoint("t1", "d1", 3, "kept", 1, 0)}))

	reopened := newChromem(t, dir)
	assert.Equal(t, 1, reopened.Len())
	points, err := ScrollAll(ctx, reopened, TenantFilter("t1"), 0)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 3, points[0].Payload.Seq())
	assert.Equal(t, "kept", points[0].Payload.Content())
}

func TestChromemStore_BehindGuard(t *testing.T) {
	g := NewTenantGuard(newChromem(t, ""), nil)
	_, err := g.Search(context.Background(), []float32{1, 0}, Filter{}, 1)
	assert.ErrorIs(t, err, ErrMissingTenant)
}
