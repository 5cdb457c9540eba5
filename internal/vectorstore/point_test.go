package vectorstore

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointID_Deterministic(t *testing.T) {
	a := PointID("t1", "doc-1", 0)
	b := PointID("t1", "doc-1", 0)
	assert.Equal(t, a, b)

	_, err := uuid.Parse(a)
	require.NoError(t, err, "point ids must be valid UUIDs for Qdrant")

	assert.NotEqual(t, a, PointID("t1", "doc-1", 1))
	assert.NotEqual(t, a, PointID("t1", "doc-2", 0))
	assert.NotEqual(t, a, PointID("t2", "doc-1", 0), "tenants own disjoint id spaces")
	// "doc-1" seq 10 and "doc-11" seq 0 hash different names.
	assert.NotEqual(t, PointID("t1", "doc-1", 10), PointID("t1", "doc-11", 0))
}

func TestNodeType(t *testing.T) {
	assert.NoError(t, NodeDocument.Validate())
	assert.NoError(t, NodeResource.Validate())
	assert.Error(t, NodeType("canvas").Validate())

	assert.Equal(t, KeyDocID, NodeDocument.EntityKey())
	assert.Equal(t, KeyResourceID, NodeResource.EntityKey())
}

func TestPayload_Seq(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int
	}{
		{"int", 3, 3},
		{"int64", int64(4), 4},
		{"float64 from json", float64(5), 5},
		{"json number", json.Number("6"), 6},
		{"missing", nil, 0},
		{"wrong type", "7", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Payload{}
			if tt.value != nil {
				p[KeySeq] = tt.value
			}
			assert.Equal(t, tt.want, p.Seq())
		})
	}
}

func TestPayload_EntityID(t *testing.T) {
	doc := Payload{KeyNodeType: "document", KeyDocID: "d1"}
	res := Payload{KeyNodeType: "resource", KeyResourceID: "r1"}
	untyped := Payload{KeyResourceID: "r2"}

	assert.Equal(t, "d1", doc.EntityID())
	assert.Equal(t, "r1", res.EntityID())
	assert.Equal(t, "r2", untyped.EntityID())
}

func TestPoint_CloneIsDeep(t *testing.T) {
	p := Point{ID: "a", Vector: []float32{1, 2}, Payload: Payload{KeyContent: "x"}}
	c := p.Clone()

	c.Vector[0] = 9
	c.Payload[KeyContent] = "y"

	assert.Equal(t, float32(1), p.Vector[0])
	assert.Equal(t, "x", p.Payload.Content())
}

func TestEstimateSize(t *testing.T) {
	payload := Payload{KeyContent: "hi"}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	points := []Point{
		{ID: "abcd", Vector: []float32{1, 2, 3}, Payload: payload},
		{ID: "ef", Vector: []float32{1}, Payload: payload},
	}

	want := int64(4*3+4+len(body)) + int64(4*1+2+len(body))
	assert.Equal(t, want, EstimateSize(points))
	assert.Zero(t, EstimateSize(nil))
}

func TestPayload_ToContentPayload(t *testing.T) {
	p := Payload{
		KeyTenantID:     "t1",
		KeyNodeType:     "resource",
		KeyResourceID:   "r1",
		KeySeq:          int64(2),
		KeyContent:      "hello",
		KeyURL:          "https://example.com",
		KeyTitle:        "Example",
		KeyResourceType: "weblink",
		KeyProjectID:    "p1",
	}

	assert.Equal(t, ContentPayload{
		TenantID:     "t1",
		NodeType:     NodeResource,
		ResourceID:   "r1",
		Seq:          2,
		Content:      "hello",
		URL:          "https://example.com",
		Title:        "Example",
		ResourceType: "weblink",
		ProjectID:    "p1",
	}, p.ToContentPayload())
}
