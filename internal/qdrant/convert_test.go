package qdrant

import (
	"encoding/json"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragindex/internal/vectorstore"
)

func TestExtractPointID(t *testing.T) {
	tests := []struct {
		name string
		id   *qdrant.PointId
		want string
	}{
		{"nil", nil, ""},
		{"uuid", qdrant.NewIDUUID("0b5e7f2c-0000-4000-8000-000000000001"), "0b5e7f2c-0000-4000-8000-000000000001"},
		{"numeric", qdrant.NewIDNum(42), "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractPointID(tt.id))
		})
	}
}

func TestParsePointID(t *testing.T) {
	id := vectorstore.PointID("t1", "doc-1", 0)
	assert.Equal(t, id, parsePointID(id).GetUuid())
	assert.Equal(t, uint64(42), parsePointID("42").GetNum())
}

func TestPayloadRoundTrip(t *testing.T) {
	in := vectorstore.Payload{
		"s":      "text",
		"i":      7,
		"f":      1.5,
		"b":      true,
		"n":      json.Number("12"),
		"list":   []string{"a", "b"},
		"nested": map[string]any{"k": "v"},
		"null":   nil,
	}

	q, err := convertToQdrantPayload(in)
	require.NoError(t, err)
	out := extractPayload(q)

	assert.Equal(t, "text", out["s"])
	assert.Equal(t, int64(7), out["i"])
	assert.Equal(t, 1.5, out["f"])
	assert.Equal(t, true, out["b"])
	assert.Equal(t, int64(12), out["n"])
	assert.Equal(t, []any{"a", "b"}, out["list"])
	assert.Equal(t, map[string]any{"k": "v"}, out["nested"])
	assert.Nil(t, out["null"])
}

func TestConvertToQdrantValue_Unsupported(t *testing.T) {
	_, err := convertToQdrantValue(struct{}{})
	assert.Error(t, err)
}

func TestConvertToQdrantFilter(t *testing.T) {
	t.Run("empty filter", func(t *testing.T) {
		f, err := convertToQdrantFilter(vectorstore.Filter{})
		require.NoError(t, err)
		assert.Nil(t, f)
	})

	t.Run("typed matches", func(t *testing.T) {
		f, err := convertToQdrantFilter(vectorstore.Filter{Must: []vectorstore.Condition{
			vectorstore.Eq("tenantId", "t1"),
			vectorstore.Eq("seq", 3),
			vectorstore.Eq("archived", false),
		}})
		require.NoError(t, err)
		must := f.GetMust()
		require.Len(t, must, 3)
		assert.Equal(t, "t1", must[0].GetField().GetMatch().GetKeyword())
		assert.Equal(t, int64(3), must[1].GetField().GetMatch().GetInteger())
		assert.False(t, must[2].GetField().GetMatch().GetBoolean())
	})

	t.Run("invalid condition", func(t *testing.T) {
		_, err := convertToQdrantFilter(vectorstore.Filter{Must: []vectorstore.Condition{{Key: "x"}}})
		assert.ErrorIs(t, err, vectorstore.ErrInvalidFilter)
	})
}
