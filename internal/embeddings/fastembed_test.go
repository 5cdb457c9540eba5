//go:build cgo

package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastEmbedModelDimension(t *testing.T) {
	dim, ok := fastEmbedModelDimension("BAAI/bge-base-en-v1.5")
	assert.True(t, ok)
	assert.Equal(t, 768, dim)

	_, ok = fastEmbedModelDimension("text-embedding-3-large")
	assert.False(t, ok)
}

func TestNewFastEmbedProvider_UnsupportedModel(t *testing.T) {
	_, err := NewFastEmbedProvider(FastEmbedConfig{Model: "not-a-model"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFastEmbedProvider_Embed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping FastEmbed test in short mode")
	}
	if !ONNXRuntimeExists() {
		t.Skip("ONNX runtime not available")
	}

	p, err := NewFastEmbedProvider(FastEmbedConfig{Model: "BAAI/bge-small-en-v1.5", CacheDir: t.TempDir()})
	require.NoError(t, err)
	defer p.Close()

	vectors, err := p.EmbedDocuments(context.Background(), []string{"first passage", "second passage"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], p.Dimension())

	q, err := p.EmbedQuery(context.Background(), "passage")
	require.NoError(t, err)
	assert.Len(t, q, 384)
}
