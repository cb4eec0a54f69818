package local

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedQueryIsDeterministic(t *testing.T) {
	c := NewClient(16)
	v1, err := c.EmbedQuery(context.Background(), "hello world")
	require.NoError(t, err)
	v2, err := c.EmbedQuery(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestEmbedQueryDimension(t *testing.T) {
	c := NewClient(32)
	v, err := c.EmbedQuery(context.Background(), "anything")
	require.NoError(t, err)
	assert.Len(t, v, 32)
}

func TestEmbedQueryIsUnitNormalized(t *testing.T) {
	c := NewClient(24)
	v, err := c.EmbedQuery(context.Background(), "normalize me")
	require.NoError(t, err)

	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSquares), 1e-4)
}

func TestEmbedQueryDiffersByText(t *testing.T) {
	c := NewClient(16)
	v1, err := c.EmbedQuery(context.Background(), "alpha")
	require.NoError(t, err)
	v2, err := c.EmbedQuery(context.Background(), "beta")
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)
}

func TestEmbedDocumentsBatch(t *testing.T) {
	c := NewClient(8)
	docs := []string{"one", "two", "three"}
	vecs, err := c.EmbedDocuments(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Len(t, v, 8)
	}
	assert.NotEqual(t, vecs[0], vecs[1])
}

func TestDimensionsMustBePositive(t *testing.T) {
	c := NewClient(0)
	_, err := c.EmbedQuery(context.Background(), "x")
	assert.Error(t, err)
}
