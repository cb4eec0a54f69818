// Package local provides a deterministic, network-free embeddings.Client
// implementation: a seeded SHA-256 stream expanded and L2-normalized into
// a fixed-dimension vector. It exists so the reindex runner is runnable
// and testable with zero external network calls, ported from
// original_source's embedder.py deterministic fallback.
package local

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
)

// Client is a deterministic embeddings.Client. It never calls out over
// the network and errors only when Dimensions is not positive.
type Client struct {
	Dimensions int
}

// NewClient returns a Client producing vectors of the given dimension.
func NewClient(dimensions int) *Client {
	return &Client{Dimensions: dimensions}
}

// EmbedQuery embeds a single query string.
func (c *Client) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return deterministicEmbedding(query, c.Dimensions)
}

// EmbedDocuments embeds each document independently in one batch call.
func (c *Client) EmbedDocuments(ctx context.Context, documents []string) ([][]float32, error) {
	out := make([][]float32, len(documents))
	for i, doc := range documents {
		vec, err := deterministicEmbedding(doc, c.Dimensions)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// deterministicEmbedding expands a SHA-256 seed of text into a stream of
// bytes, maps each byte into [-1, 1], and L2-normalizes the result.
// Mirrors original_source's _deterministic_embedding exactly: seed the
// stream with sha256(text), repeatedly rehash digest+seed to grow the
// byte stream to at least `dimensions` bytes, map via (b/127.5)-1.0, then
// normalize unless the vector norm is zero.
func deterministicEmbedding(text string, dimensions int) ([]float32, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("local embeddings: dimensions must be > 0, got %d", dimensions)
	}

	seed := sha256.Sum256([]byte(text))
	values := make([]byte, 0, dimensions)
	digest := seed[:]
	for len(values) < dimensions {
		sum := sha256.Sum256(append(append([]byte{}, digest...), seed[:]...))
		digest = sum[:]
		values = append(values, digest...)
	}
	values = values[:dimensions]

	vector := make([]float32, dimensions)
	var sumSquares float64
	for i, b := range values {
		v := (float64(b) / 127.5) - 1.0
		vector[i] = float32(v)
		sumSquares += v * v
	}

	norm := math.Sqrt(sumSquares)
	if norm > 0 {
		for i := range vector {
			vector[i] = float32(float64(vector[i]) / norm)
		}
	}
	return vector, nil
}
