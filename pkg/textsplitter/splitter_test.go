package textsplitter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSlidingWindow(t *testing.T) {
	text := strings.Repeat("a", 1280)
	chunks, err := Split(text, Config{ChunkSize: 120, ChunkOverlap: 20})
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 120)
	}
}

func TestSplitDropsEmptyChunks(t *testing.T) {
	chunks, err := Split("   ", Config{ChunkSize: 10, ChunkOverlap: 0})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitStripsWhitespace(t *testing.T) {
	chunks, err := Split("  hello  ", Config{ChunkSize: 20, ChunkOverlap: 0})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello", chunks[0])
}

func TestSplitRejectsOverlapGreaterOrEqualSize(t *testing.T) {
	_, err := Split("text", Config{ChunkSize: 10, ChunkOverlap: 10})
	assert.Error(t, err)

	_, err = Split("text", Config{ChunkSize: 10, ChunkOverlap: 11})
	assert.Error(t, err)
}

func TestSplitRejectsNonPositiveChunkSize(t *testing.T) {
	_, err := Split("text", Config{ChunkSize: 0, ChunkOverlap: 0})
	assert.Error(t, err)
}

func TestSplitRejectsNegativeOverlap(t *testing.T) {
	_, err := Split("text", Config{ChunkSize: 10, ChunkOverlap: -1})
	assert.Error(t, err)
}

func TestSplitExactWindowBoundaries(t *testing.T) {
	// 25 chars, chunk_size=10, overlap=2 -> step=8
	// cursor 0:  [0,10)  "0123456789"
	// cursor 8:  [8,18)  "89abcdefgh"
	// cursor 16: [16,25) "ghijklmno" (window reaches the end, loop stops)
	text := "0123456789abcdefghijklmno" // len 25
	chunks, err := Split(text, Config{ChunkSize: 10, ChunkOverlap: 2})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "0123456789", chunks[0])
	assert.Equal(t, []string{"0123456789", "89abcdefgh", "ghijklmno"}, chunks)
}

func TestChunkIDFormat(t *testing.T) {
	assert.Equal(t, "doc1-0000", ChunkID("doc1", 0))
	assert.Equal(t, "doc1-0042", ChunkID("doc1", 42))
	assert.Equal(t, "doc1-12345", ChunkID("doc1", 12345))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
}
