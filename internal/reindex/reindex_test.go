package reindex

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/rag-reindex-worker/internal/indexstore"
	"github.com/emergent-company/rag-reindex-worker/pkg/embeddings/local"
)

func TestRun_AtomicReindex(t *testing.T) {
	dir := t.TempDir()
	content := strings.Repeat("a", 1280)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.txt"), []byte(content), 0o644))

	dbPath := filepath.Join(t.TempDir(), "index.sqlite3")
	embedder := local.NewClient(8)

	metrics, err := Run(context.Background(), Params{
		SourceDir:    dir,
		DBPath:       dbPath,
		ChunkSize:    120,
		ChunkOverlap: 20,
		EmbedModel:   "local-deterministic",
	}, embedder)
	require.NoError(t, err)

	assert.Equal(t, 1, metrics.Documents)
	assert.Greater(t, metrics.Chunks, 0)
	assert.Equal(t, 8, metrics.MaxEmbeddingDim)
	assert.Equal(t, dbPath, metrics.DBPath)

	_, statErr := os.Stat(dbPath)
	assert.NoError(t, statErr)
	_, tmpStatErr := os.Stat(dbPath + ".tmp")
	assert.True(t, os.IsNotExist(tmpStatErr))

	chunks, err := indexstore.Load(context.Background(), dbPath)
	require.NoError(t, err)
	assert.Len(t, chunks, metrics.Chunks)
}

type zeroDimEmbedder struct{}

func (zeroDimEmbedder) EmbedDocuments(ctx context.Context, documents []string) ([][]float32, error) {
	out := make([][]float32, len(documents))
	for i := range documents {
		out[i] = []float32{}
	}
	return out, nil
}

func TestRun_SelfCheckFailurePreservesSafety(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.txt"), []byte(strings.Repeat("b", 200)), 0o644))

	dbPath := filepath.Join(t.TempDir(), "index.sqlite3")

	_, err := Run(context.Background(), Params{
		SourceDir:    dir,
		DBPath:       dbPath,
		ChunkSize:    120,
		ChunkOverlap: 20,
	}, zeroDimEmbedder{})
	require.Error(t, err)

	_, statErr := os.Stat(dbPath)
	assert.True(t, os.IsNotExist(statErr))
	_, tmpStatErr := os.Stat(dbPath + ".tmp")
	assert.True(t, os.IsNotExist(tmpStatErr))
}

func TestRun_NoDocumentsFails(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "index.sqlite3")

	_, err := Run(context.Background(), Params{
		SourceDir:    dir,
		DBPath:       dbPath,
		ChunkSize:    120,
		ChunkOverlap: 20,
	}, local.NewClient(8))
	assert.Error(t, err)
}

func TestRun_InvalidChunkParams(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.txt"), []byte("hello"), 0o644))
	dbPath := filepath.Join(t.TempDir(), "index.sqlite3")

	_, err := Run(context.Background(), Params{
		SourceDir:    dir,
		DBPath:       dbPath,
		ChunkSize:    100,
		ChunkOverlap: 100,
	}, local.NewClient(8))
	assert.Error(t, err)
}

func TestLoadDocuments_SkipsUnsupportedExtensions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.md"), []byte("hello world"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.bin"), []byte("binary"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.txt"), []byte("   "), 0o644))

	docs, err := loadDocuments(dir)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "keep.md", docs[0].SourcePath)
	assert.Len(t, docs[0].DocID, 16)
}
