// Package reindex implements the reindex runner: the pure job body that
// loads source documents, chunks and embeds them, writes the result to a
// temp index artifact, self-checks it, and atomically swaps it into
// place. Grounded on original_source's reindex_job_runner.py/ingest.py,
// generalized from a Python script into a Go function whose one injected
// collaborator is the embedder, so tests substitute a fake embedder; the
// loader and chunker are called directly.
package reindex

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/emergent-company/rag-reindex-worker/internal/indexstore"
	"github.com/emergent-company/rag-reindex-worker/pkg/textsplitter"
)

// supportedExtensions mirrors original_source's loader.py SUPPORTED_EXTENSIONS.
var supportedExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

// Params bounds a single reindex run (spec §4.C inputs).
type Params struct {
	SourceDir    string
	DBPath       string
	ChunkSize    int
	ChunkOverlap int
	EmbedModel   string
}

// Metrics is the runner's output, emitted verbatim as the subprocess's
// stdout JSON (spec §4.C step 9, §6).
type Metrics struct {
	Documents       int    `json:"documents"`
	Chunks          int    `json:"chunks"`
	DBPath          string `json:"db_path"`
	DurationMs      int64  `json:"duration_ms"`
	MaxEmbeddingDim int    `json:"max_embedding_dim"`
	EmbedModel      string `json:"embed_model"`
}

// EmbedderClient is the subset of embeddings.Client the runner needs.
// embeddings.Service and pkg/embeddings/local.Client both satisfy it.
type EmbedderClient interface {
	EmbedDocuments(ctx context.Context, documents []string) ([][]float32, error)
}

// Run executes the full 9-step algorithm of spec §4.C against params,
// using embedder to turn chunk text into vectors.
func Run(ctx context.Context, params Params, embedder EmbedderClient) (Metrics, error) {
	start := time.Now()

	if params.ChunkSize <= 0 {
		return Metrics{}, fmt.Errorf("reindex: chunk_size must be > 0, got %d", params.ChunkSize)
	}
	if params.ChunkOverlap >= params.ChunkSize {
		return Metrics{}, fmt.Errorf("reindex: chunk_overlap (%d) must be smaller than chunk_size (%d)", params.ChunkOverlap, params.ChunkSize)
	}

	tempPath := params.DBPath + ".tmp"
	if _, err := os.Stat(tempPath); err == nil {
		if err := os.Remove(tempPath); err != nil {
			return Metrics{}, fmt.Errorf("reindex: remove stale temp file: %w", err)
		}
	}

	documents, err := loadDocuments(params.SourceDir)
	if err != nil {
		return Metrics{}, err
	}

	var chunks []indexstore.ChunkRecord
	var chunkTexts []string
	splitCfg := textsplitter.Config{ChunkSize: params.ChunkSize, ChunkOverlap: params.ChunkOverlap}
	for _, doc := range documents {
		windows, err := textsplitter.Split(doc.Text, splitCfg)
		if err != nil {
			_ = os.Remove(tempPath)
			return Metrics{}, fmt.Errorf("reindex: chunk %s: %w", doc.SourcePath, err)
		}
		for i, text := range windows {
			chunks = append(chunks, indexstore.ChunkRecord{
				ChunkID:    textsplitter.ChunkID(doc.DocID, i),
				DocID:      doc.DocID,
				SourcePath: doc.SourcePath,
				Text:       text,
			})
			chunkTexts = append(chunkTexts, text)
		}
	}

	vectors, err := embedder.EmbedDocuments(ctx, chunkTexts)
	if err != nil {
		_ = os.Remove(tempPath)
		return Metrics{}, fmt.Errorf("reindex: embed chunks: %w", err)
	}

	if writeErr := indexstore.Write(ctx, tempPath, documents, chunks, vectors); writeErr != nil {
		_ = os.Remove(tempPath)
		return Metrics{}, fmt.Errorf("reindex: write index: %w", writeErr)
	}

	chunkCount, maxDim, err := indexstore.SelfCheck(ctx, tempPath)
	if err != nil {
		_ = os.Remove(tempPath)
		return Metrics{}, fmt.Errorf("reindex: self-check: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(params.DBPath), 0o755); err != nil {
		_ = os.Remove(tempPath)
		return Metrics{}, fmt.Errorf("reindex: create db dir: %w", err)
	}
	if err := os.Rename(tempPath, params.DBPath); err != nil {
		_ = os.Remove(tempPath)
		return Metrics{}, fmt.Errorf("reindex: atomic replace: %w", err)
	}

	return Metrics{
		Documents:       len(documents),
		Chunks:          chunkCount,
		DBPath:          params.DBPath,
		DurationMs:      time.Since(start).Milliseconds(),
		MaxEmbeddingDim: maxDim,
		EmbedModel:      params.EmbedModel,
	}, nil
}

// loadDocuments reads every supported file under sourceDir, sorted by
// relative path, dropping empty files. Matches original_source's
// loader.py exactly including doc_id derivation.
func loadDocuments(sourceDir string) ([]indexstore.SourceDocument, error) {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("reindex: source directory not found: %s", sourceDir)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("reindex: source path is not a directory: %s", sourceDir)
	}

	var paths []string
	err = filepath.WalkDir(sourceDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if supportedExtensions[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reindex: walk source dir: %w", err)
	}
	sort.Strings(paths)

	var documents []indexstore.SourceDocument
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reindex: read %s: %w", path, err)
		}
		text := strings.TrimSpace(string(raw))
		if text == "" {
			continue
		}

		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return nil, fmt.Errorf("reindex: relative path for %s: %w", path, err)
		}
		rel = filepath.ToSlash(rel)

		sum := sha256.Sum256([]byte(rel))
		docID := fmt.Sprintf("%x", sum)[:16]

		documents = append(documents, indexstore.SourceDocument{
			DocID:      docID,
			SourcePath: rel,
			Text:       text,
		})
	}

	if len(documents) == 0 {
		return nil, fmt.Errorf("reindex: no non-empty supported documents found in %s", sourceDir)
	}
	return documents, nil
}
