// Package textsplitter chunks document text into fixed-size, overlapping
// windows using the sliding-window algorithm required by the reindex
// runner: [cursor, cursor+chunk_size) advancing by chunk_size-chunk_overlap,
// with each chunk stripped and empty chunks dropped. Ported from
// original_source's chunker.py so the testable round-trip properties
// (exact chunk_id format, exact chunk boundaries) hold byte-for-byte.
package textsplitter

import (
	"fmt"
	"strings"
)

// Config bounds a Split call. ChunkOverlap must be strictly smaller than
// ChunkSize and ChunkSize must be positive.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

// DefaultConfig matches the RAG_CHUNK_SIZE/RAG_CHUNK_OVERLAP defaults of
// spec §6.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    500,
		ChunkOverlap: 50,
	}
}

// Split slides a [cursor, cursor+chunk_size) window over text, advancing
// by chunk_size-chunk_overlap each step, stripping whitespace from each
// window and dropping empty results. Returns an error if cfg is invalid.
func Split(text string, cfg Config) ([]string, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("textsplitter: chunk_size must be > 0, got %d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 {
		return nil, fmt.Errorf("textsplitter: chunk_overlap must be >= 0, got %d", cfg.ChunkOverlap)
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("textsplitter: chunk_overlap (%d) must be smaller than chunk_size (%d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}

	runes := []rune(text)
	length := len(runes)

	var chunks []string
	cursor := 0
	for cursor < length {
		end := cursor + cfg.ChunkSize
		if end > length {
			end = length
		}

		if chunk := strings.TrimSpace(string(runes[cursor:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= length {
			break
		}
		cursor = end - cfg.ChunkOverlap
	}

	return chunks, nil
}

// ChunkID formats a chunk identifier as "<doc_id>-<index:04d>" per spec §3.
func ChunkID(docID string, index int) string {
	return fmt.Sprintf("%s-%04d", docID, index)
}
