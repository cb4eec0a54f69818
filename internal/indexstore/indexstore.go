// Package indexstore persists the retrieval index artifact to a
// file-backed SQLite database, following the same uptrace/bun
// query-building idiom used for the Postgres-backed job store, pointed at
// a different dialect/driver pair so a single ORM library covers both of
// this repository's stores.
package indexstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/emergent-company/rag-reindex-worker/pkg/apperror"
)

// schemaDDL matches the relations and indexes of spec §3, byte-for-byte
// equivalent to original_source's sqlite_store.py _ensure_schema.
const schemaDDL = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	source_path TEXT NOT NULL UNIQUE,
	content_hash TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	doc_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	text TEXT NOT NULL,
	token_count INTEGER,
	embedding BLOB NOT NULL,
	embedding_dim INTEGER NOT NULL,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (doc_id) REFERENCES documents(id) ON DELETE CASCADE,
	UNIQUE (doc_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks(doc_id);
CREATE INDEX IF NOT EXISTS idx_documents_source_path ON documents(source_path);
CREATE INDEX IF NOT EXISTS idx_chunks_created_at ON chunks(created_at);
`

// Document is one row of the documents table.
type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	ID          string `bun:"id,pk"`
	SourcePath  string `bun:"source_path"`
	ContentHash string `bun:"content_hash"`
	CreatedAt   string `bun:"created_at"`
}

// Chunk is one row of the chunks table.
type Chunk struct {
	bun.BaseModel `bun:"table:chunks,alias:c"`

	ID           string `bun:"id,pk"`
	DocID        string `bun:"doc_id"`
	ChunkIndex   int    `bun:"chunk_index"`
	Text         string `bun:"text"`
	TokenCount   int    `bun:"token_count"`
	Embedding    []byte `bun:"embedding"`
	EmbeddingDim int    `bun:"embedding_dim"`
	CreatedAt    string `bun:"created_at"`
}

// SourceDocument is a loaded document ready to be chunked, mirroring
// original_source's SourceDocument dataclass.
type SourceDocument struct {
	DocID      string
	SourcePath string
	Text       string
}

// ChunkRecord is a produced chunk prior to embedding, mirroring
// original_source's ChunkRecord dataclass.
type ChunkRecord struct {
	ChunkID    string
	DocID      string
	SourcePath string
	Text       string
}

// StoredChunk is a chunk as read back by Load.
type StoredChunk struct {
	ChunkID    string
	SourcePath string
	Text       string
	Embedding  []float32
}

// Open creates (or opens) the SQLite database file at path via bun over
// sqliteshim/sqlitedialect.
func Open(path string) (*bun.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("indexstore: create parent dir: %w", err)
	}
	sqldb, err := sql.Open(sqliteshim.ShimName, path)
	if err != nil {
		return nil, fmt.Errorf("indexstore: open %s: %w", path, err)
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// Write applies the schema (idempotently), then performs a full replace of
// documents and chunks at path: deletes existing rows, inserts documents
// sorted by id, then inserts chunks with chunk_index derived from the
// trailing numeric segment of chunk_id. Matches spec §4.B's write
// operation exactly.
func Write(ctx context.Context, path string, documents []SourceDocument, chunks []ChunkRecord, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("indexstore: chunks and embeddings must have the same length (%d != %d)", len(chunks), len(embeddings))
	}

	db, err := Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("indexstore: apply schema: %w", err)
	}

	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*Chunk)(nil)).Where("1 = 1").Exec(ctx); err != nil {
			return fmt.Errorf("indexstore: delete chunks: %w", err)
		}
		if _, err := tx.NewDelete().Model((*Document)(nil)).Where("1 = 1").Exec(ctx); err != nil {
			return fmt.Errorf("indexstore: delete documents: %w", err)
		}

		sorted := make([]SourceDocument, len(documents))
		copy(sorted, documents)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].DocID < sorted[j].DocID })

		docRows := make([]*Document, 0, len(sorted))
		for _, d := range sorted {
			docRows = append(docRows, &Document{
				ID:          d.DocID,
				SourcePath:  d.SourcePath,
				ContentHash: contentHash(d.Text),
			})
		}
		if len(docRows) > 0 {
			if _, err := tx.NewInsert().Model(&docRows).Exec(ctx); err != nil {
				return fmt.Errorf("indexstore: insert documents: %w", err)
			}
		}

		chunkRows := make([]*Chunk, 0, len(chunks))
		for i, c := range chunks {
			idx, err := chunkIndex(c.ChunkID)
			if err != nil {
				return err
			}
			chunkRows = append(chunkRows, &Chunk{
				ID:           c.ChunkID,
				DocID:        c.DocID,
				ChunkIndex:   idx,
				Text:         c.Text,
				TokenCount:   len(strings.Fields(c.Text)),
				Embedding:    encodeEmbedding(embeddings[i]),
				EmbeddingDim: len(embeddings[i]),
			})
		}
		if len(chunkRows) > 0 {
			if _, err := tx.NewInsert().Model(&chunkRows).Exec(ctx); err != nil {
				return fmt.Errorf("indexstore: insert chunks: %w", err)
			}
		}
		return nil
	})
}

// SelfCheck returns (chunk_count, max_embedding_dim) for the artifact at
// path and fails with a SelfCheckFailure-classified error when either is
// zero (spec §4.B, §4.C step 6).
func SelfCheck(ctx context.Context, path string) (chunkCount int, maxEmbeddingDim int, err error) {
	db, err := Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer db.Close()

	row := db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(MAX(embedding_dim), 0) FROM chunks`)
	if err := row.Scan(&chunkCount, &maxEmbeddingDim); err != nil {
		return 0, 0, fmt.Errorf("indexstore: self-check query: %w", err)
	}
	if chunkCount == 0 || maxEmbeddingDim == 0 {
		return chunkCount, maxEmbeddingDim, fmt.Errorf("indexstore: self-check failed: chunk_count=%d max_embedding_dim=%d", chunkCount, maxEmbeddingDim)
	}
	return chunkCount, maxEmbeddingDim, nil
}

// Load reads back chunks joined to their owning document, ordered by
// chunks.id ascending. Rows whose decoded embedding length does not match
// the stored embedding_dim are silently skipped as corrupt. A missing
// file surfaces apperror.ErrServiceUnavailable: the index artifact is a
// required dependency of the retrieval edge, not a queryable resource
// that can 404.
func Load(ctx context.Context, path string) ([]StoredChunk, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperror.NewServiceUnavailable(fmt.Sprintf("index artifact not found: %s", path))
		}
		return nil, fmt.Errorf("indexstore: stat %s: %w", path, err)
	}

	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	type row struct {
		ChunkID      string `bun:"chunk_id"`
		SourcePath   string `bun:"source_path"`
		Text         string `bun:"text"`
		Embedding    []byte `bun:"embedding"`
		EmbeddingDim int    `bun:"embedding_dim"`
	}
	var rows []row
	err = db.NewSelect().
		ColumnExpr("c.id AS chunk_id, d.source_path AS source_path, c.text AS text, c.embedding AS embedding, c.embedding_dim AS embedding_dim").
		TableExpr("chunks AS c").
		Join("JOIN documents AS d ON d.id = c.doc_id").
		OrderExpr("c.id ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("indexstore: load: %w", err)
	}

	out := make([]StoredChunk, 0, len(rows))
	for _, r := range rows {
		embedding := decodeEmbedding(r.Embedding)
		if len(embedding) != r.EmbeddingDim {
			continue
		}
		out = append(out, StoredChunk{
			ChunkID:    r.ChunkID,
			SourcePath: r.SourcePath,
			Text:       r.Text,
			Embedding:  embedding,
		})
	}
	return out, nil
}

// encodeEmbedding packs values as little-endian IEEE-754 float32, matching
// original_source's array("f", values).tobytes() (spec §3).
func encodeEmbedding(values []float32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeEmbedding is the inverse of encodeEmbedding.
func decodeEmbedding(blob []byte) []float32 {
	n := len(blob) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", sum)
}

// chunkIndex parses the trailing numeric suffix of a chunk id formatted
// as "<doc_id>-<index:04d>" per spec §3; a differently-shaped id is a
// contract violation.
func chunkIndex(chunkID string) (int, error) {
	sep := strings.LastIndex(chunkID, "-")
	if sep < 0 {
		return 0, fmt.Errorf("indexstore: invalid chunk id format: %q", chunkID)
	}
	suffix := chunkID[sep+1:]
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, fmt.Errorf("indexstore: invalid chunk id format: %q", chunkID)
	}
	return n, nil
}
