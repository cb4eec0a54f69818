// Package main is the reindex-runner subprocess: a standalone CLI that
// performs one reindex job body and prints its result as the last
// stdout line, per spec §4.D/§6's subprocess execution contract. It is
// invoked by internal/worker.SubprocessRunner, never by a human
// directly, though it runs standalone for local testing.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/emergent-company/rag-reindex-worker/internal/config"
	"github.com/emergent-company/rag-reindex-worker/internal/reindex"
	"github.com/emergent-company/rag-reindex-worker/internal/storage"
	"github.com/emergent-company/rag-reindex-worker/pkg/embeddings"
	"github.com/emergent-company/rag-reindex-worker/pkg/logger"
)

// payloadOverrides carries the optional per-job overrides of the
// enqueue-time job payload (spec §6), falling back to environment
// configuration for any field left zero.
type payloadOverrides struct {
	SourceDir    string `json:"source_dir"`
	DBPath       string `json:"db_path"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
}

func main() {
	payloadJSON := flag.String("payload-json", "", "job payload JSON (overrides env-configured defaults)")
	flag.Parse()

	if err := run(*payloadJSON); err != nil {
		fmt.Fprintf(os.Stderr, "[rag-reindex-runner] failed: %s\n", err.Error())
		os.Exit(1)
	}
}

func run(payloadJSON string) error {
	log := logger.NewLogger()

	cfg, err := config.NewConfig(log)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	params := reindex.Params{
		SourceDir:    cfg.Reindex.SourceDir,
		DBPath:       cfg.Reindex.DBPath,
		ChunkSize:    cfg.Reindex.ChunkSize,
		ChunkOverlap: cfg.Reindex.ChunkOverlap,
		EmbedModel:   cfg.Embeddings.Model,
	}

	if payloadJSON != "" {
		var overrides payloadOverrides
		if err := json.Unmarshal([]byte(payloadJSON), &overrides); err != nil {
			return fmt.Errorf("parse payload: %w", err)
		}
		if overrides.SourceDir != "" {
			params.SourceDir = overrides.SourceDir
		}
		if overrides.DBPath != "" {
			params.DBPath = overrides.DBPath
		}
		if overrides.ChunkSize > 0 {
			params.ChunkSize = overrides.ChunkSize
		}
		if overrides.ChunkOverlap > 0 {
			params.ChunkOverlap = overrides.ChunkOverlap
		}
	}

	ctx := context.Background()
	embedder := embeddings.NewService(ctx, cfg, log)

	metrics, err := reindex.Run(ctx, params, embedder)
	if err != nil {
		return err
	}

	backupArtifact(ctx, cfg, params.DBPath, log)

	return json.NewEncoder(os.Stdout).Encode(metrics)
}

// backupArtifact uploads the freshly-swapped index artifact to the
// optional S3-compatible backup bucket (SPEC_FULL.md §6). A backup
// failure is logged but never fails the job: the atomic swap already
// completed and is the operation of record.
func backupArtifact(ctx context.Context, cfg *config.Config, dbPath string, log *slog.Logger) {
	storageCfg := &storage.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Region:    cfg.Storage.Region,
		Bucket:    cfg.Storage.Bucket,
	}
	if !storageCfg.Enabled() {
		return
	}

	svc, err := storage.NewService(storageCfg, log)
	if err != nil {
		log.Error("artifact backup: init failed", "error", err.Error())
		return
	}

	data, err := os.ReadFile(dbPath)
	if err != nil {
		log.Error("artifact backup: read failed", "error", err.Error())
		return
	}

	key := fmt.Sprintf("rag-index/%s.db", time.Now().UTC().Format("20060102T150405Z"))
	if _, err := svc.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), storage.UploadOptions{
		ContentType: "application/octet-stream",
	}); err != nil {
		log.Error("artifact backup: upload failed", "error", err.Error())
	}
}
