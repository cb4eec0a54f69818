// Package embeddings provides embedding generation functionality.
package embeddings

import (
	"context"
	"log/slog"

	"github.com/emergent-company/rag-reindex-worker/internal/config"
	"github.com/emergent-company/rag-reindex-worker/pkg/embeddings/genai"
	"github.com/emergent-company/rag-reindex-worker/pkg/embeddings/local"
)

// Service selects between the real genai client and the deterministic
// local fallback based on configuration, per SPEC_FULL.md §6: when
// GOOGLE_API_KEY is unset the runner falls back to a deterministic local
// embedder so the module runs end-to-end without network access.
type Service struct {
	client  Client
	log     *slog.Logger
	enabled bool // true iff the real genai client is in use
}

// NewNoopService creates a service with a noop client (for testing).
func NewNoopService(log *slog.Logger) *Service {
	return &Service{client: NewNoopClient(), log: log}
}

// NewService builds the embeddings service from configuration. When
// cfg.Embeddings.GoogleAPIKey is set it initializes the real genai client
// immediately; a genai initialization failure, like an unset API key,
// falls back to the deterministic local embedder so the caller (the
// reindex-runner subprocess) never fails to construct an embedder.
func NewService(ctx context.Context, cfg *config.Config, log *slog.Logger) *Service {
	embCfg := cfg.Embeddings

	if embCfg.GoogleAPIKey == "" {
		log.Info("embeddings: no GOOGLE_API_KEY set, using deterministic local embedder",
			slog.Int("dimension", embCfg.Dimension),
		)
		return &Service{client: local.NewClient(embCfg.Dimension), log: log}
	}

	log.Info("initializing genai embeddings client", slog.String("model", embCfg.Model))
	client, err := genai.NewClient(ctx, genai.Config{
		APIKey: embCfg.GoogleAPIKey,
		Model:  embCfg.Model,
	}, genai.WithLogger(log))
	if err != nil {
		log.Error("failed to initialize genai client, falling back to local embedder",
			slog.String("error", err.Error()))
		return &Service{client: local.NewClient(embCfg.Dimension), log: log}
	}

	return &Service{client: client, log: log, enabled: true}
}

// IsEnabled returns true when the real genai client is active rather than
// the deterministic local fallback.
func (s *Service) IsEnabled() bool {
	return s.enabled
}

// EmbedQuery generates an embedding for a single query.
func (s *Service) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return s.client.EmbedQuery(ctx, query)
}

// EmbedDocuments generates embeddings for multiple documents.
func (s *Service) EmbedDocuments(ctx context.Context, documents []string) ([][]float32, error) {
	return s.client.EmbedDocuments(ctx, documents)
}
