// Package main is the entry point for the rag-reindex job worker: it
// claims queued rag_reindex jobs, executes the reindex-runner subprocess
// for each, and maintains a liveness heartbeat, per spec §4.D/§4.E.
package main

import (
	"context"
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/emergent-company/rag-reindex-worker/internal/config"
	"github.com/emergent-company/rag-reindex-worker/internal/database"
	"github.com/emergent-company/rag-reindex-worker/internal/heartbeat"
	"github.com/emergent-company/rag-reindex-worker/internal/httpapi"
	"github.com/emergent-company/rag-reindex-worker/internal/jobstore"
	"github.com/emergent-company/rag-reindex-worker/internal/migrate"
	"github.com/emergent-company/rag-reindex-worker/internal/storage"
	"github.com/emergent-company/rag-reindex-worker/internal/worker"
	"github.com/emergent-company/rag-reindex-worker/pkg/logger"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	fx.New(
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		logger.Module,
		config.Module,
		database.Module,
		jobstore.Module,
		storage.Module,

		migrate.Module,
		fx.Invoke(func(m *migrate.Migrator) error {
			return m.Up(context.Background())
		}),

		worker.Module,
		heartbeat.Module,
		httpapi.Module,
	).Run()
}
