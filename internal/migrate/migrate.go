// Package migrate applies the schema of spec §6 using Goose, following
// the teacher's internal/migrate package structure and the same
// embedded-FS/goose.UpContext pattern, adapted from zap to this
// repository's slog-based logger.
package migrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/emergent-company/rag-reindex-worker/migrations"
)

// Module provides migration dependencies.
var Module = fx.Options(
	fx.Provide(NewMigrator),
)

// Migrator applies the job-store and heartbeat schema to Postgres.
type Migrator struct {
	db  *bun.DB
	log *slog.Logger
}

// NewMigrator builds a Migrator bound to db.
func NewMigrator(db *bun.DB, log *slog.Logger) *Migrator {
	return &Migrator{db: db, log: log.With(slog.String("component", "migrate"))}
}

// Up runs all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	m.log.Info("running database migrations")

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("migrate: set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, m.db.DB, "."); err != nil {
		return fmt.Errorf("migrate: run migrations: %w", err)
	}

	m.log.Info("migrations completed")
	return nil
}

// Version returns the current schema version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return 0, fmt.Errorf("migrate: set dialect: %w", err)
	}
	return goose.GetDBVersionContext(ctx, m.db.DB)
}
