package worker

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/emergent-company/rag-reindex-worker/internal/config"
	"github.com/emergent-company/rag-reindex-worker/internal/jobstore"
)

// Module wires the job-worker loop into the fx graph, following the
// teacher's domain/email module's Provide-plus-Invoke-lifecycle shape.
var Module = fx.Module("worker",
	fx.Provide(NewFromConfig),
	fx.Invoke(RegisterLifecycle),
)

// NewFromConfig builds the production Worker: it claims rag_reindex jobs
// and executes them via SubprocessRunner against cfg.Worker.RunnerBinaryPath.
func NewFromConfig(store *jobstore.Store, cfg *config.Config, log *slog.Logger) *Worker {
	run := SubprocessRunner(cfg.Worker.RunnerBinaryPath, cfg.Worker.RunnerWorkDir)
	return New(store, run, Config{
		Kind:         jobstore.KindRagReindex,
		PollInterval: cfg.Worker.PollInterval(),
	}, log)
}

// RegisterLifecycle starts and stops w alongside the fx app.
func RegisterLifecycle(lc fx.Lifecycle, w *Worker) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			w.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			w.Stop(ctx)
			return nil
		},
	})
}
