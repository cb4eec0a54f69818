package heartbeat

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/emergent-company/rag-reindex-worker/internal/config"
	"github.com/emergent-company/rag-reindex-worker/internal/jobstore"
)

// Module wires the liveness heartbeat loop into the fx graph.
var Module = fx.Module("heartbeat",
	fx.Provide(NewFromConfig),
	fx.Invoke(RegisterLifecycle),
)

// NewFromConfig builds the production Heartbeat from the worker config
// of spec §4.E.
func NewFromConfig(store *jobstore.Store, cfg *config.Config, log *slog.Logger) *Heartbeat {
	return New(store, Config{
		WorkerID:  cfg.Worker.ID,
		Interval:  cfg.Worker.HeartbeatInterval(),
		BaseDelay: cfg.Worker.RetryBaseDelay(),
		MaxDelay:  cfg.Worker.RetryMaxDelay(),
	}, log)
}

// RegisterLifecycle starts and stops h alongside the fx app.
func RegisterLifecycle(lc fx.Lifecycle, h *Heartbeat) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			h.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			h.Stop(ctx)
			return nil
		},
	})
}
