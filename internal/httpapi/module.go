package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"github.com/emergent-company/rag-reindex-worker/internal/config"
	"github.com/emergent-company/rag-reindex-worker/pkg/apperror"
	"github.com/emergent-company/rag-reindex-worker/pkg/logger"
)

// Module wires the optional job submission/status edge (SPEC_FULL.md §6)
// into the fx graph, following the teacher's internal/server module's
// Provide-plus-Invoke-lifecycle shape.
var Module = fx.Module("httpapi",
	fx.Provide(NewHandler, NewEcho),
	fx.Invoke(StartServer),
)

// NewEcho creates and configures an Echo instance for the job edge.
func NewEcho(h *Handler, log *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(log)
	e.Use(middleware.Recover())
	h.Register(e)
	return e
}

// StartServer starts the HTTP edge when cfg.HTTPPort is non-zero;
// otherwise it is a no-op, since the edge is explicitly optional
// (SPEC_FULL.md §6).
func StartServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, log *slog.Logger) {
	if cfg.HTTPPort == 0 {
		return
	}
	log = log.With(logger.Scope("httpapi"))

	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HTTPPort)}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("starting HTTP job edge", slog.Int("port", cfg.HTTPPort))
			go func() {
				if err := e.StartServer(server); err != nil && err != http.ErrServerClosed {
					log.Error("http edge error", logger.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down HTTP job edge")
			return e.Shutdown(ctx)
		},
	})
}
