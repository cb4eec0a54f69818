// Package httpapi implements the thin enqueue/query edge of spec §4.F:
// POST /jobs/rag-reindex, GET /jobs, GET /jobs/:id. This is explicitly
// out of the core's scope per spec §1 ("deliberately out of scope ...
// its only contract with the core is the set of DB operations it
// performs"), but SPEC_FULL.md §6 carries a minimal edge so the worker
// is independently operable. Grounded on the teacher's
// domain/backups/handler.go echo.Context handler style.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/emergent-company/rag-reindex-worker/internal/jobstore"
	"github.com/emergent-company/rag-reindex-worker/pkg/apperror"
)

// Handler serves the job submission/status edge over the shared job store.
type Handler struct {
	store *jobstore.Store
	log   *slog.Logger
}

// NewHandler builds a Handler bound to store.
func NewHandler(store *jobstore.Store, log *slog.Logger) *Handler {
	return &Handler{store: store, log: log.With(slog.String("component", "httpapi.handler"))}
}

// Register wires the handler's routes onto e.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/healthz", h.Healthz)
	e.POST("/jobs/rag-reindex", h.EnqueueReindex)
	e.GET("/jobs", h.ListJobs)
	e.GET("/jobs/:id", h.GetJob)
}

// Healthz is a liveness probe for container orchestration.
func (h *Handler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// enqueueReindexRequestDTO is the optional payload body for the reindex
// job; all fields are optional overrides of the runner's env-configured
// defaults (spec §4.C inputs).
type enqueueReindexRequestDTO struct {
	SourceDir    string `json:"source_dir,omitempty"`
	DBPath       string `json:"db_path,omitempty"`
	ChunkSize    int    `json:"chunk_size,omitempty"`
	ChunkOverlap int    `json:"chunk_overlap,omitempty"`
}

// EnqueueReindex enqueues a rag_reindex job, rejecting with 409 when one
// is already queued or running (spec §4.A, §4.F single-in-flight guard).
func (h *Handler) EnqueueReindex(c echo.Context) error {
	var req enqueueReindexRequestDTO
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return apperror.NewInternal("failed to encode job payload", err)
	}

	job, err := h.store.Enqueue(c.Request().Context(), jobstore.KindRagReindex, payload, jobstore.DefaultMaxAttempts)
	if err != nil {
		if appErr, ok := err.(*apperror.Error); ok {
			return appErr
		}
		h.log.Error("failed to enqueue reindex job", slog.Any("error", err))
		return apperror.NewInternal("failed to enqueue reindex job", err)
	}

	return c.JSON(http.StatusAccepted, job)
}

// ListJobs lists jobs, optionally filtered by kind/status query params.
func (h *Handler) ListJobs(c echo.Context) error {
	kind := c.QueryParam("kind")
	status := c.QueryParam("status")

	jobs, err := h.store.ListJobs(c.Request().Context(), kind, status)
	if err != nil {
		h.log.Error("failed to list jobs", slog.Any("error", err))
		return apperror.NewInternal("failed to list jobs", err)
	}
	return c.JSON(http.StatusOK, jobs)
}

// GetJob returns a single job by id, or 404 when absent.
func (h *Handler) GetJob(c echo.Context) error {
	id := c.Param("id")

	job, err := h.store.GetJob(c.Request().Context(), id)
	if err != nil {
		h.log.Error("failed to get job", slog.String("job_id", id), slog.Any("error", err))
		return apperror.NewInternal("failed to get job", err)
	}
	if job == nil {
		return apperror.NewNotFound("job", id)
	}
	return c.JSON(http.StatusOK, job)
}
