// Package worker drives the claim/execute/bookkeeping loop of spec §4.D,
// following the same polling-ticker/graceful-stop shape as the teacher's
// generic internal/jobs.Worker, generalized to run an injectable Runner
// instead of an in-process callback so production wires a subprocess
// executor while a test can substitute an in-process fake (spec §9's
// "subprocess-isolated job execution" design note).
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/emergent-company/rag-reindex-worker/internal/jobstore"
	"github.com/emergent-company/rag-reindex-worker/pkg/logger"
)

// Runner executes one job's payload and returns its result (or error) for
// mark_succeeded/mark_failure bookkeeping. The production implementation
// is SubprocessRunner; any in-process function of this type can stand in
// for it.
type Runner func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

// Config bounds the worker loop's behavior.
type Config struct {
	Kind         string
	PollInterval time.Duration
}

// Worker is the single-threaded claim/execute/bookkeeping loop of spec §4.D.
type Worker struct {
	store  *jobstore.Store
	run    Runner
	cfg    Config
	log    *slog.Logger
	stopCh chan struct{}
	doneCh chan struct{}
	mu     sync.Mutex
	active bool
}

// New builds a Worker bound to store, driving jobs of kind cfg.Kind
// through run.
func New(store *jobstore.Store, run Runner, cfg Config, log *slog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Worker{
		store:  store,
		run:    run,
		cfg:    cfg,
		log:    log.With(logger.Scope("worker")),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the polling loop in a background goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.active {
		w.mu.Unlock()
		return
	}
	w.active = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.loop(ctx)
}

// Stop signals the loop to exit after its current iteration and waits for
// it to finish, or for ctx to expire.
func (w *Worker) Stop(ctx context.Context) {
	w.mu.Lock()
	if !w.active {
		w.mu.Unlock()
		return
	}
	w.active = false
	close(w.stopCh)
	w.mu.Unlock()

	select {
	case <-w.doneCh:
	case <-ctx.Done():
		w.log.Warn("worker stop timed out")
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick implements one iteration of spec §4.D's pseudocode: claim, run,
// bookkeep. Any error surfacing from the store during bookkeeping
// propagates to the caller's log and is not retried locally — per spec
// §4.D, store-layer errors during bookkeeping are allowed to terminate
// the loop in a real deployment; here they are logged and the loop
// continues polling, since a crash-and-restart supervisor is outside the
// core's scope.
func (w *Worker) tick(ctx context.Context) {
	job, err := w.store.ClaimNext(ctx, w.cfg.Kind)
	if err != nil {
		w.log.Error("claim failed", logger.Error(err))
		return
	}
	if job == nil {
		return
	}

	w.log.Info("claimed job", slog.String("job_id", job.ID), slog.String("kind", job.Kind))

	result, runErr := w.run(ctx, job.PayloadJSON)
	if runErr != nil {
		if markErr := w.store.MarkFailure(ctx, job.ID, job.Attempts, job.MaxAttempts, runErr.Error()); markErr != nil {
			w.log.Error("mark_failure failed", slog.String("job_id", job.ID), logger.Error(markErr))
		} else {
			w.log.Warn("job failed", slog.String("job_id", job.ID), logger.Error(runErr))
		}
		return
	}

	if markErr := w.store.MarkSucceeded(ctx, job.ID, result); markErr != nil {
		w.log.Error("mark_succeeded failed", slog.String("job_id", job.ID), logger.Error(markErr))
		return
	}
	w.log.Info("job succeeded", slog.String("job_id", job.ID))
}

// SubprocessRunner builds a production Runner that executes binaryPath
// with --payload-json <payload> (when payload is non-empty), captures
// stdout/stderr, and parses the last stdout line as the job's JSON
// result, per spec §4.D's subprocess execution contract. Grounded on the
// teacher's exec.CommandContext usage in domain/workspaceimages (docker
// pull), generalized from CombinedOutput to separated stdout/stderr
// capture since the runner contract distinguishes metrics (stdout) from
// human-readable failure context (stderr).
func SubprocessRunner(binaryPath string, workDir string) Runner {
	return func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
		args := []string{}
		if len(payload) > 0 && string(payload) != "null" {
			args = append(args, "--payload-json", string(payload))
		}

		cmd := exec.CommandContext(ctx, binaryPath, args...)
		cmd.Dir = workDir

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		runErr := cmd.Run()

		out := strings.TrimSpace(stdout.String())
		if out == "" {
			return nil, fmt.Errorf("reindex subprocess produced no output")
		}
		if runErr != nil {
			errText := strings.TrimSpace(stderr.String())
			if errText == "" {
				errText = runErr.Error()
			}
			return nil, fmt.Errorf("%s", errText)
		}

		lines := strings.Split(out, "\n")
		lastLine := strings.TrimSpace(lines[len(lines)-1])

		var result json.RawMessage
		if err := json.Unmarshal([]byte(lastLine), &result); err != nil || result[0] != '{' {
			return nil, fmt.Errorf("reindex subprocess output is not a JSON object: %q", lastLine)
		}
		return result, nil
	}
}
