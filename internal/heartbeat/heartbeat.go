// Package heartbeat implements the worker liveness loop of spec §4.E: a
// concurrent task that repeatedly upserts worker_heartbeats, applying
// exponential backoff with jitter when the store round-trip fails.
// Ported from original_source's worker/main.py send_heartbeat_once, with
// the retry-until-success inner loop generalized to cooperate with a
// shared stop signal instead of looping forever uninterruptibly.
package heartbeat

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/emergent-company/rag-reindex-worker/internal/jobstore"
	"github.com/emergent-company/rag-reindex-worker/pkg/logger"
)

// Config bounds the heartbeat loop.
type Config struct {
	WorkerID  string
	Interval  time.Duration
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Heartbeat is the liveness-reporting cooperating task of spec §4.E.
type Heartbeat struct {
	store  *jobstore.Store
	cfg    Config
	log    *slog.Logger
	stopCh chan struct{}
	doneCh chan struct{}
	mu     sync.Mutex
	active bool
}

// New builds a Heartbeat bound to store.
func New(store *jobstore.Store, cfg Config, log *slog.Logger) *Heartbeat {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	return &Heartbeat{
		store:  store,
		cfg:    cfg,
		log:    log.With(logger.Scope("heartbeat")),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the heartbeat loop in a background goroutine.
func (h *Heartbeat) Start(ctx context.Context) {
	h.mu.Lock()
	if h.active {
		h.mu.Unlock()
		return
	}
	h.active = true
	h.stopCh = make(chan struct{})
	h.doneCh = make(chan struct{})
	h.mu.Unlock()

	go h.loop(ctx)
}

// Stop signals the loop to exit after its current sleep and waits for it
// to finish, or for ctx to expire.
func (h *Heartbeat) Stop(ctx context.Context) {
	h.mu.Lock()
	if !h.active {
		h.mu.Unlock()
		return
	}
	h.active = false
	close(h.stopCh)
	h.mu.Unlock()

	select {
	case <-h.doneCh:
	case <-ctx.Done():
		h.log.Warn("heartbeat stop timed out")
	}
}

func (h *Heartbeat) loop(ctx context.Context) {
	defer close(h.doneCh)

	for {
		h.sendOnce(ctx)

		select {
		case <-h.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(h.cfg.Interval):
		}
	}
}

// sendOnce upserts the worker's heartbeat, retrying with exponential
// backoff and up to ±20% jitter on failure, per spec §4.E. The retry
// loop is interruptible via stopCh/ctx so the worker process still shuts
// down promptly mid-backoff.
func (h *Heartbeat) sendOnce(ctx context.Context) {
	delay := h.cfg.BaseDelay
	attempt := 1

	for {
		now := time.Now().UTC()
		err := h.store.UpsertHeartbeat(ctx, h.cfg.WorkerID, now)
		if err == nil {
			h.log.Debug("heartbeat upserted", slog.String("worker_id", h.cfg.WorkerID))
			return
		}

		h.log.Warn("heartbeat upsert failed",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", delay),
			logger.Error(err),
		)

		jittered := jitter(delay)
		select {
		case <-h.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(jittered):
		}

		delay = nextBackoffDelay(delay, h.cfg.MaxDelay)
		attempt++
	}
}

// nextBackoffDelay doubles delay and caps it at max, per spec §4.E.
func nextBackoffDelay(delay, max time.Duration) time.Duration {
	delay *= 2
	if delay > max {
		return max
	}
	return delay
}

// jitter adds up to ±20% uniform jitter to delay, per spec §4.E.
func jitter(delay time.Duration) time.Duration {
	return delay + time.Duration((rand.Float64()*0.4-0.2)*float64(delay))
}
