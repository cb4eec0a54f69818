// Package jobstore persists durable jobs and worker liveness in Postgres.
//
// It offers a transactional claim/complete/fail lifecycle on top of
// uptrace/bun, using the FOR UPDATE SKIP LOCKED dequeue pattern for
// contended job tables, generalized to a single jobs table shared by
// every job kind.
package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/emergent-company/rag-reindex-worker/pkg/apperror"
)

// JobStatus is the lifecycle state of a job row.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
)

// KindRagReindex is the only job kind implemented by the core.
const KindRagReindex = "rag_reindex"

// DefaultMaxAttempts is applied at enqueue time when the caller does not
// specify a bound.
const DefaultMaxAttempts = 3

// Job is one row of the jobs table.
type Job struct {
	bun.BaseModel `bun:"table:jobs,alias:j"`

	ID          string          `bun:"id,pk"`
	Kind        string          `bun:"type"`
	Status      JobStatus       `bun:"status"`
	PayloadJSON json.RawMessage `bun:"payload_json"`
	Attempts    int             `bun:"attempts"`
	MaxAttempts int             `bun:"max_attempts"`
	CreatedAt   time.Time       `bun:"created_at"`
	UpdatedAt   time.Time       `bun:"updated_at"`
	StartedAt   *time.Time      `bun:"started_at"`
	FinishedAt  *time.Time      `bun:"finished_at"`
	Error       *string         `bun:"error"`
	ResultJSON  json.RawMessage `bun:"result_json"`
}

// WorkerHeartbeat is one row of the worker_heartbeats table.
type WorkerHeartbeat struct {
	bun.BaseModel `bun:"table:worker_heartbeats,alias:wh"`

	WorkerID      string    `bun:"worker_id,pk"`
	LastHeartbeat time.Time `bun:"last_heartbeat"`
	UpdatedAt     time.Time `bun:"updated_at"`
}

// Store implements the job-store contract of spec §4.A over a bun handle.
// db may be a *bun.DB or a transaction (bun.IDB) so callers can compose
// multiple store operations inside a single transaction when needed.
type Store struct {
	db  bun.IDB
	log *slog.Logger
}

// New returns a Store bound to db.
func New(db bun.IDB, log *slog.Logger) *Store {
	return &Store{db: db, log: log}
}

// coerceJobID normalises numeric-looking ids for comparison purposes.
// Non-numeric ids pass through unchanged. MarkSucceeded, MarkFailure and
// GetJob apply it to the id they are given; their WHERE clauses compare
// the VARCHAR id column to that string as is and cast neither side.
func coerceJobID(id string) string {
	id = strings.TrimSpace(id)
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return id
}

// nextID scans all existing ids, of every kind, and returns the maximum
// trailing numeric suffix plus one, rendered as a string (ids without a
// trailing digit run are ignored). This is the enqueue id
// generation scheme from spec §4.A; it is explicitly not race-safe across
// concurrent enqueuers without an enclosing transaction/lock (see
// DESIGN.md's Open Question note) and is always called from within
// Enqueue's transaction.
func nextID(ctx context.Context, db bun.IDB) (string, error) {
	var ids []string
	if err := db.NewSelect().Model((*Job)(nil)).Column("id").Scan(ctx, &ids); err != nil {
		return "", fmt.Errorf("jobstore: scan existing ids: %w", err)
	}

	max := int64(0)
	for _, id := range ids {
		id = strings.TrimSpace(id)
		start := len(id)
		for start > 0 && id[start-1] >= '0' && id[start-1] <= '9' {
			start--
		}
		n, err := strconv.ParseInt(id[start:], 10, 64)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return strconv.FormatInt(max+1, 10), nil
}

// Enqueue inserts a new queued job of kind, rejecting with a Conflict
// error carrying the existing job's id when one of the same kind is
// already queued or running (spec §4.A, §4.F single-in-flight guard).
func (s *Store) Enqueue(ctx context.Context, kind string, payload json.RawMessage, maxAttempts int) (*Job, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var job *Job
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := new(Job)
		err := tx.NewSelect().
			Model(existing).
			Where("type = ?", kind).
			Where("status IN (?, ?)", StatusQueued, StatusRunning).
			Order("created_at ASC", "id ASC").
			Limit(1).
			Scan(ctx)
		if err == nil {
			return apperror.NewConflict(
				fmt.Sprintf("a %s job is already queued or running", kind),
				existing.ID,
			)
		}

		id, err := nextID(ctx, tx)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		job = &Job{
			ID:          id,
			Kind:        kind,
			Status:      StatusQueued,
			PayloadJSON: payload,
			Attempts:    0,
			MaxAttempts: maxAttempts,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if _, err := tx.NewInsert().Model(job).Exec(ctx); err != nil {
			return fmt.Errorf("jobstore: insert job: %w", err)
		}
		return nil
	})
	if err != nil {
		if appErr, ok := err.(*apperror.Error); ok {
			return nil, appErr
		}
		return nil, err
	}
	return job, nil
}

// ClaimNext atomically selects the oldest queued job of kind, ordered by
// (created_at, id), and transitions it to running. Returns nil, nil when
// no claimable job exists.
//
// Production wiring always uses the pessimistic SKIP LOCKED path (the
// store targets Postgres, which supports row-level locking); the
// optimistic path exists to satisfy store drivers without locking
// support, selected via ClaimStrategy.
func (s *Store) ClaimNext(ctx context.Context, kind string) (*Job, error) {
	return s.claim(ctx, kind, PessimisticSkipLocked)
}

// ClaimStrategy selects how ClaimNextWithStrategy contends for a row.
type ClaimStrategy int

const (
	// PessimisticSkipLocked uses SELECT ... FOR UPDATE SKIP LOCKED inside
	// a transaction. Requires a store that supports row-level locking.
	PessimisticSkipLocked ClaimStrategy = iota
	// OptimisticClaimer performs a conditional UPDATE ... WHERE
	// status='queued' and treats a zero-row update as a lost race,
	// retrying against the next-oldest candidate.
	OptimisticClaimer
)

// ClaimNextWithStrategy is ClaimNext parameterized by claim strategy, for
// stores/drivers that do not support SELECT ... FOR UPDATE SKIP LOCKED.
func (s *Store) ClaimNextWithStrategy(ctx context.Context, kind string, strategy ClaimStrategy) (*Job, error) {
	return s.claim(ctx, kind, strategy)
}

func (s *Store) claim(ctx context.Context, kind string, strategy ClaimStrategy) (*Job, error) {
	switch strategy {
	case OptimisticClaimer:
		return s.claimOptimistic(ctx, kind)
	default:
		return s.claimPessimistic(ctx, kind)
	}
}

func (s *Store) claimPessimistic(ctx context.Context, kind string) (*Job, error) {
	var job *Job
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		candidate := new(Job)
		err := tx.NewSelect().
			Model(candidate).
			Where("type = ?", kind).
			Where("status = ?", StatusQueued).
			Order("created_at ASC", "id ASC").
			Limit(1).
			For("UPDATE SKIP LOCKED").
			Scan(ctx)
		if err != nil {
			if isNoRows(err) {
				return nil
			}
			return fmt.Errorf("jobstore: select candidate: %w", err)
		}

		now := time.Now().UTC()
		_, err = tx.NewUpdate().
			Model((*Job)(nil)).
			Set("status = ?", StatusRunning).
			Set("started_at = ?", now).
			Set("finished_at = NULL").
			Set("error = NULL").
			Set("updated_at = ?", now).
			Where("id = ?", candidate.ID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("jobstore: claim update: %w", err)
		}

		candidate.Status = StatusRunning
		candidate.StartedAt = &now
		candidate.FinishedAt = nil
		candidate.Error = nil
		candidate.UpdatedAt = now
		job = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// claimOptimistic retries a conditional UPDATE ... WHERE status='queued'
// against successive oldest candidates, treating a zero-row update as a
// lost race (spec §4.A, §7's TransientStoreError note: "not an error but
// a lost race signal").
func (s *Store) claimOptimistic(ctx context.Context, kind string) (*Job, error) {
	const maxAttempts = 8

	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate := new(Job)
		err := s.db.NewSelect().
			Model(candidate).
			Where("type = ?", kind).
			Where("status = ?", StatusQueued).
			Order("created_at ASC", "id ASC").
			Limit(1).
			Scan(ctx)
		if err != nil {
			if isNoRows(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("jobstore: select candidate: %w", err)
		}

		now := time.Now().UTC()
		res, err := s.db.NewUpdate().
			Model((*Job)(nil)).
			Set("status = ?", StatusRunning).
			Set("started_at = ?", now).
			Set("finished_at = NULL").
			Set("error = NULL").
			Set("updated_at = ?", now).
			Where("id = ?", candidate.ID).
			Where("status = ?", StatusQueued).
			Exec(ctx)
		if err != nil {
			return nil, fmt.Errorf("jobstore: claim update: %w", err)
		}
		rows, _ := res.RowsAffected()
		if rows == 0 {
			// Lost the race for this row; try the next-oldest candidate.
			continue
		}

		candidate.Status = StatusRunning
		candidate.StartedAt = &now
		candidate.FinishedAt = nil
		candidate.Error = nil
		candidate.UpdatedAt = now
		return candidate, nil
	}
	return nil, nil
}

// MarkSucceeded records a successful terminal outcome.
func (s *Store) MarkSucceeded(ctx context.Context, jobID string, result json.RawMessage) error {
	now := time.Now().UTC()
	_, err := s.db.NewUpdate().
		Model((*Job)(nil)).
		Set("status = ?", StatusSucceeded).
		Set("result_json = ?", result).
		Set("error = NULL").
		Set("finished_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", coerceJobID(jobID)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobstore: mark succeeded: %w", err)
	}
	return nil
}

// MarkFailure computes next := attemptsPrior+1; if next < maxAttempts the
// job is requeued with attempts=next, otherwise it transitions to failed.
// Matches spec §4.A exactly, mirroring the exponential-backoff bookkeeping
// style of the teacher's MarkFailed without the backoff delay itself —
// the retry timing for rag_reindex is governed by the worker's poll loop,
// not a scheduled_at column.
func (s *Store) MarkFailure(ctx context.Context, jobID string, attemptsPrior, maxAttempts int, errMsg string) error {
	next, terminal := nextFailureState(attemptsPrior, maxAttempts)
	now := time.Now().UTC()
	truncated := truncateError(errMsg)

	if !terminal {
		_, err := s.db.NewUpdate().
			Model((*Job)(nil)).
			Set("status = ?", StatusQueued).
			Set("attempts = ?", next).
			Set("error = ?", truncated).
			Set("started_at = NULL").
			Set("updated_at = ?", now).
			Where("id = ?", coerceJobID(jobID)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("jobstore: mark failure (retry): %w", err)
		}
		return nil
	}

	_, err := s.db.NewUpdate().
		Model((*Job)(nil)).
		Set("status = ?", StatusFailed).
		Set("attempts = ?", next).
		Set("error = ?", truncated).
		Set("finished_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", coerceJobID(jobID)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobstore: mark failure (terminal): %w", err)
	}
	return nil
}

// ListJobs returns jobs matching the optional kind/status filters, ordered
// by (created_at, id) ascending.
func (s *Store) ListJobs(ctx context.Context, kind, status string) ([]*Job, error) {
	q := s.db.NewSelect().Model((*Job)(nil)).Order("created_at ASC", "id ASC")
	if kind != "" {
		q = q.Where("type = ?", kind)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var jobs []*Job
	if err := q.Scan(ctx, &jobs); err != nil {
		return nil, fmt.Errorf("jobstore: list jobs: %w", err)
	}
	return jobs, nil
}

// GetJob returns the job with the given id, or nil, nil if absent.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	job := new(Job)
	err := s.db.NewSelect().
		Model(job).
		Where("id = ?", coerceJobID(id)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("jobstore: get job: %w", err)
	}
	return job, nil
}

// UpsertHeartbeat inserts or updates the liveness row for workerID.
func (s *Store) UpsertHeartbeat(ctx context.Context, workerID string, ts time.Time) error {
	hb := &WorkerHeartbeat{
		WorkerID:      workerID,
		LastHeartbeat: ts,
		UpdatedAt:     time.Now().UTC(),
	}
	_, err := s.db.NewInsert().
		Model(hb).
		On("CONFLICT (worker_id) DO UPDATE").
		Set("last_heartbeat = EXCLUDED.last_heartbeat").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobstore: upsert heartbeat: %w", err)
	}
	return nil
}

// nextFailureState computes the bookkeeping decision of spec §4.A's
// mark_failure: next attempts count, and whether that count exhausts
// maxAttempts (terminal failure) or falls back to queued (retry).
func nextFailureState(attemptsPrior, maxAttempts int) (next int, terminal bool) {
	next = attemptsPrior + 1
	return next, next >= maxAttempts
}

// truncateError caps stored error text at 500 characters, matching the
// teacher's job-queue convention for bounding error column size.
func truncateError(msg string) string {
	if len(msg) > 500 {
		return msg[:500]
	}
	return msg
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
