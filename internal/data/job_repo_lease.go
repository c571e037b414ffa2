package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/target/engagement-ledger/internal/data/pgxutil"
	"github.com/target/engagement-ledger/internal/domain/model"
)

const defaultRetryDelaySeconds = 30

// Advisory lock major key for lease recovery; the minor key is per job type so
// runners of different types never contend.
const advisoryLockRequeueMajor = 1001

func requeueLockKey(jobType model.JobType) int32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(jobType))
	return int32(h.Sum32() >> 1)
}

func tryAdvisoryLock(ctx context.Context, tx pgx.Tx, major, minor int32) (bool, error) {
	var locked bool
	if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)`, major, minor).Scan(&locked); err != nil {
		return false, fmt.Errorf("acquire advisory lock %d/%d: %w", major, minor, err)
	}
	return locked, nil
}

func (r *JobRepo) retryDelay() time.Duration {
	if r.cfg.RetryDelaySeconds > 0 {
		return time.Duration(r.cfg.RetryDelaySeconds) * time.Second
	}
	return defaultRetryDelaySeconds * time.Second
}

const requeueExpiredSQL = `
UPDATE jobs
SET status = 'pending', lease_expires_at = NULL, updated_at = $2
WHERE type = $1
  AND status = 'running'
  AND lease_expires_at < $2`

// Highest priority first, then oldest schedule. SKIP LOCKED lets concurrent runners
// take different rows instead of queueing behind one.
const reserveNextSQL = `
WITH next AS (
  SELECT id FROM jobs
  WHERE type = $1 AND status = 'pending' AND scheduled_at <= $2
  ORDER BY priority DESC, scheduled_at, created_at
  LIMIT 1
  FOR UPDATE SKIP LOCKED
)
UPDATE jobs j
SET status = 'running',
    started_at = COALESCE(j.started_at, $2),
    lease_expires_at = $3,
    updated_at = $2
FROM next
WHERE j.id = next.id
RETURNING ` + jobColumnsQualified

// ReserveNext leases the next due job of jobType. Jobs whose previous runner let the
// lease lapse are returned to the pool first, in the same transaction.
func (r *JobRepo) ReserveNext(ctx context.Context, jobType model.JobType, leaseSeconds int) (*model.Job, error) {
	if !jobType.Valid() {
		return nil, fmt.Errorf("invalid job type: %s", jobType)
	}

	var (
		job      *model.Job
		requeued int64
	)
	opts := &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Opts: opts, Fn: func(tx pgx.Tx) error {
		now := r.timeProvider.Now().UTC()

		locked, err := tryAdvisoryLock(ctx, tx, advisoryLockRequeueMajor, requeueLockKey(jobType))
		if err != nil {
			return err
		}
		if locked {
			tag, err := tx.Exec(ctx, requeueExpiredSQL, jobType, now)
			if err != nil {
				return fmt.Errorf("requeue expired: %w", err)
			}
			requeued = tag.RowsAffected()
		}

		leaseEnd := now.Add(time.Duration(leaseSeconds) * time.Second)
		job, err = scanJobFromRow(tx.QueryRow(ctx, reserveNextSQL, jobType, now, leaseEnd))
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrNoJobsAvailable
		}
		if err != nil {
			return fmt.Errorf("reserve job: %w", err)
		}
		return nil
	}})
	if requeued > 0 {
		r.logger.WarnContext(ctx, "requeued jobs with expired leases", "job_type", jobType, "count", requeued)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Heartbeat extends the lease of a running job. False means the job is no longer
// running, usually because the reaper or another runner took it back.
func (r *JobRepo) Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error) {
	if leaseSeconds <= 0 {
		return false, errors.New("leaseSeconds must be positive")
	}
	now := r.timeProvider.Now().UTC()
	return r.execRunning(ctx, "heartbeat job", `
UPDATE jobs
SET lease_expires_at = $2, updated_at = $3
WHERE id = $1 AND status = 'running'`,
		jobID, now.Add(time.Duration(leaseSeconds)*time.Second), now)
}

// Complete marks a running job done.
func (r *JobRepo) Complete(ctx context.Context, id string) (bool, error) {
	return r.execRunning(ctx, "complete job", `
UPDATE jobs
SET status = 'completed', completed_at = $2, updated_at = $2,
    lease_expires_at = NULL, last_error = NULL
WHERE id = $1 AND status = 'running'`,
		id, r.timeProvider.Now().UTC())
}

func (r *JobRepo) execRunning(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return n > 0, nil
}

const failJobSQL = `
WITH attempt AS (
  SELECT id, retry_count + 1 >= max_retries AS exhausted
  FROM jobs WHERE id = $1 AND status = 'running'
)
UPDATE jobs j
SET last_error = $2,
    retry_count = retry_count + 1,
    status = CASE WHEN a.exhausted THEN 'failed' ELSE 'pending' END,
    completed_at = CASE WHEN a.exhausted THEN $3::timestamptz END,
    scheduled_at = CASE WHEN a.exhausted THEN j.scheduled_at ELSE $4::timestamptz END,
    lease_expires_at = NULL,
    updated_at = $3
FROM attempt a
WHERE j.id = a.id
RETURNING j.status`

// Fail records a failed run. The job is rescheduled after the retry delay until its
// retry budget is spent, then it is failed for good. False means it was not running.
func (r *JobRepo) Fail(ctx context.Context, id, errMsg string) (bool, error) {
	now := r.timeProvider.Now().UTC()

	var status model.JobStatus
	err := r.DB.QueryRowContext(ctx, failJobSQL, id, errMsg, now, now.Add(r.retryDelay())).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fail job: %w", err)
	}
	if status == model.JobStatusFailed {
		r.logger.WarnContext(ctx, "job exhausted retries", "job_id", id, "error", errMsg)
	}
	return true, nil
}
