package data

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/target/engagement-ledger/internal/core"
	"github.com/target/engagement-ledger/internal/data/pgxutil"
)

// Reaper passes hold an advisory lock under major key 1000 so two replicas never sweep at once.
const (
	advisoryLockReaperMajor       = 1000
	advisoryLockReaperFailPending = 1
	advisoryLockReaperDelete      = 2
)

// withReaperLock runs fn in a transaction holding the given reaper advisory lock.
// When another reaper holds the lock the call is a no-op returning zero.
func (r *JobRepo) withReaperLock(ctx context.Context, minor int32, fn func(tx pgx.Tx) (int64, error)) (int64, error) {
	var n int64
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
		locked, err := tryAdvisoryLock(ctx, tx, advisoryLockReaperMajor, minor)
		if err != nil || !locked {
			return err
		}
		n, err = fn(tx)
		return err
	}})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// FailStalePendingJobs marks pending jobs older than maxAge as failed.
// Processes up to batchSize jobs per call to prevent long locks and I/O spikes.
func (r *JobRepo) FailStalePendingJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	return r.withReaperLock(ctx, advisoryLockReaperFailPending, func(tx pgx.Tx) (int64, error) {
		currentTime := r.timeProvider.Now().UTC()
		cutoffTime := currentTime.Add(-maxAge)

		tag, err := tx.Exec(ctx, `
			UPDATE jobs
			SET status = 'failed',
				last_error = 'Job timed out in pending status',
				completed_at = $1,
				updated_at = $1
			WHERE id IN (
				SELECT id FROM jobs
				WHERE status = 'pending'
				  AND created_at < $2
				ORDER BY created_at
				LIMIT $3
			)
		`, currentTime, cutoffTime, batchSize)
		if err != nil {
			return 0, fmt.Errorf("fail stale pending jobs: %w", err)
		}
		return tag.RowsAffected(), nil
	})
}

// DeleteOldJobs deletes jobs with the given status older than maxAge.
// Processes up to batchSize jobs per call to prevent long locks and I/O spikes.
func (r *JobRepo) DeleteOldJobs(ctx context.Context, params core.DeleteOldJobsParams) (int64, error) {
	if !params.Status.Valid() {
		return 0, fmt.Errorf("invalid job status: %s", params.Status)
	}

	return r.withReaperLock(ctx, advisoryLockReaperDelete, func(tx pgx.Tx) (int64, error) {
		cutoffTime := r.timeProvider.Now().Add(-params.MaxAge).UTC()

		tag, err := tx.Exec(ctx, `
			DELETE FROM jobs
			WHERE id IN (
				SELECT id FROM jobs
				WHERE status = $1
				  AND (completed_at < $2 OR (completed_at IS NULL AND updated_at < $2))
				ORDER BY COALESCE(completed_at, updated_at)
				LIMIT $3
			)
		`, params.Status, cutoffTime, params.BatchSize)
		if err != nil {
			return 0, fmt.Errorf("delete old jobs: %w", err)
		}
		return tag.RowsAffected(), nil
	})
}

// OrphanedPendingPayments lists pending payments whose submission job is gone,
// typically because the job was failed while still pending.
func (r *JobRepo) OrphanedPendingPayments(ctx context.Context, maxAge time.Duration, limit int) ([]string, error) {
	cutoff := r.timeProvider.Now().Add(-maxAge).UTC()
	rows, err := r.DB.QueryContext(ctx, `
		SELECT p.id
		FROM payments p
		WHERE p.status = 'pending'
		  AND p.created_at < $1
		  AND NOT EXISTS (
			SELECT 1 FROM jobs j
			WHERE j.type = 'payment_submit'
			  AND j.status IN ('pending', 'running')
			  AND j.payload->>'payment_id' = p.id::text
		  )
		ORDER BY p.created_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list orphaned payments: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan orphaned payment: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
