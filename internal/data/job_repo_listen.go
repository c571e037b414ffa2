package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/target/engagement-ledger/internal/data/pgxutil"
	"github.com/target/engagement-ledger/internal/domain/model"
)

// WaitForNotification blocks on LISTEN job_added_<type> until a job of that type is
// committed or ctx ends. The connection is pinned for the duration of the wait.
func (r *JobRepo) WaitForNotification(ctx context.Context, jobType model.JobType) error {
	channel := pgx.Identifier{jobChannel(jobType)}.Sanitize()
	return pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
			return fmt.Errorf("listen %s: %w", channel, err)
		}
		// The conn goes back to the pool, so it must not keep receiving.
		defer func() { _, _ = conn.Exec(context.WithoutCancel(ctx), "UNLISTEN "+channel) }()

		_, err := conn.WaitForNotification(ctx)
		return err
	})
}

// GetByID loads one job.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	job, err := scanJobFromRow(r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// Stats counts jobs of jobType per status.
func (r *JobRepo) Stats(ctx context.Context, jobType model.JobType) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
SELECT count(*) FILTER (WHERE status = 'pending'),
       count(*) FILTER (WHERE status = 'running'),
       count(*) FILTER (WHERE status = 'completed'),
       count(*) FILTER (WHERE status = 'failed')
FROM jobs
WHERE type = $1`, jobType).Scan(&s.Pending, &s.Running, &s.Completed, &s.Failed)
	if err != nil {
		return nil, fmt.Errorf("job stats %s: %w", jobType, err)
	}
	return &s, nil
}
