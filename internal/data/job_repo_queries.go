package data

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/target/engagement-ledger/internal/data/pgxutil"
	"github.com/target/engagement-ledger/internal/domain/model"
)

const (
	defaultJobListLimit = 50
	maxJobListLimit     = 1000
)

type jobFilterQueryBuilder struct {
	query  string
	args   []any
	argIdx int
}

func (b *jobFilterQueryBuilder) addFilter(condition string, value any) {
	if value == nil {
		return
	}
	b.query += fmt.Sprintf(" AND %s = $%d", condition, b.argIdx)
	b.args = append(b.args, value)
	b.argIdx++
}

func buildJobListQuery(opts model.JobListOptions) (string, []any) {
	builder := &jobFilterQueryBuilder{
		query:  `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`,
		argIdx: 1,
	}
	if opts.Type != nil {
		builder.addFilter("type", string(*opts.Type))
	}
	if opts.Status != nil {
		builder.addFilter("status", string(*opts.Status))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultJobListLimit
	}
	limit = min(limit, maxJobListLimit)
	offset := max(opts.Offset, 0)

	builder.query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", builder.argIdx, builder.argIdx+1)
	builder.args = append(builder.args, limit, offset)
	return builder.query, builder.args
}

// List returns outbox jobs, newest first, for operator inspection.
func (r *JobRepo) List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	query, args := buildJobListQuery(opts)

	var result []*model.Job
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query jobs: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			job, scanErr := scanJobFromRow(rows)
			if scanErr != nil {
				return fmt.Errorf("scan job: %w", scanErr)
			}
			result = append(result, job)
		}
		return rows.Err()
	}); err != nil {
		return nil, err
	}
	return result, nil
}
