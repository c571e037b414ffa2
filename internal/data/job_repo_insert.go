package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/target/engagement-ledger/internal/data/pgxutil"
	"github.com/target/engagement-ledger/internal/domain/model"
)

const defaultMaxRetries = 3

// jobInsert is a validated CreateJobRequest ready to be written.
type jobInsert struct {
	jobType     model.JobType
	priority    int
	payload     []byte
	metadata    []byte
	scheduledAt *time.Time
	maxRetries  int
}

func newJobInsert(req *model.CreateJobRequest) (jobInsert, error) {
	if req == nil {
		return jobInsert{}, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return jobInsert{}, err
	}

	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return jobInsert{}, fmt.Errorf("marshal payload: %w", err)
	}
	meta := []byte(`{}`)
	if len(req.Metadata) > 0 {
		if meta, err = json.Marshal(req.Metadata); err != nil {
			return jobInsert{}, fmt.Errorf("marshal metadata: %w", err)
		}
	}
	retries := req.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}

	return jobInsert{
		jobType:     req.Type,
		priority:    req.Priority,
		payload:     payload,
		metadata:    meta,
		scheduledAt: req.ScheduledAt,
		maxRetries:  retries,
	}, nil
}

const insertJobSQL = `
INSERT INTO jobs (type, status, priority, payload, metadata, scheduled_at, max_retries, created_at, updated_at)
VALUES ($1, 'pending', $2, $3, $4, $5, $6, $7, $7)
RETURNING ` + jobColumns

// Create enqueues a standalone job in its own transaction.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	ins, err := newJobInsert(req)
	if err != nil {
		return nil, err
	}

	var job *model.Job
	err = pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
		job, err = r.insert(ctx, tx, ins)
		return err
	}})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// InsertInTx enqueues a job inside a caller-owned transaction; runners only see it
// if the surrounding ledger writes commit.
func (r *JobRepo) InsertInTx(ctx context.Context, tx pgx.Tx, req *model.CreateJobRequest) (*model.Job, error) {
	if tx == nil {
		return nil, ErrTxRequired
	}
	ins, err := newJobInsert(req)
	if err != nil {
		return nil, err
	}
	return r.insert(ctx, tx, ins)
}

// insert writes the row and queues a NOTIFY on the type's channel. NOTIFY is
// delivered on commit, so listeners never wake for a rolled back job.
func (r *JobRepo) insert(ctx context.Context, tx pgx.Tx, ins jobInsert) (*model.Job, error) {
	now := r.timeProvider.Now().UTC()
	runAt := now
	if ins.scheduledAt != nil {
		runAt = ins.scheduledAt.UTC()
	}

	job, err := scanJobFromRow(tx.QueryRow(ctx, insertJobSQL,
		ins.jobType, ins.priority, ins.payload, ins.metadata, runAt, ins.maxRetries, now))
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, jobChannel(ins.jobType), job.ID); err != nil {
		return nil, fmt.Errorf("notify %s: %w", jobChannel(ins.jobType), err)
	}
	return job, nil
}

func jobChannel(jobType model.JobType) string {
	return "job_added_" + string(jobType)
}
