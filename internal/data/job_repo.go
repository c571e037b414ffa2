package data

import (
	"database/sql"
	"log/slog"
)

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	RetryDelaySeconds int
	Logger            *slog.Logger
	TimeProvider      TimeProvider
}

// JobRepo provides database operations for the outbox job queue.
type JobRepo struct {
	DB           *sql.DB
	cfg          RepoConfig
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = SystemTime
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JobRepo{
		DB:           db,
		cfg:          cfg,
		timeProvider: tp,
		logger:       logger.With("component", "job_repo"),
	}
}

const jobColumns = `id, type, status, priority, payload, metadata, scheduled_at, started_at,
  completed_at, retry_count, max_retries, last_error, lease_expires_at, created_at, updated_at`

// jobColumnsQualified is jobColumns for statements where jobs is aliased j.
const jobColumnsQualified = `j.id, j.type, j.status, j.priority, j.payload, j.metadata, j.scheduled_at,
  j.started_at, j.completed_at, j.retry_count, j.max_retries, j.last_error, j.lease_expires_at,
  j.created_at, j.updated_at`
