// Package jobrunner drains the outbox: it reserves jobs of one type, runs the
// registered handler under a lease and records the outcome.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/engagement-ledger/internal/domain/model"
	"github.com/target/engagement-ledger/internal/observability/metrics"
	"github.com/target/engagement-ledger/internal/observability/statsd"
	"github.com/target/engagement-ledger/internal/service"
)

// HandlerFunc processes a job and returns error to indicate failure (which will be retried per policy).
type HandlerFunc func(ctx context.Context, job *model.Job) error

const (
	defaultLease       = 30 * time.Second
	defaultConcurrency = 1
)

// RunnerOptions configures the job runner adapter.
type RunnerOptions struct {
	Jobs    *service.JobService // Required
	JobType model.JobType       // Required
	Handler HandlerFunc         // Required
	Logger  *slog.Logger

	// Lease is the per-job lease; defaults to 30s. The lease is renewed at half its
	// length while the handler runs.
	Lease time.Duration
	// Timeout bounds one handler invocation; defaults to Lease.
	Timeout time.Duration
	// Concurrency is the number of worker goroutines; defaults to 1.
	Concurrency int

	Metrics statsd.Sink
	Ledger  *metrics.Ledger
}

// Runner pulls jobs of one type and executes them with its handler.
type Runner struct {
	jobs    *service.JobService
	handler HandlerFunc
	logger  *slog.Logger
	lease   time.Duration
	timeout time.Duration
	jobType model.JobType
	workers int
	metrics statsd.Sink
	ledger  *metrics.Ledger
}

// NewRunner constructs a job runner for a single job type.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("job service is required")
	}
	if !opts.JobType.Valid() {
		return nil, fmt.Errorf("invalid job type %q", opts.JobType)
	}
	if opts.Handler == nil {
		return nil, errors.New("handler is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lease := opts.Lease
	if lease <= 0 {
		lease = defaultLease
	}
	timeout := opts.Timeout
	if timeout <= 0 || timeout > lease {
		timeout = lease
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = defaultConcurrency
	}

	return &Runner{
		jobs:    opts.Jobs,
		handler: opts.Handler,
		logger:  logger.With("component", componentLabel(opts.JobType)),
		lease:   lease,
		timeout: timeout,
		jobType: opts.JobType,
		workers: workers,
		metrics: opts.Metrics,
		ledger:  opts.Ledger,
	}, nil
}

// Run starts worker goroutines and processes jobs until the context is cancelled.
// The first worker error stops the others.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting job runner", "type", r.jobType, "workers", r.workers, "lease", r.lease)

	unsub, ch := r.jobs.Subscribe(r.jobType)
	defer unsub()

	g, gctx := errgroup.WithContext(ctx)
	for range r.workers {
		g.Go(func() error { return r.workerLoop(gctx, ch) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (r *Runner) workerLoop(ctx context.Context, notify <-chan struct{}) error {
	for ctx.Err() == nil {
		job, err := r.jobs.ReserveNext(ctx, r.jobType, r.lease)
		switch {
		case err == nil:
			if job != nil {
				r.processJob(ctx, job)
			}
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !waitForNotify(ctx, notify) {
				return nil
			}
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("reserve next: %w", err)
		}
	}
	return nil
}

func waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case <-notify:
		return true
	}
}

// RunOnce reserves and processes at most one job. It reports whether a job ran.
func (r *Runner) RunOnce(ctx context.Context) (bool, error) {
	job, err := r.jobs.ReserveNext(ctx, r.jobType, r.lease)
	if errors.Is(err, model.ErrNoJobsAvailable) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	r.processJob(ctx, job)
	return true, nil
}

func (r *Runner) processJob(ctx context.Context, job *model.Job) {
	start := time.Now()
	emit := func(transition, result string, err error) {
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			JobType:    string(job.Type),
			Transition: transition,
			Result:     result,
			Attempt:    job.RetryCount + 1,
			Duration:   time.Since(start),
			Err:        err,
		})
		r.ledger.Job(string(job.Type), result)
	}

	if err := r.runHandler(ctx, job); err != nil {
		if _, ferr := r.jobs.Fail(ctx, job, err.Error()); ferr != nil {
			r.logger.ErrorContext(ctx, "fail job error", "job_id", job.ID, "error", ferr, "original_error", err)
		}
		r.logger.WarnContext(ctx, "job attempt failed",
			"job_id", job.ID,
			"attempt", job.RetryCount+1,
			"max_retries", job.MaxRetries,
			"error", err,
		)
		emit(metrics.TransitionFailed, metrics.ResultError, err)
		return
	}
	completed, err := r.jobs.Complete(ctx, job.ID)
	switch {
	case err != nil:
		r.logger.ErrorContext(ctx, "complete job error", "job_id", job.ID, "error", err)
		emit(metrics.TransitionCompleted, metrics.ResultError, err)
	case completed:
		emit(metrics.TransitionCompleted, metrics.ResultSuccess, nil)
	default:
		emit(metrics.TransitionCompleted, metrics.ResultNoop, nil)
	}
}

// runHandler runs the handler with a timeout, renewing the lease until it returns.
// A lost lease cancels the handler: another worker owns the job now.
func (r *Runner) runHandler(ctx context.Context, job *model.Job) error {
	hctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go r.keepAlive(hctx, cancel, job.ID, done)

	return r.handler(hctx, job)
}

func (r *Runner) keepAlive(ctx context.Context, cancel context.CancelFunc, jobID string, done <-chan struct{}) {
	ticker := time.NewTicker(r.lease / 2)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := r.jobs.Heartbeat(ctx, jobID, r.lease)
			if err != nil {
				r.logger.WarnContext(ctx, "heartbeat failed", "job_id", jobID, "error", err)
				continue
			}
			if !ok {
				r.logger.WarnContext(ctx, "job lease lost", "job_id", jobID)
				cancel()
				return
			}
		}
	}
}

func componentLabel(jt model.JobType) string {
	switch jt {
	case model.JobTypePaymentSubmit:
		return "payment_runner"
	case model.JobTypeNotification:
		return "notification_runner"
	default:
		return "job_runner"
	}
}
