package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/target/engagement-ledger/internal/core"
	domainjob "github.com/target/engagement-ledger/internal/domain/job"
	"github.com/target/engagement-ledger/internal/domain/model"
	"github.com/target/engagement-ledger/internal/service/opsalert"
)

// JobServiceOptions wires a JobService. Repo and a positive DefaultLease (or a
// LeasePolicy) are required.
type JobServiceOptions struct {
	Repo         core.JobRepository
	DefaultLease time.Duration
	Logger       *slog.Logger
	// Alerts is told about jobs that exhaust their retries.
	Alerts      *opsalert.Service
	LeasePolicy *domainjob.LeasePolicy
	// Notifier replaces the LISTEN-backed default; NotifierOptions tune the default.
	Notifier        domainjob.Notifier
	NotifierOptions domainjob.NotifierOptions
}

// JobService is the runners' view of the outbox queue.
type JobService struct {
	repo     core.JobRepository
	lease    *domainjob.LeasePolicy
	notifier domainjob.Notifier
	alerts   *opsalert.Service
	logger   *slog.Logger
}

// jobLister is implemented by stores that can page through the outbox.
type jobLister interface {
	List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error)
}

func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}

	lease := opts.LeasePolicy
	if lease == nil {
		if opts.DefaultLease <= 0 {
			return nil, errors.New("DefaultLease must be positive")
		}
		var err error
		if lease, err = domainjob.NewLeasePolicy(opts.DefaultLease); err != nil {
			return nil, fmt.Errorf("create lease policy: %w", err)
		}
	}

	notifier := opts.Notifier
	if notifier == nil {
		nopts := opts.NotifierOptions
		if nopts.Waiter == nil {
			nopts.Waiter = opts.Repo
		}
		var err error
		if notifier, err = domainjob.NewNotifier(nopts); err != nil {
			return nil, fmt.Errorf("create job notifier: %w", err)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &JobService{
		repo:     opts.Repo,
		lease:    lease,
		notifier: notifier,
		alerts:   opts.Alerts,
		logger:   logger.With("component", "job_service"),
	}, nil
}

// MustNewJobService panics when NewJobService fails. Startup wiring only.
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // wiring errors are programmer errors
		panic(fmt.Sprintf("job service: %v", err))
	}
	return svc
}

// Create enqueues a job outside any ledger transaction and wakes local runners.
func (s *JobService) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	job, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.notifier.Wake(job.Type)
	s.logger.DebugContext(ctx, "job created", "id", job.ID, "type", job.Type)
	return job, nil
}

// ReserveNext leases the next due job of jobType. A nil job means the queue is empty.
func (s *JobService) ReserveNext(ctx context.Context, jobType model.JobType, lease time.Duration) (*model.Job, error) {
	l := s.lease.Resolve(lease)
	if l.Clamped {
		s.logger.DebugContext(ctx, "lease duration clamped",
			"job_type", jobType, "requested", l.Requested, "lease_seconds", l.Seconds)
	}

	job, err := s.repo.ReserveNext(ctx, jobType, l.Seconds)
	if err != nil {
		return nil, fmt.Errorf("reserve next job: %w", err)
	}
	if job != nil {
		s.logger.DebugContext(ctx, "job reserved",
			"id", job.ID, "type", jobType, "attempt", job.RetryCount+1, "lease_seconds", l.Seconds)
	}
	return job, nil
}

// Subscribe returns a channel signalled when jobType may have new work, and the
// func that cancels the subscription.
func (s *JobService) Subscribe(jobType model.JobType) (func(), <-chan struct{}) {
	return s.notifier.Subscribe(jobType)
}

// Heartbeat extends a running job's lease. False means the job was requeued or
// finished elsewhere and the caller must stop working on it.
func (s *JobService) Heartbeat(ctx context.Context, id string, extend time.Duration) (bool, error) {
	ok, err := s.repo.Heartbeat(ctx, id, s.lease.Resolve(extend).Seconds)
	if err != nil {
		return false, fmt.Errorf("heartbeat job %s: %w", id, err)
	}
	return ok, nil
}

func (s *JobService) Complete(ctx context.Context, id string) (bool, error) {
	ok, err := s.repo.Complete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("complete job %s: %w", id, err)
	}
	if ok {
		s.logger.DebugContext(ctx, "job completed", "id", id)
	}
	return ok, nil
}

// Fail records a failed attempt. The store reschedules the job until its retry
// budget is spent; the attempt that spends it raises an ops alert.
func (s *JobService) Fail(ctx context.Context, job *model.Job, errMsg string) (bool, error) {
	switch {
	case job == nil:
		return false, errors.New("job is required")
	case errMsg == "":
		return false, errors.New("error message required")
	}

	ok, err := s.repo.Fail(ctx, job.ID, errMsg)
	if err != nil {
		return false, fmt.Errorf("fail job %s: %w", job.ID, err)
	}
	if !ok {
		return false, nil
	}

	final := job.FinalAttempt()
	s.logger.DebugContext(ctx, "job attempt failed",
		"id", job.ID, "type", job.Type, "final", final, "error", errMsg)
	if final && s.alerts != nil {
		s.alerts.JobFailed(ctx, job, errMsg)
	}
	return true, nil
}

func (s *JobService) Stats(ctx context.Context, jobType model.JobType) (*model.JobStats, error) {
	stats, err := s.repo.Stats(ctx, jobType)
	if err != nil {
		return nil, fmt.Errorf("job stats %s: %w", jobType, err)
	}
	return stats, nil
}

func (s *JobService) GetByID(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job by id %s: %w", id, err)
	}
	return job, nil
}

// List pages through the outbox for operators. Stores that cannot list yield an
// empty page.
func (s *JobService) List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	lister, ok := s.repo.(jobLister)
	if !ok {
		return []*model.Job{}, nil
	}
	jobs, err := lister.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	return jobs, nil
}

// StopAllListeners closes every subscription. Call it once on shutdown.
func (s *JobService) StopAllListeners() {
	s.logger.Info("stopping job listeners")
	s.notifier.StopAll()
}
