package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/engagement-ledger/config"
	"github.com/target/engagement-ledger/internal/core"
	"github.com/target/engagement-ledger/internal/domain/model"
	obserrors "github.com/target/engagement-ledger/internal/observability/errors"
	"github.com/target/engagement-ledger/internal/observability/metrics"
	"github.com/target/engagement-ledger/internal/observability/statsd"
)

const orphanReason = "payment submission was abandoned before reaching the gateway"

// PaymentFailer fails a payment that never reached the gateway.
type PaymentFailer interface {
	MarkSubmissionFailed(ctx context.Context, paymentID, reason string) error
}

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo     core.ReaperRepository // Required: reaper repository
	Config   config.ReaperConfig   // Required: reaper configuration
	Payments PaymentFailer         // Optional: fails orphaned pending payments
	Logger   *slog.Logger          // Optional: structured logger
	Metrics  statsd.Sink           // Optional: metrics sink (StatsD-compatible)
}

// ReaperService keeps the outbox bounded. Each pass:
// - fails pending jobs no runner picked up in time,
// - fails pending payments whose submission job is gone,
// - deletes old completed and failed jobs.
type ReaperService struct {
	repo     core.ReaperRepository
	config   config.ReaperConfig
	payments PaymentFailer
	logger   *slog.Logger
	metrics  statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}
	if opts.Config.Interval <= 0 {
		return nil, errors.New("reaper interval must be positive")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"pending_max_age", opts.Config.PendingMaxAge,
			"completed_max_age", opts.Config.CompletedMaxAge,
			"failed_max_age", opts.Config.FailedMaxAge,
		)
	}

	return &ReaperService{
		repo:     opts.Repo,
		config:   opts.Config,
		payments: opts.Payments,
		logger:   logger,
		metrics:  opts.Metrics,
	}, nil
}

// Run cleans up at the configured interval until ctx is cancelled.
// Returns nil on graceful shutdown.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Several instances started together would otherwise contend for the same locks.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.logCleanupError(ctx, err)
		}
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// waitWithJitter sleeps up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

type cleanupStep struct {
	operation string
	fn        func(context.Context) (int64, error)
}

type cleanupOutcome struct {
	operation string
	count     int64
	err       error
}

// RunOnce performs a single cleanup pass. Every step runs even when an earlier
// one fails; the errors are joined.
func (s *ReaperService) RunOnce(ctx context.Context) error {
	start := time.Now()
	steps := []cleanupStep{
		{operation: "fail_pending", fn: s.failStalePendingJobs},
		{operation: "fail_orphaned_payments", fn: s.failOrphanedPayments},
		{operation: "delete_completed", fn: s.deleteJobs(model.JobStatusCompleted, s.config.CompletedMaxAge)},
		{operation: "delete_failed", fn: s.deleteJobs(model.JobStatusFailed, s.config.FailedMaxAge)},
	}

	outcomes := make([]cleanupOutcome, 0, len(steps))
	var errs []error
	canceled := true
	for _, step := range steps {
		count, err := step.fn(ctx)
		outcomes = append(outcomes, cleanupOutcome{operation: step.operation, count: count, err: err})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.operation, err))
			canceled = canceled && isContextCancellation(err)
		}
		if count > 0 && s.logger != nil {
			s.logger.InfoContext(ctx, "reaper step cleaned up rows", "operation", step.operation, "count", count)
		}
	}
	s.emitCleanupMetrics(outcomes, time.Since(start))

	if len(errs) == 0 {
		return nil
	}
	if canceled {
		return context.Canceled
	}
	return fmt.Errorf("cleanup failed: %w", errors.Join(errs...))
}

// drain calls batch until it reports no more rows or ctx ends.
func drain(ctx context.Context, batch func() (int64, error)) (int64, error) {
	var total int64
	for {
		n, err := batch()
		total += n
		if err != nil || n == 0 {
			return total, err
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}
}

func (s *ReaperService) failStalePendingJobs(ctx context.Context) (int64, error) {
	return drain(ctx, func() (int64, error) {
		return s.repo.FailStalePendingJobs(ctx, s.config.PendingMaxAge, s.config.BatchSize)
	})
}

func (s *ReaperService) deleteJobs(status model.JobStatus, maxAge time.Duration) func(context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		return drain(ctx, func() (int64, error) {
			return s.repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
				Status:    status,
				MaxAge:    maxAge,
				BatchSize: s.config.BatchSize,
			})
		})
	}
}

// failOrphanedPayments fails pending payments whose submission job was reaped or
// lost, so their time entries become settleable again. One page per pass.
func (s *ReaperService) failOrphanedPayments(ctx context.Context) (int64, error) {
	if s.payments == nil {
		return 0, nil
	}
	ids, err := s.repo.OrphanedPendingPayments(ctx, s.config.PendingMaxAge, s.config.BatchSize)
	if err != nil {
		return 0, err
	}
	var (
		failed int64
		errs   []error
	)
	for _, id := range ids {
		if err := s.payments.MarkSubmissionFailed(ctx, id, orphanReason); err != nil {
			errs = append(errs, fmt.Errorf("payment %s: %w", id, err))
			continue
		}
		failed++
	}
	return failed, errors.Join(errs...)
}

func (s *ReaperService) emitCleanupMetrics(outcomes []cleanupOutcome, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	var (
		total    int64
		firstErr error
	)
	for _, o := range outcomes {
		total += o.count
		if firstErr == nil {
			firstErr = suppressContextCancellation(o.err)
		}
		s.emitCleanupOperationMetric(o)
	}

	tags := map[string]string{"result": resultFor(total, firstErr)}
	obserrors.Tag(tags, firstErr)
	s.metrics.Count("reaper.cleanup", 1, tags)
	s.metrics.Timing("reaper.cleanup_duration", elapsed, metrics.CloneTags(tags))
	if firstErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *ReaperService) emitCleanupOperationMetric(o cleanupOutcome) {
	err := suppressContextCancellation(o.err)
	tags := map[string]string{
		"operation": o.operation,
		"result":    resultFor(o.count, err),
	}
	obserrors.Tag(tags, err)
	s.metrics.Count("reaper.cleanup_operation", 1, tags)
	if err == nil && o.count > 0 {
		s.metrics.Count("reaper.rows_processed", o.count, metrics.CloneTags(tags))
	}
}

func resultFor(count int64, err error) string {
	switch {
	case err != nil:
		return metrics.ResultError
	case count == 0:
		return metrics.ResultNoop
	default:
		return metrics.ResultSuccess
	}
}

func (s *ReaperService) logCleanupError(ctx context.Context, err error) {
	if s.logger == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.DebugContext(ctx, "cleanup cancelled", "error", err)
		return
	}
	s.logger.ErrorContext(ctx, "cleanup failed", "error", err)
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
