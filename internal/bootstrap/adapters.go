package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/engagement-ledger/config"
	"github.com/target/engagement-ledger/internal/adapters/jobrunner"
	"github.com/target/engagement-ledger/internal/adapters/reaper"
	"github.com/target/engagement-ledger/internal/adapters/webhook"
	"github.com/target/engagement-ledger/internal/core"
	"github.com/target/engagement-ledger/internal/domain/model"
	"github.com/target/engagement-ledger/internal/observability/metrics"
	"github.com/target/engagement-ledger/internal/observability/statsd"
	"github.com/target/engagement-ledger/internal/service"
)

// runJobRunner centralizes job runner setup so individual runners only pass job-specific options.
func runJobRunner(ctx context.Context, opts jobrunner.RunnerOptions) error {
	label := string(opts.JobType)

	runner, err := jobrunner.NewRunner(opts)
	if err != nil {
		return fmt.Errorf("create %s runner: %w", label, err)
	}

	if runErr := runner.Run(ctx); runErr != nil {
		return fmt.Errorf("run %s runner: %w", label, runErr)
	}
	return nil
}

// PaymentRunnerConfig contains configuration for the payment submission runner.
type PaymentRunnerConfig struct {
	Jobs     *service.JobService
	Payments *service.SettlementService
	Runner   config.RunnerConfig
	Logger   *slog.Logger
	Metrics  statsd.Sink
	Ledger   *metrics.Ledger
}

// RunPaymentRunner submits pending payments to the gateway until ctx is canceled.
func RunPaymentRunner(ctx context.Context, cfg PaymentRunnerConfig) error {
	if cfg.Payments == nil {
		return errors.New("settlement service is required")
	}
	return runJobRunner(ctx, jobrunner.RunnerOptions{
		Jobs:        cfg.Jobs,
		JobType:     model.JobTypePaymentSubmit,
		Handler:     jobrunner.PaymentHandler(cfg.Payments),
		Logger:      cfg.Logger,
		Lease:       cfg.Runner.JobLease,
		Timeout:     cfg.Runner.JobTimeout,
		Concurrency: cfg.Runner.Concurrency,
		Metrics:     cfg.Metrics,
		Ledger:      cfg.Ledger,
	})
}

// NotificationRunnerConfig contains configuration for the notification runner.
type NotificationRunnerConfig struct {
	Jobs    *service.JobService
	Notify  config.NotifyConfig
	Runner  config.RunnerConfig
	Logger  *slog.Logger
	Metrics statsd.Sink
	Ledger  *metrics.Ledger
}

// RunNotificationRunner delivers queued notifications until ctx is canceled.
// Without a webhook URL notifications are logged and completed.
func RunNotificationRunner(ctx context.Context, cfg NotificationRunnerConfig) error {
	var sink core.NotificationSink
	if cfg.Notify.WebhookURL != "" {
		s, err := webhook.NewSink(webhook.SinkOptions{Config: cfg.Notify})
		if err != nil {
			return fmt.Errorf("create notification webhook: %w", err)
		}
		sink = s
	} else if cfg.Logger != nil {
		cfg.Logger.Warn("NOTIFY_WEBHOOK_URL not set; notifications are logged only")
	}

	return runJobRunner(ctx, jobrunner.RunnerOptions{
		Jobs:        cfg.Jobs,
		JobType:     model.JobTypeNotification,
		Handler:     jobrunner.NotificationHandler(sink, cfg.Logger),
		Logger:      cfg.Logger,
		Lease:       cfg.Runner.JobLease,
		Timeout:     cfg.Runner.JobTimeout,
		Concurrency: cfg.Runner.Concurrency,
		Metrics:     cfg.Metrics,
		Ledger:      cfg.Ledger,
	})
}

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	DB       *sql.DB
	Repo     core.ReaperRepository
	Payments service.PaymentFailer
	Logger   *slog.Logger
	Config   config.ReaperConfig
	Metrics  statsd.Sink
}

// NewReaperRunner wires a reaper runner without starting it.
func NewReaperRunner(cfg ReaperConfig) (*reaper.Runner, error) {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:       cfg.DB,
		Repo:     cfg.Repo,
		Payments: cfg.Payments,
		Config:   cfg.Config,
		Logger:   cfg.Logger,
		Metrics:  cfg.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create reaper runner: %w", err)
	}
	return runner, nil
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := NewReaperRunner(cfg)
	if err != nil {
		return err
	}
	return runner.Run(ctx)
}
