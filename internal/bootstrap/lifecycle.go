package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/target/engagement-ledger/config"
)

// shutdownWaitTimeout bounds how long background runners get to finish their
// current job once the service context is canceled.
const shutdownWaitTimeout = 15 * time.Second

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// component is one long-running piece of the process selected by SERVICES.
type component struct {
	mode config.ServiceMode
	name string
	run  func(context.Context) error
}

func components(cfg *ServiceOrchestrationConfig, logger *slog.Logger) []component {
	app := cfg.Config
	svcs := cfg.Services
	obs := svcs.Observability

	return []component{
		{
			mode: config.ServiceModeHTTP,
			name: "http server",
			run: func(ctx context.Context) error {
				srv := newHTTPServer(&HTTPServerConfig{
					Config:      app,
					Services:    svcs,
					DB:          cfg.DB,
					RedisClient: cfg.RedisClient,
					Logger:      logger,
				})
				return serveHTTP(ctx, srv, app.HTTP.ShutdownTimeout, logger)
			},
		},
		{
			mode: config.ServiceModePaymentRunner,
			name: "payment runner",
			run: func(ctx context.Context) error {
				return RunPaymentRunner(ctx, PaymentRunnerConfig{
					Jobs:     svcs.Jobs,
					Payments: svcs.Settlement,
					Runner:   app.PaymentRunner,
					Logger:   logger,
					Metrics:  obs.MetricsSink,
					Ledger:   obs.Ledger,
				})
			},
		},
		{
			mode: config.ServiceModeNotificationRunner,
			name: "notification runner",
			run: func(ctx context.Context) error {
				return RunNotificationRunner(ctx, NotificationRunnerConfig{
					Jobs:    svcs.Jobs,
					Notify:  app.Notify,
					Runner:  app.NotificationRunner,
					Logger:  logger,
					Metrics: obs.MetricsSink,
					Ledger:  obs.Ledger,
				})
			},
		},
		{
			mode: config.ServiceModeReaper,
			name: "reaper",
			run: func(ctx context.Context) error {
				return RunReaper(ctx, ReaperConfig{
					DB:       cfg.DB,
					Repo:     svcs.JobRepo,
					Payments: svcs.Settlement,
					Config:   app.Reaper,
					Logger:   logger,
					Metrics:  obs.MetricsSink,
				})
			},
		},
	}
}

func enabledComponents(all []component, enabled map[config.ServiceMode]bool) []component {
	out := make([]component, 0, len(all))
	for _, c := range all {
		if enabled[c.mode] {
			out = append(out, c)
		}
	}
	return out
}

// RunServicesWithShutdown runs every enabled component until SIGINT or SIGTERM
// arrives or one of them fails. The first failure cancels the rest and is returned.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer cfg.Services.Observability.Close(logger)

	return runComponents(ctx, enabledComponents(components(cfg, logger), enabled), cfg.Services.stopListeners, logger)
}

// runComponents starts each component in an errgroup and blocks until they have all
// returned, or until shutdownWaitTimeout after cancellation.
func runComponents(ctx context.Context, comps []component, onShutdown func(), logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range comps {
		g.Go(func() error {
			logger.InfoContext(gctx, "service started", "service", c.name, "mode", c.mode)
			err := c.run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s failed: %w", c.name, err)
			}
			logger.InfoContext(gctx, "service stopped", "service", c.name)
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if onShutdown != nil {
			onShutdown()
		}
		return err
	case <-gctx.Done():
	}

	logger.Info("shutting down services")
	if onShutdown != nil {
		onShutdown()
	}
	select {
	case err := <-done:
		if err != nil {
			logger.Error("service error", "error", err)
		}
		return err
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for services to stop", "timeout", shutdownWaitTimeout)
		return nil
	}
}

func (s ServiceContainer) stopListeners() {
	if s.Jobs != nil {
		s.Jobs.StopAllListeners()
	}
}
