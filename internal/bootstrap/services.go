package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/target/engagement-ledger/config"
	"github.com/target/engagement-ledger/internal/adapters/gateway"
	redisadapter "github.com/target/engagement-ledger/internal/adapters/redis"
	"github.com/target/engagement-ledger/internal/core"
	"github.com/target/engagement-ledger/internal/data"
	"github.com/target/engagement-ledger/internal/observability/metrics"
	"github.com/target/engagement-ledger/internal/observability/notify/pagerduty"
	"github.com/target/engagement-ledger/internal/observability/notify/slack"
	"github.com/target/engagement-ledger/internal/observability/statsd"
	"github.com/target/engagement-ledger/internal/service"
	"github.com/target/engagement-ledger/internal/service/opsalert"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Ledger       *data.LedgerStore
	JobRepo      *data.JobRepo
	Jobs         *service.JobService
	Notifier     *service.NotificationEmitter
	Applications *service.ApplicationService
	Engagements  *service.EngagementService
	Time         *service.TimeTracker
	Settlement   *service.SettlementService
	Auth         *service.AuthService // nil unless the HTTP service is enabled
	Callbacks    *gateway.CallbackVerifier
	Replay       core.ReplayGuard
	Gateway      *gateway.Client

	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	Registry      *prometheus.Registry
	MetricsSink   statsd.Sink
	Ledger        *metrics.Ledger
	Alerts        *opsalert.Service
	MetricsConfig config.ObservabilityMetricsConfig
}

// Close flushes and closes the StatsD client, if one was created.
func (o ObservabilityContainer) Close(logger *slog.Logger) {
	client, ok := o.MetricsSink.(*statsd.Client)
	if !ok {
		return
	}
	if err := client.Close(); err != nil && logger != nil {
		logger.Warn("close statsd client failed", "error", err)
	}
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability configures metrics and operator alert adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var sink statsd.Sink
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  "ledger",
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			sink = client
		}
	}

	return ObservabilityContainer{
		Registry:      reg,
		MetricsSink:   sink,
		Ledger:        metrics.NewLedger(reg, sink),
		Alerts:        buildOpsAlerts(obsLogger, cfg.Notifications),
		MetricsConfig: cfg.Metrics,
	}
}

func buildOpsAlerts(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *opsalert.Service {
	alertLogger := logger.With("component", "ops_alerts")
	if !cfg.Enabled {
		return opsalert.NewService(opsalert.Options{Logger: alertLogger})
	}

	sinks := make([]opsalert.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:     cfg.Slack.WebhookURL,
			Channel:        cfg.Slack.Channel,
			Username:       cfg.Slack.Username,
			Timeout:        cfg.Timeout,
			RetryLimit:     cfg.RetryLimit,
			AdminURLPrefix: cfg.Slack.AdminURLPrefix,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, opsalert.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, opsalert.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	return opsalert.NewService(opsalert.Options{Logger: alertLogger, Sinks: sinks})
}

// NewServices wires the ledger store, outbox and domain services.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil || deps.DB == nil {
		return ServiceContainer{}, errors.New("config and database are required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	obs := buildObservability(logger, cfg.Observability)

	jobRepo := data.NewJobRepo(deps.DB, data.RepoConfig{Logger: logger.With("component", "job_repo")})
	ledger := data.NewLedgerStore(data.LedgerStoreOptions{
		DB:            deps.DB,
		Logger:        logger.With("component", "ledger_store"),
		Jobs:          jobRepo,
		MaxTxAttempts: cfg.Settlement.TxAttempts,
		TxBackoff:     cfg.Settlement.TxBackoff,
		OnRetry:       func(int, error) { obs.Ledger.TxRetry() },
	})

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:         jobRepo,
		DefaultLease: cfg.PaymentRunner.JobLease,
		Logger:       logger.With("component", "job_service"),
		Alerts:       obs.Alerts,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create job service: %w", err)
	}

	notifier, err := service.NewNotificationEmitter(service.NotificationEmitterOptions{
		Jobs:       jobRepo,
		Logger:     logger.With("component", "notifications"),
		Metrics:    obs.Ledger,
		MaxRetries: cfg.Notify.MaxRetries,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create notification emitter: %w", err)
	}

	ledgerDeps := service.LedgerDeps{
		Ledger:   ledger,
		Notifier: notifier,
		Logger:   logger,
		Metrics:  obs.Ledger,
	}

	out := ServiceContainer{
		Ledger:        ledger,
		JobRepo:       jobRepo,
		Jobs:          jobs,
		Notifier:      notifier,
		Observability: obs,
	}
	if err := buildDomainServices(&out, ledgerDeps, cfg); err != nil {
		return ServiceContainer{}, err
	}

	if cfg.Gateway.CallbackSecret != "" {
		out.Callbacks, err = gateway.NewCallbackVerifier(cfg.Gateway.CallbackSecret, cfg.Gateway.CallbackIssuer)
		if err != nil {
			return ServiceContainer{}, fmt.Errorf("create callback verifier: %w", err)
		}
	} else {
		logger.Warn("GATEWAY_CALLBACK_SECRET not set; gateway callbacks are disabled")
	}
	if deps.RedisClient != nil {
		out.Replay = redisadapter.NewReplayGuard(deps.RedisClient)
	}

	if cfg.IsEnabled(config.ServiceModeHTTP) {
		out.Auth, err = BuildAuthService(AuthConfig{Auth: cfg.Auth, Logger: logger})
		if err != nil {
			return ServiceContainer{}, fmt.Errorf("build auth service: %w", err)
		}
	}
	return out, nil
}

func buildDomainServices(out *ServiceContainer, deps service.LedgerDeps, cfg *config.AppConfig) error {
	var err error
	if out.Applications, err = service.NewApplicationService(deps); err != nil {
		return fmt.Errorf("create application service: %w", err)
	}
	if out.Engagements, err = service.NewEngagementService(deps); err != nil {
		return fmt.Errorf("create engagement service: %w", err)
	}
	out.Time, err = service.NewTimeTracker(service.TimeTrackerOptions{
		LedgerDeps:  deps,
		MinBillable: cfg.Settlement.MinBillable,
	})
	if err != nil {
		return fmt.Errorf("create time tracker: %w", err)
	}

	fees, err := service.NewFeePolicy(cfg.Settlement)
	if err != nil {
		return fmt.Errorf("create fee policy: %w", err)
	}
	opts := service.SettlementOptions{
		LedgerDeps:        deps,
		Fees:              fees,
		Alerts:            out.Observability.Alerts,
		PaymentMaxRetries: cfg.Settlement.PaymentMaxRetries,
	}
	if cfg.Gateway.Enabled() {
		out.Gateway, err = gateway.NewClient(gateway.ClientOptions{Config: cfg.Gateway})
		if err != nil {
			return fmt.Errorf("create gateway client: %w", err)
		}
		opts.Gateway = out.Gateway
	}
	if out.Settlement, err = service.NewSettlementService(opts); err != nil {
		return fmt.Errorf("create settlement service: %w", err)
	}
	return nil
}
