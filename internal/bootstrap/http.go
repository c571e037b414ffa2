package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/target/engagement-ledger/config"
	httpx "github.com/target/engagement-ledger/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// newHTTPServer builds the API server with the router wrapped in the body-size
// and request-timeout limits from HTTPConfig.
func newHTTPServer(cfg *HTTPServerConfig) *http.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}
	addr := appCfg.HTTP.Addr
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           buildHTTPHandler(routerServices(cfg, appCfg, logger), appCfg.HTTP),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
}

func routerServices(cfg *HTTPServerConfig, appCfg *config.AppConfig, logger *slog.Logger) httpx.RouterServices {
	svcs := cfg.Services
	rs := httpx.RouterServices{
		Auth:         svcs.Auth,
		Applications: svcs.Applications,
		Engagements:  svcs.Engagements,
		Time:         svcs.Time,
		Settlement:   svcs.Settlement,
		Jobs:         svcs.Jobs,
		Replay:       svcs.Replay,
		ReplayTTL:    appCfg.Gateway.ReplayTTL,
		Health:       healthChecks(cfg.DB, cfg.RedisClient),
		Logger:       logger,
	}
	// A typed nil verifier must not reach the router's interface field.
	if svcs.Callbacks != nil {
		rs.Callbacks = svcs.Callbacks
	}
	if svcs.Observability.Registry != nil && appCfg.Observability.Metrics.PrometheusEnabled {
		rs.Metrics = prometheus.Gatherer(svcs.Observability.Registry)
	}
	return rs
}

func healthChecks(db *sql.DB, rdb redis.UniversalClient) map[string]httpx.HealthCheck {
	checks := map[string]httpx.HealthCheck{}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return checks
}

func buildHTTPHandler(svcs httpx.RouterServices, cfg config.HTTPConfig) http.Handler {
	h := httpx.NewRouter(svcs)
	if cfg.MaxBodyBytes > 0 {
		h = http.MaxBytesHandler(h, cfg.MaxBodyBytes)
	}
	if cfg.RequestTimeout > 0 {
		h = http.TimeoutHandler(h, cfg.RequestTimeout, `{"error":"timeout","message":"request timed out"}`)
	}
	return h
}

// serveHTTP listens until ctx is canceled, then drains in-flight requests for at
// most timeout. Shutdown gets a fresh context because ctx is already done.
func serveHTTP(ctx context.Context, srv *http.Server, timeout time.Duration, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	case <-ctx.Done():
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("HTTP server stopped")
	return nil
}
