package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/target/engagement-ledger/config"
)

// InitLogger builds the process logger from cfg and installs it as slog's default.
// The zero LogConfig gives JSON at info level, which is what runs before config loads.
func InitLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var h slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.Format == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// LoadConfig reads the environment, after merging a local .env file when present.
func LoadConfig() (config.AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return config.AppConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}

// ValidateServiceConfig validates that at least one service is enabled and that
// the enabled services have what they need.
func ValidateServiceConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("service config is required")
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("invalid service configuration: %w", err)
	}
	if len(services) == 0 {
		return errors.New("no services enabled")
	}

	if services[config.ServiceModePaymentRunner] && !cfg.Gateway.Enabled() {
		return errors.New("payment-runner requires GATEWAY_BASE_URL")
	}
	if services[config.ServiceModeHTTP] && cfg.Auth.Mode == config.AuthModeMock && !cfg.IsDev {
		return errors.New("mock auth is only allowed in development mode")
	}
	return nil
}

// GetEnabledServices lists enabled service modes sorted, for logs. Invalid
// configuration yields an empty list; ValidateServiceConfig reports it.
func GetEnabledServices(cfg *config.AppConfig) []string {
	names := []string{}
	if cfg == nil {
		return names
	}
	services, _ := cfg.GetEnabledServices()
	for svc, on := range services {
		if on {
			names = append(names, string(svc))
		}
	}
	slices.Sort(names)
	return names
}
