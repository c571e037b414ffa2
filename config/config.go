// Package config declares the environment-driven configuration of the ledger service.
package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - logging.go: slog level and handler format
//   - auth.go: Bearer token verification
//   - database.go: Database and Redis configuration
//   - http.go: HTTP server configuration
//   - runners.go: Service modes, outbox runners and reaper
//   - settlement.go: Fees, billing units and ledger transaction retries
//   - gateway.go: Payment gateway client and callback verification
//   - observability.go: Metrics and operator alerts
type AppConfig struct {
	// IsDev controls development mode behavior (mock auth allowed, verbose logs).
	IsDev bool `env:"DEV" envDefault:"false"`

	Log  LogConfig
	Auth AuthConfig

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	HTTP HTTPConfig

	// Services is a comma-delimited list of enabled service modes.
	Services string `env:"SERVICES" envDefault:"http"`

	PaymentRunner      RunnerConfig `envPrefix:"PAYMENT_RUNNER_"`
	NotificationRunner RunnerConfig `envPrefix:"NOTIFICATION_RUNNER_"`
	Reaper             ReaperConfig

	Settlement SettlementConfig `envPrefix:"SETTLEMENT_"`
	Gateway    GatewayConfig    `envPrefix:"GATEWAY_"`
	Notify     NotifyConfig     `envPrefix:"NOTIFY_"`

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Log.Sanitize()
	c.HTTP.Sanitize()
	c.PaymentRunner.Sanitize()
	c.NotificationRunner.Sanitize()
	c.Reaper.Sanitize()
	c.Settlement.Sanitize()
	c.Gateway.Sanitize()
	c.Notify.Sanitize()
	c.Observability.Sanitize()
	c.detectDevMode()
	if c.IsDev {
		c.Log.Level = "debug"
	}
}

func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		env := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = env == "development" || env == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsEnabled reports whether mode is listed in SERVICES.
func (c *AppConfig) IsEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}
