package config

import (
	"strings"
	"time"
)

// GatewayConfig configures the outbound payment gateway client and the inbound callback.
type GatewayConfig struct {
	// BaseURL is the gateway API root; payment intents are POSTed to {BaseURL}/v1/payment-intents.
	BaseURL string `env:"BASE_URL"`

	// OAuth2 client credentials used to obtain gateway access tokens.
	TokenURL     string   `env:"TOKEN_URL"`
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	Scopes       []string `env:"SCOPES" envSeparator:" "`

	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
	// RateLimit is the sustained submissions per second; Burst allows short spikes.
	RateLimit float64 `env:"RATE_LIMIT" envDefault:"10"`
	Burst     int     `env:"BURST"      envDefault:"5"`

	// CallbackSecret is the HS256 key the gateway signs callback tokens with.
	CallbackSecret string `env:"CALLBACK_SECRET"`
	// CallbackIssuer is the expected iss claim of callback tokens.
	CallbackIssuer string `env:"CALLBACK_ISSUER" envDefault:"payment-gateway"`
	// ReplayTTL is how long callback token ids are remembered.
	ReplayTTL time.Duration `env:"REPLAY_TTL" envDefault:"24h"`
}

// Sanitize applies guardrails to gateway configuration values.
func (c *GatewayConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.TokenURL = strings.TrimSpace(c.TokenURL)
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 10
	}
	if c.Burst < 1 {
		c.Burst = 1
	}
	if c.ReplayTTL < time.Minute {
		c.ReplayTTL = time.Minute
	}
}

// Enabled reports whether outbound submission is configured.
func (c *GatewayConfig) Enabled() bool { return c.BaseURL != "" }

// UsesOAuth2 reports whether client credentials are configured.
func (c *GatewayConfig) UsesOAuth2() bool {
	return c.TokenURL != "" && c.ClientID != ""
}

// NotifyConfig configures the notification webhook the notification runner delivers to.
type NotifyConfig struct {
	// WebhookURL receives one POST per notification. Empty means notifications are
	// logged and dropped by the runner.
	WebhookURL string `env:"WEBHOOK_URL"`
	// Transform is an optional JMESPath expression applied to the notification
	// document before it is sent.
	Transform string            `env:"TRANSFORM"`
	Headers   map[string]string `env:"HEADERS"`
	Timeout   time.Duration     `env:"TIMEOUT" envDefault:"5s"`
	// MaxRetries is the outbox retry budget for one notification.
	MaxRetries int `env:"MAX_RETRIES" envDefault:"3"`
}

// Sanitize applies guardrails to notification configuration values.
func (c *NotifyConfig) Sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.Transform = strings.TrimSpace(c.Transform)
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxRetries < 1 {
		c.MaxRetries = 1
	}
}
