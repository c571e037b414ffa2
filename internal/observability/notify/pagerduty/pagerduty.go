// Package pagerduty triggers PagerDuty incidents through the Events API v2.
package pagerduty

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/target/engagement-ledger/internal/observability/notify"
)

// APIEndpoint is the Events API v2 enqueue URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

type Config struct {
	RoutingKey string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// Endpoint overrides APIEndpoint in tests.
	Endpoint string
}

// Client is a notify.Sink that opens (or dedups into) a PagerDuty incident per alert.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ notify.Sink = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	cfg.RoutingKey = strings.TrimSpace(cfg.RoutingKey)
	if cfg.RoutingKey == "" {
		return nil, errors.New("pagerduty routing key is required")
	}
	cfg.Source = notify.Or(cfg.Source, "engagement-ledger")
	cfg.Component = notify.Or(cfg.Component, "settlement")
	cfg.Endpoint = notify.Or(cfg.Endpoint, APIEndpoint)
	cfg.RetryLimit = max(cfg.RetryLimit, 0)
	return &Client{cfg: cfg, http: notify.HTTPClient(cfg.Client, cfg.Timeout)}, nil
}

type event struct {
	RoutingKey  string  `json:"routing_key"`
	EventAction string  `json:"event_action"`
	DedupKey    string  `json:"dedup_key"`
	Payload     payload `json:"payload"`
}

type payload struct {
	Summary       string            `json:"summary"`
	Severity      string            `json:"severity"`
	Source        string            `json:"source"`
	Component     string            `json:"component"`
	Timestamp     string            `json:"timestamp"`
	CustomDetails map[string]string `json:"custom_details"`
}

func (c *Client) Send(ctx context.Context, alert notify.Alert) error {
	return notify.PostJSON(ctx, c.http, "pagerduty", c.cfg.Endpoint, c.cfg.RetryLimit, c.buildEvent(alert))
}

func (c *Client) buildEvent(alert notify.Alert) event {
	at := alert.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}

	// kind and subject are reserved; alert details cannot shadow them.
	custom := make(map[string]string, len(alert.Details)+2)
	for k, v := range alert.Details {
		custom[k] = v
	}
	custom["kind"] = alert.Kind
	custom["subject"] = alert.Subject

	summary := strings.TrimSpace(alert.Summary)
	if summary == "" {
		summary = strings.TrimSpace(notify.Or(alert.Title, alert.Kind) + " " + alert.Subject)
	}

	return event{
		RoutingKey:  c.cfg.RoutingKey,
		EventAction: "trigger",
		DedupKey:    alert.DedupKey(),
		Payload: payload{
			Summary:       summary,
			Severity:      notify.Or(strings.ToLower(alert.Severity), notify.SeverityCritical),
			Source:        c.cfg.Source,
			Component:     c.cfg.Component,
			Timestamp:     at.UTC().Format(time.RFC3339),
			CustomDetails: custom,
		},
	}
}
