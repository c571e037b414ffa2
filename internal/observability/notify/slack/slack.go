// Package slack posts operator alerts to a Slack incoming webhook.
package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/target/engagement-ledger/internal/observability/notify"
)

type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// AdminURLPrefix, when an absolute URL, turns alert subjects into links.
	AdminURLPrefix string
}

// Client is a notify.Sink for one webhook.
type Client struct {
	cfg       Config
	adminBase *url.URL
	http      *http.Client
}

var _ notify.Sink = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	cfg.WebhookURL = strings.TrimSpace(cfg.WebhookURL)
	if cfg.WebhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}
	cfg.Channel = strings.TrimSpace(cfg.Channel)
	cfg.Username = notify.Or(cfg.Username, "engagement-ledger")
	cfg.RetryLimit = max(cfg.RetryLimit, 0)

	c := &Client{cfg: cfg, http: notify.HTTPClient(cfg.Client, cfg.Timeout)}
	if u, err := url.Parse(strings.TrimSpace(cfg.AdminURLPrefix)); err == nil && u.Scheme != "" && u.Host != "" {
		c.adminBase = u
	}
	return c, nil
}

type message struct {
	Text     string `json:"text"`
	Username string `json:"username"`
	Channel  string `json:"channel,omitempty"`
}

func (c *Client) Send(ctx context.Context, alert notify.Alert) error {
	return notify.PostJSON(ctx, c.http, "slack", c.cfg.WebhookURL, c.cfg.RetryLimit, c.formatMessage(alert))
}

// formatMessage renders mrkdwn: a bold title with the subject, then one bullet per
// populated field and nested bullets for details in key order.
func (c *Client) formatMessage(alert notify.Alert) message {
	at := alert.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s*", escape(notify.Or(alert.Title, "Ledger alert")))
	if s := c.subject(alert.Subject); s != "" {
		b.WriteString(" " + s)
	}
	b.WriteByte('\n')

	bullet := func(label, value string) {
		if strings.TrimSpace(value) != "" {
			fmt.Fprintf(&b, "• %s: %s\n", label, value)
		}
	}
	bullet("Severity", notify.Or(alert.Severity, notify.SeverityCritical))
	bullet("Kind", alert.Kind)
	bullet("Summary", escape(alert.Summary))
	if len(alert.Details) > 0 {
		b.WriteString("• Details:\n")
		keys := make([]string, 0, len(alert.Details))
		for k := range alert.Details {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "    • %s: %s\n", k, escape(alert.Details[k]))
		}
	}
	fmt.Fprintf(&b, "• Timestamp: %s", at.UTC().Format(time.RFC3339))

	return message{Text: b.String(), Username: c.cfg.Username, Channel: c.cfg.Channel}
}

func (c *Client) subject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return ""
	}
	if c.adminBase != nil {
		return fmt.Sprintf("<%s|%s>", c.adminBase.JoinPath(subject).String(), escape(subject))
	}
	return "`" + escape(subject) + "`"
}

var slackEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string { return slackEscaper.Replace(s) }
