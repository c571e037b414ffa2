// Package webhook delivers notifications as HTTP POSTs to a configured endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/target/engagement-ledger/config"
	"github.com/target/engagement-ledger/internal/core"
	"github.com/target/engagement-ledger/internal/domain/model"
)

const maxResponseBodyBytes = 4 * 1024

// SinkOptions configures a Sink.
type SinkOptions struct {
	Config     config.NotifyConfig
	HTTPClient *http.Client
}

// Sink posts one JSON document per notification. When a transform is configured
// the notification is reshaped with JMESPath before it is sent, so the receiver
// can be a chat webhook or any service with its own payload shape.
type Sink struct {
	url       string
	headers   map[string]string
	transform string
	http      *http.Client
}

var _ core.NotificationSink = (*Sink)(nil)

// NewSink validates the endpoint and the transform expression.
func NewSink(opts SinkOptions) (*Sink, error) {
	cfg := opts.Config
	if err := validateURL(cfg.WebhookURL); err != nil {
		return nil, err
	}
	if cfg.Transform != "" {
		if _, err := jmespath.Compile(cfg.Transform); err != nil {
			return nil, fmt.Errorf("invalid notification transform: %w", err)
		}
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Sink{
		url:       cfg.WebhookURL,
		headers:   cfg.Headers,
		transform: cfg.Transform,
		http:      hc,
	}, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid webhook URL scheme: %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("invalid webhook URL: missing host")
	}
	return nil
}

// Deliver sends payload. Any non-2xx response is an error so the outbox retries it.
func (s *Sink) Deliver(ctx context.Context, payload model.NotificationPayload) error {
	body, err := s.render(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodyBytes))
	return nil
}

// render produces the request body. The transform sees the notification as a
// generic JSON document: user_id, event_type, data and emitted_at.
func (s *Sink) render(payload model.NotificationPayload) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	if s.transform == "" {
		return raw, nil
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	shaped, err := jmespath.Search(s.transform, doc)
	if err != nil {
		return nil, fmt.Errorf("apply notification transform: %w", err)
	}
	out, err := json.Marshal(shaped)
	if err != nil {
		return nil, fmt.Errorf("encode transformed notification: %w", err)
	}
	return out, nil
}
