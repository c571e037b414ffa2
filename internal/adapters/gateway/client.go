// Package gateway is the HTTP client for the external payment processor.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/target/engagement-ledger/config"
	"github.com/target/engagement-ledger/internal/core"
	"github.com/target/engagement-ledger/internal/domain/model"
)

const (
	intentsPath     = "/v1/payment-intents"
	maxErrorBody    = 2 * 1024
	idempotencyHdr  = "Idempotency-Key"
	contentTypeJSON = "application/json"
)

// ClientOptions configures a Client.
type ClientOptions struct {
	Config config.GatewayConfig
	// HTTPClient overrides the transport; the OAuth2 token source wraps it when
	// client credentials are configured.
	HTTPClient *http.Client
}

// Client submits payment intents. Submissions are throttled client side so a burst
// of settlements cannot trip the processor's own rate limits.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

var _ core.PaymentGateway = (*Client)(nil)

// NewClient constructs a gateway client.
func NewClient(opts ClientOptions) (*Client, error) {
	cfg := opts.Config
	if cfg.BaseURL == "" {
		return nil, errors.New("gateway base URL is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.UsesOAuth2() {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		// The token source reads the base client from the context it is created with.
		authed := cc.Client(context.WithValue(context.Background(), oauth2.HTTPClient, hc))
		authed.Timeout = hc.Timeout
		hc = authed
	}

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		baseURL: cfg.BaseURL,
		http:    hc,
		limiter: rate.NewLimiter(limit, burst),
	}, nil
}

type intentRequest struct {
	PaymentID   string      `json:"payment_id"`
	PayerID     string      `json:"payer_id"`
	PayeeID     string      `json:"payee_id"`
	AmountCents model.Cents `json:"amount_cents"`
	FeeCents    model.Cents `json:"fee_cents"`
}

type intentResponse struct {
	ID string `json:"id"`
}

// StatusError is a non-2xx response from the gateway.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway responded %d: %s", e.StatusCode, e.Body)
}

// Submit posts a payment intent and returns the gateway reference. Client errors
// other than 408 and 429 wrap core.ErrGatewayRejected: resending the same intent
// cannot succeed.
func (c *Client) Submit(ctx context.Context, sub core.GatewaySubmission) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait for gateway rate limit: %w", err)
	}

	body, err := json.Marshal(intentRequest{
		PaymentID:   sub.PaymentID,
		PayerID:     sub.PayerID,
		PayeeID:     sub.PayeeID,
		AmountCents: sub.AmountCents,
		FeeCents:    sub.FeeCents,
	})
	if err != nil {
		return "", fmt.Errorf("encode payment intent: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+intentsPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set(idempotencyHdr, sub.IdempotencyKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send payment intent: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		serr := &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
		if permanent(resp.StatusCode) {
			return "", fmt.Errorf("%w: %w", core.ErrGatewayRejected, serr)
		}
		return "", serr
	}

	var out intentResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode gateway response after %s: %w", time.Since(start), err)
	}
	if out.ID == "" {
		return "", errors.New("gateway response carried no reference")
	}
	return out.ID, nil
}

func permanent(status int) bool {
	return status >= 400 && status < 500 &&
		status != http.StatusRequestTimeout && status != http.StatusTooManyRequests
}
