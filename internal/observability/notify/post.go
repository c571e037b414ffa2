package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultSinkTimeout = 5 * time.Second

// HTTPClient returns hc, or a client bounded by timeout (default 5s) when hc is nil.
func HTTPClient(hc *http.Client, timeout time.Duration) *http.Client {
	if hc != nil {
		return hc
	}
	if timeout <= 0 {
		timeout = defaultSinkTimeout
	}
	return &http.Client{Timeout: timeout}
}

// PostJSON encodes v once and POSTs it to url, retrying non-2xx responses and
// transport errors per Retry. name prefixes error messages.
func PostJSON(ctx context.Context, hc *http.Client, name, url string, retries int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: encode payload: %w", name, err)
	}
	return Retry(ctx, retries, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("%s: build request: %w", name, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := hc.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode/100 != 2 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("%s: %s: %s", name, resp.Status, strings.TrimSpace(string(msg)))
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	})
}

// Or returns the trimmed value, or fallback when it is blank.
func Or(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
