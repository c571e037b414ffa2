// Package notify carries operator alerts (permanently failed outbox jobs, refund
// candidates) to paging and chat sinks.
package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Alert kinds.
const (
	KindJobFailure      = "job_failure"
	KindRefundCandidate = "refund_candidate"
)

// Alert is the canonical operator alert emitted to every sink.
type Alert struct {
	Kind string
	// Subject is the ID of the entity the alert is about and doubles as the dedup key.
	Subject    string
	Title      string
	Summary    string
	Severity   string
	OccurredAt time.Time
	Details    map[string]string
}

// DedupKey groups repeated alerts about the same entity.
func (a Alert) DedupKey() string {
	if a.Subject == "" {
		return a.Kind
	}
	return a.Kind + ":" + a.Subject
}

// Sink describes a destination capable of consuming alerts.
type Sink interface {
	Send(ctx context.Context, alert Alert) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, alert Alert) error

// Send implements the Sink interface.
func (f SinkFunc) Send(ctx context.Context, alert Alert) error {
	if f == nil {
		return nil
	}
	return f(ctx, alert)
}

// Retry calls send up to retries+1 times with a linear backoff between attempts.
func Retry(ctx context.Context, retries int, send func() error) error {
	attempts := max(retries, 0) + 1
	var lastErr error
	for attempt := range attempts {
		if lastErr = send(); lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		timer := time.NewTimer(time.Duration(attempt+1) * 200 * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
