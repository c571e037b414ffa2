// Package opsalert fans operator alerts out to the configured paging and chat sinks.
package opsalert

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/target/engagement-ledger/internal/domain/model"
	"github.com/target/engagement-ledger/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the alert service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
}

// Service dispatches alerts to all registered sinks. A nil *Service is a valid no-op.
type Service struct {
	logger *slog.Logger
	sinks  []SinkRegistration
}

// NewService constructs an alert service.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	return &Service{
		logger: logger.With("component", "ops_alert"),
		sinks:  sinks,
	}
}

// Enabled reports whether the service has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}

// JobFailed raises an alert for an outbox job that exhausted its retries.
func (s *Service) JobFailed(ctx context.Context, job *model.Job, errMsg string) {
	if !s.Enabled() || job == nil {
		return
	}
	s.Send(ctx, notify.Alert{
		Kind:     notify.KindJobFailure,
		Subject:  job.ID,
		Title:    "Outbox job failed permanently",
		Summary:  errMsg,
		Severity: notify.SeverityCritical,
		Details: map[string]string{
			"job_type":    string(job.Type),
			"retry_count": strconv.Itoa(job.RetryCount + 1),
			"max_retries": strconv.Itoa(job.MaxRetries),
		},
	})
}

// RefundCandidate raises an alert for money that moved after the ledger stopped
// expecting it: the contract was cancelled or the payment had already failed.
func (s *Service) RefundCandidate(ctx context.Context, p *model.Payment) {
	if !s.Enabled() || p == nil {
		return
	}
	details := map[string]string{
		"contract_id": p.ContractID,
		"amount":      p.AmountCents.String(),
		"payer_id":    p.PayerID,
		"payee_id":    p.PayeeID,
	}
	if p.GatewayRef != nil {
		details["gateway_ref"] = *p.GatewayRef
	}
	s.Send(ctx, notify.Alert{
		Kind:     notify.KindRefundCandidate,
		Subject:  p.ID,
		Title:    "Refund candidate",
		Summary:  "gateway reported success for a payment the ledger no longer expected",
		Severity: notify.SeverityWarning,
		Details:  details,
	})
}

// Send delivers alert to every sink concurrently and waits for all of them.
// Delivery errors are logged and never returned.
func (s *Service) Send(ctx context.Context, alert notify.Alert) {
	if !s.Enabled() {
		return
	}
	if alert.Severity == "" {
		alert.Severity = notify.SeverityCritical
	}
	if alert.OccurredAt.IsZero() {
		alert.OccurredAt = time.Now()
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.Send(ctx, alert); err != nil {
				s.logger.ErrorContext(ctx, "alert delivery failed",
					"sink", entry.Name,
					"kind", alert.Kind,
					"subject", alert.Subject,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}
