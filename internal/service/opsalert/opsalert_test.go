package opsalert

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/engagement-ledger/internal/domain/model"
	"github.com/target/engagement-ledger/internal/observability/notify"
)

type captureSink struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (c *captureSink) Send(_ context.Context, a notify.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return nil
}

func TestServiceJobFailed(t *testing.T) {
	sink := &captureSink{}
	svc := NewService(Options{Sinks: []SinkRegistration{{Name: "capture", Sink: sink}}})

	svc.JobFailed(context.Background(), &model.Job{
		ID: "job-1", Type: model.JobTypePaymentSubmit, RetryCount: 2, MaxRetries: 3,
	}, "gateway unavailable")

	require.Len(t, sink.alerts, 1)
	a := sink.alerts[0]
	assert.Equal(t, notify.KindJobFailure, a.Kind)
	assert.Equal(t, "job-1", a.Subject)
	assert.Equal(t, notify.SeverityCritical, a.Severity)
	assert.Equal(t, "3", a.Details["retry_count"])
	assert.False(t, a.OccurredAt.IsZero())
}

func TestServiceRefundCandidate(t *testing.T) {
	sink := &captureSink{}
	svc := NewService(Options{Sinks: []SinkRegistration{{Sink: sink}}})
	ref := "gw_1"

	svc.RefundCandidate(context.Background(), &model.Payment{
		ID: "pay-1", ContractID: "c-1", AmountCents: 50000, GatewayRef: &ref,
	})

	require.Len(t, sink.alerts, 1)
	assert.Equal(t, notify.KindRefundCandidate, sink.alerts[0].Kind)
	assert.Equal(t, "500.00", sink.alerts[0].Details["amount"])
	assert.Equal(t, "gw_1", sink.alerts[0].Details["gateway_ref"])
}

func TestServiceDisabled(t *testing.T) {
	assert.False(t, NewService(Options{}).Enabled())

	var nilSvc *Service
	assert.False(t, nilSvc.Enabled())
	nilSvc.RefundCandidate(context.Background(), &model.Payment{ID: "p"})
}

func TestServiceSinkErrorsDoNotPropagate(t *testing.T) {
	ok := &captureSink{}
	svc := NewService(Options{Sinks: []SinkRegistration{
		{Name: "fail", Sink: notify.SinkFunc(func(context.Context, notify.Alert) error { return errors.New("boom") })},
		{Name: "ok", Sink: ok},
	}})

	svc.Send(context.Background(), notify.Alert{Kind: notify.KindJobFailure, Subject: "job-2"})
	assert.Len(t, ok.alerts, 1)
}
