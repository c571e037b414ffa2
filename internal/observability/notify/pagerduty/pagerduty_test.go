package pagerduty

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/engagement-ledger/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{RoutingKey: "  "})
	require.Error(t, err)
}

func TestBuildEventDefaults(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key", Timeout: time.Second})
	require.NoError(t, err)

	at := time.Date(2025, 3, 3, 9, 0, 0, 0, time.FixedZone("CET", 3600))
	ev := client.buildEvent(notify.Alert{
		Kind:       notify.KindJobFailure,
		Subject:    "job-123",
		Title:      "Outbox job failed",
		OccurredAt: at,
		Details:    map[string]string{"job_type": "payment_submit", "kind": "ignored"},
	})

	assert.Equal(t, "job_failure:job-123", ev.DedupKey)
	assert.Equal(t, "trigger", ev.EventAction)
	assert.Equal(t, notify.SeverityCritical, ev.Payload.Severity)
	assert.Equal(t, "engagement-ledger", ev.Payload.Source)
	assert.Equal(t, "settlement", ev.Payload.Component)
	assert.Equal(t, "Outbox job failed job-123", ev.Payload.Summary)
	assert.Equal(t, "2025-03-03T08:00:00Z", ev.Payload.Timestamp)
	assert.Equal(t, "payment_submit", ev.Payload.CustomDetails["job_type"])
	assert.Equal(t, notify.KindJobFailure, ev.Payload.CustomDetails["kind"], "details never override reserved keys")
}

func TestSendPostsToEndpoint(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "rk", Endpoint: srv.URL})
	require.NoError(t, err)

	require.NoError(t, client.Send(context.Background(), notify.Alert{
		Kind:     notify.KindRefundCandidate,
		Subject:  "pay-1",
		Severity: "WARNING",
	}))
	assert.Equal(t, "rk", got["routing_key"])
	assert.Equal(t, "refund_candidate:pay-1", got["dedup_key"])
	payload, ok := got["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, notify.SeverityWarning, payload["severity"])
}

func TestSendGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, `{"status":"invalid event"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "rk", Endpoint: srv.URL, RetryLimit: 1})
	require.NoError(t, err)

	err = client.Send(context.Background(), notify.Alert{Kind: notify.KindJobFailure})
	require.ErrorContains(t, err, "pagerduty: 400")
	assert.Equal(t, int32(2), calls.Load())
}
