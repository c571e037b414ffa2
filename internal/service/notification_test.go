package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/engagement-ledger/internal/domain/model"
	"github.com/target/engagement-ledger/internal/mocks"
	"github.com/target/engagement-ledger/internal/observability/metrics"
)

func droppedCount(t *testing.T, reg *prometheus.Registry) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, f := range families {
		if f.GetName() != "ledger_notifications_dropped_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestNewNotificationEmitter_RequiresJobs(t *testing.T) {
	_, err := NewNotificationEmitter(NotificationEmitterOptions{})
	require.Error(t, err)
}

func TestNotificationEmitter_Notify(t *testing.T) {
	emitted := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

	t.Run("queues a notification job", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		jobs := mocks.NewMockJobRepository(ctrl)
		emitter, err := NewNotificationEmitter(NotificationEmitterOptions{
			Jobs:   jobs,
			Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
			Clock:  func() time.Time { return emitted },
		})
		require.NoError(t, err)

		var got *model.CreateJobRequest
		jobs.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
				got = req
				return &model.Job{ID: "j1"}, nil
			})

		emitter.Notify(context.Background(), model.Notification{
			UserID:    worker.ID,
			EventType: model.EventMilestonePaid,
			Payload:   map[string]string{"milestone_id": "m-1"},
		})

		require.NotNil(t, got)
		assert.Equal(t, model.JobTypeNotification, got.Type)
		assert.Equal(t, defaultNotificationRetries, got.MaxRetries)

		var payload model.NotificationPayload
		require.NoError(t, json.Unmarshal(got.Payload, &payload))
		assert.Equal(t, worker.ID, payload.UserID)
		assert.Equal(t, model.EventMilestonePaid, payload.EventType)
		assert.JSONEq(t, `{"milestone_id":"m-1"}`, string(payload.Data))
		assert.True(t, emitted.Equal(payload.EmittedAt))
	})

	t.Run("queue failure is dropped and counted", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		jobs := mocks.NewMockJobRepository(ctrl)
		reg := prometheus.NewRegistry()
		emitter, err := NewNotificationEmitter(NotificationEmitterOptions{
			Jobs:    jobs,
			Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
			Metrics: metrics.NewLedger(reg, nil),
		})
		require.NoError(t, err)

		jobs.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused"))

		assert.NotPanics(t, func() {
			emitter.Notify(context.Background(), model.Notification{
				UserID:    employer.ID,
				EventType: model.EventPaymentFailed,
				Payload:   model.Payment{ID: "p-1"},
			})
		})
		assert.InDelta(t, 1, droppedCount(t, reg), 0)
	})

	t.Run("unencodable payload never reaches the queue", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		jobs := mocks.NewMockJobRepository(ctrl)
		emitter, err := NewNotificationEmitter(NotificationEmitterOptions{
			Jobs:   jobs,
			Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
		require.NoError(t, err)

		emitter.Notify(context.Background(), model.Notification{
			UserID:    employer.ID,
			EventType: model.EventPaymentFailed,
			Payload:   make(chan int),
		})
	})
}
