package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/target/engagement-ledger/internal/core"
	"github.com/target/engagement-ledger/internal/domain/model"
	"github.com/target/engagement-ledger/internal/observability/metrics"
)

const defaultNotificationRetries = 3

// NotificationEmitterOptions configures a NotificationEmitter.
type NotificationEmitterOptions struct {
	Jobs       core.JobRepository // Required
	Logger     *slog.Logger       // Optional
	Metrics    *metrics.Ledger    // Optional
	Clock      func() time.Time   // Optional
	MaxRetries int
}

// NotificationEmitter turns ledger notifications into notification jobs. Emission
// is best effort: a notification that cannot be queued is logged and dropped, and
// never fails the ledger operation that raised it.
type NotificationEmitter struct {
	jobs       core.JobRepository
	logger     *slog.Logger
	metrics    *metrics.Ledger
	clock      func() time.Time
	maxRetries int
}

var _ core.Notifier = (*NotificationEmitter)(nil)

// NewNotificationEmitter constructs a NotificationEmitter.
func NewNotificationEmitter(opts NotificationEmitterOptions) (*NotificationEmitter, error) {
	if opts.Jobs == nil {
		return nil, errors.New("job repository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	retries := opts.MaxRetries
	if retries <= 0 {
		retries = defaultNotificationRetries
	}
	return &NotificationEmitter{
		jobs:       opts.Jobs,
		logger:     logger.With("component", "notification_emitter"),
		metrics:    opts.Metrics,
		clock:      clock,
		maxRetries: retries,
	}, nil
}

// Notify queues n for delivery.
func (e *NotificationEmitter) Notify(ctx context.Context, n model.Notification) {
	if err := e.enqueue(ctx, n); err != nil {
		e.metrics.NotificationDropped(string(n.EventType))
		e.logger.WarnContext(ctx, "notification dropped",
			"user_id", n.UserID,
			"event_type", n.EventType,
			"error", err,
		)
	}
}

func (e *NotificationEmitter) enqueue(ctx context.Context, n model.Notification) error {
	data, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(model.NotificationPayload{
		UserID:    n.UserID,
		EventType: n.EventType,
		Data:      data,
		EmittedAt: e.clock().UTC(),
	})
	if err != nil {
		return err
	}
	_, err = e.jobs.Create(ctx, &model.CreateJobRequest{
		Type:       model.JobTypeNotification,
		Payload:    payload,
		MaxRetries: e.maxRetries,
	})
	return err
}
