package jobrunner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/engagement-ledger/internal/core"
	"github.com/target/engagement-ledger/internal/domain/model"
)

// PaymentSubmitter is the part of the settlement engine the payment runner drives.
type PaymentSubmitter interface {
	SubmitPayment(ctx context.Context, paymentID string) error
	MarkSubmissionFailed(ctx context.Context, paymentID, reason string) error
}

// PaymentHandler submits the payment named by a payment_submit job. A gateway
// rejection fails the payment at once and completes the job. Any other error is
// retried; on the job's final attempt the payment is failed before the job is.
func PaymentHandler(payments PaymentSubmitter) HandlerFunc {
	return func(ctx context.Context, job *model.Job) error {
		var payload model.PaymentSubmitPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		if payload.PaymentID == "" {
			return errors.New("missing payment_id in job payload")
		}

		err := payments.SubmitPayment(ctx, payload.PaymentID)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, core.ErrGatewayRejected):
			if ferr := payments.MarkSubmissionFailed(ctx, payload.PaymentID, err.Error()); ferr != nil {
				return fmt.Errorf("mark payment failed: %w", ferr)
			}
			return nil
		case job.FinalAttempt():
			if ferr := payments.MarkSubmissionFailed(ctx, payload.PaymentID, err.Error()); ferr != nil {
				return errors.Join(err, fmt.Errorf("mark payment failed: %w", ferr))
			}
			return err
		default:
			return err
		}
	}
}

// NotificationHandler delivers a notification job through sink. With no sink
// configured notifications are logged and dropped.
func NotificationHandler(sink core.NotificationSink, logger *slog.Logger) HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, job *model.Job) error {
		var payload model.NotificationPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		if payload.UserID == "" || payload.EventType == "" {
			return errors.New("notification payload needs user_id and event_type")
		}
		if sink == nil {
			logger.InfoContext(ctx, "notification",
				"user_id", payload.UserID,
				"event_type", payload.EventType,
				"job_id", job.ID,
			)
			return nil
		}
		if err := sink.Deliver(ctx, payload); err != nil {
			return fmt.Errorf("deliver notification: %w", err)
		}
		return nil
	}
}
