package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/target/engagement-ledger/internal/core"
	"github.com/target/engagement-ledger/internal/domain/model"
	"github.com/target/engagement-ledger/internal/observability/metrics"
)

// LedgerDeps groups the dependencies every ledger service shares.
type LedgerDeps struct {
	Ledger   core.Ledger      // Required
	Notifier core.Notifier    // Optional: post-commit notifications
	Logger   *slog.Logger     // Optional
	Clock    func() time.Time // Optional: defaults to time.Now
	Metrics  *metrics.Ledger  // Optional
}

type ledgerBase struct {
	ledger   core.Ledger
	notifier core.Notifier
	logger   *slog.Logger
	clock    func() time.Time
	metrics  *metrics.Ledger
}

func newLedgerBase(d LedgerDeps, component string) (ledgerBase, error) {
	if d.Ledger == nil {
		return ledgerBase{}, errors.New("ledger is required")
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := d.Clock
	if clock == nil {
		clock = time.Now
	}
	return ledgerBase{
		ledger:   d.Ledger,
		notifier: d.Notifier,
		logger:   logger.With("component", component),
		clock:    clock,
		metrics:  d.Metrics,
	}, nil
}

func (b *ledgerBase) now() time.Time { return b.clock().UTC() }

// outbox collects the notifications of one transaction attempt.
type outbox []model.Notification

func (o *outbox) add(userID string, event model.EventType, payload any) {
	if userID == "" {
		return
	}
	*o = append(*o, model.Notification{UserID: userID, EventType: event, Payload: payload})
}

// both notifies the employer and the worker of c.
func (o *outbox) both(c *model.Contract, event model.EventType, payload any) {
	o.add(c.EmployerID, event, payload)
	o.add(c.WorkerID, event, payload)
}

// inTx runs fn in a ledger transaction and emits the notifications it collected
// once the transaction has committed. A retried attempt starts with an empty outbox.
func (b *ledgerBase) inTx(ctx context.Context, fn func(ctx context.Context, tx core.LedgerTx, out *outbox) error) error {
	var out outbox
	err := b.ledger.InTx(ctx, func(ctx context.Context, tx core.LedgerTx) error {
		out = out[:0]
		return fn(ctx, tx, &out)
	})
	if err != nil {
		return err
	}
	if b.notifier != nil {
		for _, n := range out {
			b.notifier.Notify(ctx, n)
		}
	}
	return nil
}
