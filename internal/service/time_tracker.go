package service

import (
	"context"
	"time"

	"github.com/target/engagement-ledger/internal/core"
	"github.com/target/engagement-ledger/internal/domain/auth"
	"github.com/target/engagement-ledger/internal/domain/engagement"
	"github.com/target/engagement-ledger/internal/domain/model"
	apperrors "github.com/target/engagement-ledger/internal/errors"
)

// TimeTrackerOptions configures a TimeTracker.
type TimeTrackerOptions struct {
	LedgerDeps
	// MinBillable is the shortest interval StopInterval accepts.
	MinBillable time.Duration
}

// TimeTracker records start/stop intervals on hourly contracts and their review.
type TimeTracker struct {
	ledgerBase
	minBillable time.Duration
}

// NewTimeTracker constructs a TimeTracker.
func NewTimeTracker(opts TimeTrackerOptions) (*TimeTracker, error) {
	base, err := newLedgerBase(opts.LedgerDeps, "time_tracker")
	if err != nil {
		return nil, err
	}
	minBillable := opts.MinBillable
	if minBillable <= 0 {
		minBillable = engagement.DefaultMinBillable
	}
	return &TimeTracker{ledgerBase: base, minBillable: minBillable}, nil
}

// StartInterval opens a time entry for the contract's worker. At most one
// interval per worker and contract may be open.
func (t *TimeTracker) StartInterval(ctx context.Context, actor auth.Actor, contractID string) (*model.TimeEntry, error) {
	var e *model.TimeEntry
	err := t.ledger.InTx(ctx, func(ctx context.Context, tx core.LedgerTx) error {
		c, err := tx.LockContract(ctx, contractID)
		if err != nil {
			return err
		}
		if err = engagement.CanStartInterval(c, actor); err != nil {
			return err
		}
		open, err := tx.FindOpenTimeEntry(ctx, c.ID, c.WorkerID)
		if err != nil {
			return err
		}
		if open != nil {
			return apperrors.OpenIntervalExists("an interval is already open on this contract")
		}
		e = &model.TimeEntry{
			ContractID: c.ID,
			WorkerID:   c.WorkerID,
			StartTime:  t.now(),
			Status:     model.TimeEntryStatusPending,
		}
		return tx.InsertTimeEntry(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// StopInterval closes an open interval and derives its whole-minute duration.
// Intervals shorter than the minimum billable unit fail with DegenerateInterval
// and stay open.
func (t *TimeTracker) StopInterval(ctx context.Context, actor auth.Actor, entryID string) (*model.TimeEntry, error) {
	var e *model.TimeEntry
	err := t.inTx(ctx, func(ctx context.Context, tx core.LedgerTx, out *outbox) error {
		c, cur, err := tx.LockTimeEntry(ctx, entryID)
		if err != nil {
			return err
		}
		res, err := engagement.StopInterval(c, cur, actor, t.now(), t.minBillable)
		if err != nil {
			return err
		}
		if err = tx.StopTimeEntry(ctx, cur.ID, res.EndTime, res.DurationMinutes); err != nil {
			return err
		}
		end, minutes := res.EndTime, res.DurationMinutes
		cur.EndTime, cur.DurationMinutes, cur.Status = &end, &minutes, res.Status
		e = cur
		out.add(c.EmployerID, model.EventTimeEntryStopped, *e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ApproveEntry approves a stopped interval for payment.
func (t *TimeTracker) ApproveEntry(ctx context.Context, actor auth.Actor, entryID string) (*model.TimeEntry, error) {
	return t.review(ctx, actor, entryID, true)
}

// RejectEntry rejects a stopped interval. Rejected time is never paid.
func (t *TimeTracker) RejectEntry(ctx context.Context, actor auth.Actor, entryID string) (*model.TimeEntry, error) {
	return t.review(ctx, actor, entryID, false)
}

func (t *TimeTracker) review(ctx context.Context, actor auth.Actor, entryID string, approve bool) (*model.TimeEntry, error) {
	var e *model.TimeEntry
	err := t.inTx(ctx, func(ctx context.Context, tx core.LedgerTx, out *outbox) error {
		c, cur, err := tx.LockTimeEntry(ctx, entryID)
		if err != nil {
			return err
		}
		next, err := engagement.ReviewEntry(c, cur, actor, approve)
		if err != nil {
			return err
		}
		if err = tx.SetTimeEntryStatus(ctx, cur.ID, next); err != nil {
			return err
		}
		cur.Status = next
		e = cur
		event := model.EventTimeEntryRejected
		if approve {
			event = model.EventTimeEntryApproved
		}
		out.add(c.WorkerID, event, *e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}
