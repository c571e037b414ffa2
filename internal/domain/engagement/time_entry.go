package engagement

import (
	"time"

	"github.com/target/engagement-ledger/internal/domain/auth"
	"github.com/target/engagement-ledger/internal/domain/model"
	apperrors "github.com/target/engagement-ledger/internal/errors"
)

// DefaultMinBillable is the shortest interval accepted by StopInterval.
const DefaultMinBillable = time.Minute

// CanStartInterval checks that actor may open an interval on c. The open-interval
// uniqueness check needs storage and is done by the caller.
func CanStartInterval(c *model.Contract, actor auth.Actor) error {
	if _, err := Authorize(c, actor, "track time", PartyWorker); err != nil {
		return err
	}
	if c.Type != model.ContractTypeHourly {
		return apperrors.InvalidState("time can only be tracked on hourly contracts")
	}
	if c.Status != model.ContractStatusActive {
		return apperrors.InvalidStatef("cannot start an interval while the contract is %s", c.Status)
	}
	return nil
}

// StopResult is the derived state of a stopped interval.
type StopResult struct {
	EndTime         time.Time
	DurationMinutes int
	Status          model.TimeEntryStatus
}

// StopInterval closes an open entry at now. Intervals shorter than minBillable are
// rejected with DegenerateInterval and the entry stays open.
func StopInterval(
	c *model.Contract,
	e *model.TimeEntry,
	actor auth.Actor,
	now time.Time,
	minBillable time.Duration,
) (StopResult, error) {
	if _, err := Authorize(c, actor, "stop an interval", PartyWorker); err != nil {
		return StopResult{}, err
	}
	if actor.Role == auth.RoleWorker && e.WorkerID != actor.ID {
		return StopResult{}, apperrors.NotFound("time entry not found")
	}
	if !statusIn(c.Status, liveContract) {
		return StopResult{}, apperrors.InvalidStatef("cannot stop an interval while the contract is %s", c.Status)
	}
	if !e.Open() {
		return StopResult{}, apperrors.InvalidState("interval is already stopped")
	}
	if minBillable <= 0 {
		minBillable = DefaultMinBillable
	}
	if now.Sub(e.StartTime) < minBillable {
		return StopResult{}, apperrors.DegenerateInterval("interval is shorter than the minimum billable unit of " +
			minBillable.String())
	}
	return StopResult{
		EndTime:         now,
		DurationMinutes: model.BillableMinutes(e.StartTime, now),
		Status:          model.TimeEntryStatusPending,
	}, nil
}

// ReviewEntry validates an employer's approve or reject decision on a stopped
// entry. Rejection is final: the worker logs a new interval instead.
func ReviewEntry(c *model.Contract, e *model.TimeEntry, actor auth.Actor, approve bool) (model.TimeEntryStatus, error) {
	verb := "reject"
	to := model.TimeEntryStatusRejected
	if approve {
		verb = "approve"
		to = model.TimeEntryStatusApproved
	}
	if _, err := Authorize(c, actor, verb+" time entries", PartyEmployer); err != nil {
		return "", err
	}
	if !statusIn(c.Status, liveContract) {
		return "", apperrors.InvalidStatef("cannot %s time while the contract is %s", verb, c.Status)
	}
	if e.Open() {
		return "", apperrors.InvalidStatef("cannot %s an open interval", verb)
	}
	if e.Status != model.TimeEntryStatusPending {
		return "", apperrors.InvalidStatef("cannot %s a time entry that is %s", verb, e.Status)
	}
	return to, nil
}

// SettleableEntries filters the approved, unpaid entries not attached to any payment.
func SettleableEntries(entries []model.TimeEntry) []model.TimeEntry {
	out := make([]model.TimeEntry, 0, len(entries))
	for _, e := range entries {
		if e.Status == model.TimeEntryStatusApproved && e.PaymentID == nil && !e.Open() {
			out = append(out, e)
		}
	}
	return out
}

// BatchAmount prices a batch of entries at the contract rate. Each entry is priced
// separately so that a per-entry amount can be audited against the batch total.
func BatchAmount(entries []model.TimeEntry, rate model.Cents) (model.Cents, int) {
	var total model.Cents
	minutes := 0
	for _, e := range entries {
		total += model.HourlyAmount(e.Minutes(), rate)
		minutes += e.Minutes()
	}
	return total, minutes
}
