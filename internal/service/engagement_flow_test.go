package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/engagement-ledger/internal/domain/engagement"
	"github.com/target/engagement-ledger/internal/domain/model"
	apperrors "github.com/target/engagement-ledger/internal/errors"
)

// An hourly engagement from job post to paid time: the worker is hired, logs 95
// minutes at 20.00/h, the employer approves and settles, and the gateway confirms.
func TestHourlyEngagement_PostToPaidTime(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	post, err := h.apps.CreateJobPost(ctx, employer, &model.CreateJobPostRequest{
		Title:        "API integration",
		ContractType: model.ContractTypeHourly,
		RateCents:    cents(2000),
	})
	require.NoError(t, err)

	app, err := h.apps.Apply(ctx, worker, &model.CreateApplicationRequest{JobPostID: post.ID})
	require.NoError(t, err)
	hired, err := h.apps.AcceptApplication(ctx, employer, app.ID)
	require.NoError(t, err)
	contractID := hired.Contract.ID
	assert.Equal(t, model.ContractStatusPending, hired.Contract.Status)

	c, err := h.eng.TransitionContract(ctx, worker, contractID, engagement.ActionConfirm)
	require.NoError(t, err)
	assert.Equal(t, model.ContractStatusActive, c.Status)

	entry, err := h.tracker.StartInterval(ctx, worker, contractID)
	require.NoError(t, err)
	h.clock.Advance(95 * time.Minute)
	entry, err = h.tracker.StopInterval(ctx, worker, entry.ID)
	require.NoError(t, err)
	require.NotNil(t, entry.DurationMinutes)
	assert.Equal(t, 95, *entry.DurationMinutes)

	_, err = h.tracker.ApproveEntry(ctx, employer, entry.ID)
	require.NoError(t, err)

	_, err = h.eng.TransitionContract(ctx, employer, contractID, engagement.ActionComplete)
	assert.True(t, apperrors.IsOutstandingWork(err), "approved unpaid time blocks completion, got %v", err)

	settled, err := h.settle.SettleTimeEntries(ctx, employer, contractID)
	require.NoError(t, err)
	require.False(t, settled.AlreadySettled)
	p := settled.Payment
	require.NotNil(t, p)
	assert.Equal(t, model.Cents(3167), p.AmountCents)
	assert.Equal(t, model.PaymentStatusPending, p.Status)
	assert.Equal(t, []string{entry.ID}, p.TimeEntryIDs)
	assert.Equal(t, []string{p.ID}, h.store.PaymentJobIDs())

	res, err := h.reconcile(p, model.OutcomeSuccess)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, model.PaymentStatusCompleted, res.Payment.Status)

	assert.Equal(t, model.TimeEntryStatusPaid, h.store.TimeEntry(entry.ID).Status)
	assert.Equal(t, model.PaymentStatusCompleted, h.store.Payment(p.ID).Status)
	assert.Contains(t, h.notes.events(worker.ID), model.EventTimeEntryPaid)
	assert.Empty(t, h.alerts.alerts)

	c, err = h.eng.TransitionContract(ctx, employer, contractID, engagement.ActionComplete)
	require.NoError(t, err, "nothing is outstanding once the time is paid")
	assert.Equal(t, model.ContractStatusCompleted, c.Status)
}
