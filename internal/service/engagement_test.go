package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/engagement-ledger/internal/domain/engagement"
	"github.com/target/engagement-ledger/internal/domain/model"
	apperrors "github.com/target/engagement-ledger/internal/errors"
)

func TestEngagementService_ContractLifecycle(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	id := h.fixedContract(100000, model.ContractStatusPending)

	steps := []struct {
		actor  string
		action engagement.ContractAction
		want   model.ContractStatus
	}{
		{"worker", engagement.ActionConfirm, model.ContractStatusActive},
		{"employer", engagement.ActionPause, model.ContractStatusPaused},
		{"worker", engagement.ActionResume, model.ContractStatusActive},
		{"employer", engagement.ActionComplete, model.ContractStatusCompleted},
	}
	for _, step := range steps {
		actor := worker
		if step.actor == "employer" {
			actor = employer
		}
		c, err := h.eng.TransitionContract(ctx, actor, id, step.action)
		require.NoError(t, err, step.action)
		assert.Equal(t, step.want, c.Status)
		assert.Equal(t, step.want, h.store.Contract(id).Status)
	}

	_, err := h.eng.TransitionContract(ctx, employer, id, engagement.ActionCancel)
	assert.True(t, apperrors.IsInvalidState(err), "completed is terminal, got %v", err)

	assert.Equal(t, []model.EventType{
		model.EventContractConfirmed, model.EventContractPaused, model.EventContractResumed, model.EventContractCompleted,
	}, h.notes.events(employer.ID))
	assert.Equal(t, h.notes.events(employer.ID), h.notes.events(worker.ID))
}

func TestEngagementService_TransitionContract_Access(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	id := h.fixedContract(100000, model.ContractStatusPending)

	_, err := h.eng.TransitionContract(ctx, otherWorker, id, engagement.ActionConfirm)
	assert.True(t, apperrors.IsNotFound(err))

	_, err = h.eng.TransitionContract(ctx, employer, id, "archive")
	assert.True(t, apperrors.IsValidation(err))

	_, err = h.eng.TransitionContract(ctx, employer, "missing", engagement.ActionConfirm)
	assert.True(t, apperrors.IsNotFound(err))

	c, err := h.eng.TransitionContract(ctx, admin, id, engagement.ActionCancel)
	require.NoError(t, err)
	assert.Equal(t, model.ContractStatusCancelled, c.Status)
}

func TestEngagementService_CompleteBlockedByOutstandingWork(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	fixed := h.fixedContract(100000, model.ContractStatusActive)
	h.milestone(fixed, 40000, model.MilestoneStatusSubmitted)

	_, err := h.eng.TransitionContract(ctx, employer, fixed, engagement.ActionComplete)
	assert.True(t, apperrors.IsOutstandingWork(err), "got %v", err)
	assert.Equal(t, model.ContractStatusActive, h.store.Contract(fixed).Status)

	hourly := h.hourlyContract(2000, model.ContractStatusActive)
	h.approvedEntry(hourly, 30)
	_, err = h.eng.TransitionContract(ctx, employer, hourly, engagement.ActionComplete)
	assert.True(t, apperrors.IsOutstandingWork(err))
}

func TestEngagementService_CancelAsymmetry(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	id := h.fixedContract(100000, model.ContractStatusActive)

	_, p := h.settleApprovedMilestone(id, 25000)
	_, err := h.reconcile(p, model.OutcomeSuccess)
	require.NoError(t, err)

	_, err = h.eng.TransitionContract(ctx, worker, id, engagement.ActionCancel)
	assert.True(t, apperrors.IsForbidden(err), "worker cannot walk away after being paid, got %v", err)

	c, err := h.eng.TransitionContract(ctx, employer, id, engagement.ActionCancel)
	require.NoError(t, err)
	assert.Equal(t, model.ContractStatusCancelled, c.Status)
}

func TestEngagementService_MilestoneFlow(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	id := h.fixedContract(100000, model.ContractStatusActive)

	m, err := h.eng.CreateMilestone(ctx, employer, &model.CreateMilestoneRequest{
		ContractID: id, Title: "Design", AmountCents: 30000,
	})
	require.NoError(t, err)
	assert.Equal(t, model.MilestoneStatusPending, m.Status)

	_, err = h.eng.TransitionMilestone(ctx, employer, m.ID, engagement.MilestoneStart)
	assert.True(t, apperrors.IsForbidden(err))

	for _, step := range []struct {
		actor  string
		action engagement.MilestoneAction
	}{
		{"worker", engagement.MilestoneStart},
		{"worker", engagement.MilestoneSubmit},
		{"employer", engagement.MilestoneReject},
		{"worker", engagement.MilestoneStart},
		{"worker", engagement.MilestoneSubmit},
		{"employer", engagement.MilestoneApprove},
	} {
		actor := worker
		if step.actor == "employer" {
			actor = employer
		}
		_, err = h.eng.TransitionMilestone(ctx, actor, m.ID, step.action)
		require.NoError(t, err, step.action)
	}

	got := h.store.Milestone(m.ID)
	assert.Equal(t, model.MilestoneStatusApproved, got.Status)
	assert.Equal(t, 1, got.Revision, "the rejected loop bumps the revision once")

	_, err = h.eng.TransitionMilestone(ctx, employer, m.ID, engagement.MilestonePay)
	assert.True(t, apperrors.IsValidation(err), "pay is reserved for reconciliation")

	assert.Equal(t, []model.EventType{
		model.EventMilestoneCreated, model.EventMilestoneRejected, model.EventMilestoneApproved,
	}, h.notes.events(worker.ID))
	assert.Equal(t, []model.EventType{
		model.EventMilestoneStarted, model.EventMilestoneSubmitted,
		model.EventMilestoneStarted, model.EventMilestoneSubmitted,
	}, h.notes.events(employer.ID))
}

func TestEngagementService_AdminCannotDecideMilestones(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	id := h.fixedContract(100000, model.ContractStatusActive)
	submitted := h.milestone(id, 5000, model.MilestoneStatusSubmitted)
	pending := h.milestone(id, 5000, model.MilestoneStatusPending)

	for _, action := range []engagement.MilestoneAction{engagement.MilestoneApprove, engagement.MilestoneReject} {
		_, err := h.eng.TransitionMilestone(ctx, admin, submitted, action)
		assert.True(t, apperrors.IsForbidden(err), "%s: %v", action, err)
	}
	_, err := h.eng.TransitionMilestone(ctx, admin, pending, engagement.MilestoneStart)
	assert.True(t, apperrors.IsForbidden(err), "start: %v", err)

	assert.Equal(t, model.MilestoneStatusSubmitted, h.store.Milestone(submitted).Status)
	assert.Equal(t, model.MilestoneStatusPending, h.store.Milestone(pending).Status)
	assert.Empty(t, h.notes.events(worker.ID))

	_, err = h.settle.SettleMilestone(ctx, admin, submitted)
	assert.True(t, apperrors.IsInvalidState(err), "admins settle but the milestone must be approved first, got %v", err)
}

func TestEngagementService_CreateMilestone_Rules(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	hourly := h.hourlyContract(2000, model.ContractStatusActive)
	_, err := h.eng.CreateMilestone(ctx, employer, &model.CreateMilestoneRequest{ContractID: hourly, Title: "x", AmountCents: 1})
	assert.True(t, apperrors.IsInvalidState(err))

	fixed := h.fixedContract(1000, model.ContractStatusActive)
	_, err = h.eng.CreateMilestone(ctx, worker, &model.CreateMilestoneRequest{ContractID: fixed, Title: "x", AmountCents: 1})
	assert.True(t, apperrors.IsForbidden(err))

	_, err = h.eng.CreateMilestone(ctx, employer, &model.CreateMilestoneRequest{ContractID: fixed, Title: " ", AmountCents: 1})
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "title", apperrors.GetField(err))

	cancelled := h.fixedContract(1000, model.ContractStatusCancelled)
	_, err = h.eng.CreateMilestone(ctx, employer, &model.CreateMilestoneRequest{ContractID: cancelled, Title: "x", AmountCents: 1})
	assert.True(t, apperrors.IsInvalidState(err))
}

func TestEngagementService_PausedContractFreezesWork(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	id := h.fixedContract(100000, model.ContractStatusPaused)
	pending := h.milestone(id, 1000, model.MilestoneStatusPending)
	submitted := h.milestone(id, 1000, model.MilestoneStatusSubmitted)

	_, err := h.eng.TransitionMilestone(ctx, worker, pending, engagement.MilestoneStart)
	assert.True(t, apperrors.IsInvalidState(err))

	_, err = h.eng.TransitionMilestone(ctx, employer, submitted, engagement.MilestoneApprove)
	assert.True(t, apperrors.IsInvalidState(err))

	m, err := h.eng.TransitionMilestone(ctx, employer, submitted, engagement.MilestoneReject)
	require.NoError(t, err, "rejection is allowed while paused")
	assert.Equal(t, model.MilestoneStatusRejected, m.Status)
}

func TestEngagementService_ConcurrentApprove(t *testing.T) {
	h := newLedgerHarness(t)
	id := h.fixedContract(100000, model.ContractStatusActive)
	mID := h.milestone(id, 5000, model.MilestoneStatusSubmitted)

	const n = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		conflict int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.eng.TransitionMilestone(context.Background(), employer, mID, engagement.MilestoneApprove)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case apperrors.IsInvalidState(err):
				conflict++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, conflict)
	assert.Equal(t, []model.EventType{model.EventMilestoneApproved}, h.notes.events(worker.ID))
}

func TestEngagementService_Reads(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	id := h.fixedContract(100000, model.ContractStatusActive)
	h.milestone(id, 1000, model.MilestoneStatusPending)

	_, err := h.eng.GetContract(ctx, otherEmployer, id)
	assert.True(t, apperrors.IsNotFound(err))

	ms, err := h.eng.ListMilestones(ctx, worker, id)
	require.NoError(t, err)
	assert.Len(t, ms, 1)

	payments, err := h.eng.ListPayments(ctx, admin, id)
	require.NoError(t, err)
	assert.Empty(t, payments)

	_, err = h.eng.ListTimeEntries(ctx, otherWorker, id)
	assert.True(t, apperrors.IsNotFound(err))
}
