package engagement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/engagement-ledger/internal/domain/auth"
	"github.com/target/engagement-ledger/internal/domain/model"
	apperrors "github.com/target/engagement-ledger/internal/errors"
)

var (
	employer = auth.Actor{ID: "emp-1", Role: auth.RoleEmployer}
	worker   = auth.Actor{ID: "wrk-1", Role: auth.RoleWorker}
	stranger = auth.Actor{ID: "emp-2", Role: auth.RoleEmployer}
	admin    = auth.Actor{ID: "ops-1", Role: auth.RoleAdmin}
)

func hourlyContract(status model.ContractStatus) *model.Contract {
	rate := model.Cents(2000)
	return &model.Contract{
		ID:         "c1",
		EmployerID: employer.ID,
		WorkerID:   worker.ID,
		Type:       model.ContractTypeHourly,
		RateCents:  &rate,
		Status:     status,
	}
}

func fixedContract(status model.ContractStatus) *model.Contract {
	c := hourlyContract(status)
	c.Type = model.ContractTypeFixed
	c.RateCents = nil
	return c
}

func TestNextContractStatus_Transitions(t *testing.T) {
	tests := []struct {
		name     string
		from     model.ContractStatus
		actor    auth.Actor
		action   ContractAction
		facts    ContractFacts
		want     model.ContractStatus
		wantCode apperrors.ErrorCode
	}{
		{name: "employer confirms", from: model.ContractStatusPending, actor: employer, action: ActionConfirm, want: model.ContractStatusActive},
		{name: "worker confirms", from: model.ContractStatusPending, actor: worker, action: ActionConfirm, want: model.ContractStatusActive},
		{name: "confirm active", from: model.ContractStatusActive, actor: worker, action: ActionConfirm, wantCode: apperrors.ErrCodeInvalidState},
		{name: "worker pauses", from: model.ContractStatusActive, actor: worker, action: ActionPause, want: model.ContractStatusPaused},
		{name: "pause pending", from: model.ContractStatusPending, actor: employer, action: ActionPause, wantCode: apperrors.ErrCodeInvalidState},
		{name: "employer resumes", from: model.ContractStatusPaused, actor: employer, action: ActionResume, want: model.ContractStatusActive},
		{name: "resume active", from: model.ContractStatusActive, actor: employer, action: ActionResume, wantCode: apperrors.ErrCodeInvalidState},
		{name: "complete active", from: model.ContractStatusActive, actor: employer, action: ActionComplete, want: model.ContractStatusCompleted},
		{name: "complete paused", from: model.ContractStatusPaused, actor: worker, action: ActionComplete, want: model.ContractStatusCompleted},
		{name: "complete pending", from: model.ContractStatusPending, actor: employer, action: ActionComplete, wantCode: apperrors.ErrCodeInvalidState},
		{
			name: "complete with submitted milestone", from: model.ContractStatusActive, actor: employer, action: ActionComplete,
			facts: ContractFacts{OutstandingMilestones: 1}, wantCode: apperrors.ErrCodeOutstandingWork,
		},
		{
			name: "complete with approved unpaid time", from: model.ContractStatusActive, actor: worker, action: ActionComplete,
			facts: ContractFacts{UnpaidApprovedEntries: 2}, wantCode: apperrors.ErrCodeOutstandingWork,
		},
		{
			name: "cancel with outstanding work", from: model.ContractStatusActive, actor: employer, action: ActionCancel,
			facts: ContractFacts{OutstandingMilestones: 1}, want: model.ContractStatusCancelled,
		},
		{name: "cancel pending", from: model.ContractStatusPending, actor: worker, action: ActionCancel, want: model.ContractStatusCancelled},
		{
			name: "worker cancel after payment", from: model.ContractStatusActive, actor: worker, action: ActionCancel,
			facts: ContractFacts{CompletedPayments: 1}, wantCode: apperrors.ErrCodeForbidden,
		},
		{
			name: "employer cancel after payment", from: model.ContractStatusActive, actor: employer, action: ActionCancel,
			facts: ContractFacts{CompletedPayments: 3}, want: model.ContractStatusCancelled,
		},
		{name: "cancel completed", from: model.ContractStatusCompleted, actor: employer, action: ActionCancel, wantCode: apperrors.ErrCodeInvalidState},
		{name: "cancel cancelled", from: model.ContractStatusCancelled, actor: employer, action: ActionCancel, wantCode: apperrors.ErrCodeInvalidState},
		{name: "stranger", from: model.ContractStatusPending, actor: stranger, action: ActionConfirm, wantCode: apperrors.ErrCodeNotFound},
		{name: "admin cannot pause", from: model.ContractStatusActive, actor: admin, action: ActionPause, wantCode: apperrors.ErrCodeForbidden},
		{name: "admin cannot confirm", from: model.ContractStatusPending, actor: admin, action: ActionConfirm, wantCode: apperrors.ErrCodeForbidden},
		{
			name: "admin cancels after payment", from: model.ContractStatusActive, actor: admin, action: ActionCancel,
			facts: ContractFacts{CompletedPayments: 1}, want: model.ContractStatusCancelled,
		},
		{name: "unknown action", from: model.ContractStatusActive, actor: employer, action: "archive", wantCode: apperrors.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextContractStatus(hourlyContract(tt.from), tt.actor, tt.action, tt.facts)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, apperrors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthorize_RoleMismatch(t *testing.T) {
	c := hourlyContract(model.ContractStatusActive)
	// The worker's user id presented with the employer role is a party, but not as employer.
	_, err := Authorize(c, auth.Actor{ID: worker.ID, Role: auth.RoleEmployer}, "approve", PartyEmployer)
	assert.True(t, apperrors.IsForbidden(err))

	_, err = Authorize(c, worker, "approve", PartyEmployer)
	assert.True(t, apperrors.IsForbidden(err))

	p, err := Authorize(c, auth.System("payment-runner"), "settle", PartyEmployer, PartyOperator)
	require.NoError(t, err)
	assert.Equal(t, PartyOperator, p)

	p, err = Authorize(c, auth.System("payment-runner"), "approve", PartyEmployer)
	assert.True(t, apperrors.IsForbidden(err), "operators need to be listed, got %v", err)
	assert.Equal(t, PartyOperator, p)
}

// Operators settle and cancel but never make a party's decisions for it.
func TestOperatorCannotActForParties(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	end := t0.Add(time.Hour)
	operators := []auth.Actor{admin, auth.System("payment-runner")}

	milestoneMoves := []struct {
		action MilestoneAction
		from   model.MilestoneStatus
	}{
		{MilestoneStart, model.MilestoneStatusPending},
		{MilestoneSubmit, model.MilestoneStatusInProgress},
		{MilestoneApprove, model.MilestoneStatusSubmitted},
		{MilestoneReject, model.MilestoneStatusSubmitted},
	}
	for _, op := range operators {
		for _, mv := range milestoneMoves {
			t.Run(string(op.Role)+" milestone "+string(mv.action), func(t *testing.T) {
				m := &model.Milestone{ID: "m1", Status: mv.from}
				_, err := NextMilestoneStatus(fixedContract(model.ContractStatusActive), m, op, mv.action)
				assert.True(t, apperrors.IsForbidden(err), "got %v", err)
			})
		}

		t.Run(string(op.Role)+" time", func(t *testing.T) {
			c := hourlyContract(model.ContractStatusActive)
			assert.True(t, apperrors.IsForbidden(CanStartInterval(c, op)))

			open := &model.TimeEntry{WorkerID: worker.ID, StartTime: t0, Status: model.TimeEntryStatusPending}
			_, err := StopInterval(c, open, op, t0.Add(time.Hour), time.Minute)
			assert.True(t, apperrors.IsForbidden(err), "stop: %v", err)

			stopped := &model.TimeEntry{WorkerID: worker.ID, StartTime: t0, EndTime: &end, Status: model.TimeEntryStatusPending}
			for _, approve := range []bool{true, false} {
				_, err = ReviewEntry(c, stopped, op, approve)
				assert.True(t, apperrors.IsForbidden(err), "review approve=%v: %v", approve, err)
			}
		})

		t.Run(string(op.Role)+" milestone create", func(t *testing.T) {
			assert.True(t, apperrors.IsForbidden(CanCreateMilestone(fixedContract(model.ContractStatusActive), op)))
		})
	}
}

func TestMilestoneResubmissionLoop(t *testing.T) {
	c := fixedContract(model.ContractStatusActive)
	m := &model.Milestone{ID: "m1", ContractID: c.ID, AmountCents: 50000, Status: model.MilestoneStatusPending}

	step := func(actor auth.Actor, action MilestoneAction, want model.MilestoneStatus) {
		t.Helper()
		next, err := NextMilestoneStatus(c, m, actor, action)
		require.NoError(t, err, "action %s from %s", action, m.Status)
		require.Equal(t, want, next)
		m.Status = next
	}

	step(worker, MilestoneStart, model.MilestoneStatusInProgress)
	for round := 0; round < 2; round++ {
		step(worker, MilestoneSubmit, model.MilestoneStatusSubmitted)
		step(employer, MilestoneReject, model.MilestoneStatusRejected)
		step(worker, MilestoneStart, model.MilestoneStatusInProgress)
	}
	step(worker, MilestoneSubmit, model.MilestoneStatusSubmitted)
	step(employer, MilestoneApprove, model.MilestoneStatusApproved)

	paid, err := MarkMilestonePaid(m)
	require.NoError(t, err)
	assert.Equal(t, model.MilestoneStatusPaid, paid)
}

func TestNextMilestoneStatus_Rules(t *testing.T) {
	tests := []struct {
		name     string
		contract model.ContractStatus
		from     model.MilestoneStatus
		actor    auth.Actor
		action   MilestoneAction
		wantCode apperrors.ErrorCode
	}{
		{name: "employer cannot submit", contract: model.ContractStatusActive, from: model.MilestoneStatusInProgress, actor: employer, action: MilestoneSubmit, wantCode: apperrors.ErrCodeForbidden},
		{name: "worker cannot approve", contract: model.ContractStatusActive, from: model.MilestoneStatusSubmitted, actor: worker, action: MilestoneApprove, wantCode: apperrors.ErrCodeForbidden},
		{name: "approve on paused contract", contract: model.ContractStatusPaused, from: model.MilestoneStatusSubmitted, actor: employer, action: MilestoneApprove, wantCode: apperrors.ErrCodeInvalidState},
		{name: "approve on cancelled contract", contract: model.ContractStatusCancelled, from: model.MilestoneStatusSubmitted, actor: employer, action: MilestoneApprove, wantCode: apperrors.ErrCodeInvalidState},
		{name: "approve twice", contract: model.ContractStatusActive, from: model.MilestoneStatusApproved, actor: employer, action: MilestoneApprove, wantCode: apperrors.ErrCodeInvalidState},
		{name: "pay is not an actor action", contract: model.ContractStatusActive, from: model.MilestoneStatusApproved, actor: admin, action: MilestonePay, wantCode: apperrors.ErrCodeValidation},
		{name: "reject on paused contract", contract: model.ContractStatusPaused, from: model.MilestoneStatusSubmitted, actor: employer, action: MilestoneReject},
		{name: "start pending", contract: model.ContractStatusActive, from: model.MilestoneStatusPending, actor: worker, action: MilestoneStart},
		{name: "start paid", contract: model.ContractStatusActive, from: model.MilestoneStatusPaid, actor: worker, action: MilestoneStart, wantCode: apperrors.ErrCodeInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := fixedContract(tt.contract)
			m := &model.Milestone{ID: "m1", Status: tt.from}
			_, err := NextMilestoneStatus(c, m, tt.actor, tt.action)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantCode, apperrors.GetCode(err))
		})
	}
}

func TestCanSettleMilestone(t *testing.T) {
	m := &model.Milestone{Status: model.MilestoneStatusApproved}
	assert.NoError(t, CanSettleMilestone(fixedContract(model.ContractStatusPaused), m))
	assert.True(t, apperrors.IsInvalidState(CanSettleMilestone(fixedContract(model.ContractStatusCancelled), m)))

	m.Status = model.MilestoneStatusPaid
	assert.True(t, apperrors.IsAlreadySettled(CanSettleMilestone(fixedContract(model.ContractStatusActive), m)))

	m.Status = model.MilestoneStatusSubmitted
	assert.True(t, apperrors.IsInvalidState(CanSettleMilestone(fixedContract(model.ContractStatusActive), m)))
}

func TestCanCreateMilestone(t *testing.T) {
	assert.NoError(t, CanCreateMilestone(fixedContract(model.ContractStatusPending), employer))
	assert.True(t, apperrors.IsForbidden(CanCreateMilestone(fixedContract(model.ContractStatusActive), worker)))
	assert.True(t, apperrors.IsInvalidState(CanCreateMilestone(hourlyContract(model.ContractStatusActive), employer)))
	assert.True(t, apperrors.IsInvalidState(CanCreateMilestone(fixedContract(model.ContractStatusCompleted), employer)))
}

func TestStopInterval(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	c := hourlyContract(model.ContractStatusActive)
	e := &model.TimeEntry{ID: "t1", ContractID: c.ID, WorkerID: worker.ID, StartTime: t0, Status: model.TimeEntryStatusPending}

	res, err := StopInterval(c, e, worker, t0.Add(95*time.Minute), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 95, res.DurationMinutes)
	assert.Equal(t, model.TimeEntryStatusPending, res.Status)

	_, err = StopInterval(c, e, worker, t0.Add(30*time.Second), time.Minute)
	assert.True(t, apperrors.IsDegenerateInterval(err))

	_, err = StopInterval(c, e, employer, t0.Add(time.Hour), time.Minute)
	assert.True(t, apperrors.IsForbidden(err))

	end := t0.Add(time.Hour)
	e.EndTime = &end
	_, err = StopInterval(c, e, worker, t0.Add(2*time.Hour), time.Minute)
	assert.True(t, apperrors.IsInvalidState(err))
}

func TestCanStartInterval(t *testing.T) {
	assert.NoError(t, CanStartInterval(hourlyContract(model.ContractStatusActive), worker))
	assert.True(t, apperrors.IsInvalidState(CanStartInterval(hourlyContract(model.ContractStatusPaused), worker)))
	assert.True(t, apperrors.IsInvalidState(CanStartInterval(fixedContract(model.ContractStatusActive), worker)))
	assert.True(t, apperrors.IsForbidden(CanStartInterval(hourlyContract(model.ContractStatusActive), employer)))
	assert.True(t, apperrors.IsNotFound(CanStartInterval(hourlyContract(model.ContractStatusActive), auth.Actor{ID: "w9", Role: auth.RoleWorker})))
}

func TestReviewEntry(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	end := t0.Add(time.Hour)
	c := hourlyContract(model.ContractStatusActive)
	e := &model.TimeEntry{WorkerID: worker.ID, StartTime: t0, EndTime: &end, Status: model.TimeEntryStatusPending}

	got, err := ReviewEntry(c, e, employer, true)
	require.NoError(t, err)
	assert.Equal(t, model.TimeEntryStatusApproved, got)

	got, err = ReviewEntry(c, e, employer, false)
	require.NoError(t, err)
	assert.Equal(t, model.TimeEntryStatusRejected, got)

	e.Status = model.TimeEntryStatusRejected
	_, err = ReviewEntry(c, e, employer, true)
	assert.True(t, apperrors.IsInvalidState(err), "rejected entries are not resubmittable")

	e.Status = model.TimeEntryStatusPending
	e.EndTime = nil
	_, err = ReviewEntry(c, e, employer, true)
	assert.True(t, apperrors.IsInvalidState(err))
}

func TestSettleableEntriesAndBatchAmount(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	end := t0.Add(time.Hour)
	mins := func(n int) *int { return &n }
	ref := "p0"
	entries := []model.TimeEntry{
		{ID: "a", Status: model.TimeEntryStatusApproved, EndTime: &end, DurationMinutes: mins(95)},
		{ID: "b", Status: model.TimeEntryStatusApproved, EndTime: &end, DurationMinutes: mins(30)},
		{ID: "c", Status: model.TimeEntryStatusApproved, EndTime: &end, DurationMinutes: mins(10), PaymentID: &ref},
		{ID: "d", Status: model.TimeEntryStatusPending, EndTime: &end, DurationMinutes: mins(10)},
		{ID: "e", Status: model.TimeEntryStatusPaid, EndTime: &end, DurationMinutes: mins(10)},
	}
	batch := SettleableEntries(entries)
	require.Len(t, batch, 2)

	amount, minutes := BatchAmount(batch, 2000)
	assert.Equal(t, 125, minutes)
	assert.Equal(t, model.Cents(3167+1000), amount)
}
