package engagement

import (
	"github.com/target/engagement-ledger/internal/domain/auth"
	"github.com/target/engagement-ledger/internal/domain/model"
	apperrors "github.com/target/engagement-ledger/internal/errors"
)

// MilestoneAction is a milestone transition.
type MilestoneAction string

const (
	MilestoneStart   MilestoneAction = "start"
	MilestoneSubmit  MilestoneAction = "submit"
	MilestoneApprove MilestoneAction = "approve"
	MilestoneReject  MilestoneAction = "reject"
	// MilestonePay is only driven by settlement reconciliation.
	MilestonePay MilestoneAction = "pay"
)

type milestoneRule struct {
	from     []model.MilestoneStatus
	to       model.MilestoneStatus
	by       []Party
	contract []model.ContractStatus
}

var (
	workingContract = []model.ContractStatus{model.ContractStatusActive}
	liveContract    = []model.ContractStatus{model.ContractStatusActive, model.ContractStatusPaused}
)

var milestoneTransitions = map[MilestoneAction]milestoneRule{
	MilestoneStart: {
		// rejected → in_progress is the resubmission loop.
		from:     []model.MilestoneStatus{model.MilestoneStatusPending, model.MilestoneStatusRejected},
		to:       model.MilestoneStatusInProgress,
		by:       []Party{PartyWorker},
		contract: workingContract,
	},
	MilestoneSubmit: {
		from:     []model.MilestoneStatus{model.MilestoneStatusInProgress},
		to:       model.MilestoneStatusSubmitted,
		by:       []Party{PartyWorker},
		contract: workingContract,
	},
	MilestoneApprove: {
		from:     []model.MilestoneStatus{model.MilestoneStatusSubmitted},
		to:       model.MilestoneStatusApproved,
		by:       []Party{PartyEmployer},
		contract: workingContract,
	},
	MilestoneReject: {
		from:     []model.MilestoneStatus{model.MilestoneStatusSubmitted},
		to:       model.MilestoneStatusRejected,
		by:       []Party{PartyEmployer},
		contract: liveContract,
	},
}

// NextMilestoneStatus validates an actor-driven milestone transition and returns
// the status to persist. MilestonePay is rejected here; use MarkMilestonePaid.
func NextMilestoneStatus(
	c *model.Contract,
	m *model.Milestone,
	actor auth.Actor,
	action MilestoneAction,
) (model.MilestoneStatus, error) {
	rule, ok := milestoneTransitions[action]
	if !ok {
		return "", apperrors.Validationf("unknown milestone action %q", action)
	}
	if _, err := Authorize(c, actor, string(action)+" a milestone", rule.by...); err != nil {
		return "", err
	}
	if err := RequireMutable(c); err != nil {
		return "", err
	}
	if !statusIn(c.Status, rule.contract) {
		return "", apperrors.InvalidStatef("cannot %s a milestone while the contract is %s", action, c.Status)
	}
	if !statusIn(m.Status, rule.from) {
		return "", apperrors.InvalidStatef("cannot %s a milestone that is %s", action, m.Status)
	}
	return rule.to, nil
}

// CanCreateMilestone checks that actor may add a milestone to c.
func CanCreateMilestone(c *model.Contract, actor auth.Actor) error {
	if _, err := Authorize(c, actor, "add milestones", PartyEmployer); err != nil {
		return err
	}
	if c.Type != model.ContractTypeFixed {
		return apperrors.InvalidState("milestones can only be added to fixed contracts")
	}
	return RequireMutable(c)
}

// CanSettleMilestone checks the settlement preconditions for a milestone. An
// already paid milestone reports AlreadySettled.
func CanSettleMilestone(c *model.Contract, m *model.Milestone) error {
	if m.Status == model.MilestoneStatusPaid {
		return apperrors.AlreadySettled("milestone is already paid")
	}
	if m.Status != model.MilestoneStatusApproved {
		return apperrors.InvalidStatef("cannot settle a milestone that is %s", m.Status)
	}
	if !statusIn(c.Status, liveContract) {
		return apperrors.InvalidStatef("cannot settle while the contract is %s", c.Status)
	}
	return nil
}

// MarkMilestonePaid validates the system-driven approved → paid transition applied
// when the gateway confirms a payment. Contract status is not checked: the money
// has already moved and the ledger must record it.
func MarkMilestonePaid(m *model.Milestone) (model.MilestoneStatus, error) {
	if m.Status == model.MilestoneStatusPaid {
		return "", apperrors.AlreadySettled("milestone is already paid")
	}
	if m.Status != model.MilestoneStatusApproved {
		return "", apperrors.InvalidStatef("cannot pay a milestone that is %s", m.Status)
	}
	return model.MilestoneStatusPaid, nil
}
