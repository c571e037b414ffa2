package engagement

import (
	"github.com/target/engagement-ledger/internal/domain/auth"
	"github.com/target/engagement-ledger/internal/domain/model"
	apperrors "github.com/target/engagement-ledger/internal/errors"
)

// ContractAction is an actor-initiated contract transition.
type ContractAction string

const (
	ActionConfirm  ContractAction = "confirm"
	ActionPause    ContractAction = "pause"
	ActionResume   ContractAction = "resume"
	ActionComplete ContractAction = "complete"
	ActionCancel   ContractAction = "cancel"
)

// Valid reports whether a is a known contract action.
func (a ContractAction) Valid() bool {
	_, ok := contractTransitions[a]
	return ok
}

type contractRule struct {
	from []model.ContractStatus
	to   model.ContractStatus
	by   []Party
}

// Operators may cancel a contract but never drive it through its working states.
var (
	eitherParty     = []Party{PartyEmployer, PartyWorker}
	partyOrOperator = []Party{PartyEmployer, PartyWorker, PartyOperator}
)

var contractTransitions = map[ContractAction]contractRule{
	ActionConfirm: {
		from: []model.ContractStatus{model.ContractStatusPending},
		to:   model.ContractStatusActive,
		by:   eitherParty,
	},
	ActionPause: {
		from: []model.ContractStatus{model.ContractStatusActive},
		to:   model.ContractStatusPaused,
		by:   eitherParty,
	},
	ActionResume: {
		from: []model.ContractStatus{model.ContractStatusPaused},
		to:   model.ContractStatusActive,
		by:   eitherParty,
	},
	ActionComplete: {
		from: []model.ContractStatus{model.ContractStatusActive, model.ContractStatusPaused},
		to:   model.ContractStatusCompleted,
		by:   eitherParty,
	},
	ActionCancel: {
		from: []model.ContractStatus{
			model.ContractStatusPending, model.ContractStatusActive, model.ContractStatusPaused,
		},
		to: model.ContractStatusCancelled,
		by: partyOrOperator,
	},
}

// ContractFacts is the state of the consistency group a contract transition depends on.
type ContractFacts struct {
	// OutstandingMilestones counts milestones in submitted or approved.
	OutstandingMilestones int
	// UnpaidApprovedEntries counts approved time entries not yet paid.
	UnpaidApprovedEntries int
	// CompletedPayments counts payments that reached completed (including later refunds).
	CompletedPayments int
}

// CanComplete reports whether no outstanding work blocks completion.
func (f ContractFacts) CanComplete() bool {
	return f.OutstandingMilestones == 0 && f.UnpaidApprovedEntries == 0
}

// NextContractStatus validates action against the contract and its consistency
// group and returns the status to persist. Checks run in order: authorization,
// current status, then work and payment facts.
func NextContractStatus(
	c *model.Contract,
	actor auth.Actor,
	action ContractAction,
	facts ContractFacts,
) (model.ContractStatus, error) {
	rule, ok := contractTransitions[action]
	if !ok {
		return "", apperrors.Validationf("unknown contract action %q", action)
	}

	party, err := Authorize(c, actor, string(action)+" the contract", rule.by...)
	if err != nil {
		return "", err
	}

	if !statusIn(c.Status, rule.from) {
		return "", apperrors.InvalidStatef("cannot %s a contract that is %s", action, c.Status)
	}

	switch action {
	case ActionComplete:
		if !facts.CanComplete() {
			return "", apperrors.OutstandingWork(outstandingMessage(facts))
		}
	case ActionCancel:
		if party == PartyWorker && facts.CompletedPayments > 0 {
			return "", apperrors.Forbidden("the worker cannot cancel a contract after a payment has completed")
		}
	}
	return rule.to, nil
}

func outstandingMessage(f ContractFacts) string {
	switch {
	case f.OutstandingMilestones > 0 && f.UnpaidApprovedEntries > 0:
		return "contract has submitted or approved milestones and approved unpaid time entries"
	case f.OutstandingMilestones > 0:
		return "contract has submitted or approved milestones that must be paid or rejected"
	default:
		return "contract has approved time entries that must be paid"
	}
}

// RequireMutable fails when the contract is terminal.
func RequireMutable(c *model.Contract) error {
	if c.Status.Terminal() {
		return apperrors.InvalidStatef("contract is %s", c.Status)
	}
	return nil
}

// RequireStatus fails unless the contract is in one of statuses.
func RequireStatus(c *model.Contract, statuses ...model.ContractStatus) error {
	if statusIn(c.Status, statuses) {
		return nil
	}
	return apperrors.InvalidStatef("contract is %s", c.Status)
}

func statusIn[S comparable](s S, set []S) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
