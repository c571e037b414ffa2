package service

import (
	"context"

	"github.com/target/engagement-ledger/internal/core"
	"github.com/target/engagement-ledger/internal/domain/auth"
	"github.com/target/engagement-ledger/internal/domain/engagement"
	"github.com/target/engagement-ledger/internal/domain/model"
)

// EngagementService drives contract and milestone lifecycles and serves the
// party-scoped reads of a contract.
type EngagementService struct {
	ledgerBase
}

// NewEngagementService constructs an EngagementService.
func NewEngagementService(deps LedgerDeps) (*EngagementService, error) {
	base, err := newLedgerBase(deps, "engagement_service")
	if err != nil {
		return nil, err
	}
	return &EngagementService{ledgerBase: base}, nil
}

var contractEvents = map[engagement.ContractAction]model.EventType{
	engagement.ActionConfirm:  model.EventContractConfirmed,
	engagement.ActionPause:    model.EventContractPaused,
	engagement.ActionResume:   model.EventContractResumed,
	engagement.ActionComplete: model.EventContractCompleted,
	engagement.ActionCancel:   model.EventContractCancelled,
}

// TransitionContract applies action to the contract under its row lock.
func (s *EngagementService) TransitionContract(
	ctx context.Context,
	actor auth.Actor,
	contractID string,
	action engagement.ContractAction,
) (*model.Contract, error) {
	var c *model.Contract
	err := s.inTx(ctx, func(ctx context.Context, tx core.LedgerTx, out *outbox) error {
		var err error
		c, err = tx.LockContract(ctx, contractID)
		if err != nil {
			return err
		}
		facts, err := tx.ContractFacts(ctx, c.ID)
		if err != nil {
			return err
		}
		next, err := engagement.NextContractStatus(c, actor, action, facts)
		if err != nil {
			return err
		}
		if err = tx.SetContractStatus(ctx, c.ID, next); err != nil {
			return err
		}
		c.Status = next
		c.UpdatedAt = s.now()
		out.both(c, contractEvents[action], *c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "contract transitioned",
		"contract_id", c.ID, "action", action, "status", c.Status, "actor", actor.String())
	return c, nil
}

// CreateMilestone adds a pending milestone to a fixed contract.
func (s *EngagementService) CreateMilestone(
	ctx context.Context,
	actor auth.Actor,
	req *model.CreateMilestoneRequest,
) (*model.Milestone, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var m *model.Milestone
	err := s.inTx(ctx, func(ctx context.Context, tx core.LedgerTx, out *outbox) error {
		c, err := tx.LockContract(ctx, req.ContractID)
		if err != nil {
			return err
		}
		if err = engagement.CanCreateMilestone(c, actor); err != nil {
			return err
		}
		m = &model.Milestone{
			ContractID:  c.ID,
			Title:       req.Title,
			AmountCents: req.AmountCents,
			DueDate:     req.DueDate,
			Status:      model.MilestoneStatusPending,
		}
		if err = tx.InsertMilestone(ctx, m); err != nil {
			return err
		}
		out.add(c.WorkerID, model.EventMilestoneCreated, *m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

var milestoneEvents = map[engagement.MilestoneAction]model.EventType{
	engagement.MilestoneStart:   model.EventMilestoneStarted,
	engagement.MilestoneSubmit:  model.EventMilestoneSubmitted,
	engagement.MilestoneApprove: model.EventMilestoneApproved,
	engagement.MilestoneReject:  model.EventMilestoneRejected,
}

// TransitionMilestone applies a worker or employer milestone action. Restarting a
// rejected milestone bumps its revision.
func (s *EngagementService) TransitionMilestone(
	ctx context.Context,
	actor auth.Actor,
	milestoneID string,
	action engagement.MilestoneAction,
) (*model.Milestone, error) {
	var m *model.Milestone
	err := s.inTx(ctx, func(ctx context.Context, tx core.LedgerTx, out *outbox) error {
		c, cur, err := tx.LockMilestone(ctx, milestoneID)
		if err != nil {
			return err
		}
		next, err := engagement.NextMilestoneStatus(c, cur, actor, action)
		if err != nil {
			return err
		}
		revision := cur.Revision
		if action == engagement.MilestoneStart && cur.Status == model.MilestoneStatusRejected {
			revision++
		}
		if err = tx.SetMilestoneStatus(ctx, cur.ID, next, revision); err != nil {
			return err
		}
		cur.Status, cur.Revision, cur.UpdatedAt = next, revision, s.now()
		m = cur

		// The counterpart of whoever acted hears about it.
		if action == engagement.MilestoneStart || action == engagement.MilestoneSubmit {
			out.add(c.EmployerID, milestoneEvents[action], *m)
		} else {
			out.add(c.WorkerID, milestoneEvents[action], *m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetContract returns the contract to one of its parties or an operator.
func (s *EngagementService) GetContract(ctx context.Context, actor auth.Actor, contractID string) (*model.Contract, error) {
	c, err := s.ledger.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if _, err = engagement.Authorize(c, actor, "view",
		engagement.PartyEmployer, engagement.PartyWorker, engagement.PartyOperator); err != nil {
		return nil, err
	}
	return c, nil
}

// ListMilestones returns the contract's milestones to a party.
func (s *EngagementService) ListMilestones(ctx context.Context, actor auth.Actor, contractID string) ([]model.Milestone, error) {
	if _, err := s.GetContract(ctx, actor, contractID); err != nil {
		return nil, err
	}
	return s.ledger.ListMilestones(ctx, contractID)
}

// ListTimeEntries returns the contract's time entries to a party.
func (s *EngagementService) ListTimeEntries(ctx context.Context, actor auth.Actor, contractID string) ([]model.TimeEntry, error) {
	if _, err := s.GetContract(ctx, actor, contractID); err != nil {
		return nil, err
	}
	return s.ledger.ListTimeEntries(ctx, contractID)
}

// ListPayments returns the contract's payments to a party.
func (s *EngagementService) ListPayments(ctx context.Context, actor auth.Actor, contractID string) ([]model.Payment, error) {
	if _, err := s.GetContract(ctx, actor, contractID); err != nil {
		return nil, err
	}
	return s.ledger.ListPayments(ctx, contractID)
}
