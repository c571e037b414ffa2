package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/target/engagement-ledger/internal/core"
	"github.com/target/engagement-ledger/internal/domain/auth"
	"github.com/target/engagement-ledger/internal/domain/engagement"
	"github.com/target/engagement-ledger/internal/domain/model"
	apperrors "github.com/target/engagement-ledger/internal/errors"
	"github.com/target/engagement-ledger/internal/observability/metrics"
	"github.com/target/engagement-ledger/internal/service/opsalert"
)

const (
	defaultPaymentMaxRetries = 5
	paymentJobPriority       = 50

	reconcileApplied  = "applied"
	reconcileReplay   = "replay"
	reconcileRejected = "rejected"
)

// SettlementOptions configures a SettlementService.
type SettlementOptions struct {
	LedgerDeps
	Fees    FeePolicy           // Required
	Gateway core.PaymentGateway // Optional: required by SubmitPayment
	Alerts  *opsalert.Service   // Optional: refund candidate alerts
	// PaymentMaxRetries is the outbox retry budget of a payment submission.
	PaymentMaxRetries int
}

// SettlementService is the escrow settlement engine. It creates payments for
// approved work, hands them to the gateway through the outbox and applies the
// gateway's outcomes back onto the ledger.
type SettlementService struct {
	ledgerBase
	fees       FeePolicy
	gateway    core.PaymentGateway
	alerts     *opsalert.Service
	maxRetries int
}

// NewSettlementService constructs a SettlementService.
func NewSettlementService(opts SettlementOptions) (*SettlementService, error) {
	base, err := newLedgerBase(opts.LedgerDeps, "settlement_service")
	if err != nil {
		return nil, err
	}
	if opts.Fees == nil {
		return nil, errors.New("fee policy is required")
	}
	retries := opts.PaymentMaxRetries
	if retries <= 0 {
		retries = defaultPaymentMaxRetries
	}
	return &SettlementService{
		ledgerBase: base,
		fees:       opts.Fees,
		gateway:    opts.Gateway,
		alerts:     opts.Alerts,
		maxRetries: retries,
	}, nil
}

// SettleMilestone creates the payment for an approved milestone. A milestone that
// is paid or already has a live payment is reported as AlreadySettled together
// with that payment; no second payment is ever created.
func (s *SettlementService) SettleMilestone(
	ctx context.Context,
	actor auth.Actor,
	milestoneID string,
) (*model.SettlementResult, error) {
	var res model.SettlementResult
	err := s.inTx(ctx, func(ctx context.Context, tx core.LedgerTx, out *outbox) error {
		res = model.SettlementResult{}
		c, m, err := tx.LockMilestone(ctx, milestoneID)
		if err != nil {
			return err
		}
		if _, err = engagement.Authorize(c, actor, "settle milestones", engagement.PartyEmployer, engagement.PartyOperator); err != nil {
			return err
		}
		existing, err := tx.FindMilestonePayment(ctx, m.ID)
		if err != nil {
			return err
		}
		if existing != nil || m.Status == model.MilestoneStatusPaid {
			res.AlreadySettled = true
			res.Payment = existing
			return nil
		}
		if err = engagement.CanSettleMilestone(c, m); err != nil {
			return err
		}

		milestone := m.ID
		p := &model.Payment{
			ContractID:  c.ID,
			MilestoneID: &milestone,
			Kind:        model.PaymentKindMilestone,
			PayerID:     c.EmployerID,
			PayeeID:     c.WorkerID,
			AmountCents: m.AmountCents,
		}
		if err = s.createPayment(ctx, tx, p); err != nil {
			return err
		}
		res.Payment = p
		out.both(c, model.EventPaymentPending, *p)
		return nil
	})
	s.recordSettlement(ctx, model.PaymentKindMilestone, &res, err)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// SettleTimeEntries creates one payment for every approved, unpaid time entry of
// an hourly contract that is not already part of a live payment. Each entry is
// priced at the contract rate with half-up rounding to the cent.
func (s *SettlementService) SettleTimeEntries(
	ctx context.Context,
	actor auth.Actor,
	contractID string,
) (*model.SettlementResult, error) {
	var res model.SettlementResult
	err := s.inTx(ctx, func(ctx context.Context, tx core.LedgerTx, out *outbox) error {
		res = model.SettlementResult{}
		c, err := tx.LockContract(ctx, contractID)
		if err != nil {
			return err
		}
		if _, err = engagement.Authorize(c, actor, "settle time", engagement.PartyEmployer, engagement.PartyOperator); err != nil {
			return err
		}
		if c.Type != model.ContractTypeHourly {
			return apperrors.InvalidState("only hourly contracts have time to settle")
		}
		if err = engagement.RequireStatus(c, model.ContractStatusActive, model.ContractStatusPaused); err != nil {
			return err
		}

		candidates, err := tx.ListTimeEntriesForSettlement(ctx, c.ID)
		if err != nil {
			return err
		}
		batch := engagement.SettleableEntries(candidates)
		if len(batch) == 0 {
			res.AlreadySettled = true
			return nil
		}
		amount, minutes := engagement.BatchAmount(batch, c.Rate())
		if amount <= 0 {
			return apperrors.InvalidStatef("%d approved minutes price to zero at the contract rate", minutes)
		}

		p := &model.Payment{
			ContractID:  c.ID,
			Kind:        model.PaymentKindTime,
			PayerID:     c.EmployerID,
			PayeeID:     c.WorkerID,
			AmountCents: amount,
		}
		if err = s.createPayment(ctx, tx, p); err != nil {
			return err
		}
		ids := make([]string, len(batch))
		for i := range batch {
			ids[i] = batch[i].ID
		}
		if err = tx.AttachTimeEntries(ctx, p.ID, ids); err != nil {
			return err
		}
		p.TimeEntryIDs = ids
		res.Payment = p
		out.both(c, model.EventPaymentPending, *p)
		return nil
	})
	s.recordSettlement(ctx, model.PaymentKindTime, &res, err)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// createPayment prices the fee, writes the pending payment and enqueues its
// gateway submission in the same transaction.
func (s *SettlementService) createPayment(ctx context.Context, tx core.LedgerTx, p *model.Payment) error {
	fee, err := checkedFee(s.fees, p.AmountCents)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "fee policy failed")
	}
	p.FeeCents = fee
	p.Status = model.PaymentStatusPending
	if err = tx.InsertPayment(ctx, p); err != nil {
		return err
	}
	payload, err := json.Marshal(model.PaymentSubmitPayload{PaymentID: p.ID})
	if err != nil {
		return fmt.Errorf("marshal payment job: %w", err)
	}
	_, err = tx.EnqueueJob(ctx, &model.CreateJobRequest{
		Type:       model.JobTypePaymentSubmit,
		Payload:    payload,
		Priority:   paymentJobPriority,
		MaxRetries: s.maxRetries,
	})
	if err != nil {
		return fmt.Errorf("enqueue payment submission: %w", err)
	}
	return nil
}

func (s *SettlementService) recordSettlement(
	ctx context.Context,
	kind model.PaymentKind,
	res *model.SettlementResult,
	err error,
) {
	switch {
	case err != nil:
		s.metrics.Settlement(string(kind), metrics.ResultError)
	case res.AlreadySettled:
		s.metrics.Settlement(string(kind), metrics.ResultNoop)
	default:
		s.metrics.Settlement(string(kind), metrics.ResultSuccess)
		s.logger.InfoContext(ctx, "payment created",
			"payment_id", res.Payment.ID,
			"contract_id", res.Payment.ContractID,
			"kind", kind,
			"amount_cents", res.Payment.AmountCents,
			"fee_cents", res.Payment.FeeCents,
		)
	}
}

// Reconcile applies an authoritative gateway outcome. It is the only path by which
// a payment completes, fails or is refunded. Outcomes that arrive again for a
// payment already in their resulting state are no-ops reported with Applied=false.
func (s *SettlementService) Reconcile(ctx context.Context, req *model.ReconcileRequest) (*model.ReconcileResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		res   model.ReconcileResult
		alert *model.Payment
	)
	err := s.inTx(ctx, func(ctx context.Context, tx core.LedgerTx, out *outbox) error {
		res, alert = model.ReconcileResult{}, nil
		c, p, err := lockForReconcile(ctx, tx, req)
		if err != nil {
			return err
		}
		applied, err := s.applyOutcome(ctx, tx, out, c, p, req)
		if err != nil {
			return err
		}
		res = model.ReconcileResult{Payment: *p, Applied: applied}
		if applied && p.RefundCandidate && req.Outcome == model.OutcomeSuccess {
			cp := *p
			alert = &cp
		}
		return nil
	})

	switch {
	case err != nil:
		s.metrics.Reconciliation(string(req.Outcome), reconcileRejected)
		s.logger.WarnContext(ctx, "reconciliation rejected",
			"payment_id", req.PaymentID, "gateway_ref", req.GatewayRef, "outcome", req.Outcome, "error", err)
		return nil, err
	case !res.Applied:
		s.metrics.Reconciliation(string(req.Outcome), reconcileReplay)
	default:
		s.metrics.Reconciliation(string(req.Outcome), reconcileApplied)
		s.logger.InfoContext(ctx, "payment reconciled",
			"payment_id", res.Payment.ID, "outcome", req.Outcome, "status", res.Payment.Status)
	}
	if alert != nil {
		s.logger.WarnContext(ctx, "refund candidate recorded", "payment_id", alert.ID, "contract_id", alert.ContractID)
		s.alerts.RefundCandidate(ctx, alert)
	}
	return &res, nil
}

// lockForReconcile prefers the payment id the gateway echoes back, because a
// callback can arrive before the runner has recorded the gateway reference.
func lockForReconcile(
	ctx context.Context,
	tx core.LedgerTx,
	req *model.ReconcileRequest,
) (*model.Contract, *model.Payment, error) {
	if req.PaymentID == "" {
		return tx.LockPaymentByRef(ctx, req.GatewayRef)
	}
	c, p, err := tx.LockPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, nil, err
	}
	if req.GatewayRef != "" {
		if p.GatewayRef != nil && *p.GatewayRef != req.GatewayRef {
			return nil, nil, apperrors.Conflict("gateway reference does not match the payment")
		}
		if p.GatewayRef == nil {
			ref := req.GatewayRef
			p.GatewayRef = &ref
		}
	}
	return c, p, nil
}

func (s *SettlementService) applyOutcome(
	ctx context.Context,
	tx core.LedgerTx,
	out *outbox,
	c *model.Contract,
	p *model.Payment,
	req *model.ReconcileRequest,
) (bool, error) {
	switch req.Outcome {
	case model.OutcomeSuccess:
		return s.applySuccess(ctx, tx, out, c, p, req)
	case model.OutcomeFailure:
		if !p.Status.InFlight() {
			return false, nil
		}
		reason := req.Reason
		if reason == "" {
			reason = "declined by gateway"
		}
		return true, s.failPayment(ctx, tx, out, c, p, reason)
	case model.OutcomeRefund:
		switch p.Status {
		case model.PaymentStatusRefunded:
			return false, nil
		case model.PaymentStatusCompleted:
			if err := checkAmount(p, req); err != nil {
				return false, err
			}
			p.Status = model.PaymentStatusRefunded
			if err := tx.UpdatePayment(ctx, p); err != nil {
				return false, err
			}
			out.both(c, model.EventPaymentRefunded, *p)
			return true, nil
		default:
			return false, apperrors.InvalidStatef("cannot refund a payment that is %s", p.Status)
		}
	}
	return false, apperrors.ValidationField("outcome", "unknown outcome")
}

func (s *SettlementService) applySuccess(
	ctx context.Context,
	tx core.LedgerTx,
	out *outbox,
	c *model.Contract,
	p *model.Payment,
	req *model.ReconcileRequest,
) (bool, error) {
	switch {
	case p.Status.InFlight():
		if err := checkAmount(p, req); err != nil {
			return false, err
		}
		now := s.now()
		p.Status = model.PaymentStatusCompleted
		p.CompletedAt = &now
		p.FailureReason = nil
		if err := s.markWorkPaid(ctx, tx, out, c, p); err != nil {
			return false, err
		}
		if c.Status == model.ContractStatusCancelled {
			p.RefundCandidate = true
		}
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return false, err
		}
		out.both(c, model.EventPaymentCompleted, *p)
		if p.RefundCandidate {
			out.add(c.EmployerID, model.EventPaymentRefundCandidate, *p)
		}
		return true, nil

	case p.Status == model.PaymentStatusFailed && !p.RefundCandidate:
		// Money moved for a payment the ledger already gave up on. The work it
		// covered may have been paid again since, so an operator decides.
		if err := checkAmount(p, req); err != nil {
			return false, err
		}
		p.RefundCandidate = true
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return false, err
		}
		out.add(c.EmployerID, model.EventPaymentRefundCandidate, *p)
		return true, nil
	}
	return false, nil
}

func checkAmount(p *model.Payment, req *model.ReconcileRequest) error {
	if req.AmountCents != p.AmountCents {
		return apperrors.ValidationField("amount_cents",
			fmt.Sprintf("amount %s does not match payment amount %s", req.AmountCents, p.AmountCents))
	}
	return nil
}

// markWorkPaid moves the milestone or time entries the payment settles to paid.
func (s *SettlementService) markWorkPaid(
	ctx context.Context,
	tx core.LedgerTx,
	out *outbox,
	c *model.Contract,
	p *model.Payment,
) error {
	switch p.Kind {
	case model.PaymentKindMilestone:
		if p.MilestoneID == nil {
			return apperrors.Internalf("milestone payment %s has no milestone", p.ID)
		}
		_, m, err := tx.LockMilestone(ctx, *p.MilestoneID)
		if err != nil {
			return err
		}
		next, err := engagement.MarkMilestonePaid(m)
		if apperrors.IsAlreadySettled(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if err = tx.SetMilestoneStatus(ctx, m.ID, next, m.Revision); err != nil {
			return err
		}
		m.Status = next
		out.add(c.WorkerID, model.EventMilestonePaid, *m)
	case model.PaymentKindTime:
		ids, err := tx.MarkTimeEntriesPaid(ctx, p.ID)
		if err != nil {
			return err
		}
		if len(ids) > 0 {
			out.add(c.WorkerID, model.EventTimeEntryPaid, map[string]any{
				"payment_id":     p.ID,
				"time_entry_ids": ids,
			})
		}
	}
	return nil
}

func (s *SettlementService) failPayment(
	ctx context.Context,
	tx core.LedgerTx,
	out *outbox,
	c *model.Contract,
	p *model.Payment,
	reason string,
) error {
	p.Status = model.PaymentStatusFailed
	p.FailureReason = &reason
	if p.Kind == model.PaymentKindTime {
		if err := tx.ReleaseTimeEntries(ctx, p.ID); err != nil {
			return err
		}
	}
	if err := tx.UpdatePayment(ctx, p); err != nil {
		return err
	}
	out.both(c, model.EventPaymentFailed, *p)
	return nil
}

// SubmitPayment hands a pending payment to the gateway and records the gateway
// reference. Payments that have left pending are skipped, so a redelivered job is
// harmless; the payment id doubles as the gateway idempotency key.
func (s *SettlementService) SubmitPayment(ctx context.Context, paymentID string) error {
	if s.gateway == nil {
		return errors.New("payment gateway is not configured")
	}

	var sub *core.GatewaySubmission
	err := s.ledger.InTx(ctx, func(ctx context.Context, tx core.LedgerTx) error {
		sub = nil
		_, p, err := tx.LockPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.Status != model.PaymentStatusPending {
			return nil
		}
		sub = &core.GatewaySubmission{
			PaymentID:      p.ID,
			PayerID:        p.PayerID,
			PayeeID:        p.PayeeID,
			AmountCents:    p.AmountCents,
			FeeCents:       p.FeeCents,
			IdempotencyKey: p.ID,
		}
		return nil
	})
	if err != nil {
		return err
	}
	if sub == nil {
		s.logger.DebugContext(ctx, "payment already submitted", "payment_id", paymentID)
		return nil
	}

	start := time.Now()
	ref, err := s.gateway.Submit(ctx, *sub)
	if err != nil {
		s.metrics.GatewaySubmit(metrics.ResultError, time.Since(start))
		return apperrors.Gateway(err, "submit payment "+paymentID)
	}
	s.metrics.GatewaySubmit(metrics.ResultSuccess, time.Since(start))

	return s.ledger.InTx(ctx, func(ctx context.Context, tx core.LedgerTx) error {
		_, p, err := tx.LockPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.GatewayRef != nil && *p.GatewayRef != ref {
			return apperrors.Conflictf("payment %s already carries gateway reference %s", p.ID, *p.GatewayRef)
		}
		if p.Status == model.PaymentStatusPending {
			p.Status = model.PaymentStatusProcessing
		}
		p.GatewayRef = &ref
		return tx.UpdatePayment(ctx, p)
	})
}

// MarkSubmissionFailed records a payment whose submission was given up on. Only
// pending payments are touched: anything the gateway accepted waits for its
// callback instead.
func (s *SettlementService) MarkSubmissionFailed(ctx context.Context, paymentID, reason string) error {
	return s.inTx(ctx, func(ctx context.Context, tx core.LedgerTx, out *outbox) error {
		c, p, err := tx.LockPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.Status != model.PaymentStatusPending {
			return nil
		}
		return s.failPayment(ctx, tx, out, c, p, reason)
	})
}

// ListRefundCandidates lists payments that completed after their contract was
// cancelled, or after the ledger had marked them failed.
func (s *SettlementService) ListRefundCandidates(
	ctx context.Context,
	actor auth.Actor,
	limit, offset int,
) ([]model.Payment, error) {
	if !actor.Privileged() {
		return nil, apperrors.Forbidden("refund candidates are visible to administrators only")
	}
	return s.ledger.ListRefundCandidates(ctx, limit, offset)
}
