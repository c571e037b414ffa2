package model

import (
	"strings"
	"time"

	apperrors "github.com/target/engagement-ledger/internal/errors"
)

// PaymentStatus is the ledger status of a payment.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusCompleted,
		PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// InFlight reports whether the payment awaits a gateway outcome.
func (s PaymentStatus) InFlight() bool {
	return s == PaymentStatusPending || s == PaymentStatusProcessing
}

// PaymentKind records what a payment settles.
type PaymentKind string

const (
	PaymentKindMilestone PaymentKind = "milestone"
	PaymentKindTime      PaymentKind = "time"
)

// Payment is a transfer from employer to worker created by the settlement engine.
type Payment struct {
	ID              string        `json:"id"`
	ContractID      string        `json:"contract_id"`
	MilestoneID     *string       `json:"milestone_id,omitempty"`
	Kind            PaymentKind   `json:"kind"`
	PayerID         string        `json:"payer_id"`
	PayeeID         string        `json:"payee_id"`
	AmountCents     Cents         `json:"amount_cents"`
	FeeCents        Cents         `json:"fee_cents"`
	Status          PaymentStatus `json:"status"`
	GatewayRef      *string       `json:"gateway_ref,omitempty"`
	FailureReason   *string       `json:"failure_reason,omitempty"`
	RefundCandidate bool          `json:"refund_candidate"`
	TimeEntryIDs    []string      `json:"time_entry_ids,omitempty"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// NetCents is the amount the payee receives after the platform fee.
func (p *Payment) NetCents() Cents { return p.AmountCents - p.FeeCents }

// GatewayOutcome is the authoritative result reported by the payment gateway.
type GatewayOutcome string

const (
	OutcomeSuccess GatewayOutcome = "success"
	OutcomeFailure GatewayOutcome = "failure"
	OutcomeRefund  GatewayOutcome = "refund"
)

// Valid reports whether o is a known outcome.
func (o GatewayOutcome) Valid() bool {
	return o == OutcomeSuccess || o == OutcomeFailure || o == OutcomeRefund
}

// ReconcileRequest applies one gateway outcome to a payment. Either PaymentID or
// GatewayRef identifies the payment.
type ReconcileRequest struct {
	PaymentID   string         `json:"payment_id,omitempty"`
	GatewayRef  string         `json:"gateway_ref,omitempty"`
	Outcome     GatewayOutcome `json:"outcome"`
	AmountCents Cents          `json:"amount_cents"`
	Reason      string         `json:"reason,omitempty"`
}

// Validate checks the request fields.
func (r *ReconcileRequest) Validate() error {
	r.GatewayRef = strings.TrimSpace(r.GatewayRef)
	if r.PaymentID == "" && r.GatewayRef == "" {
		return apperrors.ValidationField("gateway_ref", "payment id or gateway reference is required")
	}
	if !r.Outcome.Valid() {
		return apperrors.ValidationField("outcome", "outcome must be success, failure or refund")
	}
	if r.AmountCents < 0 {
		return apperrors.ValidationField("amount_cents", "amount must not be negative")
	}
	return nil
}

// ReconcileResult reports what reconciliation did.
type ReconcileResult struct {
	Payment Payment `json:"payment"`
	// Applied is false when the outcome was a replay against a terminal payment.
	Applied bool `json:"applied"`
}

// SettlementResult is returned by settle operations. AlreadySettled is set for
// idempotent no-ops, in which case Payment is the existing payment when one exists.
type SettlementResult struct {
	Payment        *Payment `json:"payment,omitempty"`
	AlreadySettled bool     `json:"already_settled"`
}
