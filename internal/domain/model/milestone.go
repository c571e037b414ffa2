package model

import (
	"strings"
	"time"

	apperrors "github.com/target/engagement-ledger/internal/errors"
)

// MilestoneStatus is the lifecycle status of a milestone.
type MilestoneStatus string

const (
	MilestoneStatusPending    MilestoneStatus = "pending"
	MilestoneStatusInProgress MilestoneStatus = "in_progress"
	MilestoneStatusSubmitted  MilestoneStatus = "submitted"
	MilestoneStatusApproved   MilestoneStatus = "approved"
	MilestoneStatusRejected   MilestoneStatus = "rejected"
	MilestoneStatusPaid       MilestoneStatus = "paid"
)

// Valid reports whether s is a known milestone status.
func (s MilestoneStatus) Valid() bool {
	switch s {
	case MilestoneStatusPending, MilestoneStatusInProgress, MilestoneStatusSubmitted,
		MilestoneStatusApproved, MilestoneStatusRejected, MilestoneStatusPaid:
		return true
	}
	return false
}

// Outstanding reports whether the milestone blocks contract completion.
func (s MilestoneStatus) Outstanding() bool {
	return s == MilestoneStatusSubmitted || s == MilestoneStatusApproved
}

// Milestone is a fixed-price deliverable on a contract.
type Milestone struct {
	ID          string          `json:"id"`
	ContractID  string          `json:"contract_id"`
	Title       string          `json:"title"`
	AmountCents Cents           `json:"amount_cents"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
	Status      MilestoneStatus `json:"status"`
	// Revision counts submissions; it increments on each rejected → in_progress loop.
	Revision  int       `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateMilestoneRequest carries the fields an employer supplies for a new milestone.
type CreateMilestoneRequest struct {
	ContractID  string     `json:"-"`
	Title       string     `json:"title"`
	AmountCents Cents      `json:"amount_cents"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// Validate checks the request fields.
func (r *CreateMilestoneRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return apperrors.ValidationField("title", "title is required")
	}
	if r.AmountCents <= 0 {
		return apperrors.ValidationField("amount_cents", "amount must be positive")
	}
	return nil
}
