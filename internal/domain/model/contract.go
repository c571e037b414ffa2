package model

import "time"

// ContractStatus is the lifecycle status of a contract.
type ContractStatus string

const (
	ContractStatusPending   ContractStatus = "pending"
	ContractStatusActive    ContractStatus = "active"
	ContractStatusPaused    ContractStatus = "paused"
	ContractStatusCompleted ContractStatus = "completed"
	ContractStatusCancelled ContractStatus = "cancelled"
)

// Valid reports whether s is a known contract status.
func (s ContractStatus) Valid() bool {
	switch s {
	case ContractStatusPending, ContractStatusActive, ContractStatusPaused,
		ContractStatusCompleted, ContractStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further mutation is accepted on the contract or its work items.
func (s ContractStatus) Terminal() bool {
	return s == ContractStatusCompleted || s == ContractStatusCancelled
}

// Contract is the engagement between one employer and one worker.
type Contract struct {
	ID              string         `json:"id"`
	JobPostID       *string        `json:"job_post_id,omitempty"`
	ApplicationID   *string        `json:"application_id,omitempty"`
	EmployerID      string         `json:"employer_id"`
	WorkerID        string         `json:"worker_id"`
	Type            ContractType   `json:"type"`
	RateCents       *Cents         `json:"rate_cents,omitempty"`
	FixedPriceCents *Cents         `json:"fixed_price_cents,omitempty"`
	Status          ContractStatus `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// HasParty reports whether userID is the employer or the worker on the contract.
func (c *Contract) HasParty(userID string) bool {
	return userID != "" && (c.EmployerID == userID || c.WorkerID == userID)
}

// Rate returns the hourly rate, or zero for fixed contracts.
func (c *Contract) Rate() Cents {
	if c.RateCents == nil {
		return 0
	}
	return *c.RateCents
}
