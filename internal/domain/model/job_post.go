package model

import (
	"strings"
	"time"

	apperrors "github.com/target/engagement-ledger/internal/errors"
)

// ContractType is the billing model of a job post and the contract created from it.
type ContractType string

const (
	ContractTypeHourly ContractType = "hourly"
	ContractTypeFixed  ContractType = "fixed"
)

// Valid reports whether t is a known contract type.
func (t ContractType) Valid() bool { return t == ContractTypeHourly || t == ContractTypeFixed }

// JobPostStatus is the visibility status of a job post.
type JobPostStatus string

const (
	JobPostStatusOpen   JobPostStatus = "open"
	JobPostStatusClosed JobPostStatus = "closed"
)

// JobPost is an employer's listing that workers apply to.
type JobPost struct {
	ID              string        `json:"id"`
	EmployerID      string        `json:"employer_id"`
	Title           string        `json:"title"`
	ContractType    ContractType  `json:"contract_type"`
	RateCents       *Cents        `json:"rate_cents,omitempty"`
	FixedPriceCents *Cents        `json:"fixed_price_cents,omitempty"`
	Status          JobPostStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// CreateJobPostRequest carries the fields an employer supplies for a new job post.
type CreateJobPostRequest struct {
	EmployerID      string       `json:"-"`
	Title           string       `json:"title"`
	ContractType    ContractType `json:"contract_type"`
	RateCents       *Cents       `json:"rate_cents,omitempty"`
	FixedPriceCents *Cents       `json:"fixed_price_cents,omitempty"`
}

// Normalize trims string input in place.
func (r *CreateJobPostRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.ContractType = ContractType(strings.ToLower(strings.TrimSpace(string(r.ContractType))))
}

// Validate checks the request against the job post invariants.
func (r *CreateJobPostRequest) Validate() error {
	if r.EmployerID == "" {
		return apperrors.ValidationField("employer_id", "employer is required")
	}
	if r.Title == "" {
		return apperrors.ValidationField("title", "title is required")
	}
	if len(r.Title) > 255 {
		return apperrors.ValidationField("title", "title must be 255 characters or fewer")
	}
	switch r.ContractType {
	case ContractTypeHourly:
		if r.RateCents == nil || *r.RateCents <= 0 {
			return apperrors.ValidationField("rate_cents", "hourly posts require a positive rate")
		}
	case ContractTypeFixed:
		if r.FixedPriceCents == nil || *r.FixedPriceCents <= 0 {
			return apperrors.ValidationField("fixed_price_cents", "fixed posts require a positive price")
		}
	default:
		return apperrors.ValidationField("contract_type", "contract type must be hourly or fixed")
	}
	return nil
}
