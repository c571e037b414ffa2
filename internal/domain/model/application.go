package model

import (
	"time"

	apperrors "github.com/target/engagement-ledger/internal/errors"
)

// ApplicationStatus is the review status of a job application.
type ApplicationStatus string

const (
	ApplicationStatusPending     ApplicationStatus = "pending"
	ApplicationStatusViewed      ApplicationStatus = "viewed"
	ApplicationStatusShortlisted ApplicationStatus = "shortlisted"
	ApplicationStatusRejected    ApplicationStatus = "rejected"
	ApplicationStatusHired       ApplicationStatus = "hired"
)

// Valid reports whether s is a known application status.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationStatusPending, ApplicationStatusViewed, ApplicationStatusShortlisted,
		ApplicationStatusRejected, ApplicationStatusHired:
		return true
	}
	return false
}

// Open reports whether the application is still under consideration.
func (s ApplicationStatus) Open() bool {
	return s == ApplicationStatusPending || s == ApplicationStatusViewed || s == ApplicationStatusShortlisted
}

// JobApplication is a worker's proposal for a job post.
type JobApplication struct {
	ID                string            `json:"id"`
	JobPostID         string            `json:"job_post_id"`
	WorkerID          string            `json:"worker_id"`
	ProposedRateCents *Cents            `json:"proposed_rate_cents,omitempty"`
	CoverLetter       string            `json:"cover_letter,omitempty"`
	Status            ApplicationStatus `json:"status"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// CreateApplicationRequest carries a worker's application for a job post.
type CreateApplicationRequest struct {
	JobPostID         string `json:"-"`
	WorkerID          string `json:"-"`
	ProposedRateCents *Cents `json:"proposed_rate_cents,omitempty"`
	CoverLetter       string `json:"cover_letter,omitempty"`
}

// Validate checks the request fields.
func (r *CreateApplicationRequest) Validate() error {
	if r.JobPostID == "" {
		return apperrors.ValidationField("job_post_id", "job post is required")
	}
	if r.WorkerID == "" {
		return apperrors.ValidationField("worker_id", "worker is required")
	}
	if r.ProposedRateCents != nil && *r.ProposedRateCents <= 0 {
		return apperrors.ValidationField("proposed_rate_cents", "proposed rate must be positive")
	}
	if len(r.CoverLetter) > 10000 {
		return apperrors.ValidationField("cover_letter", "cover letter is too long")
	}
	return nil
}

// AcceptResult is returned by the application resolver.
type AcceptResult struct {
	Application      JobApplication `json:"application"`
	Contract         Contract       `json:"contract"`
	RejectedSiblings []string       `json:"rejected_siblings"`
}
