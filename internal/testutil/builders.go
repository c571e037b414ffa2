// Package testutil provides database, Redis and fixture helpers for ledger tests.
package testutil

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/target/engagement-ledger/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building CreateJobRequest objects for testing.
type JobRequestBuilder struct {
	req *model.CreateJobRequest
}

// NewJobRequest creates a payment_submit job request with sensible defaults.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.CreateJobRequest{
			Type:       model.JobTypePaymentSubmit,
			Priority:   50,
			Payload:    json.RawMessage(`{"payment_id":"` + uuid.NewString() + `"}`),
			MaxRetries: 3,
		},
	}
}

// WithType sets the job type.
func (b *JobRequestBuilder) WithType(jobType model.JobType) *JobRequestBuilder {
	b.req.Type = jobType
	return b
}

// WithPriority sets the job priority.
func (b *JobRequestBuilder) WithPriority(priority int) *JobRequestBuilder {
	b.req.Priority = priority
	return b
}

// WithPayload sets the job payload.
func (b *JobRequestBuilder) WithPayload(payload json.RawMessage) *JobRequestBuilder {
	b.req.Payload = payload
	return b
}

// WithScheduledAt sets when the job becomes reservable.
func (b *JobRequestBuilder) WithScheduledAt(scheduledAt time.Time) *JobRequestBuilder {
	b.req.ScheduledAt = &scheduledAt
	return b
}

// WithMaxRetries sets the retry budget.
func (b *JobRequestBuilder) WithMaxRetries(maxRetries int) *JobRequestBuilder {
	b.req.MaxRetries = maxRetries
	return b
}

// Build returns the request.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	return b.req
}

// Test parties used across ledger fixtures.
const (
	EmployerID = "employer-1"
	WorkerID   = "worker-1"
	OutsiderID = "outsider-1"
)

// ContractBuilder builds contracts for service and store tests.
type ContractBuilder struct {
	c model.Contract
}

// NewHourlyContract starts an active hourly contract at rate cents per hour.
func NewHourlyContract(rate model.Cents) *ContractBuilder {
	return &ContractBuilder{c: model.Contract{
		ID:         uuid.NewString(),
		EmployerID: EmployerID,
		WorkerID:   WorkerID,
		Type:       model.ContractTypeHourly,
		RateCents:  CentsPtr(rate),
		Status:     model.ContractStatusActive,
		CreatedAt:  TestTime(),
		UpdatedAt:  TestTime(),
	}}
}

// NewFixedContract starts an active fixed-price contract.
func NewFixedContract(price model.Cents) *ContractBuilder {
	return &ContractBuilder{c: model.Contract{
		ID:              uuid.NewString(),
		EmployerID:      EmployerID,
		WorkerID:        WorkerID,
		Type:            model.ContractTypeFixed,
		FixedPriceCents: CentsPtr(price),
		Status:          model.ContractStatusActive,
		CreatedAt:       TestTime(),
		UpdatedAt:       TestTime(),
	}}
}

// WithStatus sets the contract status.
func (b *ContractBuilder) WithStatus(s model.ContractStatus) *ContractBuilder {
	b.c.Status = s
	return b
}

// WithParties sets the employer and worker.
func (b *ContractBuilder) WithParties(employerID, workerID string) *ContractBuilder {
	b.c.EmployerID = employerID
	b.c.WorkerID = workerID
	return b
}

// Build returns a copy of the contract.
func (b *ContractBuilder) Build() *model.Contract {
	c := b.c
	return &c
}

// CentsPtr returns a pointer to the given amount.
func CentsPtr(c model.Cents) *model.Cents {
	return &c
}
