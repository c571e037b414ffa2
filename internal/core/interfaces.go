// Package core declares the ports shared by the ledger services and their adapters.
package core

import (
	"context"
	"errors"
	"time"

	"github.com/target/engagement-ledger/internal/domain/engagement"
	"github.com/target/engagement-ledger/internal/domain/model"
)

// This file contains the ports (hexagonal architecture) between the service layer and
// its adapters. Services depend on these interfaces, never on concrete stores or clients.

// TxFunc is the body of a ledger transaction. It may run more than once when the
// store retries a serialization failure, so it must not leak side effects outside tx.
type TxFunc func(ctx context.Context, tx LedgerTx) error

// Ledger is the durable, transactional store of engagement entities.
type Ledger interface {
	// InTx runs fn atomically. Either every write made through tx commits or none does.
	InTx(ctx context.Context, fn TxFunc) error

	GetContract(ctx context.Context, id string) (*model.Contract, error)
	GetApplication(ctx context.Context, id string) (*model.JobApplication, error)
	ListMilestones(ctx context.Context, contractID string) ([]model.Milestone, error)
	ListTimeEntries(ctx context.Context, contractID string) ([]model.TimeEntry, error)
	ListPayments(ctx context.Context, contractID string) ([]model.Payment, error)
	ListRefundCandidates(ctx context.Context, limit, offset int) ([]model.Payment, error)
}

// LedgerTx is the write path of one ledger transaction. Lock* methods take the
// contract row lock first: the contract is the consistency group for its milestones,
// time entries and payments. Every mutation stamps updated_at in the same statement.
type LedgerTx interface {
	InsertJobPost(ctx context.Context, p *model.JobPost) error
	GetJobPost(ctx context.Context, id string) (*model.JobPost, error)
	SetJobPostStatus(ctx context.Context, id string, status model.JobPostStatus) error
	// HasLiveContract reports whether a pending, active or paused contract references the job post.
	HasLiveContract(ctx context.Context, jobPostID string) (bool, error)

	InsertApplication(ctx context.Context, a *model.JobApplication) error
	// LockApplication locks the application and its job post's application set.
	LockApplication(ctx context.Context, id string) (*model.JobApplication, error)
	SetApplicationStatus(ctx context.Context, id string, status model.ApplicationStatus) error
	// RejectOpenApplications rejects every other open application on the job post.
	RejectOpenApplications(ctx context.Context, jobPostID, exceptID string) ([]model.JobApplication, error)

	InsertContract(ctx context.Context, c *model.Contract) error
	LockContract(ctx context.Context, id string) (*model.Contract, error)
	SetContractStatus(ctx context.Context, id string, status model.ContractStatus) error
	ContractFacts(ctx context.Context, contractID string) (engagement.ContractFacts, error)

	InsertMilestone(ctx context.Context, m *model.Milestone) error
	LockMilestone(ctx context.Context, id string) (*model.Contract, *model.Milestone, error)
	SetMilestoneStatus(ctx context.Context, id string, status model.MilestoneStatus, revision int) error

	InsertTimeEntry(ctx context.Context, e *model.TimeEntry) error
	LockTimeEntry(ctx context.Context, id string) (*model.Contract, *model.TimeEntry, error)
	// FindOpenTimeEntry returns nil without error when no interval is open.
	FindOpenTimeEntry(ctx context.Context, contractID, workerID string) (*model.TimeEntry, error)
	StopTimeEntry(ctx context.Context, id string, end time.Time, minutes int) error
	SetTimeEntryStatus(ctx context.Context, id string, status model.TimeEntryStatus) error
	ListTimeEntriesForSettlement(ctx context.Context, contractID string) ([]model.TimeEntry, error)
	// AttachTimeEntries links a batch to its payment.
	AttachTimeEntries(ctx context.Context, paymentID string, entryIDs []string) error
	// ReleaseTimeEntries unlinks a failed payment's batch so it can be settled again.
	ReleaseTimeEntries(ctx context.Context, paymentID string) error
	// MarkTimeEntriesPaid moves the payment's batch to paid and returns the entry ids.
	MarkTimeEntriesPaid(ctx context.Context, paymentID string) ([]string, error)

	InsertPayment(ctx context.Context, p *model.Payment) error
	LockPayment(ctx context.Context, id string) (*model.Contract, *model.Payment, error)
	LockPaymentByRef(ctx context.Context, gatewayRef string) (*model.Contract, *model.Payment, error)
	// FindMilestonePayment returns the in-flight or completed payment for a milestone, or nil.
	FindMilestonePayment(ctx context.Context, milestoneID string) (*model.Payment, error)
	UpdatePayment(ctx context.Context, p *model.Payment) error

	// EnqueueJob writes an outbox job that commits or rolls back with the ledger writes.
	EnqueueJob(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
}

// JobRepository defines the outbox queue operations used by runners.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	ReserveNext(ctx context.Context, jobType model.JobType, leaseSeconds int) (*model.Job, error)
	WaitForNotification(ctx context.Context, jobType model.JobType) error
	Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error)
	Complete(ctx context.Context, id string) (bool, error)
	Fail(ctx context.Context, id, errMsg string) (bool, error)
	Stats(ctx context.Context, jobType model.JobType) (*model.JobStats, error)
}

// DeleteOldJobsParams groups parameters for DeleteOldJobs to keep param count ≤3.
type DeleteOldJobsParams struct {
	Status    model.JobStatus
	MaxAge    time.Duration
	BatchSize int
}

// ReaperRepository defines the interface for job cleanup operations.
type ReaperRepository interface {
	// FailStalePendingJobs marks pending jobs older than maxAge as failed.
	// Processes up to batchSize jobs per call to prevent long locks.
	FailStalePendingJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)

	// DeleteOldJobs deletes jobs with the given status older than maxAge.
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (int64, error)

	// OrphanedPendingPayments lists pending payments older than maxAge that no
	// longer have a pending or running submission job.
	OrphanedPendingPayments(ctx context.Context, maxAge time.Duration, limit int) ([]string, error)
}

// GatewaySubmission is what the payment runner hands to the gateway.
type GatewaySubmission struct {
	PaymentID      string
	PayerID        string
	PayeeID        string
	AmountCents    model.Cents
	FeeCents       model.Cents
	IdempotencyKey string
}

// ErrGatewayRejected marks a submission the gateway refused outright. Retrying it
// cannot succeed, so the payment fails at once.
var ErrGatewayRejected = errors.New("payment rejected by gateway")

// PaymentGateway submits payment intents to the external processor.
type PaymentGateway interface {
	// Submit is fire-and-forget: the outcome arrives later through a callback.
	Submit(ctx context.Context, sub GatewaySubmission) (gatewayRef string, err error)
}

// NotificationSink delivers one notification to the outside world.
type NotificationSink interface {
	Deliver(ctx context.Context, payload model.NotificationPayload) error
}

// Notifier is the best-effort emitter the ledger services call after commit.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification)
}

// ReplayGuard remembers webhook deliveries so replays can be dropped early.
type ReplayGuard interface {
	// FirstSeen records key and reports whether it had not been seen within ttl.
	FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Forget drops key so a delivery the ledger could not apply may be retried.
	Forget(ctx context.Context, key string) error
}
