package data

import (
	"github.com/google/uuid"
	"github.com/target/engagement-ledger/internal/domain/model"
)

// rowScanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// validID reports whether id can name a ledger row. Malformed ids are treated as
// missing rows rather than surfacing a database cast error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

const jobPostColumns = `id, employer_id, title, contract_type, rate_cents, fixed_price_cents, status, created_at, updated_at`

func scanJobPost(s rowScanner) (*model.JobPost, error) {
	var p model.JobPost
	if err := s.Scan(
		&p.ID, &p.EmployerID, &p.Title, &p.ContractType, &p.RateCents, &p.FixedPriceCents,
		&p.Status, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

const applicationColumns = `id, job_post_id, worker_id, proposed_rate_cents, cover_letter, status, created_at, updated_at`

func scanApplication(s rowScanner) (*model.JobApplication, error) {
	var a model.JobApplication
	if err := s.Scan(
		&a.ID, &a.JobPostID, &a.WorkerID, &a.ProposedRateCents, &a.CoverLetter,
		&a.Status, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

const contractColumns = `id, job_post_id, application_id, employer_id, worker_id, type, rate_cents, fixed_price_cents, status, created_at, updated_at`

func scanContract(s rowScanner) (*model.Contract, error) {
	var c model.Contract
	if err := s.Scan(
		&c.ID, &c.JobPostID, &c.ApplicationID, &c.EmployerID, &c.WorkerID, &c.Type,
		&c.RateCents, &c.FixedPriceCents, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

const milestoneColumns = `id, contract_id, title, amount_cents, due_date, status, revision, created_at, updated_at`

func scanMilestone(s rowScanner) (*model.Milestone, error) {
	var m model.Milestone
	if err := s.Scan(
		&m.ID, &m.ContractID, &m.Title, &m.AmountCents, &m.DueDate, &m.Status, &m.Revision,
		&m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

const timeEntryColumns = `id, contract_id, worker_id, start_time, end_time, duration_minutes, status, payment_id, created_at, updated_at`

func scanTimeEntry(s rowScanner) (*model.TimeEntry, error) {
	var e model.TimeEntry
	if err := s.Scan(
		&e.ID, &e.ContractID, &e.WorkerID, &e.StartTime, &e.EndTime, &e.DurationMinutes,
		&e.Status, &e.PaymentID, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

const paymentColumns = `id, contract_id, milestone_id, kind, payer_id, payee_id, amount_cents, fee_cents, status, gateway_ref, failure_reason, refund_candidate, completed_at, created_at, updated_at`

func scanPayment(s rowScanner) (*model.Payment, error) {
	var p model.Payment
	if err := s.Scan(
		&p.ID, &p.ContractID, &p.MilestoneID, &p.Kind, &p.PayerID, &p.PayeeID,
		&p.AmountCents, &p.FeeCents, &p.Status, &p.GatewayRef, &p.FailureReason,
		&p.RefundCandidate, &p.CompletedAt, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}
