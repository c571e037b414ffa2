package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/target/engagement-ledger/internal/core"
	"github.com/target/engagement-ledger/internal/domain/engagement"
	"github.com/target/engagement-ledger/internal/domain/model"
	apperrors "github.com/target/engagement-ledger/internal/errors"
)

// ledgerTx is one attempt of a ledger transaction. now is fixed for the attempt so
// every row written together carries the same updated_at.
type ledgerTx struct {
	tx   pgx.Tx
	now  time.Time
	jobs *JobRepo
}

var _ core.LedgerTx = (*ledgerTx)(nil)

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

// exec runs a single-row mutation and fails with NotFound when no row matched.
func (t *ledgerTx) exec(ctx context.Context, what, query string, args ...any) error {
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFoundf("%s: no matching row", what)
	}
	return nil
}

func newID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func (t *ledgerTx) stamp(created, updated *time.Time) {
	*created = t.now
	*updated = t.now
}

func (t *ledgerTx) InsertJobPost(ctx context.Context, p *model.JobPost) error {
	newID(&p.ID)
	t.stamp(&p.CreatedAt, &p.UpdatedAt)
	if p.Status == "" {
		p.Status = model.JobPostStatusOpen
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO job_posts (`+jobPostColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.EmployerID, p.Title, p.ContractType, p.RateCents, p.FixedPriceCents,
		p.Status, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job post: %w", err)
	}
	return nil
}

func (t *ledgerTx) GetJobPost(ctx context.Context, id string) (*model.JobPost, error) {
	if !validID(id) {
		return nil, apperrors.NotFound("job post not found")
	}
	p, err := scanJobPost(t.tx.QueryRow(ctx, `SELECT `+jobPostColumns+` FROM job_posts WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "job post not found")
	}
	return p, nil
}

func (t *ledgerTx) SetJobPostStatus(ctx context.Context, id string, status model.JobPostStatus) error {
	return t.exec(ctx, "set job post status",
		`UPDATE job_posts SET status = $2, updated_at = $3 WHERE id = $1`, id, status, t.now)
}

func (t *ledgerTx) HasLiveContract(ctx context.Context, jobPostID string) (bool, error) {
	var live bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
		  SELECT 1 FROM contracts
		  WHERE job_post_id = $1 AND status IN ('pending', 'active', 'paused'))`,
		jobPostID,
	).Scan(&live)
	if err != nil {
		return false, fmt.Errorf("check live contract: %w", err)
	}
	return live, nil
}

func (t *ledgerTx) InsertApplication(ctx context.Context, a *model.JobApplication) error {
	newID(&a.ID)
	t.stamp(&a.CreatedAt, &a.UpdatedAt)
	if a.Status == "" {
		a.Status = model.ApplicationStatusPending
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO applications (`+applicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.JobPostID, a.WorkerID, a.ProposedRateCents, a.CoverLetter, a.Status,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

// LockApplication locks the job post first so that two employers' accepts on the
// same post serialize on one row before touching any application.
func (t *ledgerTx) LockApplication(ctx context.Context, id string) (*model.JobApplication, error) {
	if !validID(id) {
		return nil, apperrors.NotFound("application not found")
	}
	var jobPostID string
	if err := t.tx.QueryRow(ctx, `SELECT job_post_id FROM applications WHERE id = $1`, id).Scan(&jobPostID); err != nil {
		return nil, notFoundOr(err, "application not found")
	}
	if _, err := t.tx.Exec(ctx, `SELECT 1 FROM job_posts WHERE id = $1 FOR UPDATE`, jobPostID); err != nil {
		return nil, fmt.Errorf("lock job post: %w", err)
	}
	a, err := scanApplication(t.tx.QueryRow(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFoundOr(err, "application not found")
	}
	return a, nil
}

func (t *ledgerTx) SetApplicationStatus(ctx context.Context, id string, status model.ApplicationStatus) error {
	return t.exec(ctx, "set application status",
		`UPDATE applications SET status = $2, updated_at = $3 WHERE id = $1`, id, status, t.now)
}

func (t *ledgerTx) RejectOpenApplications(ctx context.Context, jobPostID, exceptID string) ([]model.JobApplication, error) {
	rows, err := t.tx.Query(ctx, `
		UPDATE applications
		SET status = 'rejected', updated_at = $3
		WHERE job_post_id = $1
		  AND id <> $2
		  AND status IN ('pending', 'viewed', 'shortlisted')
		RETURNING `+applicationColumns,
		jobPostID, exceptID, t.now,
	)
	if err != nil {
		return nil, fmt.Errorf("reject sibling applications: %w", err)
	}
	defer rows.Close()

	out := make([]model.JobApplication, 0)
	for rows.Next() {
		a, scanErr := scanApplication(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan rejected application: %w", scanErr)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (t *ledgerTx) InsertContract(ctx context.Context, c *model.Contract) error {
	newID(&c.ID)
	t.stamp(&c.CreatedAt, &c.UpdatedAt)
	if c.Status == "" {
		c.Status = model.ContractStatusPending
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO contracts (`+contractColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.JobPostID, c.ApplicationID, c.EmployerID, c.WorkerID, c.Type, c.RateCents,
		c.FixedPriceCents, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert contract: %w", err)
	}
	return nil
}

func (t *ledgerTx) LockContract(ctx context.Context, id string) (*model.Contract, error) {
	if !validID(id) {
		return nil, apperrors.NotFound("contract not found")
	}
	c, err := scanContract(t.tx.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFoundOr(err, "contract not found")
	}
	return c, nil
}

func (t *ledgerTx) SetContractStatus(ctx context.Context, id string, status model.ContractStatus) error {
	return t.exec(ctx, "set contract status",
		`UPDATE contracts SET status = $2, updated_at = $3 WHERE id = $1`, id, status, t.now)
}

func (t *ledgerTx) ContractFacts(ctx context.Context, contractID string) (engagement.ContractFacts, error) {
	var f engagement.ContractFacts
	err := t.tx.QueryRow(ctx, `
		SELECT
		  (SELECT count(*) FROM milestones
		    WHERE contract_id = $1 AND status IN ('submitted', 'approved')),
		  (SELECT count(*) FROM time_entries
		    WHERE contract_id = $1 AND status = 'approved'),
		  (SELECT count(*) FROM payments
		    WHERE contract_id = $1 AND (status = 'completed' OR completed_at IS NOT NULL))`,
		contractID,
	).Scan(&f.OutstandingMilestones, &f.UnpaidApprovedEntries, &f.CompletedPayments)
	if err != nil {
		return f, fmt.Errorf("load contract facts: %w", err)
	}
	return f, nil
}

// EnqueueJob writes an outbox row in this transaction.
func (t *ledgerTx) EnqueueJob(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	return t.jobs.InsertInTx(ctx, t.tx, req)
}
