package data

import (
	"context"
	"fmt"
	"time"

	"github.com/target/engagement-ledger/internal/domain/model"
	apperrors "github.com/target/engagement-ledger/internal/errors"
)

// lockChild locks the contract owning a milestone, time entry or payment before
// the child row itself. table and key are compile-time constants.
func (t *ledgerTx) lockChild(ctx context.Context, table, key, value, what string) (*model.Contract, error) {
	var contractID string
	err := t.tx.QueryRow(ctx, `SELECT contract_id FROM `+table+` WHERE `+key+` = $1`, value).Scan(&contractID)
	if err != nil {
		return nil, notFoundOr(err, what+" not found")
	}
	return t.LockContract(ctx, contractID)
}

func (t *ledgerTx) InsertMilestone(ctx context.Context, m *model.Milestone) error {
	newID(&m.ID)
	t.stamp(&m.CreatedAt, &m.UpdatedAt)
	if m.Status == "" {
		m.Status = model.MilestoneStatusPending
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO milestones (`+milestoneColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.ContractID, m.Title, m.AmountCents, m.DueDate, m.Status, m.Revision,
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert milestone: %w", err)
	}
	return nil
}

func (t *ledgerTx) LockMilestone(ctx context.Context, id string) (*model.Contract, *model.Milestone, error) {
	if !validID(id) {
		return nil, nil, apperrors.NotFound("milestone not found")
	}
	c, err := t.lockChild(ctx, "milestones", "id", id, "milestone")
	if err != nil {
		return nil, nil, err
	}
	m, err := scanMilestone(t.tx.QueryRow(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, nil, notFoundOr(err, "milestone not found")
	}
	return c, m, nil
}

func (t *ledgerTx) SetMilestoneStatus(ctx context.Context, id string, status model.MilestoneStatus, revision int) error {
	return t.exec(ctx, "set milestone status",
		`UPDATE milestones SET status = $2, revision = $3, updated_at = $4 WHERE id = $1`,
		id, status, revision, t.now)
}

func (t *ledgerTx) InsertTimeEntry(ctx context.Context, e *model.TimeEntry) error {
	newID(&e.ID)
	t.stamp(&e.CreatedAt, &e.UpdatedAt)
	if e.Status == "" {
		e.Status = model.TimeEntryStatusPending
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO time_entries (`+timeEntryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.ContractID, e.WorkerID, e.StartTime, e.EndTime, e.DurationMinutes, e.Status,
		e.PaymentID, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert time entry: %w", err)
	}
	return nil
}

func (t *ledgerTx) LockTimeEntry(ctx context.Context, id string) (*model.Contract, *model.TimeEntry, error) {
	if !validID(id) {
		return nil, nil, apperrors.NotFound("time entry not found")
	}
	c, err := t.lockChild(ctx, "time_entries", "id", id, "time entry")
	if err != nil {
		return nil, nil, err
	}
	e, err := scanTimeEntry(t.tx.QueryRow(ctx, `SELECT `+timeEntryColumns+` FROM time_entries WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, nil, notFoundOr(err, "time entry not found")
	}
	return c, e, nil
}

func (t *ledgerTx) FindOpenTimeEntry(ctx context.Context, contractID, workerID string) (*model.TimeEntry, error) {
	e, err := scanTimeEntry(t.tx.QueryRow(ctx, `
		SELECT `+timeEntryColumns+`
		FROM time_entries
		WHERE contract_id = $1 AND worker_id = $2 AND end_time IS NULL
		FOR UPDATE`, contractID, workerID))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open time entry: %w", err)
	}
	return e, nil
}

func (t *ledgerTx) StopTimeEntry(ctx context.Context, id string, end time.Time, minutes int) error {
	return t.exec(ctx, "stop time entry", `
		UPDATE time_entries
		SET end_time = $2, duration_minutes = $3, updated_at = $4
		WHERE id = $1 AND end_time IS NULL`,
		id, end.UTC(), minutes, t.now)
}

func (t *ledgerTx) SetTimeEntryStatus(ctx context.Context, id string, status model.TimeEntryStatus) error {
	return t.exec(ctx, "set time entry status",
		`UPDATE time_entries SET status = $2, updated_at = $3 WHERE id = $1`, id, status, t.now)
}

func (t *ledgerTx) ListTimeEntriesForSettlement(ctx context.Context, contractID string) ([]model.TimeEntry, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+timeEntryColumns+`
		FROM time_entries
		WHERE contract_id = $1
		  AND status = 'approved'
		  AND payment_id IS NULL
		  AND end_time IS NOT NULL
		ORDER BY start_time, id
		FOR UPDATE`, contractID)
	if err != nil {
		return nil, fmt.Errorf("list settleable time entries: %w", err)
	}
	defer rows.Close()

	out := make([]model.TimeEntry, 0)
	for rows.Next() {
		e, scanErr := scanTimeEntry(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan time entry: %w", scanErr)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// AttachTimeEntries records the batch and its per-entry amounts, priced at the
// contract rate with the same half-up rounding as model.HourlyAmount.
func (t *ledgerTx) AttachTimeEntries(ctx context.Context, paymentID string, entryIDs []string) error {
	if len(entryIDs) == 0 {
		return nil
	}
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO payment_time_entries (payment_id, time_entry_id, amount_cents)
		SELECT $1, te.id, (te.duration_minutes::bigint * c.rate_cents + 30) / 60
		FROM time_entries te
		JOIN contracts c ON c.id = te.contract_id
		WHERE te.id = ANY($2::uuid[])`, paymentID, entryIDs)
	if err != nil {
		return fmt.Errorf("record payment batch: %w", err)
	}
	if int(tag.RowsAffected()) != len(entryIDs) {
		return apperrors.Internalf("payment batch recorded %d of %d entries", tag.RowsAffected(), len(entryIDs))
	}
	tag, err = t.tx.Exec(ctx, `
		UPDATE time_entries
		SET payment_id = $1, updated_at = $3
		WHERE id = ANY($2::uuid[]) AND payment_id IS NULL`, paymentID, entryIDs, t.now)
	if err != nil {
		return fmt.Errorf("attach time entries: %w", err)
	}
	if int(tag.RowsAffected()) != len(entryIDs) {
		return apperrors.Conflict("time entries were attached to another payment")
	}
	return nil
}

func (t *ledgerTx) ReleaseTimeEntries(ctx context.Context, paymentID string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE time_entries
		SET payment_id = NULL, updated_at = $2
		WHERE payment_id = $1 AND status = 'approved'`, paymentID, t.now)
	if err != nil {
		return fmt.Errorf("release time entries: %w", err)
	}
	return nil
}

func (t *ledgerTx) MarkTimeEntriesPaid(ctx context.Context, paymentID string) ([]string, error) {
	rows, err := t.tx.Query(ctx, `
		UPDATE time_entries
		SET status = 'paid', updated_at = $2
		WHERE payment_id = $1 AND status = 'approved'
		RETURNING id`, paymentID, t.now)
	if err != nil {
		return nil, fmt.Errorf("mark time entries paid: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if scanErr := rows.Scan(&id); scanErr != nil {
			return nil, fmt.Errorf("scan paid entry: %w", scanErr)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *ledgerTx) InsertPayment(ctx context.Context, p *model.Payment) error {
	newID(&p.ID)
	t.stamp(&p.CreatedAt, &p.UpdatedAt)
	if p.Status == "" {
		p.Status = model.PaymentStatusPending
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		p.ID, p.ContractID, p.MilestoneID, p.Kind, p.PayerID, p.PayeeID, p.AmountCents,
		p.FeeCents, p.Status, p.GatewayRef, p.FailureReason, p.RefundCandidate, p.CompletedAt,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (t *ledgerTx) LockPayment(ctx context.Context, id string) (*model.Contract, *model.Payment, error) {
	if !validID(id) {
		return nil, nil, apperrors.NotFound("payment not found")
	}
	c, err := t.lockChild(ctx, "payments", "id", id, "payment")
	if err != nil {
		return nil, nil, err
	}
	p, err := t.lockPaymentRow(ctx, `id = $1`, id)
	if err != nil {
		return nil, nil, err
	}
	return c, p, nil
}

func (t *ledgerTx) LockPaymentByRef(ctx context.Context, gatewayRef string) (*model.Contract, *model.Payment, error) {
	if gatewayRef == "" {
		return nil, nil, apperrors.NotFound("payment not found")
	}
	c, err := t.lockChild(ctx, "payments", "gateway_ref", gatewayRef, "payment")
	if err != nil {
		return nil, nil, err
	}
	p, err := t.lockPaymentRow(ctx, `gateway_ref = $1`, gatewayRef)
	if err != nil {
		return nil, nil, err
	}
	return c, p, nil
}

func (t *ledgerTx) lockPaymentRow(ctx context.Context, where string, arg any) (*model.Payment, error) {
	p, err := scanPayment(t.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE `+where+` FOR UPDATE`, arg))
	if err != nil {
		return nil, notFoundOr(err, "payment not found")
	}
	if p.Kind != model.PaymentKindTime {
		return p, nil
	}

	rows, err := t.tx.Query(ctx, `
		SELECT time_entry_id FROM payment_time_entries
		WHERE payment_id = $1
		ORDER BY time_entry_id`, p.ID)
	if err != nil {
		return nil, fmt.Errorf("load payment batch: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if scanErr := rows.Scan(&id); scanErr != nil {
			return nil, fmt.Errorf("scan payment batch: %w", scanErr)
		}
		p.TimeEntryIDs = append(p.TimeEntryIDs, id)
	}
	return p, rows.Err()
}

func (t *ledgerTx) FindMilestonePayment(ctx context.Context, milestoneID string) (*model.Payment, error) {
	p, err := scanPayment(t.tx.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE milestone_id = $1
		  AND status IN ('pending', 'processing', 'completed', 'refunded')
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE`, milestoneID))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find milestone payment: %w", err)
	}
	return p, nil
}

// UpdatePayment persists the mutable payment fields. The amounts, parties and kind
// are immutable once written.
func (t *ledgerTx) UpdatePayment(ctx context.Context, p *model.Payment) error {
	p.UpdatedAt = t.now
	return t.exec(ctx, "update payment", `
		UPDATE payments
		SET status = $2,
		    gateway_ref = $3,
		    failure_reason = $4,
		    refund_candidate = $5,
		    completed_at = $6,
		    updated_at = $7
		WHERE id = $1`,
		p.ID, p.Status, p.GatewayRef, p.FailureReason, p.RefundCandidate, p.CompletedAt, p.UpdatedAt)
}
