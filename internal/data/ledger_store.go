package data

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/target/engagement-ledger/internal/core"
	"github.com/target/engagement-ledger/internal/data/pgxutil"
	"github.com/target/engagement-ledger/internal/domain/model"
	apperrors "github.com/target/engagement-ledger/internal/errors"
)

const (
	defaultTxAttempts = 3
	defaultTxBackoff  = 10 * time.Millisecond

	maxRefundCandidatePage = 500
)

// LedgerStoreOptions configures a LedgerStore.
type LedgerStoreOptions struct {
	DB           *sql.DB
	Logger       *slog.Logger
	TimeProvider TimeProvider
	// Jobs writes outbox rows inside ledger transactions. Defaults to a JobRepo on DB.
	Jobs *JobRepo
	// MaxTxAttempts bounds how often a transaction is re-run after a serialization
	// failure or deadlock.
	MaxTxAttempts int
	TxBackoff     time.Duration
	Tracer        trace.Tracer
	// OnRetry is called each time a transaction is re-run.
	OnRetry func(attempt int, err error)
}

// LedgerStore is the PostgreSQL implementation of core.Ledger. Every transaction
// runs at SERIALIZABLE isolation; row locks on the contract order writers within a
// consistency group and the isolation level catches anything the locks miss.
type LedgerStore struct {
	db           *sql.DB
	logger       *slog.Logger
	timeProvider TimeProvider
	jobs         *JobRepo
	attempts     int
	backoff      time.Duration
	tracer       trace.Tracer
	onRetry      func(attempt int, err error)
}

var _ core.Ledger = (*LedgerStore)(nil)

// NewLedgerStore creates a LedgerStore.
func NewLedgerStore(opts LedgerStoreOptions) *LedgerStore {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tp := opts.TimeProvider
	if tp == nil {
		tp = SystemTime
	}
	jobs := opts.Jobs
	if jobs == nil {
		jobs = NewJobRepo(opts.DB, RepoConfig{Logger: logger, TimeProvider: tp})
	}
	attempts := opts.MaxTxAttempts
	if attempts <= 0 {
		attempts = defaultTxAttempts
	}
	backoff := opts.TxBackoff
	if backoff <= 0 {
		backoff = defaultTxBackoff
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/target/engagement-ledger/internal/data")
	}
	return &LedgerStore{
		db:           opts.DB,
		logger:       logger.With("component", "ledger_store"),
		timeProvider: tp,
		jobs:         jobs,
		attempts:     attempts,
		backoff:      backoff,
		tracer:       tracer,
		onRetry:      opts.OnRetry,
	}
}

// InTx runs fn in a SERIALIZABLE transaction, re-running it from scratch when the
// database reports a serialization failure or deadlock. The loser of a race therefore
// re-reads the winner's committed state. Errors are returned as AppErrors; retries
// that never succeed surface as Conflict.
func (s *LedgerStore) InTx(ctx context.Context, fn core.TxFunc) error {
	ctx, span := s.tracer.Start(ctx, "ledger.tx")
	defer span.End()

	attempts := 0
	err := pgxutil.WithRetryingPgxTx(ctx, s.db, pgxutil.RetryConfig{
		Tx: pgxutil.TxConfig{
			Opts: &sql.TxOptions{Isolation: sql.LevelSerializable},
			Fn: func(tx pgx.Tx) error {
				attempts++
				return fn(ctx, &ledgerTx{
					tx:   tx,
					now:  s.timeProvider.Now().UTC(),
					jobs: s.jobs,
				})
			},
		},
		Attempts:  s.attempts,
		Retryable: apperrors.IsRetryableTx,
		Backoff:   s.backoff,
		OnRetry: func(attempt int, err error) {
			s.logger.WarnContext(ctx, "retrying ledger transaction", "attempt", attempt, "error", err)
			if s.onRetry != nil {
				s.onRetry(attempt, err)
			}
		},
	})
	span.SetAttributes(attribute.Int("ledger.tx.attempts", attempts))
	if err == nil {
		return nil
	}

	mapped := apperrors.MapDBError(err)
	span.SetAttributes(attribute.String("ledger.error_code", string(apperrors.GetCode(mapped))))
	if apperrors.IsInternal(mapped) || apperrors.GetCode(mapped) == "" {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger transaction failed")
	}
	return mapped
}

// GetContract returns a contract by id.
func (s *LedgerStore) GetContract(ctx context.Context, id string) (*model.Contract, error) {
	if !validID(id) {
		return nil, apperrors.NotFound("contract not found")
	}
	c, err := scanContract(s.db.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "contract not found")
	}
	return c, nil
}

// GetApplication returns an application by id.
func (s *LedgerStore) GetApplication(ctx context.Context, id string) (*model.JobApplication, error) {
	if !validID(id) {
		return nil, apperrors.NotFound("application not found")
	}
	a, err := scanApplication(s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "application not found")
	}
	return a, nil
}

// ListMilestones returns a contract's milestones ordered by due date.
func (s *LedgerStore) ListMilestones(ctx context.Context, contractID string) ([]model.Milestone, error) {
	if !validID(contractID) {
		return nil, apperrors.NotFound("contract not found")
	}
	return queryList(ctx, s.db, scanMilestone, `
		SELECT `+milestoneColumns+`
		FROM milestones
		WHERE contract_id = $1
		ORDER BY due_date NULLS LAST, created_at, id`, contractID)
}

// ListTimeEntries returns a contract's time entries ordered by start time.
func (s *LedgerStore) ListTimeEntries(ctx context.Context, contractID string) ([]model.TimeEntry, error) {
	if !validID(contractID) {
		return nil, apperrors.NotFound("contract not found")
	}
	return queryList(ctx, s.db, scanTimeEntry, `
		SELECT `+timeEntryColumns+`
		FROM time_entries
		WHERE contract_id = $1
		ORDER BY start_time, id`, contractID)
}

// ListPayments returns a contract's payments with their time entry batches.
func (s *LedgerStore) ListPayments(ctx context.Context, contractID string) ([]model.Payment, error) {
	if !validID(contractID) {
		return nil, apperrors.NotFound("contract not found")
	}
	payments, err := queryList(ctx, s.db, scanPayment, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE contract_id = $1
		ORDER BY created_at, id`, contractID)
	if err != nil {
		return nil, err
	}
	if err := s.attachBatches(ctx, payments, `
		SELECT pte.payment_id, pte.time_entry_id
		FROM payment_time_entries pte
		JOIN payments p ON p.id = pte.payment_id
		WHERE p.contract_id = $1
		ORDER BY pte.time_entry_id`, contractID); err != nil {
		return nil, err
	}
	return payments, nil
}

// ListRefundCandidates returns payments that completed after their contract was
// cancelled, most recently flagged first.
func (s *LedgerStore) ListRefundCandidates(ctx context.Context, limit, offset int) ([]model.Payment, error) {
	if limit <= 0 || limit > maxRefundCandidatePage {
		limit = maxRefundCandidatePage
	}
	offset = max(offset, 0)
	return queryList(ctx, s.db, scanPayment, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE refund_candidate
		ORDER BY updated_at DESC, id
		LIMIT $1 OFFSET $2`, limit, offset)
}

func (s *LedgerStore) attachBatches(ctx context.Context, payments []model.Payment, query string, args ...any) error {
	if len(payments) == 0 {
		return nil
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return apperrors.MapDBError(fmt.Errorf("list payment batches: %w", err))
	}
	defer func() { _ = rows.Close() }()

	batches := make(map[string][]string)
	for rows.Next() {
		var paymentID, entryID string
		if err := rows.Scan(&paymentID, &entryID); err != nil {
			return apperrors.MapDBError(fmt.Errorf("scan payment batch: %w", err))
		}
		batches[paymentID] = append(batches[paymentID], entryID)
	}
	if err := rows.Err(); err != nil {
		return apperrors.MapDBError(err)
	}
	for i := range payments {
		payments[i].TimeEntryIDs = batches[payments[i].ID]
	}
	return nil
}

func queryList[T any](
	ctx context.Context,
	db *sql.DB,
	scan func(rowScanner) (*T, error),
	query string,
	args ...any,
) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]T, 0)
	for rows.Next() {
		v, scanErr := scan(rows)
		if scanErr != nil {
			return nil, apperrors.MapDBError(scanErr)
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}

// notFoundOr maps missing rows from either driver surface to a NotFound with msg.
func notFoundOr(err error, msg string) error {
	if isNoRows(err) {
		return apperrors.Wrap(err, apperrors.ErrCodeNotFound, msg)
	}
	return apperrors.MapDBError(err)
}
