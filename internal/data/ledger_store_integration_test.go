package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/engagement-ledger/internal/core"
	"github.com/target/engagement-ledger/internal/domain/model"
	apperrors "github.com/target/engagement-ledger/internal/errors"
	"github.com/target/engagement-ledger/internal/testutil"
)

func newTestStore(db *sql.DB) *LedgerStore {
	return NewLedgerStore(LedgerStoreOptions{
		DB:            db,
		TimeProvider:  NewManualClock(testutil.TestTime()),
		MaxTxAttempts: 5,
	})
}

func seedContract(t *testing.T, store *LedgerStore, c *model.Contract) {
	t.Helper()
	c.ID = ""
	require.NoError(t, store.InTx(context.Background(), func(ctx context.Context, tx core.LedgerTx) error {
		return tx.InsertContract(ctx, c)
	}))
}

func seedMilestone(t *testing.T, store *LedgerStore, contractID string, status model.MilestoneStatus) *model.Milestone {
	t.Helper()
	m := &model.Milestone{ContractID: contractID, Title: "Design", AmountCents: 50000, Status: status}
	require.NoError(t, store.InTx(context.Background(), func(ctx context.Context, tx core.LedgerTx) error {
		return tx.InsertMilestone(ctx, m)
	}))
	return m
}

func TestLedgerStore_Integration_ApplicationAcceptance(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		store := newTestStore(db)
		ctx := context.Background()

		post := &model.JobPost{
			EmployerID:   testutil.EmployerID,
			Title:        "Inbox triage",
			ContractType: model.ContractTypeHourly,
			RateCents:    testutil.CentsPtr(2000),
		}
		var apps []*model.JobApplication
		require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx core.LedgerTx) error {
			if err := tx.InsertJobPost(ctx, post); err != nil {
				return err
			}
			for _, w := range []string{"w-a", "w-b", "w-c"} {
				a := &model.JobApplication{JobPostID: post.ID, WorkerID: w}
				if err := tx.InsertApplication(ctx, a); err != nil {
					return err
				}
				apps = append(apps, a)
			}
			return nil
		}))

		var rejected []model.JobApplication
		require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx core.LedgerTx) error {
			a, err := tx.LockApplication(ctx, apps[0].ID)
			if err != nil {
				return err
			}
			if err = tx.SetApplicationStatus(ctx, a.ID, model.ApplicationStatusHired); err != nil {
				return err
			}
			rejected, err = tx.RejectOpenApplications(ctx, a.JobPostID, a.ID)
			if err != nil {
				return err
			}
			if err = tx.SetJobPostStatus(ctx, post.ID, model.JobPostStatusClosed); err != nil {
				return err
			}
			return tx.InsertContract(ctx, hireContract(post, a.WorkerID))
		}))
		assert.Len(t, rejected, 2)
		for _, r := range rejected {
			assert.Equal(t, model.ApplicationStatusRejected, r.Status)
		}

		hired, err := store.GetApplication(ctx, apps[0].ID)
		require.NoError(t, err)
		assert.Equal(t, model.ApplicationStatusHired, hired.Status)

		// A second application from the same worker is a conflict on worker_id.
		err = store.InTx(ctx, func(ctx context.Context, tx core.LedgerTx) error {
			return tx.InsertApplication(ctx, &model.JobApplication{JobPostID: post.ID, WorkerID: "w-a"})
		})
		assert.True(t, apperrors.IsConflict(err), "got %v", err)
		assert.Equal(t, "worker_id", apperrors.GetField(err))

		require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx core.LedgerTx) error {
			got, err := tx.GetJobPost(ctx, post.ID)
			if err != nil {
				return err
			}
			assert.Equal(t, model.JobPostStatusClosed, got.Status)
			assert.Equal(t, testutil.TestTime(), got.UpdatedAt.UTC())
			live, err := tx.HasLiveContract(ctx, post.ID)
			assert.True(t, live)
			return err
		}))

		// The post hires once even when the service check is bypassed.
		err = store.InTx(ctx, func(ctx context.Context, tx core.LedgerTx) error {
			return tx.InsertContract(ctx, hireContract(post, "w-b"))
		})
		assert.True(t, apperrors.IsInvalidState(err), "got %v", err)
	})
}

func hireContract(post *model.JobPost, workerID string) *model.Contract {
	postID := post.ID
	return &model.Contract{
		JobPostID:  &postID,
		EmployerID: post.EmployerID,
		WorkerID:   workerID,
		Type:       post.ContractType,
		RateCents:  post.RateCents,
	}
}

func TestLedgerStore_Integration_OneOpenIntervalPerWorker(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		store := newTestStore(db)
		ctx := context.Background()
		c := testutil.NewHourlyContract(2000).Build()
		seedContract(t, store, c)

		open := func() error {
			return store.InTx(ctx, func(ctx context.Context, tx core.LedgerTx) error {
				return tx.InsertTimeEntry(ctx, &model.TimeEntry{
					ContractID: c.ID,
					WorkerID:   c.WorkerID,
					StartTime:  testutil.TestTime(),
				})
			})
		}
		require.NoError(t, open())
		err := open()
		assert.True(t, apperrors.IsOpenIntervalExists(err), "got %v", err)
	})
}

func TestLedgerStore_Integration_OneActiveContractPerPair(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		store := newTestStore(db)
		seedContract(t, store, testutil.NewFixedContract(100000).Build())

		err := store.InTx(context.Background(), func(ctx context.Context, tx core.LedgerTx) error {
			return tx.InsertContract(ctx, testutil.NewFixedContract(100000).Build())
		})
		assert.True(t, apperrors.IsInvalidState(err), "got %v", err)
	})
}

func TestLedgerStore_Integration_RollbackDiscardsOutbox(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		store := newTestStore(db)
		ctx := context.Background()
		c := testutil.NewFixedContract(100000).Build()
		seedContract(t, store, c)

		boom := errors.New("boom")
		err := store.InTx(ctx, func(ctx context.Context, tx core.LedgerTx) error {
			if err := tx.SetContractStatus(ctx, c.ID, model.ContractStatusPaused); err != nil {
				return err
			}
			if _, err := tx.EnqueueJob(ctx, &model.CreateJobRequest{
				Type:    model.JobTypeNotification,
				Payload: json.RawMessage(`{"user_id":"worker-1"}`),
			}); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		got, err := store.GetContract(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ContractStatusActive, got.Status)

		var jobs int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM jobs`).Scan(&jobs))
		assert.Zero(t, jobs)
	})
}

// Two approvals race on the same submitted milestone. Exactly one commits; the other
// re-reads the approved milestone and fails with InvalidState.
func TestLedgerStore_Integration_ConcurrentMilestoneApproval(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		store := newTestStore(db)
		c := testutil.NewFixedContract(100000).Build()
		seedContract(t, store, c)
		m := seedMilestone(t, store, c.ID, model.MilestoneStatusSubmitted)

		approve := func() error {
			return store.InTx(context.Background(), func(ctx context.Context, tx core.LedgerTx) error {
				_, locked, err := tx.LockMilestone(ctx, m.ID)
				if err != nil {
					return err
				}
				if locked.Status != model.MilestoneStatusSubmitted {
					return apperrors.InvalidStatef("milestone is %s", locked.Status)
				}
				return tx.SetMilestoneStatus(ctx, m.ID, model.MilestoneStatusApproved, locked.Revision)
			})
		}

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = approve()
			}(i)
		}
		wg.Wait()

		var ok, invalid int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case apperrors.IsInvalidState(err):
				invalid++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 1, invalid)
	})
}

func TestLedgerStore_Integration_TimeBatchLifecycle(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		store := newTestStore(db)
		ctx := context.Background()
		c := testutil.NewHourlyContract(2000).Build()
		seedContract(t, store, c)

		start := testutil.TestTime()
		var entryIDs []string
		for _, mins := range []int{95, 30} {
			end := start.Add(time.Duration(mins) * time.Minute)
			e := &model.TimeEntry{
				ContractID:      c.ID,
				WorkerID:        c.WorkerID,
				StartTime:       start,
				EndTime:         &end,
				DurationMinutes: &mins,
				Status:          model.TimeEntryStatusApproved,
			}
			require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx core.LedgerTx) error {
				return tx.InsertTimeEntry(ctx, e)
			}))
			entryIDs = append(entryIDs, e.ID)
			start = end.Add(time.Hour)
		}

		p := &model.Payment{
			ContractID:  c.ID,
			Kind:        model.PaymentKindTime,
			PayerID:     c.EmployerID,
			PayeeID:     c.WorkerID,
			AmountCents: 3167 + 1000,
		}
		require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx core.LedgerTx) error {
			entries, err := tx.ListTimeEntriesForSettlement(ctx, c.ID)
			if err != nil {
				return err
			}
			require.Len(t, entries, 2)
			if err = tx.InsertPayment(ctx, p); err != nil {
				return err
			}
			return tx.AttachTimeEntries(ctx, p.ID, entryIDs)
		}))

		var perEntry []int64
		rows, err := db.QueryContext(ctx, `SELECT amount_cents FROM payment_time_entries WHERE payment_id = $1 ORDER BY amount_cents DESC`, p.ID)
		require.NoError(t, err)
		for rows.Next() {
			var v int64
			require.NoError(t, rows.Scan(&v))
			perEntry = append(perEntry, v)
		}
		require.NoError(t, rows.Close())
		assert.Equal(t, []int64{3167, 1000}, perEntry)

		// Attached entries are no longer settleable.
		require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx core.LedgerTx) error {
			entries, err := tx.ListTimeEntriesForSettlement(ctx, c.ID)
			assert.Empty(t, entries)
			return err
		}))

		var paid []string
		require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx core.LedgerTx) error {
			_, locked, err := tx.LockPayment(ctx, p.ID)
			if err != nil {
				return err
			}
			assert.ElementsMatch(t, entryIDs, locked.TimeEntryIDs)
			locked.Status = model.PaymentStatusCompleted
			now := testutil.TestTime()
			locked.CompletedAt = &now
			if err = tx.UpdatePayment(ctx, locked); err != nil {
				return err
			}
			paid, err = tx.MarkTimeEntriesPaid(ctx, p.ID)
			return err
		}))
		assert.ElementsMatch(t, entryIDs, paid)

		entries, err := store.ListTimeEntries(ctx, c.ID)
		require.NoError(t, err)
		for _, e := range entries {
			assert.Equal(t, model.TimeEntryStatusPaid, e.Status)
		}

		payments, err := store.ListPayments(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, payments, 1)
		assert.Equal(t, model.PaymentStatusCompleted, payments[0].Status)
		assert.Len(t, payments[0].TimeEntryIDs, 2)
	})
}

func TestLedgerStore_Integration_ContractFacts(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		store := newTestStore(db)
		ctx := context.Background()
		c := testutil.NewFixedContract(100000).Build()
		seedContract(t, store, c)
		seedMilestone(t, store, c.ID, model.MilestoneStatusSubmitted)
		seedMilestone(t, store, c.ID, model.MilestoneStatusApproved)
		seedMilestone(t, store, c.ID, model.MilestoneStatusPaid)

		require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx core.LedgerTx) error {
			facts, err := tx.ContractFacts(ctx, c.ID)
			if err != nil {
				return err
			}
			assert.Equal(t, 2, facts.OutstandingMilestones)
			assert.Zero(t, facts.UnpaidApprovedEntries)
			assert.Zero(t, facts.CompletedPayments)
			assert.False(t, facts.CanComplete())
			return nil
		}))

		_, err := store.GetContract(ctx, uuid.NewString())
		assert.True(t, apperrors.IsNotFound(err))
	})
}
