package data

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/engagement-ledger/internal/domain/model"
)

func newMockJobRepo(t *testing.T, now time.Time) (*JobRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewJobRepo(db, RepoConfig{TimeProvider: NewManualClock(now), RetryDelaySeconds: 10}), mock
}

func TestJobRepo_Heartbeat_Mock(t *testing.T) {
	now := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	repo, mock := newMockJobRepo(t, now)

	mock.ExpectExec(regexp.QuoteMeta(`SET lease_expires_at = $2`)).
		WithArgs("job-1", now.Add(30*time.Second), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`SET lease_expires_at = $2`)).
		WithArgs("job-2", now.Add(30*time.Second), now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Heartbeat(context.Background(), "job-1", 30)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Heartbeat(context.Background(), "job-2", 30)
	require.NoError(t, err)
	assert.False(t, ok, "heartbeat on a job that is no longer running reports false")

	_, err = repo.Heartbeat(context.Background(), "job-3", 0)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepo_Fail_Mock(t *testing.T) {
	now := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	repo, mock := newMockJobRepo(t, now)

	mock.ExpectQuery(regexp.QuoteMeta(`retry_count = retry_count + 1`)).
		WithArgs("job-1", "gateway unavailable", now, now.Add(10*time.Second)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
	mock.ExpectQuery(regexp.QuoteMeta(`retry_count = retry_count + 1`)).
		WithArgs("job-2", "boom", now, now.Add(10*time.Second)).
		WillReturnError(sql.ErrNoRows)

	ok, err := repo.Fail(context.Background(), "job-1", "gateway unavailable")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Fail(context.Background(), "job-2", "boom")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepo_Stats_Mock(t *testing.T) {
	repo, mock := newMockJobRepo(t, time.Now())

	mock.ExpectQuery(regexp.QuoteMeta(`FROM jobs`)).
		WithArgs(model.JobTypeNotification).
		WillReturnRows(sqlmock.NewRows([]string{"pending", "running", "completed", "failed"}).AddRow(3, 1, 40, 2))

	stats, err := repo.Stats(context.Background(), model.JobTypeNotification)
	require.NoError(t, err)
	assert.Equal(t, model.JobStats{Pending: 3, Running: 1, Completed: 40, Failed: 2}, *stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepo_GetByID_NotFound_Mock(t *testing.T) {
	repo, mock := newMockJobRepo(t, time.Now())

	mock.ExpectQuery(regexp.QuoteMeta(`FROM jobs WHERE id = $1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildJobListQuery(t *testing.T) {
	jt := model.JobTypePaymentSubmit
	st := model.JobStatusFailed

	tests := []struct {
		name      string
		opts      model.JobListOptions
		wantWhere string
		wantArgs  []any
	}{
		{
			name:      "no filters uses default page",
			opts:      model.JobListOptions{},
			wantWhere: "WHERE 1=1 ORDER BY",
			wantArgs:  []any{defaultJobListLimit, 0},
		},
		{
			name:      "type and status",
			opts:      model.JobListOptions{Type: &jt, Status: &st, Limit: 5, Offset: 10},
			wantWhere: "AND type = $1 AND status = $2",
			wantArgs:  []any{"payment_submit", "failed", 5, 10},
		},
		{
			name:      "limit is capped",
			opts:      model.JobListOptions{Limit: 50_000, Offset: -1},
			wantWhere: "LIMIT $1 OFFSET $2",
			wantArgs:  []any{maxJobListLimit, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildJobListQuery(tt.opts)
			assert.Contains(t, query, tt.wantWhere)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestNewJobInsert(t *testing.T) {
	ins, err := newJobInsert(&model.CreateJobRequest{
		Type:    model.JobTypeNotification,
		Payload: []byte(`{"user_id":"u1"}`),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_id":"u1"}`, string(ins.payload))
	assert.Equal(t, `{}`, string(ins.metadata))
	assert.Equal(t, defaultMaxRetries, ins.maxRetries)
	assert.Nil(t, ins.scheduledAt)

	_, err = newJobInsert(nil)
	require.Error(t, err)
	_, err = newJobInsert(&model.CreateJobRequest{Type: "browser", Payload: []byte(`{}`)})
	require.Error(t, err)
}

func TestRequeueLockKey(t *testing.T) {
	a := requeueLockKey(model.JobTypePaymentSubmit)
	assert.Equal(t, a, requeueLockKey(model.JobTypePaymentSubmit))
	assert.NotEqual(t, a, requeueLockKey(model.JobTypeNotification))
	assert.GreaterOrEqual(t, a, int32(0))
}

func TestJobRepo_OrphanedPendingPayments_Mock(t *testing.T) {
	now := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	repo, mock := newMockJobRepo(t, now)

	mock.ExpectQuery(regexp.QuoteMeta(`j.payload->>'payment_id' = p.id::text`)).
		WithArgs(now.Add(-time.Hour), 100).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("p-1").AddRow("p-2"))

	ids, err := repo.OrphanedPendingPayments(context.Background(), time.Hour, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"p-1", "p-2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
