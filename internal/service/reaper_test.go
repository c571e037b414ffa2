package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/engagement-ledger/config"
	"github.com/target/engagement-ledger/internal/core"
	"github.com/target/engagement-ledger/internal/domain/model"
)

// fakeReaperRepo hands out one non-empty batch per operation, then zero.
type fakeReaperRepo struct {
	mu sync.Mutex

	staleCount  int64
	staleCalls  int
	staleErr    error
	deleteCount map[model.JobStatus]int64
	deleteCalls map[model.JobStatus]int
	orphans     []string
	orphanErr   error
}

func (f *fakeReaperRepo) FailStalePendingJobs(_ context.Context, _ time.Duration, _ int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staleCalls++
	if f.staleErr != nil {
		return 0, f.staleErr
	}
	if f.staleCalls == 1 {
		return f.staleCount, nil
	}
	return 0, nil
}

func (f *fakeReaperRepo) DeleteOldJobs(_ context.Context, p core.DeleteOldJobsParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteCalls == nil {
		f.deleteCalls = map[model.JobStatus]int{}
	}
	f.deleteCalls[p.Status]++
	if f.deleteCalls[p.Status] == 1 {
		return f.deleteCount[p.Status], nil
	}
	return 0, nil
}

func (f *fakeReaperRepo) OrphanedPendingPayments(_ context.Context, _ time.Duration, _ int) ([]string, error) {
	return f.orphans, f.orphanErr
}

type recordingFailer struct {
	failed []string
	errFor map[string]error
}

func (r *recordingFailer) MarkSubmissionFailed(_ context.Context, id, reason string) error {
	if err := r.errFor[id]; err != nil {
		return err
	}
	r.failed = append(r.failed, id+":"+reason)
	return nil
}

type countingSink struct {
	mu     sync.Mutex
	counts map[string]int64
	gauges int
}

func (c *countingSink) Count(name string, value int64, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int64{}
	}
	c.counts[name+"|"+tags["operation"]+"|"+tags["result"]] += value
}

func (c *countingSink) Gauge(string, float64, map[string]string) {
	c.mu.Lock()
	c.gauges++
	c.mu.Unlock()
}

func (c *countingSink) Timing(string, time.Duration, map[string]string) {}

func reaperConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:        time.Minute,
		PendingMaxAge:   time.Hour,
		CompletedMaxAge: 24 * time.Hour,
		FailedMaxAge:    72 * time.Hour,
		BatchSize:       100,
	}
}

func TestNewReaperService_Validation(t *testing.T) {
	_, err := NewReaperService(ReaperServiceOptions{Config: reaperConfig()})
	require.Error(t, err)

	cfg := reaperConfig()
	cfg.Interval = 0
	_, err = NewReaperService(ReaperServiceOptions{Repo: &fakeReaperRepo{}, Config: cfg})
	require.Error(t, err)
}

func TestReaperService_RunOnce(t *testing.T) {
	repo := &fakeReaperRepo{
		staleCount:  3,
		deleteCount: map[model.JobStatus]int64{model.JobStatusCompleted: 10, model.JobStatusFailed: 2},
		orphans:     []string{"p-1", "p-2"},
	}
	failer := &recordingFailer{}
	sink := &countingSink{}
	svc, err := NewReaperService(ReaperServiceOptions{
		Repo:     repo,
		Config:   reaperConfig(),
		Payments: failer,
		Metrics:  sink,
	})
	require.NoError(t, err)

	require.NoError(t, svc.RunOnce(context.Background()))

	assert.Equal(t, 2, repo.staleCalls, "drains until an empty batch")
	assert.Equal(t, 2, repo.deleteCalls[model.JobStatusCompleted])
	assert.Equal(t, 2, repo.deleteCalls[model.JobStatusFailed])
	assert.Equal(t, []string{"p-1:" + orphanReason, "p-2:" + orphanReason}, failer.failed)

	assert.Equal(t, int64(1), sink.counts["reaper.cleanup||success"])
	assert.Equal(t, int64(3), sink.counts["reaper.rows_processed|fail_pending|success"])
	assert.Equal(t, int64(2), sink.counts["reaper.rows_processed|fail_orphaned_payments|success"])
	assert.Equal(t, int64(10), sink.counts["reaper.rows_processed|delete_completed|success"])
	assert.Equal(t, 1, sink.gauges)
}

func TestReaperService_RunOnce_ContinuesPastErrors(t *testing.T) {
	repo := &fakeReaperRepo{
		staleErr:    errors.New("db down"),
		deleteCount: map[model.JobStatus]int64{model.JobStatusCompleted: 1},
		orphans:     []string{"p-1", "p-2"},
	}
	failer := &recordingFailer{errFor: map[string]error{"p-1": errors.New("locked")}}
	sink := &countingSink{}
	svc, err := NewReaperService(ReaperServiceOptions{
		Repo:     repo,
		Config:   reaperConfig(),
		Payments: failer,
		Metrics:  sink,
	})
	require.NoError(t, err)

	err = svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fail_pending")
	assert.Contains(t, err.Error(), "payment p-1")
	assert.Len(t, failer.failed, 1, "one bad payment does not stop the rest")
	assert.Equal(t, 2, repo.deleteCalls[model.JobStatusCompleted])
	assert.Equal(t, int64(1), sink.counts["reaper.cleanup||error"])
	assert.Equal(t, 0, sink.gauges)
}

func TestReaperService_RunOnce_WithoutPaymentFailer(t *testing.T) {
	repo := &fakeReaperRepo{orphans: []string{"p-1"}}
	svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: reaperConfig()})
	require.NoError(t, err)
	require.NoError(t, svc.RunOnce(context.Background()))
}

func TestReaperService_RunOnce_Cancelled(t *testing.T) {
	repo := &fakeReaperRepo{staleErr: context.Canceled, orphanErr: context.Canceled}
	svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: reaperConfig(), Payments: &recordingFailer{}})
	require.NoError(t, err)

	err = svc.RunOnce(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReaperService_Run_StopsOnCancel(t *testing.T) {
	cfg := reaperConfig()
	cfg.Interval = 10 * time.Millisecond
	svc, err := NewReaperService(ReaperServiceOptions{Repo: &fakeReaperRepo{}, Config: cfg})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop")
	}
}
