package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/target/engagement-ledger/internal/domain/auth"
	"github.com/target/engagement-ledger/internal/domain/model"
	"github.com/target/engagement-ledger/internal/mocks/ledgerfake"
	"github.com/target/engagement-ledger/internal/observability/metrics"
	"github.com/target/engagement-ledger/internal/service/opsalert"
)

var (
	employer      = auth.Actor{ID: "emp-1", Role: auth.RoleEmployer}
	otherEmployer = auth.Actor{ID: "emp-2", Role: auth.RoleEmployer}
	worker        = auth.Actor{ID: "wrk-1", Role: auth.RoleWorker}
	otherWorker   = auth.Actor{ID: "wrk-2", Role: auth.RoleWorker}
	admin         = auth.Actor{ID: "ops-1", Role: auth.RoleAdmin}
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []model.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n model.Notification) {
	r.mu.Lock()
	r.got = append(r.got, n)
	r.mu.Unlock()
}

// events returns the event types delivered to userID, in order.
func (r *recordingNotifier) events(userID string) []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.EventType
	for _, n := range r.got {
		if n.UserID == userID {
			out = append(out, n.EventType)
		}
	}
	return out
}

func (r *recordingNotifier) reset() {
	r.mu.Lock()
	r.got = nil
	r.mu.Unlock()
}

type ledgerHarness struct {
	t       *testing.T
	store   *ledgerfake.Store
	clock   *testClock
	notes   *recordingNotifier
	alerts  *alertCapture
	metrics *metrics.Ledger

	apps    *ApplicationService
	eng     *EngagementService
	tracker *TimeTracker
	settle  *SettlementService
}

func newLedgerHarness(t *testing.T) *ledgerHarness {
	t.Helper()
	clock := newTestClock()
	store := ledgerfake.New(clock.Now)
	notes := &recordingNotifier{}
	capture := &alertCapture{}
	m := metrics.NewLedger(prometheus.NewRegistry(), nil)

	deps := LedgerDeps{
		Ledger:   store,
		Notifier: notes,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:    clock.Now,
		Metrics:  m,
	}

	apps, err := NewApplicationService(deps)
	require.NoError(t, err)
	eng, err := NewEngagementService(deps)
	require.NoError(t, err)
	tracker, err := NewTimeTracker(TimeTrackerOptions{LedgerDeps: deps})
	require.NoError(t, err)
	settle, err := NewSettlementService(SettlementOptions{
		LedgerDeps: deps,
		Fees:       BasisPointsFee{BPS: 1000},
		Alerts: opsalert.NewService(opsalert.Options{
			Sinks: []opsalert.SinkRegistration{{Name: "capture", Sink: capture}},
		}),
	})
	require.NoError(t, err)

	return &ledgerHarness{
		t:       t,
		store:   store,
		clock:   clock,
		notes:   notes,
		alerts:  capture,
		metrics: m,
		apps:    apps,
		eng:     eng,
		tracker: tracker,
		settle:  settle,
	}
}

func cents(v int64) *model.Cents {
	c := model.Cents(v)
	return &c
}

func (h *ledgerHarness) hourlyContract(rate int64, status model.ContractStatus) string {
	return h.store.PutContract(model.Contract{
		EmployerID: employer.ID,
		WorkerID:   worker.ID,
		Type:       model.ContractTypeHourly,
		RateCents:  cents(rate),
		Status:     status,
	})
}

func (h *ledgerHarness) fixedContract(price int64, status model.ContractStatus) string {
	return h.store.PutContract(model.Contract{
		EmployerID:      employer.ID,
		WorkerID:        worker.ID,
		Type:            model.ContractTypeFixed,
		FixedPriceCents: cents(price),
		Status:          status,
	})
}

func (h *ledgerHarness) milestone(contractID string, amount int64, status model.MilestoneStatus) string {
	return h.store.PutMilestone(model.Milestone{
		ContractID:  contractID,
		Title:       "deliverable",
		AmountCents: model.Cents(amount),
		Status:      status,
	})
}

// approvedEntry stores a stopped, approved interval of minutes on contractID.
func (h *ledgerHarness) approvedEntry(contractID string, minutes int) string {
	start := h.clock.Now().Add(-time.Duration(minutes) * time.Minute)
	end := h.clock.Now()
	return h.store.PutTimeEntry(model.TimeEntry{
		ContractID:      contractID,
		WorkerID:        worker.ID,
		StartTime:       start,
		EndTime:         &end,
		DurationMinutes: &minutes,
		Status:          model.TimeEntryStatusApproved,
	})
}

// settleApprovedMilestone runs approve-to-payment for a fresh milestone and
// returns the milestone and the pending payment.
func (h *ledgerHarness) settleApprovedMilestone(contractID string, amount int64) (string, *model.Payment) {
	h.t.Helper()
	mID := h.milestone(contractID, amount, model.MilestoneStatusApproved)
	res, err := h.settle.SettleMilestone(context.Background(), employer, mID)
	require.NoError(h.t, err)
	require.False(h.t, res.AlreadySettled)
	require.NotNil(h.t, res.Payment)
	return mID, res.Payment
}

func (h *ledgerHarness) reconcile(p *model.Payment, outcome model.GatewayOutcome) (*model.ReconcileResult, error) {
	return h.settle.Reconcile(context.Background(), &model.ReconcileRequest{
		PaymentID:   p.ID,
		Outcome:     outcome,
		AmountCents: p.AmountCents,
	})
}
