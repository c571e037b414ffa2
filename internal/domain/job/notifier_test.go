package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/engagement-ledger/internal/domain/model"
)

const signalTimeout = 200 * time.Millisecond

// stubWaiter records each wait on calls, then blocks for hold (if set) and
// returns err.
type stubWaiter struct {
	calls chan model.JobType
	err   error
	hold  time.Duration
}

func (s *stubWaiter) WaitForNotification(ctx context.Context, jobType model.JobType) error {
	select {
	case s.calls <- jobType:
	default:
	}
	if s.hold > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.hold):
		}
	}
	if s.err != nil {
		return s.err
	}
	return ctx.Err()
}

func awaitCalls(t *testing.T, w *stubWaiter, n int) {
	t.Helper()
	for range n {
		select {
		case <-w.calls:
		case <-time.After(signalTimeout):
			t.Fatal("listener never called the waiter")
		}
	}
}

func awaitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	deadline := time.After(signalTimeout)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription channel was not closed")
		}
	}
}

func TestNewNotifierRequiresWaiter(t *testing.T) {
	n, err := NewNotifier(NotifierOptions{})
	require.ErrorIs(t, err, ErrWaiterRequired)
	assert.Nil(t, n)
}

func TestNotifier_DatabaseSignalReachesSubscriber(t *testing.T) {
	w := &stubWaiter{calls: make(chan model.JobType, 4)}
	n, err := NewNotifier(NotifierOptions{Waiter: w})
	require.NoError(t, err)

	unsub, ch := n.Subscribe(model.JobTypePaymentSubmit)
	defer unsub()

	assert.Equal(t, model.JobTypePaymentSubmit, <-w.calls)
	select {
	case <-ch:
	case <-time.After(signalTimeout):
		t.Fatal("no signal after a successful wait")
	}
}

func TestNotifier_ClosingSubscriptions(t *testing.T) {
	t.Run("unsubscribe", func(t *testing.T) {
		w := &stubWaiter{calls: make(chan model.JobType, 1), hold: time.Hour}
		n, err := NewNotifier(NotifierOptions{Waiter: w})
		require.NoError(t, err)

		unsub, ch := n.Subscribe(model.JobTypeNotification)
		awaitCalls(t, w, 1)
		unsub()
		awaitClosed(t, ch)
	})

	t.Run("stop all", func(t *testing.T) {
		w := &stubWaiter{calls: make(chan model.JobType, 2), err: errors.New("boom")}
		n, err := NewNotifier(NotifierOptions{Waiter: w})
		require.NoError(t, err)

		unsubPay, pay := n.Subscribe(model.JobTypePaymentSubmit)
		unsubNote, note := n.Subscribe(model.JobTypeNotification)
		awaitCalls(t, w, 2)

		n.StopAll()
		awaitClosed(t, pay)
		awaitClosed(t, note)

		// Late unsubscribes are no-ops.
		unsubPay()
		unsubNote()
	})
}

func TestNotifier_WakeReachesSubscribers(t *testing.T) {
	n, err := NewNotifier(NotifierOptions{Waiter: &stubWaiter{hold: time.Hour}})
	require.NoError(t, err)
	defer n.StopAll()

	unsub, ch := n.Subscribe(model.JobTypeNotification)
	defer unsub()

	n.Wake(model.JobTypePaymentSubmit)
	select {
	case <-ch:
		t.Fatal("wake for another job type must not reach this subscriber")
	case <-time.After(50 * time.Millisecond):
	}

	n.Wake(model.JobTypeNotification)
	select {
	case <-ch:
	case <-time.After(signalTimeout):
		t.Fatal("expected wake to be delivered")
	}
}

func TestNewNotifier_Defaults(t *testing.T) {
	n, err := NewNotifier(NotifierOptions{Waiter: &stubWaiter{}})
	require.NoError(t, err)
	assert.Equal(t, time.Minute, n.opts.WaitWindow)
	assert.Equal(t, 250*time.Millisecond, n.opts.Backoff)
	assert.Equal(t, 10*time.Second, n.opts.MaxBackoff)

	n, err = NewNotifier(NotifierOptions{Waiter: &stubWaiter{}, Backoff: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, time.Minute, n.opts.MaxBackoff, "max backoff never drops below the first delay")
}

func TestNotifier_LapsedWaitWindowPokesSubscribers(t *testing.T) {
	waiter := &stubWaiter{calls: make(chan model.JobType, 8), hold: time.Hour}
	notifier, err := NewNotifier(NotifierOptions{Waiter: waiter, WaitWindow: 20 * time.Millisecond})
	require.NoError(t, err)
	defer notifier.StopAll()

	_, ch := notifier.Subscribe(model.JobTypePaymentSubmit)
	for range 2 {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("expected a poke each time the wait window lapses")
		}
	}
}

func TestNotifier_FailingWaiterBacksOff(t *testing.T) {
	waiter := &stubWaiter{calls: make(chan model.JobType, 64), err: errors.New("conn reset")}
	notifier, err := NewNotifier(NotifierOptions{
		Waiter:     waiter,
		Backoff:    20 * time.Millisecond,
		MaxBackoff: 40 * time.Millisecond,
	})
	require.NoError(t, err)

	_, _ = notifier.Subscribe(model.JobTypeNotification)
	time.Sleep(150 * time.Millisecond)
	notifier.StopAll()

	// 20ms, 40ms, 40ms... leaves room for only a handful of attempts.
	calls := len(waiter.calls)
	assert.GreaterOrEqual(t, calls, 2)
	assert.LessOrEqual(t, calls, 8)
}
