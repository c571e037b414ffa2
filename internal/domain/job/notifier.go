package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/target/engagement-ledger/internal/domain/model"
)

// ErrWaiterRequired indicates a notifier cannot be constructed without a waiter.
var ErrWaiterRequired = errors.New("notifier waiter is required")

// Waiter blocks until the job store signals new work of jobType (Postgres LISTEN).
type Waiter interface {
	WaitForNotification(ctx context.Context, jobType model.JobType) error
}

// Notifier fans job availability signals out to runners in this process.
type Notifier interface {
	Subscribe(jobType model.JobType) (func(), <-chan struct{})
	// Wake signals local subscribers without waiting for a database notification.
	Wake(jobType model.JobType)
	StopAll()
}

// NotifierOptions configure DefaultNotifier.
type NotifierOptions struct {
	Waiter Waiter
	// WaitWindow bounds one LISTEN wait; subscribers are poked when it lapses so
	// runners also poll for retries whose delay expired.
	WaitWindow time.Duration
	// Backoff is the first delay after a failed wait; it doubles up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// DefaultNotifier runs one listener goroutine per job type while it has subscribers.
type DefaultNotifier struct {
	opts NotifierOptions

	mu     sync.Mutex
	topics map[model.JobType]*topic
}

type topic struct {
	subs   map[chan struct{}]struct{}
	cancel context.CancelFunc
}

// NewNotifier constructs the default notifier implementation.
func NewNotifier(opts NotifierOptions) (*DefaultNotifier, error) {
	if opts.Waiter == nil {
		return nil, ErrWaiterRequired
	}
	if opts.WaitWindow <= 0 {
		opts.WaitWindow = time.Minute
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 250 * time.Millisecond
	}
	if opts.MaxBackoff < opts.Backoff {
		opts.MaxBackoff = max(opts.Backoff, 10*time.Second)
	}
	return &DefaultNotifier{opts: opts, topics: make(map[model.JobType]*topic)}, nil
}

// Subscribe registers for signals on jobType. The returned channel has a buffer of
// one, so bursts coalesce; it is closed by the unsubscribe func or StopAll.
func (n *DefaultNotifier) Subscribe(jobType model.JobType) (func(), <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	t := n.topics[jobType]
	if t == nil {
		ctx, cancel := context.WithCancel(context.Background())
		t = &topic{subs: make(map[chan struct{}]struct{}), cancel: cancel}
		n.topics[jobType] = t
		go n.listen(ctx, jobType)
	}
	ch := make(chan struct{}, 1)
	t.subs[ch] = struct{}{}

	var once sync.Once
	return func() { once.Do(func() { n.unsubscribe(jobType, ch) }) }, ch
}

func (n *DefaultNotifier) unsubscribe(jobType model.JobType, ch chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	t := n.topics[jobType]
	if t == nil {
		return
	}
	if _, ok := t.subs[ch]; !ok {
		return
	}
	delete(t.subs, ch)
	closeDrained(ch)
	if len(t.subs) == 0 {
		t.cancel()
		delete(n.topics, jobType)
	}
}

// StopAll stops every listener and closes every subscription channel.
func (n *DefaultNotifier) StopAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for jobType, t := range n.topics {
		t.cancel()
		for ch := range t.subs {
			closeDrained(ch)
		}
		delete(n.topics, jobType)
	}
}

// Wake is used after a commit in this process enqueued work, so local runners do not
// wait for the LISTEN round trip.
func (n *DefaultNotifier) Wake(jobType model.JobType) {
	n.broadcast(jobType)
}

func (n *DefaultNotifier) listen(ctx context.Context, jobType model.JobType) {
	delay := n.opts.Backoff
	for ctx.Err() == nil {
		waitCtx, cancel := context.WithTimeout(ctx, n.opts.WaitWindow)
		err := n.opts.Waiter.WaitForNotification(waitCtx, jobType)
		cancel()
		if ctx.Err() != nil {
			return
		}

		n.broadcast(jobType)

		// A lapsed wait window is the normal idle case, not a failure.
		if err == nil || errors.Is(err, context.DeadlineExceeded) {
			delay = n.opts.Backoff
			continue
		}
		if !sleepCtx(ctx, delay) {
			return
		}
		delay = min(delay*2, n.opts.MaxBackoff)
	}
}

func (n *DefaultNotifier) broadcast(jobType model.JobType) {
	n.mu.Lock()
	defer n.mu.Unlock()

	t := n.topics[jobType]
	if t == nil {
		return
	}
	for ch := range t.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// closeDrained discards a pending signal first so receivers see the close at once.
func closeDrained(ch chan struct{}) {
	select {
	case <-ch:
	default:
	}
	close(ch)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

var _ Notifier = (*DefaultNotifier)(nil)
