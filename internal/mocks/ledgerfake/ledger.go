// Package ledgerfake is an in-memory core.Ledger for service tests. Transactions are
// serialized by a single mutex and run against a copy of the state that replaces
// the committed state only when the TxFunc succeeds, so rollback and last-writer
// races behave like the PostgreSQL store. The storage constraints of the schema
// are enforced with the same AppErrors errors.MapDBError produces.
package ledgerfake

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/target/engagement-ledger/internal/core"
	"github.com/target/engagement-ledger/internal/domain/model"
	apperrors "github.com/target/engagement-ledger/internal/errors"
)

type state struct {
	posts      map[string]model.JobPost
	apps       map[string]model.JobApplication
	contracts  map[string]model.Contract
	milestones map[string]model.Milestone
	entries    map[string]model.TimeEntry
	payments   map[string]model.Payment
	jobs       []model.Job
}

func newState() *state {
	return &state{
		posts:      map[string]model.JobPost{},
		apps:       map[string]model.JobApplication{},
		contracts:  map[string]model.Contract{},
		milestones: map[string]model.Milestone{},
		entries:    map[string]model.TimeEntry{},
		payments:   map[string]model.Payment{},
	}
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		posts:      cloneMap(s.posts),
		apps:       cloneMap(s.apps),
		contracts:  cloneMap(s.contracts),
		milestones: cloneMap(s.milestones),
		entries:    cloneMap(s.entries),
		payments:   cloneMap(s.payments),
		jobs:       append([]model.Job(nil), s.jobs...),
	}
}

// Store is the fake ledger.
type Store struct {
	mu    sync.Mutex
	state *state
	clock func() time.Time

	// Attempts counts InTx invocations.
	Attempts int
	// EnqueueErr, when set, fails every EnqueueJob call.
	EnqueueErr error
}

var (
	_ core.Ledger   = (*Store)(nil)
	_ core.LedgerTx = (*tx)(nil)
)

// New creates an empty store stamping rows with clock (time.Now when nil).
func New(clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{state: newState(), clock: clock}
}

// InTx implements core.Ledger.
func (s *Store) InTx(ctx context.Context, fn core.TxFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Attempts++

	if err := ctx.Err(); err != nil {
		return apperrors.MapDBError(err)
	}
	work := s.state.clone()
	t := &tx{st: work, now: s.clock().UTC(), enqueueErr: s.EnqueueErr}
	if err := fn(ctx, t); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) read(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

// GetContract implements core.Ledger.
func (s *Store) GetContract(_ context.Context, id string) (*model.Contract, error) {
	var (
		c  model.Contract
		ok bool
	)
	s.read(func(st *state) { c, ok = st.contracts[id] })
	if !ok {
		return nil, apperrors.NotFound("contract not found")
	}
	return &c, nil
}

// GetApplication implements core.Ledger.
func (s *Store) GetApplication(_ context.Context, id string) (*model.JobApplication, error) {
	var (
		a  model.JobApplication
		ok bool
	)
	s.read(func(st *state) { a, ok = st.apps[id] })
	if !ok {
		return nil, apperrors.NotFound("application not found")
	}
	return &a, nil
}

// ListMilestones implements core.Ledger.
func (s *Store) ListMilestones(_ context.Context, contractID string) ([]model.Milestone, error) {
	out := make([]model.Milestone, 0)
	s.read(func(st *state) {
		for _, m := range st.milestones {
			if m.ContractID == contractID {
				out = append(out, m)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ListTimeEntries implements core.Ledger.
func (s *Store) ListTimeEntries(_ context.Context, contractID string) ([]model.TimeEntry, error) {
	out := make([]model.TimeEntry, 0)
	s.read(func(st *state) {
		for _, e := range st.entries {
			if e.ContractID == contractID {
				out = append(out, e)
			}
		}
	})
	sortEntries(out)
	return out, nil
}

// ListPayments implements core.Ledger.
func (s *Store) ListPayments(_ context.Context, contractID string) ([]model.Payment, error) {
	out := make([]model.Payment, 0)
	s.read(func(st *state) {
		for _, p := range st.payments {
			if p.ContractID == contractID {
				out = append(out, p)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListRefundCandidates implements core.Ledger.
func (s *Store) ListRefundCandidates(_ context.Context, limit, offset int) ([]model.Payment, error) {
	out := make([]model.Payment, 0)
	s.read(func(st *state) {
		for _, p := range st.payments {
			if p.RefundCandidate {
				out = append(out, p)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset > len(out) {
		return []model.Payment{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func sortEntries(es []model.TimeEntry) {
	sort.Slice(es, func(i, j int) bool {
		if !es[i].StartTime.Equal(es[j].StartTime) {
			return es[i].StartTime.Before(es[j].StartTime)
		}
		return es[i].ID < es[j].ID
	})
}

// Seeding and inspection helpers. Put* store rows as given, filling ids when empty.

// PutJobPost stores p and returns its id.
func (s *Store) PutJobPost(p model.JobPost) string {
	fill(&p.ID)
	s.read(func(st *state) { st.posts[p.ID] = p })
	return p.ID
}

// PutApplication stores a and returns its id.
func (s *Store) PutApplication(a model.JobApplication) string {
	fill(&a.ID)
	s.read(func(st *state) { st.apps[a.ID] = a })
	return a.ID
}

// PutContract stores c and returns its id.
func (s *Store) PutContract(c model.Contract) string {
	fill(&c.ID)
	s.read(func(st *state) { st.contracts[c.ID] = c })
	return c.ID
}

// PutMilestone stores m and returns its id.
func (s *Store) PutMilestone(m model.Milestone) string {
	fill(&m.ID)
	s.read(func(st *state) { st.milestones[m.ID] = m })
	return m.ID
}

// PutTimeEntry stores e and returns its id.
func (s *Store) PutTimeEntry(e model.TimeEntry) string {
	fill(&e.ID)
	s.read(func(st *state) { st.entries[e.ID] = e })
	return e.ID
}

// PutPayment stores p and returns its id.
func (s *Store) PutPayment(p model.Payment) string {
	fill(&p.ID)
	s.read(func(st *state) { st.payments[p.ID] = p })
	return p.ID
}

// JobPost returns the committed job post.
func (s *Store) JobPost(id string) model.JobPost {
	var p model.JobPost
	s.read(func(st *state) { p = st.posts[id] })
	return p
}

// Contract returns the committed contract.
func (s *Store) Contract(id string) model.Contract {
	var c model.Contract
	s.read(func(st *state) { c = st.contracts[id] })
	return c
}

// Application returns the committed application.
func (s *Store) Application(id string) model.JobApplication {
	var a model.JobApplication
	s.read(func(st *state) { a = st.apps[id] })
	return a
}

// Milestone returns the committed milestone.
func (s *Store) Milestone(id string) model.Milestone {
	var m model.Milestone
	s.read(func(st *state) { m = st.milestones[id] })
	return m
}

// TimeEntry returns the committed time entry.
func (s *Store) TimeEntry(id string) model.TimeEntry {
	var e model.TimeEntry
	s.read(func(st *state) { e = st.entries[id] })
	return e
}

// Payment returns the committed payment.
func (s *Store) Payment(id string) model.Payment {
	var p model.Payment
	s.read(func(st *state) { p = st.payments[id] })
	return p
}

// Contracts returns every committed contract.
func (s *Store) Contracts() []model.Contract {
	var out []model.Contract
	s.read(func(st *state) {
		for _, c := range st.contracts {
			out = append(out, c)
		}
	})
	return out
}

// Jobs returns the committed outbox rows in insertion order.
func (s *Store) Jobs() []model.Job {
	var out []model.Job
	s.read(func(st *state) { out = append(out, st.jobs...) })
	return out
}

// PaymentJobIDs decodes the payment ids of committed payment_submit jobs.
func (s *Store) PaymentJobIDs() []string {
	var ids []string
	for _, j := range s.Jobs() {
		if j.Type != model.JobTypePaymentSubmit {
			continue
		}
		var p model.PaymentSubmitPayload
		if err := json.Unmarshal(j.Payload, &p); err == nil {
			ids = append(ids, p.PaymentID)
		}
	}
	return ids
}

func fill(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}
