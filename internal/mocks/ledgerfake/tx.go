package ledgerfake

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/target/engagement-ledger/internal/domain/engagement"
	"github.com/target/engagement-ledger/internal/domain/model"
	apperrors "github.com/target/engagement-ledger/internal/errors"
)

type tx struct {
	st         *state
	now        time.Time
	enqueueErr error
}

func (t *tx) InsertJobPost(_ context.Context, p *model.JobPost) error {
	fill(&p.ID)
	p.CreatedAt, p.UpdatedAt = t.now, t.now
	if p.Status == "" {
		p.Status = model.JobPostStatusOpen
	}
	t.st.posts[p.ID] = *p
	return nil
}

func (t *tx) GetJobPost(_ context.Context, id string) (*model.JobPost, error) {
	p, ok := t.st.posts[id]
	if !ok {
		return nil, apperrors.NotFound("job post not found")
	}
	return &p, nil
}

func (t *tx) SetJobPostStatus(_ context.Context, id string, status model.JobPostStatus) error {
	p, ok := t.st.posts[id]
	if !ok {
		return apperrors.NotFound("set job post status: no matching row")
	}
	p.Status, p.UpdatedAt = status, t.now
	t.st.posts[id] = p
	return nil
}

func (t *tx) HasLiveContract(_ context.Context, jobPostID string) (bool, error) {
	for _, c := range t.st.contracts {
		if c.JobPostID != nil && *c.JobPostID == jobPostID && !c.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) InsertApplication(_ context.Context, a *model.JobApplication) error {
	if _, ok := t.st.posts[a.JobPostID]; !ok {
		return apperrors.ForeignKey("job post does not exist")
	}
	for _, other := range t.st.apps {
		if other.JobPostID == a.JobPostID && other.WorkerID == a.WorkerID {
			return &apperrors.AppError{
				Code:    apperrors.ErrCodeConflict,
				Message: "application already exists",
				Field:   "worker_id",
			}
		}
	}
	fill(&a.ID)
	a.CreatedAt, a.UpdatedAt = t.now, t.now
	if a.Status == "" {
		a.Status = model.ApplicationStatusPending
	}
	t.st.apps[a.ID] = *a
	return nil
}

func (t *tx) LockApplication(_ context.Context, id string) (*model.JobApplication, error) {
	a, ok := t.st.apps[id]
	if !ok {
		return nil, apperrors.NotFound("application not found")
	}
	return &a, nil
}

func (t *tx) SetApplicationStatus(_ context.Context, id string, status model.ApplicationStatus) error {
	a, ok := t.st.apps[id]
	if !ok {
		return apperrors.NotFound("set application status: no matching row")
	}
	a.Status, a.UpdatedAt = status, t.now
	t.st.apps[id] = a
	return nil
}

func (t *tx) RejectOpenApplications(_ context.Context, jobPostID, exceptID string) ([]model.JobApplication, error) {
	out := make([]model.JobApplication, 0)
	for id, a := range t.st.apps {
		if a.JobPostID != jobPostID || id == exceptID || !a.Status.Open() {
			continue
		}
		a.Status, a.UpdatedAt = model.ApplicationStatusRejected, t.now
		t.st.apps[id] = a
		out = append(out, a)
	}
	return out, nil
}

func (t *tx) InsertContract(_ context.Context, c *model.Contract) error {
	if c.Status == "" {
		c.Status = model.ContractStatusPending
	}
	if !c.Status.Terminal() {
		for _, other := range t.st.contracts {
			if other.Status.Terminal() {
				continue
			}
			if other.EmployerID == c.EmployerID && other.WorkerID == c.WorkerID && samePost(other.JobPostID, c.JobPostID) {
				return apperrors.InvalidState("an active contract already exists for this employer, worker and job post")
			}
			if c.JobPostID != nil && samePost(other.JobPostID, c.JobPostID) {
				return apperrors.InvalidState("the job post already has a live contract")
			}
		}
	}
	fill(&c.ID)
	c.CreatedAt, c.UpdatedAt = t.now, t.now
	t.st.contracts[c.ID] = *c
	return nil
}

func samePost(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (t *tx) LockContract(_ context.Context, id string) (*model.Contract, error) {
	c, ok := t.st.contracts[id]
	if !ok {
		return nil, apperrors.NotFound("contract not found")
	}
	return &c, nil
}

func (t *tx) SetContractStatus(_ context.Context, id string, status model.ContractStatus) error {
	c, ok := t.st.contracts[id]
	if !ok {
		return apperrors.NotFound("set contract status: no matching row")
	}
	c.Status, c.UpdatedAt = status, t.now
	t.st.contracts[id] = c
	return nil
}

func (t *tx) ContractFacts(_ context.Context, contractID string) (engagement.ContractFacts, error) {
	var f engagement.ContractFacts
	for _, m := range t.st.milestones {
		if m.ContractID == contractID && m.Status.Outstanding() {
			f.OutstandingMilestones++
		}
	}
	for _, e := range t.st.entries {
		if e.ContractID == contractID && e.Status == model.TimeEntryStatusApproved {
			f.UnpaidApprovedEntries++
		}
	}
	for _, p := range t.st.payments {
		if p.ContractID == contractID && (p.Status == model.PaymentStatusCompleted || p.CompletedAt != nil) {
			f.CompletedPayments++
		}
	}
	return f, nil
}

func (t *tx) InsertMilestone(_ context.Context, m *model.Milestone) error {
	if _, ok := t.st.contracts[m.ContractID]; !ok {
		return apperrors.ForeignKey("contract does not exist")
	}
	fill(&m.ID)
	m.CreatedAt, m.UpdatedAt = t.now, t.now
	if m.Status == "" {
		m.Status = model.MilestoneStatusPending
	}
	t.st.milestones[m.ID] = *m
	return nil
}

func (t *tx) LockMilestone(ctx context.Context, id string) (*model.Contract, *model.Milestone, error) {
	m, ok := t.st.milestones[id]
	if !ok {
		return nil, nil, apperrors.NotFound("milestone not found")
	}
	c, err := t.LockContract(ctx, m.ContractID)
	if err != nil {
		return nil, nil, err
	}
	return c, &m, nil
}

func (t *tx) SetMilestoneStatus(_ context.Context, id string, status model.MilestoneStatus, revision int) error {
	m, ok := t.st.milestones[id]
	if !ok {
		return apperrors.NotFound("set milestone status: no matching row")
	}
	m.Status, m.Revision, m.UpdatedAt = status, revision, t.now
	t.st.milestones[id] = m
	return nil
}

func (t *tx) InsertTimeEntry(_ context.Context, e *model.TimeEntry) error {
	if e.EndTime == nil {
		for _, other := range t.st.entries {
			if other.ContractID == e.ContractID && other.WorkerID == e.WorkerID && other.Open() {
				return apperrors.OpenIntervalExists("worker already has an open interval on this contract")
			}
		}
	}
	fill(&e.ID)
	e.CreatedAt, e.UpdatedAt = t.now, t.now
	if e.Status == "" {
		e.Status = model.TimeEntryStatusPending
	}
	t.st.entries[e.ID] = *e
	return nil
}

func (t *tx) LockTimeEntry(ctx context.Context, id string) (*model.Contract, *model.TimeEntry, error) {
	e, ok := t.st.entries[id]
	if !ok {
		return nil, nil, apperrors.NotFound("time entry not found")
	}
	c, err := t.LockContract(ctx, e.ContractID)
	if err != nil {
		return nil, nil, err
	}
	return c, &e, nil
}

func (t *tx) FindOpenTimeEntry(_ context.Context, contractID, workerID string) (*model.TimeEntry, error) {
	for _, e := range t.st.entries {
		if e.ContractID == contractID && e.WorkerID == workerID && e.Open() {
			return &e, nil
		}
	}
	return nil, nil
}

func (t *tx) StopTimeEntry(_ context.Context, id string, end time.Time, minutes int) error {
	e, ok := t.st.entries[id]
	if !ok || !e.Open() {
		return apperrors.NotFound("stop time entry: no matching row")
	}
	e.EndTime, e.DurationMinutes, e.UpdatedAt = &end, &minutes, t.now
	t.st.entries[id] = e
	return nil
}

func (t *tx) SetTimeEntryStatus(_ context.Context, id string, status model.TimeEntryStatus) error {
	e, ok := t.st.entries[id]
	if !ok {
		return apperrors.NotFound("set time entry status: no matching row")
	}
	e.Status, e.UpdatedAt = status, t.now
	t.st.entries[id] = e
	return nil
}

func (t *tx) ListTimeEntriesForSettlement(_ context.Context, contractID string) ([]model.TimeEntry, error) {
	out := make([]model.TimeEntry, 0)
	for _, e := range t.st.entries {
		if e.ContractID == contractID && e.Status == model.TimeEntryStatusApproved &&
			e.PaymentID == nil && !e.Open() {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (t *tx) AttachTimeEntries(_ context.Context, paymentID string, entryIDs []string) error {
	for _, id := range entryIDs {
		e, ok := t.st.entries[id]
		if !ok || e.PaymentID != nil {
			return apperrors.Conflict("time entries were attached to another payment")
		}
		pid := paymentID
		e.PaymentID, e.UpdatedAt = &pid, t.now
		t.st.entries[id] = e
	}
	if p, ok := t.st.payments[paymentID]; ok {
		p.TimeEntryIDs = append([]string(nil), entryIDs...)
		t.st.payments[paymentID] = p
	}
	return nil
}

func (t *tx) ReleaseTimeEntries(_ context.Context, paymentID string) error {
	for id, e := range t.st.entries {
		if e.PaymentID != nil && *e.PaymentID == paymentID && e.Status == model.TimeEntryStatusApproved {
			e.PaymentID, e.UpdatedAt = nil, t.now
			t.st.entries[id] = e
		}
	}
	return nil
}

func (t *tx) MarkTimeEntriesPaid(_ context.Context, paymentID string) ([]string, error) {
	ids := make([]string, 0)
	for id, e := range t.st.entries {
		if e.PaymentID != nil && *e.PaymentID == paymentID && e.Status == model.TimeEntryStatusApproved {
			e.Status, e.UpdatedAt = model.TimeEntryStatusPaid, t.now
			t.st.entries[id] = e
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (t *tx) InsertPayment(_ context.Context, p *model.Payment) error {
	if err := t.checkRef(p); err != nil {
		return err
	}
	fill(&p.ID)
	p.CreatedAt, p.UpdatedAt = t.now, t.now
	if p.Status == "" {
		p.Status = model.PaymentStatusPending
	}
	t.st.payments[p.ID] = *p
	return nil
}

func (t *tx) checkRef(p *model.Payment) error {
	if p.GatewayRef == nil {
		return nil
	}
	for id, other := range t.st.payments {
		if id != p.ID && other.GatewayRef != nil && *other.GatewayRef == *p.GatewayRef {
			return apperrors.Conflict("payment with this gateway reference already exists")
		}
	}
	return nil
}

func (t *tx) LockPayment(ctx context.Context, id string) (*model.Contract, *model.Payment, error) {
	p, ok := t.st.payments[id]
	if !ok {
		return nil, nil, apperrors.NotFound("payment not found")
	}
	c, err := t.LockContract(ctx, p.ContractID)
	if err != nil {
		return nil, nil, err
	}
	return c, &p, nil
}

func (t *tx) LockPaymentByRef(ctx context.Context, gatewayRef string) (*model.Contract, *model.Payment, error) {
	for id, p := range t.st.payments {
		if gatewayRef != "" && p.GatewayRef != nil && *p.GatewayRef == gatewayRef {
			return t.LockPayment(ctx, id)
		}
	}
	return nil, nil, apperrors.NotFound("payment not found")
}

func (t *tx) FindMilestonePayment(_ context.Context, milestoneID string) (*model.Payment, error) {
	var found *model.Payment
	for _, p := range t.st.payments {
		if p.MilestoneID == nil || *p.MilestoneID != milestoneID {
			continue
		}
		switch p.Status {
		case model.PaymentStatusPending, model.PaymentStatusProcessing,
			model.PaymentStatusCompleted, model.PaymentStatusRefunded:
			if found == nil || p.CreatedAt.After(found.CreatedAt) {
				cp := p
				found = &cp
			}
		}
	}
	return found, nil
}

func (t *tx) UpdatePayment(_ context.Context, p *model.Payment) error {
	cur, ok := t.st.payments[p.ID]
	if !ok {
		return apperrors.NotFound("update payment: no matching row")
	}
	if err := t.checkRef(p); err != nil {
		return err
	}
	p.UpdatedAt = t.now
	cur.Status = p.Status
	cur.GatewayRef = p.GatewayRef
	cur.FailureReason = p.FailureReason
	cur.RefundCandidate = p.RefundCandidate
	cur.CompletedAt = p.CompletedAt
	cur.UpdatedAt = p.UpdatedAt
	t.st.payments[p.ID] = cur
	return nil
}

func (t *tx) EnqueueJob(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if t.enqueueErr != nil {
		return nil, t.enqueueErr
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job")
	}
	job := model.Job{
		ID:          uuid.NewString(),
		Type:        req.Type,
		Status:      model.JobStatusPending,
		Priority:    req.Priority,
		Payload:     append([]byte(nil), req.Payload...),
		ScheduledAt: t.now,
		MaxRetries:  req.MaxRetries,
		CreatedAt:   t.now,
		UpdatedAt:   t.now,
	}
	t.st.jobs = append(t.st.jobs, job)
	return &job, nil
}
