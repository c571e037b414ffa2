// Package httpx exposes the engagement ledger over a JSON HTTP API.
package httpx

import (
	"net/http"

	domainauth "github.com/target/engagement-ledger/internal/domain/auth"
	"github.com/target/engagement-ledger/internal/domain/engagement"
	"github.com/target/engagement-ledger/internal/domain/model"
	"github.com/target/engagement-ledger/internal/ports"
	"github.com/target/engagement-ledger/internal/service"
)

// LedgerHandlers provides HTTP handlers for the marketplace ledger operations.
// Authorization happens in the services; handlers only decode and render.
type LedgerHandlers struct {
	Applications *service.ApplicationService
	Engagements  *service.EngagementService
	Time         *service.TimeTracker
	Settlement   *service.SettlementService
}

// requestActor returns the actor RequireActor stored in the context.
func requestActor(w http.ResponseWriter, r *http.Request) (domainauth.Actor, bool) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		WriteAppError(w, r, ports.ErrUnauthenticated)
	}
	return actor, ok
}

// respond renders v with status, or err when the operation failed.
func respond[T any](w http.ResponseWriter, r *http.Request, status int, v T, err error) {
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	WriteJSON(w, status, v)
}

// CreateJobPost handles POST /api/job-posts.
func (h *LedgerHandlers) CreateJobPost(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	var req model.CreateJobPostRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	post, err := h.Applications.CreateJobPost(r.Context(), actor, &req)
	respond(w, r, http.StatusCreated, post, err)
}

// Apply handles POST /api/job-posts/{id}/applications.
func (h *LedgerHandlers) Apply(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	var req model.CreateApplicationRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	req.JobPostID = r.PathValue("id")
	app, err := h.Applications.Apply(r.Context(), actor, &req)
	respond(w, r, http.StatusCreated, app, err)
}

// AcceptApplication handles POST /api/applications/{id}/accept.
func (h *LedgerHandlers) AcceptApplication(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	res, err := h.Applications.AcceptApplication(r.Context(), actor, r.PathValue("id"))
	respond(w, r, http.StatusCreated, res, err)
}

// WithdrawApplication handles POST /api/applications/{id}/withdraw.
func (h *LedgerHandlers) WithdrawApplication(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	app, err := h.Applications.WithdrawApplication(r.Context(), actor, r.PathValue("id"))
	respond(w, r, http.StatusOK, app, err)
}

type applicationStatusRequest struct {
	Status model.ApplicationStatus `json:"status"`
}

// AdvanceApplication handles POST /api/applications/{id}/status.
func (h *LedgerHandlers) AdvanceApplication(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	var req applicationStatusRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	app, err := h.Applications.AdvanceApplication(r.Context(), actor, r.PathValue("id"), req.Status)
	respond(w, r, http.StatusOK, app, err)
}

// GetContract handles GET /api/contracts/{id}.
func (h *LedgerHandlers) GetContract(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	c, err := h.Engagements.GetContract(r.Context(), actor, r.PathValue("id"))
	respond(w, r, http.StatusOK, c, err)
}

// TransitionContract returns the handler for POST /api/contracts/{id}/{action}.
func (h *LedgerHandlers) TransitionContract(action engagement.ContractAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requestActor(w, r)
		if !ok {
			return
		}
		c, err := h.Engagements.TransitionContract(r.Context(), actor, r.PathValue("id"), action)
		respond(w, r, http.StatusOK, c, err)
	}
}

// CreateMilestone handles POST /api/contracts/{id}/milestones.
func (h *LedgerHandlers) CreateMilestone(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	var req model.CreateMilestoneRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	req.ContractID = r.PathValue("id")
	m, err := h.Engagements.CreateMilestone(r.Context(), actor, &req)
	respond(w, r, http.StatusCreated, m, err)
}

// ListMilestones handles GET /api/contracts/{id}/milestones.
func (h *LedgerHandlers) ListMilestones(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	items, err := h.Engagements.ListMilestones(r.Context(), actor, r.PathValue("id"))
	respond(w, r, http.StatusOK, listResponse(items), err)
}

// ListTimeEntries handles GET /api/contracts/{id}/time-entries.
func (h *LedgerHandlers) ListTimeEntries(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	items, err := h.Engagements.ListTimeEntries(r.Context(), actor, r.PathValue("id"))
	respond(w, r, http.StatusOK, listResponse(items), err)
}

// ListPayments handles GET /api/contracts/{id}/payments.
func (h *LedgerHandlers) ListPayments(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	items, err := h.Engagements.ListPayments(r.Context(), actor, r.PathValue("id"))
	respond(w, r, http.StatusOK, listResponse(items), err)
}

// TransitionMilestone returns the handler for POST /api/milestones/{id}/{action}.
func (h *LedgerHandlers) TransitionMilestone(action engagement.MilestoneAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requestActor(w, r)
		if !ok {
			return
		}
		m, err := h.Engagements.TransitionMilestone(r.Context(), actor, r.PathValue("id"), action)
		respond(w, r, http.StatusOK, m, err)
	}
}

// SettleMilestone handles POST /api/milestones/{id}/settle.
func (h *LedgerHandlers) SettleMilestone(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	res, err := h.Settlement.SettleMilestone(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	WriteJSON(w, settleStatus(res), res)
}

// StartInterval handles POST /api/contracts/{id}/intervals/start.
func (h *LedgerHandlers) StartInterval(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	e, err := h.Time.StartInterval(r.Context(), actor, r.PathValue("id"))
	respond(w, r, http.StatusCreated, e, err)
}

// StopInterval handles POST /api/time-entries/{id}/stop.
func (h *LedgerHandlers) StopInterval(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	e, err := h.Time.StopInterval(r.Context(), actor, r.PathValue("id"))
	respond(w, r, http.StatusOK, e, err)
}

// ReviewTimeEntry returns the handler for POST /api/time-entries/{id}/{approve|reject}.
func (h *LedgerHandlers) ReviewTimeEntry(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requestActor(w, r)
		if !ok {
			return
		}
		review := h.Time.RejectEntry
		if approve {
			review = h.Time.ApproveEntry
		}
		e, err := review(r.Context(), actor, r.PathValue("id"))
		respond(w, r, http.StatusOK, e, err)
	}
}

// SettleTime handles POST /api/contracts/{id}/settle-time.
func (h *LedgerHandlers) SettleTime(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	res, err := h.Settlement.SettleTimeEntries(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	WriteJSON(w, settleStatus(res), res)
}

// settleStatus is 202 for a new payment (the gateway outcome arrives later) and
// 200 for an idempotent no-op.
func settleStatus(res *model.SettlementResult) int {
	if res == nil || res.AlreadySettled {
		return http.StatusOK
	}
	return http.StatusAccepted
}

type listEnvelope[T any] struct {
	Items []T `json:"items"`
}

func listResponse[T any](items []T) listEnvelope[T] {
	if items == nil {
		items = []T{}
	}
	return listEnvelope[T]{Items: items}
}
