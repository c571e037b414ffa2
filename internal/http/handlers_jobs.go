package httpx

import (
	"context"
	"net/http"

	domainauth "github.com/target/engagement-ledger/internal/domain/auth"
	"github.com/target/engagement-ledger/internal/domain/model"
	apperrors "github.com/target/engagement-ledger/internal/errors"
)

// JobStatsReader reports outbox queue depth per job type.
type JobStatsReader interface {
	Stats(ctx context.Context, jobType model.JobType) (*model.JobStats, error)
}

// AdminHandlers serves operator endpoints.
type AdminHandlers struct {
	Jobs       JobStatsReader
	Settlement RefundCandidateLister
}

// RefundCandidateLister lists payments that need a manual refund decision.
type RefundCandidateLister interface {
	ListRefundCandidates(ctx context.Context, actor domainauth.Actor, limit, offset int) ([]model.Payment, error)
}

// RefundCandidates handles GET /api/admin/refund-candidates.
func (h *AdminHandlers) RefundCandidates(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	limit, offset, err := parsePage(r, defaultListLimit, maxListLimit)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	items, err := h.Settlement.ListRefundCandidates(r.Context(), actor, limit, offset)
	respond(w, r, http.StatusOK, listResponse(items), err)
}

// JobStats handles GET /api/admin/jobs/stats[?type=payment_submit].
func (h *AdminHandlers) JobStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	if !actor.Privileged() {
		WriteAppError(w, r, apperrors.Forbidden("job statistics are visible to administrators only"))
		return
	}

	types, err := jobTypesParam(r)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}

	out := make(map[model.JobType]*model.JobStats, len(types))
	for _, jt := range types {
		stats, err := h.Jobs.Stats(r.Context(), jt)
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		out[jt] = stats
	}
	WriteJSON(w, http.StatusOK, out)
}
