package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/target/engagement-ledger/internal/core"
	"github.com/target/engagement-ledger/internal/domain/engagement"
	"github.com/target/engagement-ledger/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth         ActorResolver // Required
	Applications *service.ApplicationService
	Engagements  *service.EngagementService
	Time         *service.TimeTracker
	Settlement   *service.SettlementService
	Jobs         JobStatsReader

	// Optional: gateway callbacks are only routed when a verifier is configured.
	Callbacks CallbackVerifier
	Replay    core.ReplayGuard
	ReplayTTL time.Duration

	Metrics prometheus.Gatherer    // Optional: serves /metrics
	Health  map[string]HealthCheck // Optional: dependency checks for /healthz
	Logger  *slog.Logger           // Optional
}

// NewRouter creates and configures the HTTP router with logging and panic recovery.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	authed := RequireActor(services.Auth)
	ledger := &LedgerHandlers{
		Applications: services.Applications,
		Engagements:  services.Engagements,
		Time:         services.Time,
		Settlement:   services.Settlement,
	}
	registerLedgerRoutes(mux, ledger, authed)

	admin := &AdminHandlers{Jobs: services.Jobs, Settlement: services.Settlement}
	mux.Handle("GET /api/admin/refund-candidates", authed(http.HandlerFunc(admin.RefundCandidates)))
	if services.Jobs != nil {
		mux.Handle("GET /api/admin/jobs/stats", authed(http.HandlerFunc(admin.JobStats)))
	}

	if services.Callbacks != nil {
		gw := &GatewayHandlers{
			Verifier:   services.Callbacks,
			Reconciler: services.Settlement,
			Replay:     services.Replay,
			ReplayTTL:  services.ReplayTTL,
			Logger:     logger.With("component", "gateway_callback"),
		}
		mux.HandleFunc("POST /api/gateway/callback", gw.Callback)
	}

	health := healthHandler(services.Health)
	mux.Handle("GET /healthz", health)
	mux.Handle("HEAD /healthz", health)
	if services.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(services.Metrics, promhttp.HandlerOpts{}))
	}

	return Recover(logger)(Logging(logger)(mux))
}

func registerLedgerRoutes(mux *http.ServeMux, h *LedgerHandlers, authed func(http.Handler) http.Handler) {
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, authed(fn))
	}

	handle("POST /api/job-posts", h.CreateJobPost)
	handle("POST /api/job-posts/{id}/applications", h.Apply)
	handle("POST /api/applications/{id}/accept", h.AcceptApplication)
	handle("POST /api/applications/{id}/withdraw", h.WithdrawApplication)
	handle("POST /api/applications/{id}/status", h.AdvanceApplication)

	handle("GET /api/contracts/{id}", h.GetContract)
	for _, action := range []engagement.ContractAction{
		engagement.ActionConfirm,
		engagement.ActionPause,
		engagement.ActionResume,
		engagement.ActionComplete,
		engagement.ActionCancel,
	} {
		handle("POST /api/contracts/{id}/"+string(action), h.TransitionContract(action))
	}
	handle("POST /api/contracts/{id}/milestones", h.CreateMilestone)
	handle("GET /api/contracts/{id}/milestones", h.ListMilestones)
	handle("GET /api/contracts/{id}/time-entries", h.ListTimeEntries)
	handle("GET /api/contracts/{id}/payments", h.ListPayments)
	handle("POST /api/contracts/{id}/intervals/start", h.StartInterval)
	handle("POST /api/contracts/{id}/settle-time", h.SettleTime)

	// "pay" is applied by reconciliation only and has no route.
	for _, action := range []engagement.MilestoneAction{
		engagement.MilestoneStart,
		engagement.MilestoneSubmit,
		engagement.MilestoneApprove,
		engagement.MilestoneReject,
	} {
		handle("POST /api/milestones/{id}/"+string(action), h.TransitionMilestone(action))
	}
	handle("POST /api/milestones/{id}/settle", h.SettleMilestone)

	handle("POST /api/time-entries/{id}/stop", h.StopInterval)
	handle("POST /api/time-entries/{id}/approve", h.ReviewTimeEntry(true))
	handle("POST /api/time-entries/{id}/reject", h.ReviewTimeEntry(false))
}
