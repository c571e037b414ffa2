package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/target/engagement-ledger/internal/observability/statsd"
)

// Ledger holds the Prometheus collectors for settlement and outbox activity and
// mirrors each observation to an optional StatsD sink. A nil *Ledger discards
// everything.
type Ledger struct {
	settlements     *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	txRetries       prometheus.Counter
	dropped         *prometheus.CounterVec
	gatewaySubmit   *prometheus.HistogramVec
	jobs            *prometheus.CounterVec

	sink statsd.Sink
}

// NewLedger registers the ledger collectors on reg. Pass prometheus.NewRegistry()
// in tests to avoid duplicate registration on the default registry.
func NewLedger(reg prometheus.Registerer, sink statsd.Sink) *Ledger {
	m := &Ledger{
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_settlements_total",
			Help: "Settlement requests by payment kind and result.",
		}, []string{"kind", "result"}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_reconciliations_total",
			Help: "Gateway outcomes applied to payments.",
		}, []string{"outcome", "result"}),
		txRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_tx_retries_total",
			Help: "Ledger transactions re-run after a serialization failure or deadlock.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_notifications_dropped_total",
			Help: "Notifications that could not be enqueued.",
		}, []string{"event_type"}),
		gatewaySubmit: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_gateway_submit_seconds",
			Help:    "Latency of payment intent submissions.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"result"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_outbox_jobs_total",
			Help: "Outbox jobs processed by runners.",
		}, []string{"job_type", "result"}),
		sink: sink,
	}
	if reg != nil {
		reg.MustRegister(m.settlements, m.reconciliations, m.txRetries, m.dropped, m.gatewaySubmit, m.jobs)
	}
	return m
}

// Settlement records one settle call.
func (m *Ledger) Settlement(kind, result string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(kind, result).Inc()
	m.count("settlement", map[string]string{"kind": kind, "result": result})
}

// Reconciliation records one gateway outcome.
func (m *Ledger) Reconciliation(outcome, result string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(outcome, result).Inc()
	m.count("reconciliation", map[string]string{"outcome": outcome, "result": result})
}

// TxRetry records a re-run ledger transaction.
func (m *Ledger) TxRetry() {
	if m == nil {
		return
	}
	m.txRetries.Inc()
	m.count("tx.retry", nil)
}

// NotificationDropped records a notification that never reached the outbox.
func (m *Ledger) NotificationDropped(eventType string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(eventType).Inc()
	m.count("notification.dropped", map[string]string{"event_type": eventType})
}

// GatewaySubmit records the latency of one gateway call.
func (m *Ledger) GatewaySubmit(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.gatewaySubmit.WithLabelValues(result).Observe(d.Seconds())
	if m.sink != nil {
		m.sink.Timing("gateway.submit", d, map[string]string{"result": result})
	}
}

// Job records one processed outbox job.
func (m *Ledger) Job(jobType, result string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(jobType, result).Inc()
}

func (m *Ledger) count(name string, tags map[string]string) {
	if m.sink != nil {
		m.sink.Count("ledger."+name, 1, CloneTags(tags))
	}
}
