package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "storefront"

// Metrics holds the Prometheus collectors for the payments service.
// Each instance owns its registry so tests can create isolated copies.
type Metrics struct {
	Registry *prometheus.Registry

	WebhookOutcomes     *prometheus.CounterVec // label: outcome
	WebhookRedeliveries prometheus.Counter
	SignatureFailures   *prometheus.CounterVec // label: reason
	GatewayRequests     *prometheus.CounterVec // labels: operation, result
	GatewayRetries      *prometheus.CounterVec // label: operation
	Checkouts           *prometheus.CounterVec // label: result
	Reconciliations     *prometheus.CounterVec // label: result
	HTTPDuration        *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		WebhookOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "outcomes_total",
			Help:      "Authenticated webhook deliveries by acknowledgement outcome.",
		}, []string{"outcome"}),
		WebhookRedeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "redeliveries_total",
			Help:      "Webhook deliveries already seen for the same reference and status.",
		}),
		SignatureFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "signature_failures_total",
			Help:      "Rejected webhook signatures by reason.",
		}, []string{"reason"}),
		GatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Payment gateway calls by operation and result.",
		}, []string{"operation", "result"}),
		GatewayRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "retries_total",
			Help:      "Payment gateway retry attempts by operation.",
		}, []string{"operation"}),
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "initiations_total",
			Help:      "Checkout initiations by result.",
		}, []string{"result"}),
		Reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "reconciliations_total",
			Help:      "Operator reconciliation runs by result.",
		}, []string{"result"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.WebhookOutcomes,
		m.WebhookRedeliveries,
		m.SignatureFailures,
		m.GatewayRequests,
		m.GatewayRetries,
		m.Checkouts,
		m.Reconciliations,
		m.HTTPDuration,
	)

	return m
}
