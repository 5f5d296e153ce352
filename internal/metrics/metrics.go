package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the core's Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	TelemetryIngested *prometheus.CounterVec
	FraudFlagged      *prometheus.CounterVec
	QuotaConsume      *prometheus.CounterVec
	DispatchSends     *prometheus.CounterVec
	DispatchLatency   prometheus.Histogram
	DispatchCommands  *prometheus.CounterVec
	ZoneSeverity      *prometheus.CounterVec
	ReconcileErrors   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TelemetryIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grid_telemetry_ingested_total",
			Help: "Telemetry samples persisted, by energy source.",
		}, []string{"source"}),
		FraudFlagged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grid_fraud_flagged_total",
			Help: "Positive fraud detections, by detector.",
		}, []string{"detector"}),
		QuotaConsume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grid_quota_consume_total",
			Help: "Quota consume calls, by outcome.",
		}, []string{"outcome"}),
		DispatchSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grid_dispatch_sends_total",
			Help: "Per-meter control sends, by outcome.",
		}, []string{"outcome"}),
		DispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "grid_dispatch_send_seconds",
			Help:    "Latency of a single per-meter control send.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		DispatchCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grid_dispatch_commands_total",
			Help: "Dispatch commands completed, by final status.",
		}, []string{"status"}),
		ZoneSeverity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grid_reconciliation_zones_total",
			Help: "Reconciled zones, by severity.",
		}, []string{"severity"}),
		ReconcileErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grid_reconciliation_zone_errors_total",
			Help: "Zones omitted from a run because their delta could not be computed.",
		}),
	}
	reg.MustRegister(
		m.TelemetryIngested, m.FraudFlagged, m.QuotaConsume, m.DispatchSends,
		m.DispatchLatency, m.DispatchCommands, m.ZoneSeverity, m.ReconcileErrors,
	)
	return m
}

func (m *Metrics) Ingested(source string) {
	if m != nil {
		m.TelemetryIngested.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) Flagged(detector string) {
	if m != nil {
		m.FraudFlagged.WithLabelValues(detector).Inc()
	}
}

func (m *Metrics) Consumed(outcome string) {
	if m != nil {
		m.QuotaConsume.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Sent(ok bool, seconds float64) {
	if m == nil {
		return
	}
	outcome := "delivered"
	if !ok {
		outcome = "failed"
	}
	m.DispatchSends.WithLabelValues(outcome).Inc()
	m.DispatchLatency.Observe(seconds)
}

func (m *Metrics) CommandDone(status string) {
	if m != nil {
		m.DispatchCommands.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) Reconciled(severity string) {
	if m != nil {
		m.ZoneSeverity.WithLabelValues(severity).Inc()
	}
}

func (m *Metrics) ReconcileFailed() {
	if m != nil {
		m.ReconcileErrors.Inc()
	}
}
