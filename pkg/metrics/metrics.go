package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "notary"

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	LedgerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ledger_calls_total", Help: "Ledger RPC calls by kind (call|query), method and outcome."},
		[]string{"kind", "method", "outcome"},
	)
	LedgerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "ledger_call_seconds", Help: "Ledger RPC latency.", Buckets: prometheus.DefBuckets},
		[]string{"kind"},
	)
	MirrorAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "content_mirror_attempts_total", Help: "Content store mirror attempts by mirror, operation and outcome."},
		[]string{"mirror", "op", "outcome"},
	)
	ReconcilePending = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Name: "reconcile_pending", Help: "Cache writes waiting for reconciliation."},
	)
	ReconcileRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "reconcile_attempts_total", Help: "Reconciliation attempts by outcome."},
		[]string{"outcome"},
	)
	Slashes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "slashes_total", Help: "Applied slashes by reason."},
		[]string{"reason"},
	)
	Verifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "verifications_total", Help: "Document verifications by outcome (verified|unverified|partial)."},
		[]string{"outcome"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(LedgerCalls)
	reg.MustRegister(LedgerLatency)
	reg.MustRegister(MirrorAttempts)
	reg.MustRegister(ReconcilePending)
	reg.MustRegister(ReconcileRetries)
	reg.MustRegister(Slashes)
	reg.MustRegister(Verifications)
}
