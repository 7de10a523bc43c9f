// Package metrics exposes the Prometheus collectors instrumenting Aegix's
// HTTP surface and chain/compression RPC calls, mirroring the structure of
// the service-layer's infrastructure/metrics package.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector Aegix registers.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ChainOperationDuration *prometheus.HistogramVec
	ChainErrorsTotal       *prometheus.CounterVec

	PaymentsTotal        *prometheus.CounterVec
	RecoverySponsorships *prometheus.CounterVec
	RecoveryBalance      prometheus.Gauge
}

// New registers and returns a Metrics bundle against the default
// registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers against a caller-supplied registerer, used
// in tests to avoid collisions with the global default registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegix_http_requests_total",
			Help: "Total HTTP requests by route and status.",
		}, []string{"route", "method", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aegix_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),

		ChainOperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aegix_chain_operation_duration_seconds",
			Help:    "Latency of chain/compression RPC operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),

		ChainErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegix_chain_errors_total",
			Help: "Total chain/compression RPC errors by operation.",
		}, []string{"operation"}),

		PaymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegix_payments_total",
			Help: "Total payment sessions by final status.",
		}, []string{"status", "mode"}),

		RecoverySponsorships: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegix_recovery_sponsorships_total",
			Help: "Total recovery pool sponsorships by outcome.",
		}, []string{"outcome"}),

		RecoveryBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aegix_recovery_pool_balance_lamports",
			Help: "Current Recovery Pool native balance in lamports.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ChainOperationDuration,
		m.ChainErrorsTotal,
		m.PaymentsTotal,
		m.RecoverySponsorships,
		m.RecoveryBalance,
	)

	return m
}
