package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP Metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameHTTPRequestsTotal,
			Help: HelpTextHTTPRequestsTotal,
		},
		[]string{LabelMethod, LabelPath, LabelStatus},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    MetricNameHTTPRequestDuration,
			Help:    HelpTextHTTPRequestDuration,
			Buckets: HTTPLatencyBuckets,
		},
		[]string{LabelMethod, LabelPath},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricNameHTTPRequestsInFlight,
			Help: HelpTextHTTPRequestsInFlight,
		},
	)
)

// Token lifecycle metrics
var (
	TokenExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameTokenExchanges,
			Help: HelpTextTokenExchanges,
		},
		[]string{LabelProvider, LabelOutcome},
	)

	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameTokenRefreshes,
			Help: HelpTextTokenRefreshes,
		},
		[]string{LabelProvider, LabelOutcome},
	)

	Revocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameRevocations,
			Help: HelpTextRevocations,
		},
		[]string{LabelProvider, LabelOutcome},
	)

	MaintenanceSweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: MetricNameMaintenanceSweeps,
			Help: HelpTextMaintenanceSweeps,
		},
	)

	MaintenanceProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameMaintenanceProcessed,
			Help: HelpTextMaintenanceProcessed,
		},
		[]string{LabelResult},
	)
)

// Webhook metrics
var (
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameWebhookEvents,
			Help: HelpTextWebhookEvents,
		},
		[]string{LabelProvider, LabelCorrelation},
	)
)
