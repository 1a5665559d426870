package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus observability primitives for the reconciliation core.
type Metrics struct {
	apiRequests      *prometheus.CounterVec
	apiDuration      *prometheus.HistogramVec
	webhookOutcomes  *prometheus.CounterVec
	webhookDuration  *prometheus.HistogramVec
	handlerDuration  *prometheus.HistogramVec
	handlerErrors    *prometheus.CounterVec
	refundOutcomes   *prometheus.CounterVec
	refundAmount     *prometheus.HistogramVec
	queueBacklog     prometheus.Gauge
	schedulerJobRuns *prometheus.CounterVec
}

// NewMetrics registers and returns Prometheus metrics on the default registerer.
func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer registers metrics on reg.
func NewMetricsWithRegisterer(reg prometheus.Registerer) *Metrics {
	apiRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trailpay_api_requests_total",
		Help: "Counts API requests by method, route and status.",
	}, []string{"method", "route", "status"})

	apiDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trailpay_api_duration_seconds",
		Help:    "API request latency per method/route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	webhookOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trailpay_webhook_events_total",
		Help: "Inbound webhook outcomes by event type.",
	}, []string{"outcome", "event_type"})

	webhookDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trailpay_webhook_duration_seconds",
		Help:    "Webhook ingestion latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	handlerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trailpay_event_handler_duration_seconds",
		Help:    "Event handler durations by event type.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type", "status"})

	handlerErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trailpay_event_handler_errors_total",
		Help: "Counts handler errors by event type.",
	}, []string{"event_type"})

	refundOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trailpay_refund_outcomes_total",
		Help: "Refund and cancellation outcomes.",
	}, []string{"outcome"})

	refundAmount := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trailpay_refund_amount_minor",
		Help:    "Refunded amount distribution in minor units.",
		Buckets: []float64{1000, 5000, 10000, 25000, 50000, 100000},
	}, []string{"currency"})

	queueBacklog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trailpay_event_queue_failed",
		Help: "Failed queue entries awaiting replay.",
	})

	schedulerJobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trailpay_scheduler_job_runs_total",
		Help: "Scheduler job runs by job and status.",
	}, []string{"job", "status"})

	reg.MustRegister(
		apiRequests,
		apiDuration,
		webhookOutcomes,
		webhookDuration,
		handlerDuration,
		handlerErrors,
		refundOutcomes,
		refundAmount,
		queueBacklog,
		schedulerJobRuns,
	)

	return &Metrics{
		apiRequests:      apiRequests,
		apiDuration:      apiDuration,
		webhookOutcomes:  webhookOutcomes,
		webhookDuration:  webhookDuration,
		handlerDuration:  handlerDuration,
		handlerErrors:    handlerErrors,
		refundOutcomes:   refundOutcomes,
		refundAmount:     refundAmount,
		queueBacklog:     queueBacklog,
		schedulerJobRuns: schedulerJobRuns,
	}
}

// ObserveAPIRequest records an API request and latency.
func (m *Metrics) ObserveAPIRequest(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	methodLabel := sanitizeLabel(method)
	routeLabel := sanitizeLabel(route)
	m.apiRequests.WithLabelValues(methodLabel, routeLabel, status).Inc()
	m.apiDuration.WithLabelValues(methodLabel, routeLabel).Observe(duration.Seconds())
}

// RecordWebhook records one ingestion outcome.
func (m *Metrics) RecordWebhook(outcome, eventType string, duration time.Duration) {
	if m == nil {
		return
	}
	outcomeLabel := sanitizeLabel(outcome)
	m.webhookOutcomes.WithLabelValues(outcomeLabel, sanitizeLabel(eventType)).Inc()
	m.webhookDuration.WithLabelValues(outcomeLabel).Observe(duration.Seconds())
}

// RecordHandler observes handler invocations.
func (m *Metrics) RecordHandler(eventType, status string, duration time.Duration) {
	if m == nil {
		return
	}
	typeLabel := sanitizeLabel(eventType)
	m.handlerDuration.WithLabelValues(typeLabel, status).Observe(duration.Seconds())
	if status != "success" {
		m.handlerErrors.WithLabelValues(typeLabel).Inc()
	}
}

// RecordRefund records a refund orchestration outcome and, when positive, its amount.
func (m *Metrics) RecordRefund(outcome, currency string, amount int64) {
	if m == nil {
		return
	}
	m.refundOutcomes.WithLabelValues(sanitizeLabel(outcome)).Inc()
	if amount > 0 {
		m.refundAmount.WithLabelValues(sanitizeLabel(currency)).Observe(float64(amount))
	}
}

// SetQueueBacklog updates the failed queue gauge.
func (m *Metrics) SetQueueBacklog(value float64) {
	if m == nil {
		return
	}
	m.queueBacklog.Set(value)
}

// RecordJobRun counts scheduler job runs.
func (m *Metrics) RecordJobRun(job, status string) {
	if m == nil {
		return
	}
	m.schedulerJobRuns.WithLabelValues(sanitizeLabel(job), sanitizeLabel(status)).Inc()
}

func sanitizeLabel(val string) string {
	if val == "" {
		return "unknown"
	}
	return val
}
