// Package metrics exposes Prometheus collectors for record intake, billing
// and HTTP traffic.
package metrics

import (
	"strconv"
	"time"

	"telephone-billing/internal/bills"
	"telephone-billing/internal/calls"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	records        *prometheus.CounterVec
	submitDuration *prometheus.HistogramVec
	bills          prometheus.Counter
	billedAmount   prometheus.Counter
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New registers the collectors on registerer (prometheus.DefaultRegisterer
// when nil).
func New(registerer prometheus.Registerer, env string) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if env == "" {
		env = "unknown"
	}
	constLabels := prometheus.Labels{"env": env}

	m := &Metrics{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "telephone_billing_records_total",
			Help:        "Submitted call records by type and outcome.",
			ConstLabels: constLabels,
		}, []string{"type", "outcome"}),
		submitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "telephone_billing_record_submit_duration_seconds",
			Help:        "Record validation and persistence latency, including per-number lock waits.",
			Buckets:     []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			ConstLabels: constLabels,
		}, []string{"type"}),
		bills: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "telephone_billing_bills_total",
			Help:        "Bills created for completed calls.",
			ConstLabels: constLabels,
		}),
		billedAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "telephone_billing_billed_amount_total",
			Help:        "Sum of bill prices in currency units.",
			ConstLabels: constLabels,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "telephone_billing_http_requests_total",
			Help:        "HTTP requests by route and status.",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "telephone_billing_http_request_duration_seconds",
			Help:        "HTTP request latency by route.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"method", "route"}),
	}

	registerer.MustRegister(m.records, m.submitDuration, m.bills, m.billedAmount, m.httpRequests, m.httpDuration)
	return m
}

func (m *Metrics) RecordSubmitted(typ calls.RecordType, outcome string, elapsed time.Duration) {
	label := string(typ)
	if !typ.Valid() {
		label = "invalid"
	}
	m.records.WithLabelValues(label, outcome).Inc()
	m.submitDuration.WithLabelValues(label).Observe(elapsed.Seconds())
}

func (m *Metrics) BillCreated(b bills.Bill) {
	m.bills.Inc()
	m.billedAmount.Add(b.Price.InexactFloat64())
}

// Middleware records request counts and latency keyed by route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
