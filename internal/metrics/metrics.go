// Package metrics holds the Prometheus instruments for domainwatch. All
// methods are safe on a nil *Metrics so components can run uninstrumented in
// tests and in the CLI.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Lookup outcomes.
const (
	OutcomeAvailable   = "available"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

// Notification outcomes.
const (
	NotificationSent         = "sent"
	NotificationSendFailed   = "send_failed"
	NotificationCommitFailed = "commit_failed"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	Lookups              *prometheus.CounterVec
	LookupDuration       *prometheus.HistogramVec
	CacheRequests        *prometheus.CounterVec
	Registrations        *prometheus.CounterVec
	PollCycles           prometheus.Counter
	PollCycleDuration    prometheus.Histogram
	Notifications        *prometheus.CounterVec
	PendingRegistrations prometheus.Gauge
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "domainwatch_lookups_total",
			Help: "Availability lookups by caller and outcome",
		}, []string{"source", "outcome"}),
		LookupDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "domainwatch_lookup_duration_seconds",
			Help:    "Latency of availability lookups",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		CacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "domainwatch_lookup_cache_requests_total",
			Help: "Lookup cache hits and misses",
		}, []string{"result"}),
		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "domainwatch_registrations_total",
			Help: "Notify requests by result (created, duplicate, error)",
		}, []string{"result"}),
		PollCycles: f.NewCounter(prometheus.CounterOpts{
			Name: "domainwatch_poll_cycles_total",
			Help: "Completed notification poll cycles",
		}),
		PollCycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "domainwatch_poll_cycle_duration_seconds",
			Help:    "Wall time of a notification poll cycle",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "domainwatch_notifications_total",
			Help: "Availability notification attempts by outcome",
		}, []string{"outcome"}),
		PendingRegistrations: f.NewGauge(prometheus.GaugeOpts{
			Name: "domainwatch_pending_registrations",
			Help: "Pending registrations seen at the start of the last poll cycle",
		}),
	}
}

// ObserveLookup records one availability lookup.
func (m *Metrics) ObserveLookup(source, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(source, outcome).Inc()
	m.LookupDuration.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveCache records a cache hit (true) or miss (false).
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheRequests.WithLabelValues("hit").Inc()
		return
	}
	m.CacheRequests.WithLabelValues("miss").Inc()
}

// IncRegistration records a /notify result.
func (m *Metrics) IncRegistration(result string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(result).Inc()
}

// ObservePollCycle records a finished cycle and the pending count it saw.
func (m *Metrics) ObservePollCycle(pending int, d time.Duration) {
	if m == nil {
		return
	}
	m.PollCycles.Inc()
	m.PollCycleDuration.Observe(d.Seconds())
	m.PendingRegistrations.Set(float64(pending))
}

// IncNotification records one notification attempt.
func (m *Metrics) IncNotification(outcome string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(outcome).Inc()
}
