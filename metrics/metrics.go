package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "law_flow"

// Metrics holds the notification pipeline metrics
type Metrics struct {
	// Dispatcher
	EventsDispatched *prometheus.CounterVec
	EventsDropped    *prometheus.CounterVec
	DispatchQueue    prometheus.Gauge

	// In-app notifications
	NotificationsCreated *prometheus.CounterVec
	NotificationsFailed  prometheus.Counter

	// Email delivery
	DeliveryAttempts *prometheus.CounterVec
	Deliveries       *prometheus.CounterVec
	DeliveryLatency  prometheus.Histogram

	// Scheduled jobs
	JobRuns  *prometheus.CounterVec
	JobItems *prometheus.CounterVec
}

// New registers all metrics on reg. Tests pass a fresh prometheus.NewRegistry()
// so repeated construction does not panic on duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsDispatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "events_total",
			Help:      "Case events accepted by the notification dispatcher",
		}, []string{"event_type"}),
		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "events_dropped_total",
			Help:      "Case events dropped because the dispatch queue was full or closed",
		}, []string{"event_type"}),
		DispatchQueue: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "queue_depth",
			Help:      "Events waiting in the dispatch queue",
		}),
		NotificationsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "created_total",
			Help:      "In-app notifications written",
		}, []string{"type"}),
		NotificationsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "failed_total",
			Help:      "In-app notification writes that failed",
		}),
		DeliveryAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "email",
			Name:      "attempts_total",
			Help:      "Email send attempts by outcome",
		}, []string{"outcome"}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "email",
			Name:      "deliveries_total",
			Help:      "Final email delivery outcomes",
		}, []string{"status"}),
		DeliveryLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "email",
			Name:      "delivery_duration_seconds",
			Help:      "Time from first attempt to final outcome, retries included",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 40},
		}),
		JobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Scheduled job runs by outcome",
		}, []string{"job", "outcome"}),
		JobItems: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "items_total",
			Help:      "Items processed by scheduled jobs",
		}, []string{"job", "result"}),
	}
}
