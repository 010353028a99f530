package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus counters for every pipeline transition. All
// emission is best effort: counters never fail and never block the write path.
type Metrics struct {
	RecordsCreated     prometheus.Counter
	DuplicateWrites    prometheus.Counter
	ImmediateFailures  *prometheus.CounterVec
	RetriesScheduled   prometheus.Counter
	RetrySuccesses     prometheus.Counter
	RetryFailures      prometheus.Counter
	SchedulingFailures prometheus.Counter
	Escalations        prometheus.Counter
	CriticalFailures   prometheus.Counter
	NotifierFailures   prometheus.Counter
	EventsRejected     prometheus.Counter
	QueueDepth         prometheus.Gauge
}

// New creates all pipeline metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates all pipeline metrics on the given registerer. Tests pass a
// fresh registry so repeated construction never double-registers.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecordsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrolld_records_created_total",
			Help: "Total number of profile records successfully inserted",
		}),
		DuplicateWrites: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrolld_duplicate_writes_total",
			Help: "Total number of conditional writes that found an existing record",
		}),
		ImmediateFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "enrolld_immediate_failures_total",
			Help: "Total number of first-attempt write failures by error class",
		}, []string{"class"}),
		RetriesScheduled: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrolld_retries_scheduled_total",
			Help: "Total number of retry envelopes enqueued with a backoff delay",
		}),
		RetrySuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrolld_retry_successes_total",
			Help: "Total number of envelopes that reached a record on retry",
		}),
		RetryFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrolld_retry_failures_total",
			Help: "Total number of failed retry attempts",
		}),
		SchedulingFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrolld_scheduling_failures_total",
			Help: "Total number of retry envelopes that could not be enqueued",
		}),
		Escalations: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrolld_escalations_total",
			Help: "Total number of envelopes routed to manual intervention",
		}),
		CriticalFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrolld_critical_failures_total",
			Help: "Total number of failures where an envelope may have been lost",
		}),
		NotifierFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrolld_notifier_failures_total",
			Help: "Total number of admin notifications that could not be delivered",
		}),
		EventsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrolld_events_rejected_total",
			Help: "Total number of confirmation events rejected at the boundary",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "enrolld_retry_queue_depth",
			Help: "Envelopes currently waiting in the retry queue",
		}),
	}
}

// IncImmediateFailure increments the first-attempt failure counter for an
// error class ("transient", "timeout", "canceled").
func (m *Metrics) IncImmediateFailure(class string) {
	m.ImmediateFailures.WithLabelValues(class).Inc()
}
