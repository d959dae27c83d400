package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Identify outcomes.
const (
	OutcomeCreatedPrimary   = "created_primary"
	OutcomeCreatedSecondary = "created_secondary"
	OutcomeLookup           = "lookup"
	OutcomeInvalid          = "invalid"
	OutcomeError            = "error"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	IdentifyRequests *prometheus.CounterVec
	ContactsCreated  *prometheus.CounterVec
	PrimariesDemoted prometheus.Counter
	ContactsRelinked prometheus.Counter
	ComponentSize    prometheus.Histogram
	FinderRounds     prometheus.Histogram
	TxRetries        prometheus.Counter
	EventsPublished  *prometheus.CounterVec
	QueryDuration    *prometheus.HistogramVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IdentifyRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_identify_requests_total",
			Help: "Identify requests by outcome",
		}, []string{"outcome"}),
		ContactsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_contacts_created_total",
			Help: "Contacts created by link precedence",
		}, []string{"precedence"}),
		PrimariesDemoted: f.NewCounter(prometheus.CounterOpts{
			Name: "identity_primaries_demoted_total",
			Help: "Primary contacts demoted to secondary while merging identities",
		}),
		ContactsRelinked: f.NewCounter(prometheus.CounterOpts{
			Name: "identity_contacts_relinked_total",
			Help: "Secondary contacts re-pointed at a surviving primary",
		}),
		ComponentSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "identity_component_size",
			Help:    "Number of contacts in the component found for a request",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21, 50, 100},
		}),
		FinderRounds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "identity_finder_rounds",
			Help:    "Link expansion rounds needed to reach a fixed point",
			Buckets: []float64{0, 1, 2, 3, 4, 6, 10},
		}),
		TxRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "identity_tx_retries_total",
			Help: "Identify transactions retried after a transient store failure",
		}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_events_published_total",
			Help: "Identity events handed to the publisher by type and status",
		}, []string{"type", "status"}),
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "identity_db_query_duration_seconds",
			Help:    "Database statement latency by operation and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "status"}),
	}
}

// ObserveIdentify counts one identify request.
func (m *Metrics) ObserveIdentify(outcome string) {
	if m == nil {
		return
	}
	m.IdentifyRequests.WithLabelValues(outcome).Inc()
}

// ObserveComponent records the size of a discovered component and the rounds
// it took to find.
func (m *Metrics) ObserveComponent(size, rounds int) {
	if m == nil {
		return
	}
	m.ComponentSize.Observe(float64(size))
	m.FinderRounds.Observe(float64(rounds))
}

// ObserveCreated counts a created contact.
func (m *Metrics) ObserveCreated(precedence string) {
	if m == nil {
		return
	}
	m.ContactsCreated.WithLabelValues(precedence).Inc()
}

// ObserveCanonicalization counts demoted primaries and relinked secondaries.
func (m *Metrics) ObserveCanonicalization(demoted, relinked int) {
	if m == nil {
		return
	}
	m.PrimariesDemoted.Add(float64(demoted))
	m.ContactsRelinked.Add(float64(relinked))
}

// IncTxRetries counts a retried transaction.
func (m *Metrics) IncTxRetries() {
	if m == nil {
		return
	}
	m.TxRetries.Inc()
}

// ObserveEvent counts a publish attempt.
func (m *Metrics) ObserveEvent(eventType string, err error) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType, status(err == nil)).Inc()
}

// RecordQuery implements database.MetricsCollector.
func (m *Metrics) RecordQuery(operation string, d time.Duration, success bool) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(operation, status(success)).Observe(d.Seconds())
}

func status(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
