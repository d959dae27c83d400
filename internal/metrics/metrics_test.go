package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveIdentify(OutcomeLookup)
	m.ObserveIdentify(OutcomeLookup)
	m.ObserveCreated("secondary")
	m.ObserveCanonicalization(2, 1)
	m.IncTxRetries()
	m.ObserveEvent("contact.merged", errors.New("broker down"))
	m.ObserveComponent(3, 2)
	m.RecordQuery("SELECT", time.Millisecond, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.IdentifyRequests.WithLabelValues(OutcomeLookup)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ContactsCreated.WithLabelValues("secondary")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PrimariesDemoted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ContactsRelinked))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TxRetries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("contact.merged", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ComponentSize))
	assert.Equal(t, 1, testutil.CollectAndCount(m.QueryDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveIdentify(OutcomeError)
		m.ObserveComponent(1, 1)
		m.ObserveCreated("primary")
		m.ObserveCanonicalization(1, 1)
		m.IncTxRetries()
		m.ObserveEvent("contact.created", nil)
		m.RecordQuery("INSERT", time.Millisecond, false)
	})
}
