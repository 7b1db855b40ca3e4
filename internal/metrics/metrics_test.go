package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Accepted("deck", OriginLocal, 3)
		m.Rejected("deck")
		m.DecodeFailed("deck")
		m.SyncRound(ResultOK, time.Second)
		m.SetResident(2)
	})
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m := New(reg)

	m.Accepted("deck", OriginLocal, 3)
	m.Accepted("deck", OriginRemote, 2)
	m.Accepted("deck", OriginRemote, 0)
	m.Rejected("deck")
	m.DecodeFailed("deck")
	m.DecodeFailed("deck")

	assert.Equal(t, 3.0, testutil.ToFloat64(m.eventsAccepted.WithLabelValues("deck", OriginLocal)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsAccepted.WithLabelValues("deck", OriginRemote)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batchesRejected.WithLabelValues("deck")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.decodeFailures.WithLabelValues("deck")))
}

func TestSyncRound(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m := New(reg)

	m.SyncRound(ResultOK, 20*time.Millisecond)
	m.SyncRound(ResultError, time.Second)

	expected := `
# HELP recall_sync_rounds_total Completed sync sessions by result.
# TYPE recall_sync_rounds_total counter
recall_sync_rounds_total{result="error"} 1
recall_sync_rounds_total{result="ok"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "recall_sync_rounds_total"))
}

func TestSetResident(t *testing.T) {
	m := New(nil)
	m.SetResident(4)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.residentStreams))
}

func TestNew_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
