package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveSettlement("release", "completed", 150*time.Millisecond)
	m.ObserveSettlement("release", "completed", time.Second)
	m.ObserveSettlement("refund", "failed", time.Second)
	m.ObserveTransition("funded", "released")
	m.ObserveDistribution("")
	m.SettlementStarted()
	m.SettlementStarted()
	m.SettlementFinished()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.settlements.WithLabelValues("release", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settlements.WithLabelValues("refund", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("funded", "released")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.distributed.WithLabelValues("unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inFlight))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSettlement("release", "completed", time.Second)
		m.ObserveTransition("funded", "released")
		m.ObserveTransfer("confirmed")
		m.ObserveConflict("stale_version")
		m.ObserveDistribution("USDC")
		m.SettlementStarted()
		m.SettlementFinished()
	})
}
