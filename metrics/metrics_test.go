package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveJob(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.ObserveJob("hub_procedure", "completed", 10*time.Millisecond)
	m.ObserveJob("hub_procedure", "completed", 10*time.Millisecond)
	m.ObserveJob("hub_procedure", "failed", time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.jobs.WithLabelValues("hub_procedure", "completed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.jobs.WithLabelValues("hub_procedure", "failed")))
}

func TestObserveChunk(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.ObserveChunk(100)
	m.ObserveChunk(50)
	require.Equal(t, 2.0, testutil.ToFloat64(m.chunksSent))
	require.Equal(t, 150.0, testutil.ToFloat64(m.bytesStreamed))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveJob("x", "completed", time.Second)
	m.ObserveRoundTrip("RECEIVED", time.Second)
	m.ObserveChunk(1)
	m.ObserveLink("hub")
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	require.Error(t, err)
}

func TestNewRegistryGathers(t *testing.T) {
	families, err := NewRegistry().Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
