package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New("node0", reg)
	require.NoError(t, err)

	m.UnitsCreated.Inc()
	m.HeadsDecided.WithLabelValues(RuleCoin).Inc()
	require.Equal(t, 1.0, testutil.ToFloat64(m.UnitsCreated))
	require.Equal(t, 1.0, testutil.ToFloat64(m.HeadsDecided.WithLabelValues(RuleCoin)))

	// the same participant cannot be registered twice
	_, err = New("node0", reg)
	require.Error(t, err)
	// another participant can share the registry
	_, err = New("node1", reg)
	require.NoError(t, err)
}
