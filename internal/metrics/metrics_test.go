package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SignalsEmitted.WithLabelValues("BTCUSDT", "1h", "long").Inc()
	m.EvaluationErrors.WithLabelValues("BTCUSDT", "transient").Add(2)
	m.NotificationFailures.Inc()
	m.EvaluatorsRunning.Set(3)
	m.EvaluatorsTerminated.WithLabelValues("ETHUSDT", "4h").Inc()
	m.ParameterRefreshes.WithLabelValues("ok").Inc()
	m.ActiveParameters.Set(3)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SignalsEmitted.WithLabelValues("BTCUSDT", "1h", "long")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EvaluationErrors.WithLabelValues("BTCUSDT", "transient")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.EvaluatorsRunning))

	names := make([]string, 0, len(families))
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "atrsignal_evaluation_errors_total")
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
