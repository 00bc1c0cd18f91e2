package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_AllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)

	BridgeCallsTotal.WithLabelValues("getFile", "ok").Inc()
	StreamStallsTotal.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, f := range families {
		for _, m := range f.GetMetric() {
			if c := m.GetCounter(); c != nil {
				values[f.GetName()] += c.GetValue()
			}
		}
	}

	assert.GreaterOrEqual(t, values["cloudplay_bridge_calls_total"], 1.0)
	assert.GreaterOrEqual(t, values["cloudplay_stream_stalls_total"], 1.0)
}

func TestRegister_DuplicatePanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)

	assert.Panics(t, func() { Register(reg) })
}
