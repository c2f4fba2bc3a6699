package sinkmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestSinkMetricsLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	base, err := NewBase(reg)
	require.NoError(t, err)

	s := base.For("topic", "sink1", "0")
	s.MessagesSentInc()
	s.MessagesSentInc()
	s.RowsQueuedInc()

	got, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, got)

	var sentValue float64
	for _, mf := range got {
		if mf.GetName() == "sink_kafka_messages_sent_total" {
			for _, m := range mf.Metric {
				sentValue = m.GetCounter().GetValue()
			}
		}
	}
	require.Equal(t, float64(2), sentValue)

	s.Close()
	got, err = reg.Gather()
	require.NoError(t, err)
	for _, mf := range got {
		if mf.GetName() == "sink_kafka_messages_sent_total" {
			require.Empty(t, mf.Metric, "Close must remove this sink's label series")
		}
	}
}
