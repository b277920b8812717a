package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRegistered(t *testing.T) {
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	MutationsApplied.WithLabelValues("INSERT", OutcomeApplied).Inc()
	QueueDepth.Set(2)

	assert.Equal(t, float64(2), testutil.ToFloat64(QueueDepth))
	assert.GreaterOrEqual(t, testutil.ToFloat64(MutationsApplied.WithLabelValues("INSERT", OutcomeApplied)), float64(1))
	assert.NotEmpty(t, families)
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	err := prometheus.Register(prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nosql2sql_export_polls_total",
		Help: "The total number of export status checks",
	}))
	var already prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &already)
}
