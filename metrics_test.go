package gorefit

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.observePass("fit", true)
	m.observeTrajectory(NewTrajectory(Seed{}, AlongMomentum))
}

func TestMetricsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.observePass("smooth", false)
	m.observePass("smooth", false)
	m.observePass("smooth", true)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.passes.WithLabelValues("smooth", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues("smooth", "ok")))
}
