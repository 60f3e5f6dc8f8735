package gorefit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts the outcome of the fit and smooth passes. A nil *Metrics
// records nothing.
type Metrics struct {
	passes   *prometheus.CounterVec
	chi2NDOF prometheus.Histogram
}

// NewMetrics creates the refit metrics on reg. It panics if they are already
// registered there.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		passes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gorefit_passes_total",
			Help: "Total fit and smooth passes by outcome",
		}, []string{"pass", "outcome"}),
		chi2NDOF: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gorefit_smoothed_chi2_per_ndof",
			Help:    "Chi-square per degree of freedom of smoothed trajectories",
			Buckets: prometheus.ExponentialBuckets(0.125, 2, 10), // 0.125 to 64
		}),
	}
}

func (m *Metrics) observePass(pass string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.passes.WithLabelValues(pass, outcome).Inc()
}

func (m *Metrics) observeTrajectory(t *Trajectory) {
	if m == nil || t.NDOF() <= 0 {
		return
	}
	m.chi2NDOF.Observe(t.Chi2() / float64(t.NDOF()))
}
