package gorefit

import (
	"errors"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	countingLabel = "CountingPropagator"
	hitσ          = 0.01
)

var testField = UniformField{B: r3.Vector{Y: 1}}

func init() {
	SetLogger(nil)
}

// countingCombiner counts the combinations it performs.
type countingCombiner struct {
	StateCombiner
	calls int
}

func (c *countingCombiner) Combine(a, b TrajectoryState) TrajectoryState {
	c.calls++
	return c.StateCombiner.Combine(a, b)
}

// simulatedEvent returns n noisy pixel hits of a 10 GeV track crossing a
// telescope with 20 cm spacing.
func simulatedEvent(t *testing.T, n int, seed uint64) Event {
	t.Helper()
	planes := NewTelescope(n, 0, 20, 0)
	noise, err := NewAWGN(Diagonal(hitσ*hitσ, hitσ*hitσ), seed)
	require.NoError(t, err)
	sim, err := NewSimulator(planes, testField, noise, 0, seed)
	require.NoError(t, err)
	start, err := NewTrajectoryState(planes[0], []float64{0.1, -0.1, 0.05, -0.02, 0.1}, Identity(5), 1)
	require.NoError(t, err)
	ev, err := sim.Generate(start)
	require.NoError(t, err)
	return ev
}

func newTestReFitter(t *testing.T, es EventSetup, opposite string, opts ...Option) *ReFitter {
	t.Helper()
	cfg := NewConfig(AnalyticalAlongLabel, AnalyticalAlongLabel, opposite, opposite)
	r, err := NewReFitter(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, r.Configure(es))
	return r
}

func standardReFitter(t *testing.T, opts ...Option) *ReFitter {
	return newTestReFitter(t, NewStandardRegistry(testField), AnalyticalOppositeLabel, opts...)
}

// countingReFitter smooths with a counting propagator failing on call failAt.
func countingReFitter(t *testing.T, failAt int, opts ...Option) (*ReFitter, *countingPropagator) {
	t.Helper()
	counting := &countingPropagator{Propagator: NewAnalyticalPropagator(testField, OppositeToMomentum), failAt: failAt}
	reg := NewStandardRegistry(testField)
	require.NoError(t, reg.RegisterPropagator(countingLabel, counting))
	return newTestReFitter(t, reg, countingLabel, opts...), counting
}

// flatten lists every number of the trajectories.
func flatten(trajs []Trajectory) []float64 {
	var out []float64
	for i := range trajs {
		for _, tm := range trajs[i].Measurements() {
			s := tm.UpdatedState()
			out = append(out, s.Parameters().RawVector().Data...)
			for r := 0; r < NumParameters; r++ {
				for c := 0; c < NumParameters; c++ {
					out = append(out, s.Covariance().At(r, c))
				}
			}
			out = append(out, tm.Estimate())
		}
		out = append(out, trajs[i].Chi2())
	}
	return out
}

func TestRefitEmptyHits(t *testing.T) {
	r := standardReFitter(t)
	ev := simulatedEvent(t, 3, 1)
	assert.Empty(t, r.Trajectories(ev.Seed(), nil, ev.Start))
	assert.Empty(t, r.Trajectories(ev.Seed(), []Hit{}, ev.Start))
	assert.Empty(t, r.Fit(ev.Seed(), nil, ev.Start))
	assert.Empty(t, r.Smooth(nil))
	assert.Empty(t, r.Smooth(NewTrajectory(ev.Seed(), AlongMomentum)))
	assert.Empty(t, r.TrajectoriesFrom(nil))
	assert.Empty(t, r.TrajectoriesFrom(NewTrajectory(ev.Seed(), AlongMomentum)))
}

func TestRefitSingleHit(t *testing.T) {
	r := standardReFitter(t)
	ev := simulatedEvent(t, 1, 2)
	fitted := r.Fit(ev.Seed(), ev.Hits, ev.Start.WithArbitraryError(DefaultArbitraryErrors))
	require.Len(t, fitted, 1)
	assert.Equal(t, 1, fitted[0].Len())
	assert.Empty(t, r.Smooth(&fitted[0]))
	assert.Empty(t, r.Trajectories(ev.Seed(), ev.Hits, ev.Start))
}

func TestRefitInvalidStart(t *testing.T) {
	r := standardReFitter(t)
	ev := simulatedEvent(t, 3, 3)
	assert.Empty(t, r.Fit(ev.Seed(), ev.Hits, TrajectoryState{}))
	assert.Empty(t, r.Trajectories(ev.Seed(), ev.Hits, TrajectoryState{}))
}

func TestRefitRecoversTruth(t *testing.T) {
	r := standardReFitter(t)
	ev := simulatedEvent(t, 6, 4)
	res := r.Trajectories(ev.Seed(), ev.Hits, ev.Start)
	require.Len(t, res, 1)
	smoothed := res[0]
	require.True(t, smoothed.IsValid())
	assert.Equal(t, 6, smoothed.Len())
	assert.Equal(t, OppositeToMomentum, smoothed.Direction())
	assert.Equal(t, 6, smoothed.FoundHits())
	assert.Equal(t, 7, smoothed.NDOF())

	truth := NewGroundTruth(ev.Truth)
	tms := smoothed.Measurements()
	for i, tm := range tms {
		// Measurements are stored from the last hit to the first.
		assert.Same(t, ev.Hits[len(ev.Hits)-1-i], tm.Hit())
		want, err := truth.truthOn(tm.UpdatedState())
		require.NoError(t, err)
		assert.True(t, tm.UpdatedState().IsWithinNσ(5, want.Parameters().RawVector().Data), "det %d: %s", tm.Hit().Surface().DetID, tm.UpdatedState())
	}
	// Smoothing shrinks the errors of the first hit compared to the filter.
	fitted := r.Fit(ev.Seed(), ev.Hits, ev.Start.WithArbitraryError(DefaultArbitraryErrors))
	require.Len(t, fitted, 1)
	first := tms[len(tms)-1].UpdatedState()
	assert.Less(t, first.Error(ParamQoP), fitted[0].FirstMeasurement().UpdatedState().Error(ParamQoP))
}

func TestRefitIdempotent(t *testing.T) {
	r := standardReFitter(t)
	ev := simulatedEvent(t, 6, 5)
	first := r.Trajectories(ev.Seed(), ev.Hits, ev.Start)
	second := r.Trajectories(ev.Seed(), ev.Hits, ev.Start)
	require.Len(t, first, 1)
	if diff := cmp.Diff(flatten(first), flatten(second)); diff != "" {
		t.Fatalf("refit is not idempotent (-first +second):\n%s", diff)
	}

	// A second refitter configured the same way agrees.
	other := standardReFitter(t)
	assert.True(t, cmp.Equal(flatten(first), flatten(other.Trajectories(ev.Seed(), ev.Hits, ev.Start))))
}

func TestRefitOrderSensitivity(t *testing.T) {
	r := standardReFitter(t)
	ev := simulatedEvent(t, 6, 6)
	reversed := make([]Hit, len(ev.Hits))
	for i, h := range ev.Hits {
		reversed[len(ev.Hits)-1-i] = h
	}
	forward := r.Trajectories(ev.Seed(), ev.Hits, ev.Start)
	backward := r.Trajectories(ev.Seed(), reversed, ev.Start)
	require.Len(t, forward, 1)
	assert.False(t, cmp.Equal(flatten(forward), flatten(backward), cmpopts.EquateEmpty()))
}

func TestRefitValidInvalidValid(t *testing.T) {
	r := standardReFitter(t)
	ev := simulatedEvent(t, 3, 7)
	hits := []Hit{ev.Hits[0], NewInvalidHit(ev.Hits[1].Surface()), ev.Hits[2]}
	start := ev.Start.WithArbitraryError(DefaultArbitraryErrors)

	fitted := r.Fit(ev.Seed(), hits, start)
	require.Len(t, fitted, 1)
	fit := fitted[0].Measurements()
	require.Len(t, fit, 3)
	assert.Equal(t, 2, fitted[0].FoundHits())
	assert.Equal(t, 1, fitted[0].LostHits())
	// The invalid hit gets the propagated state without update.
	assert.Zero(t, fit[1].Estimate())
	assert.True(t, cmp.Equal(fit[1].ForwardPredictedState().Parameters().RawVector().Data, fit[1].UpdatedState().Parameters().RawVector().Data))
	assert.NotEqual(t, fit[0].ForwardPredictedState().Error(ParamX), fit[0].UpdatedState().Error(ParamX))

	smoothed := r.Smooth(&fitted[0])
	require.Len(t, smoothed, 1)
	sm := smoothed[0].Measurements()
	require.Len(t, sm, 3)

	// Last hit: fit estimate and updated state are kept.
	assert.Same(t, hits[2], sm[0].Hit())
	assert.Equal(t, fit[2].Estimate(), sm[0].Estimate())
	assert.True(t, cmp.Equal(fit[2].UpdatedState().Parameters().RawVector().Data, sm[0].UpdatedState().Parameters().RawVector().Data))

	// Invalid middle hit: fit estimate reused, smoothed state combines both predictions.
	assert.Same(t, hits[1], sm[1].Hit())
	assert.Equal(t, fit[1].Estimate(), sm[1].Estimate())
	combined := NewTrajectoryStateCombiner().Combine(sm[1].BackwardPredictedState(), fit[1].ForwardPredictedState())
	require.True(t, combined.IsValid())
	for i := 0; i < NumParameters; i++ {
		assert.InDelta(t, combined.Parameters().AtVec(i), sm[1].UpdatedState().Parameters().AtVec(i), 1e-12)
	}

	// First hit: chi-square recomputed from the backward prediction.
	assert.Same(t, hits[0], sm[2].Hit())
	_, want := NewChi2MeasurementEstimator(DefaultEstimatorMaxChi2).Estimate(sm[2].BackwardPredictedState(), hits[0])
	assert.Equal(t, want, sm[2].Estimate())
	assert.NotEqual(t, fit[0].Estimate(), sm[2].Estimate())

	// The trajectory chi-square sums the fit estimates of the valid hits.
	assert.InDelta(t, fitted[0].Chi2(), smoothed[0].Chi2(), 1e-12)
	assert.Equal(t, 1, smoothed[0].LostHits())
}

func TestRefitInvalidBoundaryHits(t *testing.T) {
	r := standardReFitter(t)
	ev := simulatedEvent(t, 4, 8)
	hits := []Hit{NewInvalidHit(ev.Hits[0].Surface()), ev.Hits[1], ev.Hits[2], NewInvalidHit(ev.Hits[3].Surface())}
	res := r.Trajectories(ev.Seed(), hits, ev.Start)
	require.Len(t, res, 1)
	sm := res[0].Measurements()
	require.Len(t, sm, 4)
	assert.False(t, sm[0].BackwardPredictedState().IsValid(), "invalid last hit keeps the forward state only")
	assert.False(t, sm[3].BackwardPredictedState().IsValid(), "invalid first hit keeps the forward state only")
	assert.Equal(t, 2, res[0].FoundHits())
}

func TestSmoothTwoHitsUsesBoundaryPaths(t *testing.T) {
	combiner := &countingCombiner{StateCombiner: NewTrajectoryStateCombiner()}
	r, counting := countingReFitter(t, 0, WithStateCombiner(combiner))
	ev := simulatedEvent(t, 2, 9)

	res := r.Trajectories(ev.Seed(), ev.Hits, ev.Start)
	require.Len(t, res, 1)
	assert.Equal(t, 2, res[0].Len())
	assert.Equal(t, 1, counting.calls, "only the final propagation to the first hit")
	assert.Zero(t, combiner.calls, "the reverse walk is skipped")
}

func TestSmoothPropagationCount(t *testing.T) {
	combiner := &countingCombiner{StateCombiner: NewTrajectoryStateCombiner()}
	r, counting := countingReFitter(t, 0, WithStateCombiner(combiner))
	ev := simulatedEvent(t, 5, 10)
	require.Len(t, r.Trajectories(ev.Seed(), ev.Hits, ev.Start), 1)
	assert.Equal(t, 4, counting.calls)
	assert.Equal(t, 6, combiner.calls, "two combinations per inner valid hit")
}

func TestSmoothFailsOnSecondPropagation(t *testing.T) {
	r, counting := countingReFitter(t, 2)
	ev := simulatedEvent(t, 4, 11)
	fitted := r.Fit(ev.Seed(), ev.Hits, ev.Start.WithArbitraryError(DefaultArbitraryErrors))
	require.Len(t, fitted, 1, "the fit does not use the opposite propagator")
	assert.Empty(t, r.Smooth(&fitted[0]))
	assert.Equal(t, 2, counting.calls, "smoothing stops at the first failure")

	r, _ = countingReFitter(t, 2)
	assert.Empty(t, r.Trajectories(ev.Seed(), ev.Hits, ev.Start))
}

func TestSmoothFailsOnFinalPropagation(t *testing.T) {
	r, _ := countingReFitter(t, 3)
	ev := simulatedEvent(t, 4, 12)
	assert.Empty(t, r.Trajectories(ev.Seed(), ev.Hits, ev.Start))
}

func TestSmoothFailsOnCombination(t *testing.T) {
	failing := &failingCombiner{}
	r := standardReFitter(t, WithStateCombiner(failing))
	ev := simulatedEvent(t, 3, 13)
	assert.Empty(t, r.Trajectories(ev.Seed(), ev.Hits, ev.Start))
	assert.Equal(t, 1, failing.calls)
}

type failingCombiner struct{ calls int }

func (c *failingCombiner) Combine(a, b TrajectoryState) TrajectoryState {
	c.calls++
	return TrajectoryState{}
}

func TestFitFallsBackToPropagation(t *testing.T) {
	r := standardReFitter(t)
	ev := simulatedEvent(t, 4, 14)
	hits := append([]Hit(nil), ev.Hits...)
	// A hit far outside the gate is kept without an update.
	far := NewPixelHit(hits[2].Surface(), 1e3, 1e3, hitσ, hitσ)
	hits[2] = far
	fitted := r.Fit(ev.Seed(), hits, ev.Start.WithArbitraryError(DefaultArbitraryErrors))
	require.Len(t, fitted, 1)
	tm := fitted[0].Measurements()[2]
	assert.Same(t, far, tm.Hit())
	assert.Zero(t, tm.Estimate())
	assert.True(t, cmp.Equal(tm.ForwardPredictedState().Parameters().RawVector().Data, tm.UpdatedState().Parameters().RawVector().Data))
	assert.Equal(t, 4, fitted[0].FoundHits())

	// The fit chi-square is the sum of the stored estimates.
	sum := 0.0
	for _, tm := range fitted[0].Measurements() {
		sum += tm.Estimate()
	}
	assert.Equal(t, sum, fitted[0].Chi2())
	assert.Equal(t, 4*2-NumParameters, fitted[0].NDOF())
}

func TestFitFailsAgainstMomentum(t *testing.T) {
	r := standardReFitter(t)
	ev := simulatedEvent(t, 3, 15)
	hits := []Hit{ev.Hits[0], ev.Hits[2], ev.Hits[1]}
	assert.Empty(t, r.Fit(ev.Seed(), hits, ev.Start.WithArbitraryError(DefaultArbitraryErrors)))
}

func TestTrajectoriesFrom(t *testing.T) {
	r := standardReFitter(t)
	ev := simulatedEvent(t, 5, 16)
	fitted := r.Fit(ev.Seed(), ev.Hits, ev.Start.WithArbitraryError(DefaultArbitraryErrors))
	require.Len(t, fitted, 1)

	fromFit := r.TrajectoriesFrom(&fitted[0])
	require.Len(t, fromFit, 1)
	assert.Equal(t, 5, fromFit[0].Len())
	assert.Equal(t, ev.ID, fromFit[0].Seed().ID)

	// A smoothed trajectory is read from its innermost measurement.
	fromSmoothed := r.TrajectoriesFrom(&fromFit[0])
	require.Len(t, fromSmoothed, 1)
	assert.Same(t, ev.Hits[len(ev.Hits)-1], fromSmoothed[0].FirstMeasurement().Hit())

	invalid := fitted[0]
	invalid.Invalidate()
	assert.Empty(t, r.TrajectoriesFrom(&invalid))
}

func TestUnconfiguredReFitterPanics(t *testing.T) {
	r, err := NewReFitter(NewConfig(AnalyticalAlongLabel, AnalyticalAlongLabel, AnalyticalOppositeLabel, AnalyticalOppositeLabel))
	require.NoError(t, err)
	ev := simulatedEvent(t, 3, 17)
	assertPanic(t, func() { r.Trajectories(ev.Seed(), ev.Hits, ev.Start) })

	require.NoError(t, r.Configure(NewStandardRegistry(testField)))
	require.Len(t, r.Trajectories(ev.Seed(), ev.Hits, ev.Start), 1)
	require.NoError(t, r.Close())
	assertPanic(t, func() { r.Fit(ev.Seed(), ev.Hits, ev.Start) })
}

func TestConfigureUnknownLabel(t *testing.T) {
	cfg := NewConfig(AnalyticalAlongLabel, AnalyticalAlongLabel, AnalyticalOppositeLabel, "Runge-Kutta")
	r, err := NewReFitter(cfg)
	require.NoError(t, err)
	err = r.Configure(NewStandardRegistry(testField))
	assert.True(t, errors.Is(err, ErrNotFound))

	cfg = NewConfig(AnalyticalAlongLabel, AnalyticalAlongLabel, AnalyticalOppositeLabel, AnalyticalOppositeLabel)
	cfg.MagneticField = "measured"
	r, err = NewReFitter(cfg)
	require.NoError(t, err)
	assert.True(t, errors.Is(r.Configure(NewStandardRegistry(testField)), ErrNotFound))
}

func TestConfigureFailureKeepsConfiguration(t *testing.T) {
	r := standardReFitter(t)
	ev := simulatedEvent(t, 3, 18)
	before := r.Trajectories(ev.Seed(), ev.Hits, ev.Start)

	assert.Error(t, r.Configure(NewRegistry()))
	after := r.Trajectories(ev.Seed(), ev.Hits, ev.Start)
	assert.True(t, cmp.Equal(flatten(before), flatten(after)))
}

func TestReconfigureReplacesCollaborators(t *testing.T) {
	r := standardReFitter(t)
	ev := simulatedEvent(t, 4, 26)
	bent := flatten(r.Trajectories(ev.Seed(), ev.Hits, ev.Start))
	require.NotEmpty(t, bent)

	require.NoError(t, r.Configure(NewStandardRegistry(UniformField{})))
	straight := flatten(r.Trajectories(ev.Seed(), ev.Hits, ev.Start))
	require.NotEmpty(t, straight)
	assert.False(t, cmp.Equal(bent, straight))

	along, ok := r.propagatorAlong.(*SmartPropagator)
	require.True(t, ok)
	opposite, ok := r.propagatorOpposite.(*SmartPropagator)
	require.True(t, ok)
	assert.Equal(t, UniformField{}, r.field)
	assert.Equal(t, UniformField{}, along.Field())
	assert.Equal(t, UniformField{}, opposite.Field())
	assert.Same(t, along, r.trajectoryUpdator.Propagator())

	require.NoError(t, r.Configure(NewStandardRegistry(testField)))
	assert.Equal(t, testField, r.trajectoryUpdator.Propagator().(*SmartPropagator).Field())
	assert.True(t, cmp.Equal(bent, flatten(r.Trajectories(ev.Seed(), ev.Hits, ev.Start))))
}

func TestStraightLineSmoother(t *testing.T) {
	// Without field the straight line smoother matches the analytical one.
	ev := simulatedEvent(t, 4, 19)
	line := newTestReFitter(t, NewStandardRegistry(UniformField{}), StraightLineOppositeLabel)
	analytical := newTestReFitter(t, NewStandardRegistry(UniformField{}), AnalyticalOppositeLabel)
	a := flatten(line.Trajectories(ev.Seed(), ev.Hits, ev.Start))
	b := flatten(analytical.Trajectories(ev.Seed(), ev.Hits, ev.Start))
	require.NotEmpty(t, a)
	assert.True(t, cmp.Equal(a, b, cmpopts.EquateApprox(0, 1e-9)))
}

func TestReFitterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	r := standardReFitter(t, WithMetrics(m))
	ev := simulatedEvent(t, 4, 20)
	require.Len(t, r.Trajectories(ev.Seed(), ev.Hits, ev.Start), 1)
	assert.Empty(t, r.Trajectories(ev.Seed(), ev.Hits[:1], ev.Start))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.passes.WithLabelValues("fit", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues("smooth", "ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.chi2NDOF))
	assertPanic(t, func() { NewMetrics(reg) })
}
