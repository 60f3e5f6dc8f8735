package gorefit

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Option configures a ReFitter.
type Option func(*ReFitter)

// WithLogger sets the logger of the ReFitter.
func WithLogger(l log.FieldLogger) Option {
	return func(r *ReFitter) { r.log = l }
}

// WithMetrics records the outcome of every pass on m.
func WithMetrics(m *Metrics) Option {
	return func(r *ReFitter) { r.metrics = m }
}

// WithStateCombiner replaces the weighted mean used by the smoother.
func WithStateCombiner(c StateCombiner) Option {
	return func(r *ReFitter) { r.combiner = c }
}

// WithEstimator replaces the estimator computing the chi-square of smoothed measurements.
func WithEstimator(e Estimator) Option {
	return func(r *ReFitter) { r.estimator = e }
}

// ReFitter refits a sequence of hits with a forward Kalman filter followed by a
// backward smoother. Configure must be called before any fit.
// A ReFitter is not safe for concurrent use.
type ReFitter struct {
	cfg     Config
	log     log.FieldLogger
	metrics *Metrics

	updator   Updator
	estimator Estimator
	combiner  StateCombiner

	field              MagneticField
	propagatorAlong    Propagator
	propagatorOpposite Propagator
	trajectoryUpdator  *TrajectoryUpdator
}

// NewReFitter returns an unconfigured ReFitter.
func NewReFitter(cfg Config, opts ...Option) (*ReFitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &ReFitter{
		cfg:       cfg,
		log:       logger,
		updator:   NewKFUpdator(),
		estimator: NewChi2MeasurementEstimator(cfg.EstimatorMaxChi2),
		combiner:  NewTrajectoryStateCombiner(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Configure resolves the propagators and the magnetic field from es. On error the
// ReFitter keeps its previous configuration.
func (r *ReFitter) Configure(es EventSetup) error {
	field, err := es.MagneticField(r.cfg.MagneticField)
	if err != nil {
		return fmt.Errorf("gorefit: configure: %w", err)
	}
	resolved := make(map[string]Propagator, 4)
	for _, label := range []string{
		r.cfg.InPropagatorAlongMom, r.cfg.OutPropagatorAlongMom,
		r.cfg.InPropagatorOppositeToMom, r.cfg.OutPropagatorOppositeToMom,
	} {
		p, err := es.Propagator(label)
		if err != nil {
			return fmt.Errorf("gorefit: configure: %w", err)
		}
		resolved[label] = p
	}

	along := NewSmartPropagator(resolved[r.cfg.InPropagatorAlongMom], resolved[r.cfg.OutPropagatorAlongMom], field, AlongMomentum)
	opposite := NewSmartPropagator(resolved[r.cfg.InPropagatorOppositeToMom], resolved[r.cfg.OutPropagatorOppositeToMom], field, OppositeToMomentum)

	r.field = field
	r.propagatorAlong = along
	r.propagatorOpposite = opposite
	r.trajectoryUpdator = NewTrajectoryUpdator(along, r.cfg.UpdatorMaxChi2, r.cfg.Granularity)
	r.log.WithFields(log.Fields{
		"in":  r.cfg.InPropagatorAlongMom,
		"out": r.cfg.OutPropagatorAlongMom,
	}).Debug("refitter configured")
	return nil
}

// Close releases the collaborators resolved by Configure.
func (r *ReFitter) Close() error {
	r.field = nil
	r.propagatorAlong = nil
	r.propagatorOpposite = nil
	r.trajectoryUpdator = nil
	return nil
}

func (r *ReFitter) mustBeConfigured() {
	if r.propagatorAlong == nil || r.propagatorOpposite == nil || r.trajectoryUpdator == nil {
		panic(ErrNotConfigured)
	}
}

// Trajectories fits and smooths hits starting from firstPredicted, whose covariance
// is replaced by the configured arbitrary errors. The result holds zero or one
// trajectory; the smoothed measurements are ordered from the last hit to the first.
func (r *ReFitter) Trajectories(seed Seed, hits []Hit, firstPredicted TrajectoryState) []Trajectory {
	if len(hits) == 0 {
		return nil
	}
	first := firstPredicted.WithArbitraryError(r.cfg.ArbitraryErrors)
	return r.SmoothAll(r.Fit(seed, hits, first))
}

// TrajectoriesFrom refits the hits of an existing trajectory starting from the
// state of its innermost measurement.
func (r *ReFitter) TrajectoriesFrom(t *Trajectory) []Trajectory {
	if t == nil || !t.IsValid() {
		return nil
	}
	return r.SmoothAll(r.FitTrajectory(t))
}

// FitTrajectory runs the forward pass over the hits of t. Trajectories built
// opposite to momentum are read in reverse.
func (r *ReFitter) FitTrajectory(t *Trajectory) []Trajectory {
	if t == nil || t.IsEmpty() {
		return nil
	}
	hits := t.Hits()
	first := t.FirstMeasurement()
	if t.Direction() == OppositeToMomentum {
		for i, j := 0, len(hits)-1; i < j; i, j = i+1, j-1 {
			hits[i], hits[j] = hits[j], hits[i]
		}
		first = t.LastMeasurement()
	}
	return r.Fit(t.Seed(), hits, first.UpdatedState().WithArbitraryError(r.cfg.ArbitraryErrors))
}

// Fit runs the forward pass. Each hit is propagated to and updated with; when
// that fails the predicted state is propagated to the hit plane and the hit is
// recorded without an update. The result is empty if any propagation fails.
func (r *ReFitter) Fit(seed Seed, hits []Hit, firstPredicted TrajectoryState) []Trajectory {
	r.mustBeConfigured()
	if len(hits) == 0 {
		return nil
	}
	if !firstPredicted.IsValid() {
		r.log.WithField("seed", seed.ID).Warn("fit: invalid starting state")
		r.metrics.observePass("fit", false)
		return nil
	}

	traj := NewTrajectory(seed, r.propagatorAlong.PropagationDirection())
	predicted := firstPredicted
	for i, hit := range hits {
		if tm, ok := r.trajectoryUpdator.Update(predicted, hit); ok {
			traj.Push(tm)
			predicted = tm.UpdatedState()
			continue
		}
		predicted = r.propagatorAlong.Propagate(predicted, hit.Surface())
		traj.Push(NewTrajectoryMeasurement(predicted, hit, 0))
		if !traj.IsValid() {
			r.log.WithFields(log.Fields{"seed": seed.ID, "hit": i}).Debug("fit: propagation failed")
			break
		}
	}

	if !traj.IsValid() {
		r.metrics.observePass("fit", false)
		return nil
	}
	r.metrics.observePass("fit", true)
	return []Trajectory{*traj}
}

// SmoothAll smooths every trajectory of tc.
func (r *ReFitter) SmoothAll(tc []Trajectory) []Trajectory {
	var smoothed []Trajectory
	for i := range tc {
		smoothed = append(smoothed, r.Smooth(&tc[i])...)
	}
	return smoothed
}

// Smooth runs the backward pass over a fitted trajectory. It starts from the
// forward prediction at the last hit with inflated errors and walks back to the
// first hit. The result is empty if t has fewer than two measurements or if any
// propagation or combination fails.
func (r *ReFitter) Smooth(t *Trajectory) []Trajectory {
	r.mustBeConfigured()
	if t == nil || t.IsEmpty() {
		return nil
	}
	avtm := t.Measurements()
	if len(avtm) < 2 {
		return nil
	}
	smoothed, ok := r.smooth(t.Seed(), avtm)
	r.metrics.observePass("smooth", ok)
	if !ok {
		r.log.WithField("seed", t.Seed().ID).Debug("smooth: trajectory dropped")
		return nil
	}
	r.metrics.observeTrajectory(smoothed)
	return []Trajectory{*smoothed}
}

func (r *ReFitter) smooth(seed Seed, avtm []TrajectoryMeasurement) (*Trajectory, bool) {
	smoothed := NewTrajectory(seed, r.propagatorOpposite.PropagationDirection())

	last := avtm[len(avtm)-1]
	predicted := last.ForwardPredictedState().RescaleError(r.cfg.ErrorRescaling)
	if !predicted.IsValid() {
		return nil, false
	}
	var current TrajectoryState
	if last.Hit().IsValid() {
		current = r.updator.Update(predicted, last.Hit())
		smoothed.Push(NewSmoothedMeasurement(last.ForwardPredictedState(), predicted, last.UpdatedState(), last.Hit(), last.Estimate()))
	} else {
		current = predicted
		smoothed.Push(NewTrajectoryMeasurement(last.ForwardPredictedState(), last.Hit(), last.Estimate()))
	}

	for i := len(avtm) - 2; i >= 1; i-- {
		tm := avtm[i]
		predicted = r.propagatorOpposite.Propagate(current, tm.Hit().Surface())
		if !predicted.IsValid() {
			return nil, false
		}
		combined := r.combiner.Combine(predicted, tm.ForwardPredictedState())
		if !combined.IsValid() {
			return nil, false
		}
		if !tm.Hit().IsValid() {
			current = predicted
			smoothed.Push(NewSmoothedMeasurement(tm.ForwardPredictedState(), predicted, combined, tm.Hit(), tm.Estimate()))
			continue
		}
		current = r.updator.Update(predicted, tm.Hit())
		smoothedState := r.combiner.Combine(tm.UpdatedState(), predicted)
		if !smoothedState.IsValid() {
			return nil, false
		}
		_, chi2 := r.estimator.Estimate(combined, tm.Hit())
		smoothed.PushWithChi2(NewSmoothedMeasurement(tm.ForwardPredictedState(), predicted, smoothedState, tm.Hit(), chi2), tm.Estimate())
	}

	first := avtm[0]
	predicted = r.propagatorOpposite.Propagate(current, first.Hit().Surface())
	if !predicted.IsValid() {
		return nil, false
	}
	if first.Hit().IsValid() {
		current = r.updator.Update(predicted, first.Hit())
		if !current.IsValid() {
			return nil, false
		}
		_, chi2 := r.estimator.Estimate(predicted, first.Hit())
		smoothed.PushWithChi2(NewSmoothedMeasurement(first.ForwardPredictedState(), predicted, current, first.Hit(), chi2), first.Estimate())
	} else {
		smoothed.Push(NewTrajectoryMeasurement(first.ForwardPredictedState(), first.Hit(), first.Estimate()))
	}
	return smoothed, smoothed.IsValid()
}
