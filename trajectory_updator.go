package gorefit

// Granularity selects how composite hits are used by the TrajectoryUpdator.
type Granularity int

const (
	// WholeHits updates with every hit as a single measurement.
	WholeHits Granularity = iota
	// ComponentHits updates sequentially with each component of a composite hit.
	ComponentHits
)

// TrajectoryUpdator performs one forward step of a fit: propagation of the
// predicted state to the plane of a hit, chi-square gating and Kalman update.
type TrajectoryUpdator struct {
	propagator  Propagator
	updator     Updator
	estimator   Estimator
	granularity Granularity
}

// NewTrajectoryUpdator returns a TrajectoryUpdator gating hits at maxChi2.
func NewTrajectoryUpdator(propagator Propagator, maxChi2 float64, granularity Granularity) *TrajectoryUpdator {
	return &TrajectoryUpdator{
		propagator:  propagator,
		updator:     NewKFUpdator(),
		estimator:   NewChi2MeasurementEstimator(maxChi2),
		granularity: granularity,
	}
}

// Propagator returns the propagator the updator is bound to.
func (u *TrajectoryUpdator) Propagator() Propagator {
	return u.propagator
}

// Update propagates predicted to the plane of hit and updates it with the hit.
// It returns false if the propagation fails, the hit is invalid, the hit is not
// compatible with the prediction or the update fails.
func (u *TrajectoryUpdator) Update(predicted TrajectoryState, hit Hit) (TrajectoryMeasurement, bool) {
	if !predicted.IsValid() || hit == nil || !hit.IsValid() {
		return TrajectoryMeasurement{}, false
	}
	propagated := u.propagator.Propagate(predicted, hit.Surface())
	if !propagated.IsValid() {
		return TrajectoryMeasurement{}, false
	}
	ok, chi2 := u.estimator.Estimate(propagated, hit)
	if !ok {
		logger.WithField("det", hit.Surface().DetID).Debugf("hit rejected with χ²=%.3f", chi2)
		return TrajectoryMeasurement{}, false
	}

	var updated TrajectoryState
	composite, isComposite := hit.(CompositeHit)
	if isComposite && u.granularity == ComponentHits {
		updated = propagated
		for _, c := range composite.Components() {
			updated = u.updator.Update(updated, c)
		}
	} else {
		updated = u.updator.Update(propagated, hit)
	}
	if !updated.IsValid() {
		return TrajectoryMeasurement{}, false
	}
	return NewUpdatedMeasurement(propagated, updated, hit, chi2), true
}
