package gorefit

import "gonum.org/v1/gonum/mat"

// PropagationDirection states how a propagator moves relative to the track momentum.
type PropagationDirection uint8

const (
	// AnyDirection propagators accept targets on either side of the state.
	AnyDirection PropagationDirection = iota
	// AlongMomentum propagators only move in the direction of flight.
	AlongMomentum
	// OppositeToMomentum propagators only move against the direction of flight.
	OppositeToMomentum
)

func (d PropagationDirection) String() string {
	switch d {
	case AlongMomentum:
		return "alongMomentum"
	case OppositeToMomentum:
		return "oppositeToMomentum"
	default:
		return "anyDirection"
	}
}

// Propagator advances a state to another plane.
// An invalid TrajectoryState is returned when the propagation is not possible.
type Propagator interface {
	Propagate(state TrajectoryState, dest *Plane) TrajectoryState
	PropagationDirection() PropagationDirection
}

// Configurable is implemented by propagators which can be re-bound to a direction
// or a magnetic field. Both methods return a copy; the receiver is left untouched.
type Configurable interface {
	Propagator
	WithDirection(PropagationDirection) Propagator
	WithField(MagneticField) Propagator
}

// Updator combines a predicted state with a hit.
type Updator interface {
	Update(predicted TrajectoryState, hit Hit) TrajectoryState
}

// Estimator scores the compatibility of a predicted state with a hit.
type Estimator interface {
	Estimate(predicted TrajectoryState, hit Hit) (bool, float64)
}

// StateCombiner merges two independent estimates on the same plane.
type StateCombiner interface {
	Combine(a, b TrajectoryState) TrajectoryState
}

// Hit is an immutable detector measurement.
type Hit interface {
	IsValid() bool                 // IsValid returns false for hits without usable position information.
	Surface() *Plane               // Surface returns the plane the hit lies on, also for invalid hits.
	Parameters() *mat.VecDense     // Returns the measured values m.
	Covariance() mat.Symmetric     // Returns the measurement covariance V.
	Projection() mat.Matrix        // Returns H, such that m = H*x for track parameters x.
	Dimension() int                // Returns the number of measured values.
}

// CompositeHit is a hit made of several hits on the same plane, such as a stereo strip pair.
type CompositeHit interface {
	Hit
	Components() []Hit
}
