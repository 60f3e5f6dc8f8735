package gorefit

// SmartPropagator holds an inward and an outward propagator and picks one per
// call: targets further from the origin than the state use the outward one.
// Both are re-bound to the direction and field of the SmartPropagator when they
// implement Configurable.
type SmartPropagator struct {
	inward, outward Propagator
	field           MagneticField
	direction       PropagationDirection
}

// NewSmartPropagator returns a new SmartPropagator.
func NewSmartPropagator(inward, outward Propagator, field MagneticField, dir PropagationDirection) *SmartPropagator {
	return &SmartPropagator{
		inward:    bindPropagator(inward, field, dir),
		outward:   bindPropagator(outward, field, dir),
		field:     field,
		direction: dir,
	}
}

func bindPropagator(p Propagator, field MagneticField, dir PropagationDirection) Propagator {
	c, ok := p.(Configurable)
	if !ok {
		return p
	}
	bound := c.WithDirection(dir)
	if c, ok := bound.(Configurable); ok && field != nil {
		bound = c.WithField(field)
	}
	return bound
}

// Propagate implements the Propagator interface.
func (p *SmartPropagator) Propagate(state TrajectoryState, dest *Plane) TrajectoryState {
	if !state.IsValid() || dest == nil || !acceptsTarget(p.direction, state, dest) {
		return TrajectoryState{}
	}
	return p.selectPropagator(state, dest).Propagate(state, dest)
}

func (p *SmartPropagator) selectPropagator(state TrajectoryState, dest *Plane) Propagator {
	if isOutward(state.Z(), dest) {
		return p.outward
	}
	return p.inward
}

// PropagationDirection implements the Propagator interface.
func (p *SmartPropagator) PropagationDirection() PropagationDirection {
	return p.direction
}

// Field returns the magnetic field snapshot the propagator was built with.
func (p *SmartPropagator) Field() MagneticField {
	return p.field
}
