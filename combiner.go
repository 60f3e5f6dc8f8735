package gorefit

import (
	"gonum.org/v1/gonum/mat"
)

// TrajectoryStateCombiner computes the weighted mean of two independent estimates
// on the same plane:
//
//	K = Ca*(Ca+Cb)^-1
//	x = xa + K*(xb-xa)
//	C = Ca - K*Ca
type TrajectoryStateCombiner struct{}

// NewTrajectoryStateCombiner returns a new TrajectoryStateCombiner.
func NewTrajectoryStateCombiner() *TrajectoryStateCombiner {
	return &TrajectoryStateCombiner{}
}

// Combine implements the StateCombiner interface. The result is invalid if either
// input is invalid, if the states lie on different planes or have opposite pz, or
// if Ca+Cb is singular.
func (c *TrajectoryStateCombiner) Combine(a, b TrajectoryState) TrajectoryState {
	if !a.IsValid() || !b.IsValid() {
		return TrajectoryState{}
	}
	if !samePlane(a.Surface(), b.Surface()) || a.PzSign() != b.PzSign() {
		return TrajectoryState{}
	}
	Ca, Cb := a.Covariance(), b.Covariance()
	if err := checkMatDims(Ca, Cb, "Ca", "Cb", rowsAndcols); err != nil {
		logger.WithField("det", a.Surface().DetID).Debug(err)
		return TrajectoryState{}
	}

	var S, Sinv mat.Dense
	S.Add(Ca, Cb)
	if err := Sinv.Inverse(&S); err != nil {
		logger.WithField("det", a.Surface().DetID).Debugf("could not invert `Ca + Cb`: %s", err)
		return TrajectoryState{}
	}
	var K mat.Dense
	K.Mul(Ca, &Sinv)

	var dx, Kdx, x mat.VecDense
	dx.SubVec(b.Parameters(), a.Parameters())
	Kdx.MulVec(&K, &dx)
	x.AddVec(a.Parameters(), &Kdx)

	var KCa, C mat.Dense
	KCa.Mul(&K, Ca)
	C.Sub(Ca, &KCa)
	combined := symmetrize(&C)
	if !hasPositiveDiagonal(combined) {
		return TrajectoryState{}
	}
	return newState(a.Surface(), &x, combined, a.PzSign(), a.PropagationDirection())
}
