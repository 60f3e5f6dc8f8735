package gorefit

import (
	"gonum.org/v1/gonum/mat"
)

// KFUpdator is the standard Kalman filter measurement update.
type KFUpdator struct{}

// NewKFUpdator returns a new KFUpdator.
func NewKFUpdator() *KFUpdator {
	return &KFUpdator{}
}

// Update implements the Updator interface. The returned state lies on the surface of
// the predicted state and is invalid if the hit is invalid, on another plane, or if
// the residual covariance cannot be inverted.
func (u *KFUpdator) Update(predicted TrajectoryState, hit Hit) TrajectoryState {
	if !predicted.IsValid() || !hit.IsValid() || !samePlane(predicted.Surface(), hit.Surface()) {
		return TrajectoryState{}
	}
	if err := checkMatDims(hit.Projection(), predicted.Covariance(), "H", "C", cols2cols); err != nil {
		logger.WithField("det", hit.Surface().DetID).Debug(err)
		return TrajectoryState{}
	}
	r, R, err := residual(predicted, hit)
	if err != nil {
		return TrajectoryState{}
	}
	var Rinv mat.Dense
	if ierr := Rinv.Inverse(R); ierr != nil {
		logger.WithField("det", hit.Surface().DetID).Debugf("could not invert `V + H*C*H'`: %s", ierr)
		return TrajectoryState{}
	}

	// Kalman gain K = C*H'*R^-1
	H := hit.Projection()
	C := predicted.Covariance()
	var CHt, K mat.Dense
	CHt.Mul(C, H.T())
	K.Mul(&CHt, &Rinv)

	// x+ = x- + K*r
	var Kr, xPlus mat.VecDense
	Kr.MulVec(&K, r)
	xPlus.AddVec(predicted.Parameters(), &Kr)

	// Joseph form: P+ = (I-KH)*P-*(I-KH)' + K*V*K'
	var IKH, P, Ptmp, KV, KVKt mat.Dense
	IKH.Mul(&K, H)
	IKH.Sub(Identity(NumParameters), &IKH)
	Ptmp.Mul(&IKH, C)
	P.Mul(&Ptmp, IKH.T())
	KV.Mul(&K, hit.Covariance())
	KVKt.Mul(&KV, K.T())
	P.Add(&P, &KVKt)

	return newState(predicted.Surface(), &xPlus, symmetrize(&P), predicted.PzSign(), predicted.PropagationDirection())
}
