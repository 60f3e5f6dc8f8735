package gorefit

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Chi2MeasurementEstimator scores a hit against a predicted state with the
// chi-square of the residual r = m - H*x in the metric R = V + H*C*H'.
type Chi2MeasurementEstimator struct {
	MaxChi2 float64
}

// NewChi2MeasurementEstimator returns an estimator accepting hits up to maxChi2.
func NewChi2MeasurementEstimator(maxChi2 float64) *Chi2MeasurementEstimator {
	return &Chi2MeasurementEstimator{maxChi2}
}

// Estimate implements the Estimator interface. The first value is false when the
// chi-square exceeds MaxChi2 or cannot be computed.
func (e *Chi2MeasurementEstimator) Estimate(predicted TrajectoryState, hit Hit) (bool, float64) {
	if !predicted.IsValid() || !hit.IsValid() {
		return false, 0
	}
	chi2, err := chiSquare(predicted, hit)
	if err != nil {
		return false, 0
	}
	return chi2 <= e.MaxChi2, chi2
}

// residual returns r = m - H*x and R = V + H*C*H' for a state and a hit.
func residual(state TrajectoryState, hit Hit) (*mat.VecDense, *mat.SymDense, error) {
	H := hit.Projection()
	if err := checkMatDims(H, state.Parameters(), "H", "x", cols2rows); err != nil {
		return nil, nil, err
	}
	if err := checkMatDims(H, hit.Parameters(), "H", "m", rows2rows); err != nil {
		return nil, nil, err
	}
	var Hx, r mat.VecDense
	Hx.MulVec(H, state.Parameters())
	r.SubVec(hit.Parameters(), &Hx)

	var HC, HCHt mat.Dense
	HC.Mul(H, state.Covariance())
	HCHt.Mul(&HC, H.T())
	HCHt.Add(&HCHt, hit.Covariance())
	return &r, symmetrize(&HCHt), nil
}

// chiSquare returns r'*R^-1*r.
func chiSquare(state TrajectoryState, hit Hit) (float64, error) {
	r, R, err := residual(state, hit)
	if err != nil {
		return 0, err
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(R); !ok {
		return 0, fmt.Errorf("gorefit: residual covariance on det %d is not positive definite", hit.Surface().DetID)
	}
	var w mat.VecDense
	if err := chol.SolveVecTo(&w, r); err != nil {
		return 0, err
	}
	return mat.Dot(r, &w), nil
}

// ChiSquaredProbability returns the probability of observing a chi-square at
// least as large as chi2 with ndof degrees of freedom.
func ChiSquaredProbability(chi2 float64, ndof int) float64 {
	if ndof <= 0 {
		return 0
	}
	return distuv.ChiSquared{K: float64(ndof)}.Survival(chi2)
}
