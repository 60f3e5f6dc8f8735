package gorefit

import (
	"errors"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// NewChiSquare runs the consistency tests of the smoother on Monte Carlo runs.
// At each step NEES is (x̂-x)ᵀP⁻¹(x̂-x) of the smoothed state against the truth,
// whose mean should be close to NumParameters, and NIS is the chi-square of the
// hit divided by its dimension, whose mean should be close to one. Invalid hits
// do not contribute to NIS.
// Returns NEESmeans, NISmeans and an error if applicable.
func NewChiSquare(runs MonteCarloRuns, withNEES, withNIS bool) ([]float64, []float64, error) {
	if !withNEES && !withNIS {
		return nil, nil, errors.New("chi square requires either NEES or NIS or both")
	}
	if len(runs.Runs) == 0 {
		return nil, nil, errors.New("chi square requires at least one run")
	}

	numSteps := runs.Steps()
	NEESsamples := make([][]float64, numSteps)
	NISsamples := make([][]float64, numSteps)

	for _, run := range runs.Runs {
		truth := NewGroundTruth(run.Event.Truth)
		for k, tm := range run.Trajectory.Measurements()[:numSteps] {
			if withNEES {
				nees, err := normalizedError(truth, tm.UpdatedState())
				if err != nil {
					return nil, nil, err
				}
				NEESsamples[k] = append(NEESsamples[k], nees)
			}
			if withNIS && tm.Hit().IsValid() {
				NISsamples[k] = append(NISsamples[k], tm.Estimate()/float64(tm.Hit().Dimension()))
			}
		}
	}

	NEESmeans := make([]float64, numSteps)
	NISmeans := make([]float64, numSteps)
	for k := 0; k < numSteps; k++ {
		if withNEES {
			NEESmeans[k] = stat.Mean(NEESsamples[k], nil)
		}
		if withNIS && len(NISsamples[k]) > 0 {
			NISmeans[k] = stat.Mean(NISsamples[k], nil)
		}
	}
	return NEESmeans, NISmeans, nil
}

func normalizedError(truth *GroundTruth, est TrajectoryState) (float64, error) {
	diff, err := truth.Error(est)
	if err != nil {
		return 0, err
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(est.Covariance()); !ok {
		return 0, errors.New("gorefit: smoothed covariance is not positive definite")
	}
	e := mat.NewVecDense(NumParameters, diff)
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, e); err != nil {
		return 0, err
	}
	return mat.Dot(e, &x), nil
}
