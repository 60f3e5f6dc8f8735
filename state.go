package gorefit

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// NumParameters is the number of track parameters: x, y, tx, ty and q/p.
const NumParameters = 5

// Indexes of the track parameters.
const (
	ParamX = iota
	ParamY
	ParamTx
	ParamTy
	ParamQoP
)

// ParameterNames lists the track parameter names in index order.
var ParameterNames = []string{"x", "y", "tx", "ty", "qop"}

// TrajectoryState is a Gaussian estimate of the track parameters on a plane
// (a TSOS). It is immutable: all transformations return a new state.
// The zero value is an invalid state.
type TrajectoryState struct {
	surface   *Plane
	params    *mat.VecDense
	covar     *mat.SymDense
	pzSign    float64
	direction PropagationDirection
	valid     bool
}

// NewTrajectoryState returns a new valid state on the provided plane.
// Parameters:
// - surface: plane the state is attached to
// - params: x [cm], y [cm], tx, ty, q/p [1/GeV]
// - covar: 5x5 covariance of params
// - pzSign: +1 if the particle travels towards increasing z, -1 otherwise
func NewTrajectoryState(surface *Plane, params []float64, covar mat.Symmetric, pzSign float64) (TrajectoryState, error) {
	if surface == nil {
		return TrajectoryState{}, fmt.Errorf("gorefit: state requires a surface")
	}
	if len(params) != NumParameters {
		return TrajectoryState{}, fmt.Errorf("gorefit: expected %d parameters, got %d", NumParameters, len(params))
	}
	if covar == nil {
		return TrajectoryState{}, fmt.Errorf("gorefit: state requires a covariance")
	}
	x := mat.NewVecDense(NumParameters, append([]float64(nil), params...))
	if err := checkMatDims(x, covar, "params", "covar", rows2cols); err != nil {
		return TrajectoryState{}, err
	}
	if pzSign != 1 && pzSign != -1 {
		return TrajectoryState{}, fmt.Errorf("gorefit: pz sign must be ±1, got %f", pzSign)
	}
	c := mat.NewSymDense(NumParameters, nil)
	c.CopySym(covar)
	return TrajectoryState{surface: surface, params: x, covar: c, pzSign: pzSign, valid: true}, nil
}

// newState builds a state from matrices owned by the caller. It is invalid if
// anything is not finite.
func newState(surface *Plane, params *mat.VecDense, covar *mat.SymDense, pzSign float64, dir PropagationDirection) TrajectoryState {
	if !isFinite(params) || !isFinite(covar) {
		return TrajectoryState{}
	}
	return TrajectoryState{surface: surface, params: params, covar: covar, pzSign: pzSign, direction: dir, valid: true}
}

// IsValid returns whether the state holds an estimate.
func (s TrajectoryState) IsValid() bool {
	return s.valid
}

// Surface returns the plane of the state.
func (s TrajectoryState) Surface() *Plane {
	return s.surface
}

// Parameters returns the track parameters. The returned vector must not be modified.
func (s TrajectoryState) Parameters() *mat.VecDense {
	return s.params
}

// Covariance returns the covariance of the parameters. The returned matrix must not be modified.
func (s TrajectoryState) Covariance() mat.Symmetric {
	return s.covar
}

// PzSign returns +1 for particles moving towards increasing z.
func (s TrajectoryState) PzSign() float64 {
	return s.pzSign
}

// PropagationDirection returns the direction of the propagator which produced the state.
func (s TrajectoryState) PropagationDirection() PropagationDirection {
	return s.direction
}

// Z returns the z coordinate of the state.
func (s TrajectoryState) Z() float64 {
	return s.surface.Z
}

// Position returns the global position in cm.
func (s TrajectoryState) Position() r3.Vector {
	return r3.Vector{X: s.params.AtVec(ParamX), Y: s.params.AtVec(ParamY), Z: s.surface.Z}
}

// Momentum returns the global momentum in GeV.
func (s TrajectoryState) Momentum() r3.Vector {
	qop := s.params.AtVec(ParamQoP)
	if qop == 0 {
		return r3.Vector{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	}
	dir := r3.Vector{X: s.params.AtVec(ParamTx), Y: s.params.AtVec(ParamTy), Z: 1}.Normalize().Mul(s.pzSign)
	return dir.Mul(1 / math.Abs(qop))
}

// Charge returns the sign of q/p.
func (s TrajectoryState) Charge() int {
	switch qop := s.params.AtVec(ParamQoP); {
	case qop > 0:
		return 1
	case qop < 0:
		return -1
	}
	return 0
}

// Error returns the standard deviation of parameter i.
func (s TrajectoryState) Error(i int) float64 {
	return math.Sqrt(s.covar.At(i, i))
}

// RescaleError returns a copy of the state whose errors are multiplied by factor,
// i.e. whose covariance is multiplied by factor².
func (s TrajectoryState) RescaleError(factor float64) TrajectoryState {
	if !s.valid {
		return s
	}
	c := mat.NewSymDense(NumParameters, nil)
	c.ScaleSym(factor*factor, s.covar)
	return newState(s.surface, s.params, c, s.pzSign, s.direction)
}

// WithArbitraryError returns a copy of the state whose covariance is replaced by
// a diagonal matrix of the provided variances, so that the state does not bias
// the first update of a fit.
func (s TrajectoryState) WithArbitraryError(variances []float64) TrajectoryState {
	if !s.valid || len(variances) != NumParameters {
		return TrajectoryState{}
	}
	return newState(s.surface, s.params, Diagonal(variances...), s.pzSign, s.direction)
}

// IsWithinNσ returns whether every parameter is within N*σ of the reference parameters.
func (s TrajectoryState) IsWithinNσ(N float64, reference []float64) bool {
	for i := 0; i < NumParameters; i++ {
		if math.Abs(s.params.AtVec(i)-reference[i]) > N*s.Error(i) {
			return false
		}
	}
	return true
}

func (s TrajectoryState) String() string {
	if !s.valid {
		return "TSOS{invalid}"
	}
	params := mat.Formatted(s.params.T(), mat.Prefix("  "))
	covar := mat.Formatted(s.covar, mat.Prefix("    "))
	return fmt.Sprintf("TSOS{%s pz=%+.0f dir=%s\ns=%v\nP=%v\n}", s.surface, s.pzSign, s.direction, params, covar)
}
