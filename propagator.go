package gorefit

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// speedOfLight converts q/p [1/GeV] times B [T] into a curvature in 1/cm.
const speedOfLight = 0.299792458e-2

// AnalyticalPropagator transports states between planes assuming the field at the
// starting point is constant over the step. The position is expanded to second
// order in the step length.
type AnalyticalPropagator struct {
	direction       PropagationDirection
	field           MagneticField
	materialEffects bool
}

// NewAnalyticalPropagator returns a propagator in the provided field, with
// multiple scattering enabled.
func NewAnalyticalPropagator(field MagneticField, dir PropagationDirection) *AnalyticalPropagator {
	return &AnalyticalPropagator{direction: dir, field: field, materialEffects: true}
}

// Propagate implements the Propagator interface.
func (p *AnalyticalPropagator) Propagate(state TrajectoryState, dest *Plane) TrajectoryState {
	if !state.IsValid() || dest == nil || !acceptsTarget(p.direction, state, dest) {
		return TrajectoryState{}
	}
	var B r3.Vector
	if p.field != nil {
		B = p.field.InTesla(state.Position())
	}
	return transport(state, dest, B, p.direction, p.materialEffects)
}

// PropagationDirection implements the Propagator interface.
func (p *AnalyticalPropagator) PropagationDirection() PropagationDirection {
	return p.direction
}

// WithDirection implements the Configurable interface.
func (p *AnalyticalPropagator) WithDirection(dir PropagationDirection) Propagator {
	cp := *p
	cp.direction = dir
	return &cp
}

// WithField implements the Configurable interface.
func (p *AnalyticalPropagator) WithField(f MagneticField) Propagator {
	cp := *p
	cp.field = f
	return &cp
}

// WithoutMaterial returns a copy of the propagator which ignores the plane material.
func (p *AnalyticalPropagator) WithoutMaterial() *AnalyticalPropagator {
	cp := *p
	cp.materialEffects = false
	return &cp
}

// StraightLinePropagator transports states in a field free region.
type StraightLinePropagator struct {
	direction       PropagationDirection
	materialEffects bool
}

// NewStraightLinePropagator returns a straight line propagator with multiple scattering enabled.
func NewStraightLinePropagator(dir PropagationDirection) *StraightLinePropagator {
	return &StraightLinePropagator{direction: dir, materialEffects: true}
}

// Propagate implements the Propagator interface.
func (p *StraightLinePropagator) Propagate(state TrajectoryState, dest *Plane) TrajectoryState {
	if !state.IsValid() || dest == nil || !acceptsTarget(p.direction, state, dest) {
		return TrajectoryState{}
	}
	return transport(state, dest, r3.Vector{}, p.direction, p.materialEffects)
}

// PropagationDirection implements the Propagator interface.
func (p *StraightLinePropagator) PropagationDirection() PropagationDirection {
	return p.direction
}

// WithDirection implements the Configurable interface.
func (p *StraightLinePropagator) WithDirection(dir PropagationDirection) Propagator {
	cp := *p
	cp.direction = dir
	return &cp
}

// WithField implements the Configurable interface. The field is ignored.
func (p *StraightLinePropagator) WithField(MagneticField) Propagator {
	cp := *p
	return &cp
}

// WithoutMaterial returns a copy of the propagator which ignores the plane material.
func (p *StraightLinePropagator) WithoutMaterial() *StraightLinePropagator {
	cp := *p
	cp.materialEffects = false
	return &cp
}

// acceptsTarget returns whether dest lies on the side of the state allowed by dir.
func acceptsTarget(dir PropagationDirection, state TrajectoryState, dest *Plane) bool {
	along := (dest.Z - state.Z()) * state.PzSign()
	switch dir {
	case AlongMomentum:
		return along >= 0
	case OppositeToMomentum:
		return along <= 0
	}
	return true
}

// transport moves the state to dest in the constant field B and returns the
// state on dest with covariance F*C*F' (+ multiple scattering).
//
// With T = sqrt(1+tx²+ty²), the equations of motion in z are
//
//	tx'' = q/p * c * pz * T * (tx*ty*Bx - (1+tx²)*By + ty*Bz)
//	ty'' = q/p * c * pz * T * ((1+ty²)*Bx - tx*ty*By - tx*Bz)
func transport(state TrajectoryState, dest *Plane, B r3.Vector, dir PropagationDirection, material bool) TrajectoryState {
	dz := dest.Z - state.Z()
	p := state.Parameters()
	x, y := p.AtVec(ParamX), p.AtVec(ParamY)
	tx, ty, qop := p.AtVec(ParamTx), p.AtVec(ParamTy), p.AtVec(ParamQoP)

	T := math.Sqrt(1 + tx*tx + ty*ty)
	k := speedOfLight * state.PzSign()
	fx := tx*ty*B.X - (1+tx*tx)*B.Y + ty*B.Z
	fy := (1+ty*ty)*B.X - tx*ty*B.Y - tx*B.Z
	Ax := k * T * fx
	Ay := k * T * fy
	dAxdtx := k * (tx/T*fx + T*(ty*B.X-2*tx*B.Y))
	dAxdty := k * (ty/T*fx + T*(tx*B.X+B.Z))
	dAydtx := k * (tx/T*fy - T*(ty*B.Y+B.Z))
	dAydty := k * (ty/T*fy + T*(2*ty*B.X-tx*B.Y))

	half := 0.5 * dz * dz
	params := mat.NewVecDense(NumParameters, []float64{
		x + tx*dz + qop*Ax*half,
		y + ty*dz + qop*Ay*half,
		tx + qop*Ax*dz,
		ty + qop*Ay*dz,
		qop,
	})

	F := mat.NewDense(NumParameters, NumParameters, []float64{
		1, 0, dz + qop*dAxdtx*half, qop * dAxdty * half, Ax * half,
		0, 1, qop * dAydtx * half, dz + qop*dAydty*half, Ay * half,
		0, 0, 1 + qop*dAxdtx*dz, qop * dAxdty * dz, Ax * dz,
		0, 0, qop * dAydtx * dz, 1 + qop*dAydty*dz, Ay * dz,
		0, 0, 0, 0, 1,
	})
	var FC, FCFt mat.Dense
	FC.Mul(F, state.Covariance())
	FCFt.Mul(&FC, F.T())
	covar := symmetrize(&FCFt)

	if material && dest.Thickness > 0 {
		addMultipleScattering(covar, params, dest.Thickness)
	}
	return newState(dest, params, covar, state.PzSign(), dir)
}

// addMultipleScattering adds the Highland estimate of the scattering angle
// variance of a plane of thickness x/X0 to the slope covariance.
func addMultipleScattering(covar *mat.SymDense, params *mat.VecDense, thickness float64) {
	tx, ty, qop := params.AtVec(ParamTx), params.AtVec(ParamTy), params.AtVec(ParamQoP)
	T2 := 1 + tx*tx + ty*ty
	xX0 := thickness * math.Sqrt(T2)
	θ0 := 0.0136 * math.Abs(qop) * math.Sqrt(xX0) * math.Max(0, 1+0.038*math.Log(xX0))
	σ2 := θ0 * θ0 * T2
	covar.SetSym(ParamTx, ParamTx, covar.At(ParamTx, ParamTx)+σ2*(1+tx*tx))
	covar.SetSym(ParamTy, ParamTy, covar.At(ParamTy, ParamTy)+σ2*(1+ty*ty))
	covar.SetSym(ParamTx, ParamTy, covar.At(ParamTx, ParamTy)+σ2*tx*ty)
}
