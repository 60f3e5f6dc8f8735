package gorefit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// PixelHit measures both x and y on a plane.
type PixelHit struct {
	surface *Plane
	meas    *mat.VecDense
	covar   *mat.SymDense
}

// NewPixelHit returns a new two dimensional hit with resolutions σx and σy.
func NewPixelHit(surface *Plane, x, y, σx, σy float64) *PixelHit {
	return &PixelHit{surface, mat.NewVecDense(2, []float64{x, y}), Diagonal(σx*σx, σy*σy)}
}

// IsValid implements the Hit interface.
func (h *PixelHit) IsValid() bool { return true }

// Surface implements the Hit interface.
func (h *PixelHit) Surface() *Plane { return h.surface }

// Parameters implements the Hit interface.
func (h *PixelHit) Parameters() *mat.VecDense { return h.meas }

// Covariance implements the Hit interface.
func (h *PixelHit) Covariance() mat.Symmetric { return h.covar }

// Projection implements the Hit interface.
func (h *PixelHit) Projection() mat.Matrix {
	return mat.NewDense(2, NumParameters, []float64{
		1, 0, 0, 0, 0,
		0, 1, 0, 0, 0,
	})
}

// Dimension implements the Hit interface.
func (h *PixelHit) Dimension() int { return 2 }

func (h *PixelHit) String() string {
	return fmt.Sprintf("PixelHit{det=%d x=%.4f y=%.4f}", h.surface.DetID, h.meas.AtVec(0), h.meas.AtVec(1))
}

// StripHit measures u = x*cos(φ) + y*sin(φ) on a plane.
type StripHit struct {
	surface *Plane
	angle   float64
	meas    *mat.VecDense
	covar   *mat.SymDense
}

// NewStripHit returns a new one dimensional hit with strips perpendicular to the angle φ.
func NewStripHit(surface *Plane, φ, u, σ float64) *StripHit {
	return &StripHit{surface, φ, mat.NewVecDense(1, []float64{u}), mat.NewSymDense(1, []float64{σ * σ})}
}

// IsValid implements the Hit interface.
func (h *StripHit) IsValid() bool { return true }

// Surface implements the Hit interface.
func (h *StripHit) Surface() *Plane { return h.surface }

// Parameters implements the Hit interface.
func (h *StripHit) Parameters() *mat.VecDense { return h.meas }

// Covariance implements the Hit interface.
func (h *StripHit) Covariance() mat.Symmetric { return h.covar }

// Projection implements the Hit interface.
func (h *StripHit) Projection() mat.Matrix {
	return mat.NewDense(1, NumParameters, []float64{math.Cos(h.angle), math.Sin(h.angle), 0, 0, 0})
}

// Dimension implements the Hit interface.
func (h *StripHit) Dimension() int { return 1 }

// Angle returns the measurement direction φ.
func (h *StripHit) Angle() float64 { return h.angle }

// StereoHit is a set of strip hits on the same plane measured together.
type StereoHit struct {
	components []Hit
	meas       *mat.VecDense
	covar      *mat.SymDense
	proj       *mat.Dense
}

// NewStereoHit stacks the provided hits into one measurement. All hits must lie on the same plane.
func NewStereoHit(components ...Hit) (*StereoHit, error) {
	if len(components) == 0 {
		return nil, errors.New("gorefit: stereo hit requires at least one component")
	}
	dim := 0
	for _, c := range components {
		if !samePlane(c.Surface(), components[0].Surface()) {
			return nil, fmt.Errorf("gorefit: stereo components on different planes: %s and %s", c.Surface(), components[0].Surface())
		}
		if !c.IsValid() {
			return nil, errors.New("gorefit: stereo components must be valid")
		}
		dim += c.Dimension()
	}
	meas := mat.NewVecDense(dim, nil)
	covar := mat.NewSymDense(dim, nil)
	proj := mat.NewDense(dim, NumParameters, nil)
	row := 0
	for _, c := range components {
		H := c.Projection()
		V := c.Covariance()
		for i := 0; i < c.Dimension(); i++ {
			meas.SetVec(row+i, c.Parameters().AtVec(i))
			for j := 0; j < NumParameters; j++ {
				proj.Set(row+i, j, H.At(i, j))
			}
			for j := i; j < c.Dimension(); j++ {
				covar.SetSym(row+i, row+j, V.At(i, j))
			}
		}
		row += c.Dimension()
	}
	return &StereoHit{components, meas, covar, proj}, nil
}

// IsValid implements the Hit interface.
func (h *StereoHit) IsValid() bool { return true }

// Surface implements the Hit interface.
func (h *StereoHit) Surface() *Plane { return h.components[0].Surface() }

// Parameters implements the Hit interface.
func (h *StereoHit) Parameters() *mat.VecDense { return h.meas }

// Covariance implements the Hit interface.
func (h *StereoHit) Covariance() mat.Symmetric { return h.covar }

// Projection implements the Hit interface.
func (h *StereoHit) Projection() mat.Matrix { return h.proj }

// Dimension implements the Hit interface.
func (h *StereoHit) Dimension() int { return h.meas.Len() }

// Components implements the CompositeHit interface.
func (h *StereoHit) Components() []Hit {
	return append([]Hit(nil), h.components...)
}

// InvalidHit marks a plane crossed by the track without a usable measurement.
type InvalidHit struct {
	surface *Plane
}

// NewInvalidHit returns a placeholder hit on the provided plane.
func NewInvalidHit(surface *Plane) *InvalidHit {
	return &InvalidHit{surface}
}

// IsValid implements the Hit interface.
func (h *InvalidHit) IsValid() bool { return false }

// Surface implements the Hit interface.
func (h *InvalidHit) Surface() *Plane { return h.surface }

// Parameters implements the Hit interface.
func (h *InvalidHit) Parameters() *mat.VecDense { return nil }

// Covariance implements the Hit interface.
func (h *InvalidHit) Covariance() mat.Symmetric { return nil }

// Projection implements the Hit interface.
func (h *InvalidHit) Projection() mat.Matrix { return nil }

// Dimension implements the Hit interface.
func (h *InvalidHit) Dimension() int { return 0 }

func (h *InvalidHit) String() string {
	return fmt.Sprintf("InvalidHit{det=%d}", h.surface.DetID)
}
