package gorefit

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// Plane is a detector surface perpendicular to the z axis.
type Plane struct {
	DetID     uint32
	Layer     int
	Z         float64 // cm
	Thickness float64 // in radiation lengths (x/X0); zero for no material
}

// NewPlane returns a new plane at z.
func NewPlane(detID uint32, layer int, z, thickness float64) *Plane {
	return &Plane{DetID: detID, Layer: layer, Z: z, Thickness: thickness}
}

// Position returns the origin of the plane.
func (p *Plane) Position() r3.Vector {
	return r3.Vector{Z: p.Z}
}

// Normal returns the unit normal of the plane.
func (p *Plane) Normal() r3.Vector {
	return r3.Vector{Z: 1}
}

func (p *Plane) String() string {
	return fmt.Sprintf("Plane{det=%d layer=%d z=%.3f x/X0=%.4f}", p.DetID, p.Layer, p.Z, p.Thickness)
}

// samePlane returns whether two planes describe the same detector surface.
func samePlane(a, b *Plane) bool {
	if a == nil || b == nil {
		return false
	}
	return a == b || (a.DetID == b.DetID && a.Z == b.Z)
}

// NewTelescope returns n equally spaced planes starting at z0.
func NewTelescope(n int, z0, spacing, thickness float64) []*Plane {
	planes := make([]*Plane, n)
	for i := range planes {
		planes[i] = NewPlane(uint32(i+1), i, z0+float64(i)*spacing, thickness)
	}
	return planes
}

// MagneticField returns the field in Tesla at a position in cm.
type MagneticField interface {
	InTesla(pos r3.Vector) r3.Vector
}

// UniformField is a constant magnetic field.
type UniformField struct {
	B r3.Vector
}

// InTesla implements the MagneticField interface.
func (f UniformField) InTesla(pos r3.Vector) r3.Vector {
	return f.B
}

// DipoleField is a constant field inside ZMin <= z <= ZMax and zero outside.
type DipoleField struct {
	B          r3.Vector
	ZMin, ZMax float64
}

// InTesla implements the MagneticField interface.
func (f DipoleField) InTesla(pos r3.Vector) r3.Vector {
	if pos.Z < f.ZMin || pos.Z > f.ZMax {
		return r3.Vector{}
	}
	return f.B
}

// isOutward returns whether moving from z to dest goes away from the origin.
func isOutward(z float64, dest *Plane) bool {
	return math.Abs(dest.Z) > math.Abs(z)
}
