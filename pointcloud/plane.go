package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// Plane is the plane A*x + B*y + C*z + D = 0. The normal (A, B, C) need not
// be unit length.
type Plane struct {
	A, B, C, D float64
}

// NewPlaneFromNormal returns the plane with the given normal passing through pt.
func NewPlaneFromNormal(normal, pt r3.Vector) Plane {
	return Plane{A: normal.X, B: normal.Y, C: normal.Z, D: -normal.Dot(pt)}
}

// Normal returns the (unnormalized) normal vector of the plane.
func (p Plane) Normal() r3.Vector {
	return NewVector(p.A, p.B, p.C)
}

// Equation return the coefficients of the plane equation as a 4-slice of floats.
func (p Plane) Equation() []float64 {
	return []float64{p.A, p.B, p.C, p.D}
}

// IsValid reports whether the plane has a finite, non-zero normal.
func (p Plane) IsValid() bool {
	n := p.Normal().Norm()
	return n > 0 && !math.IsInf(n, 0) && !math.IsNaN(n) && !math.IsNaN(p.D) && !math.IsInf(p.D, 0)
}

// Distance returns the signed distance from pt to the plane.
func (p Plane) Distance(pt r3.Vector) float64 {
	return (p.A*pt.X + p.B*pt.Y + p.C*pt.Z + p.D) / p.Normal().Norm()
}

// VerticalAlignment returns |normal_y| / |normal|, which is 1 for a horizontal
// plane and 0 for a vertical one.
func (p Plane) VerticalAlignment() float64 {
	return math.Abs(p.B) / p.Normal().Norm()
}

// OriginDistance returns the distance from the origin to the plane.
func (p Plane) OriginDistance() float64 {
	return math.Abs(p.D) / p.Normal().Norm()
}
