// Package pointcloud defines the ordered point sequences produced by
// unprojecting a depth map, and the operations applied to them before they
// leave the process: voxel downsampling, fixed-layout packing and PCD export.
//
// Points are stored as parallel coordinate slices rather than a slice of
// vectors so that bulk arithmetic over multi-megapixel clouds stays
// array-oriented.
package pointcloud

import (
	"image/color"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrLengthMismatch is returned when a point sequence and its colors differ in length.
var ErrLengthMismatch = errors.New("points and colors have different lengths")

// NewVector convenience method for creating a vector.
func NewVector(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}

// Points is an ordered sequence of 3D points. Point i is (X[i], Y[i], Z[i]).
type Points struct {
	X, Y, Z []float64
}

// NewPoints returns a zeroed sequence of n points.
func NewPoints(n int) Points {
	return Points{
		X: make([]float64, n),
		Y: make([]float64, n),
		Z: make([]float64, n),
	}
}

// NewPointsFromVectors copies vectors into a new sequence.
func NewPointsFromVectors(vs []r3.Vector) Points {
	pts := NewPoints(len(vs))
	for i, v := range vs {
		pts.Set(i, v)
	}
	return pts
}

// Len returns the number of points.
func (pts Points) Len() int {
	return len(pts.Z)
}

// At returns point i.
func (pts Points) At(i int) r3.Vector {
	return NewVector(pts.X[i], pts.Y[i], pts.Z[i])
}

// Set overwrites point i.
func (pts Points) Set(i int, v r3.Vector) {
	pts.X[i], pts.Y[i], pts.Z[i] = v.X, v.Y, v.Z
}

// Slice returns the sub-sequence [from, to). It shares storage with pts.
func (pts Points) Slice(from, to int) Points {
	return Points{X: pts.X[from:to], Y: pts.Y[from:to], Z: pts.Z[from:to]}
}

// Vectors returns a copy of the sequence as vectors.
func (pts Points) Vectors() []r3.Vector {
	vs := make([]r3.Vector, pts.Len())
	for i := range vs {
		vs[i] = pts.At(i)
	}
	return vs
}

// ColoredPoints is a point sequence with one color per point.
type ColoredPoints struct {
	Points
	Colors []color.NRGBA
}

// NewColoredPoints pairs points with colors. The two must have the same length.
func NewColoredPoints(pts Points, colors []color.NRGBA) (ColoredPoints, error) {
	if pts.Len() != len(colors) {
		return ColoredPoints{}, errors.Wrapf(ErrLengthMismatch, "%d points, %d colors", pts.Len(), len(colors))
	}
	return ColoredPoints{Points: pts, Colors: colors}, nil
}

// RGB255 returns the color components of point i.
func (cp ColoredPoints) RGB255(i int) (uint8, uint8, uint8) {
	c := cp.Colors[i]
	return c.R, c.G, c.B
}
