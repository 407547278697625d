// Package rimage holds the raster inputs of a reconstruction: the relative
// depth grid produced by a monocular depth network, the color image it was
// computed from, and the camera metadata embedded in that image.
package rimage

import (
	"image"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// ErrDepthShapeMismatch is returned when a depth grid does not have the same
// dimensions as the image it was computed from.
var ErrDepthShapeMismatch = errors.New("depth map and image dimensions don't match")

// DepthMap is a dense grid of non-negative depth values stored in raster order
// (index = y*width + x). Values are unit-less until a metric scale is applied.
type DepthMap struct {
	width  int
	height int

	data []float64
}

// NewEmptyDepthMap returns a zero-filled depth map of the given size.
func NewEmptyDepthMap(width, height int) *DepthMap {
	return &DepthMap{
		width:  width,
		height: height,
		data:   make([]float64, width*height),
	}
}

// NewDepthMapFromData wraps raster-ordered depth values. The slice is used
// directly, not copied. Every value must be finite and non-negative.
func NewDepthMapFromData(width, height int, data []float64) (*DepthMap, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("bad width or height for depth map %v %v", width, height)
	}
	if len(data) != width*height {
		return nil, errors.Errorf("depth data has %d values, expected %dx%d=%d", len(data), width, height, width*height)
	}
	for i, d := range data {
		if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return nil, errors.Errorf("invalid depth %v at (%d,%d)", d, i%width, i/width)
		}
	}
	return &DepthMap{width: width, height: height, data: data}, nil
}

// Width returns the horizontal size of the grid.
func (dm *DepthMap) Width() int {
	return dm.width
}

// Height returns the vertical size of the grid.
func (dm *DepthMap) Height() int {
	return dm.height
}

// Bounds returns the rectangle covered by the grid.
func (dm *DepthMap) Bounds() image.Rectangle {
	return image.Rect(0, 0, dm.width, dm.height)
}

// GetDepth returns the depth at the given pixel.
func (dm *DepthMap) GetDepth(x, y int) float64 {
	return dm.data[y*dm.width+x]
}

// Set sets the depth at the given pixel.
func (dm *DepthMap) Set(x, y int, val float64) {
	dm.data[y*dm.width+x] = val
}

// Data returns the raster-ordered backing slice. Callers must not retain it
// across a Scale.
func (dm *DepthMap) Data() []float64 {
	return dm.data
}

// Clone returns a deep copy of the depth map.
func (dm *DepthMap) Clone() *DepthMap {
	data := make([]float64, len(dm.data))
	copy(data, dm.data)
	return &DepthMap{width: dm.width, height: dm.height, data: data}
}

// MinMax returns the smallest and largest depth in the grid.
func (dm *DepthMap) MinMax() (float64, float64) {
	if len(dm.data) == 0 {
		return 0, 0
	}
	return floats.Min(dm.data), floats.Max(dm.data)
}

// Scale multiplies every depth value by factor, in place. The whole grid is
// scaled or, on a bad factor, none of it is.
func (dm *DepthMap) Scale(factor float64) error {
	if !(factor > 0) || math.IsInf(factor, 0) {
		return errors.Errorf("scale factor must be positive and finite, got %v", factor)
	}
	floats.Scale(factor, dm.data)
	return nil
}

// CheckShape verifies that the depth map matches a width x height image.
func (dm *DepthMap) CheckShape(width, height int) error {
	if dm.width != width || dm.height != height {
		return errors.Wrapf(ErrDepthShapeMismatch, "Depth(%d,%d) != Image(%d,%d)",
			dm.width, dm.height, width, height)
	}
	return nil
}
