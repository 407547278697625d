package pointcloud

import (
	"image/color"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

/* Voxel downsampling bounds the size of a cloud by snapping it to a regular
grid of cubes (voxels) and keeping a single representative per occupied voxel.
The representative is the centroid of the voxel's points, colored with their
mean color.
More information:
- https://en.wikipedia.org/wiki/Voxel
*/

// VoxelCoords stores Voxel coordinates in VoxelGrid axes.
type VoxelCoords struct {
	I, J, K int64
}

// GetVoxelCoordinates computes the coordinates of the voxel containing pt in a
// grid of edge voxelSize whose origin is ptMin.
func GetVoxelCoordinates(pt, ptMin r3.Vector, voxelSize float64) VoxelCoords {
	ptVoxel := pt.Sub(ptMin).Mul(1. / voxelSize)
	return VoxelCoords{
		I: int64(math.Floor(ptVoxel.X)),
		J: int64(math.Floor(ptVoxel.Y)),
		K: int64(math.Floor(ptVoxel.Z)),
	}
}

type voxelAccumulator struct {
	sum     r3.Vector
	r, g, b int
	count   int
}

// VoxelDownsample returns one point per occupied voxel of edge voxelSize.
// Output points are ordered by the first point that landed in each voxel, so
// raster order of the input is not preserved.
func VoxelDownsample(cp ColoredPoints, voxelSize float64) (ColoredPoints, error) {
	if !(voxelSize > 0) || math.IsInf(voxelSize, 0) {
		return ColoredPoints{}, errors.Errorf("voxel size must be positive and finite, got %v", voxelSize)
	}
	if cp.Len() != len(cp.Colors) {
		return ColoredPoints{}, errors.Wrapf(ErrLengthMismatch, "%d points, %d colors", cp.Len(), len(cp.Colors))
	}
	if cp.Len() == 0 {
		return cp, nil
	}

	ptMin := NewVector(floats.Min(cp.X), floats.Min(cp.Y), floats.Min(cp.Z))
	voxelIndex := make(map[VoxelCoords]int)
	voxels := make([]voxelAccumulator, 0)
	for i := 0; i < cp.Len(); i++ {
		pt := cp.At(i)
		coords := GetVoxelCoordinates(pt, ptMin, voxelSize)
		idx, ok := voxelIndex[coords]
		if !ok {
			idx = len(voxels)
			voxelIndex[coords] = idx
			voxels = append(voxels, voxelAccumulator{})
		}
		vox := &voxels[idx]
		vox.sum = vox.sum.Add(pt)
		c := cp.Colors[i]
		vox.r += int(c.R)
		vox.g += int(c.G)
		vox.b += int(c.B)
		vox.count++
	}

	out := ColoredPoints{Points: NewPoints(len(voxels)), Colors: make([]color.NRGBA, len(voxels))}
	for i, vox := range voxels {
		out.Set(i, vox.sum.Mul(1./float64(vox.count)))
		// integer division truncates the mean color like a float->byte cast would
		out.Colors[i] = color.NRGBA{
			R: uint8(vox.r / vox.count),
			G: uint8(vox.g / vox.count),
			B: uint8(vox.b / vox.count),
			A: 255,
		}
	}
	return out, nil
}
