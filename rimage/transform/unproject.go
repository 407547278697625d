package transform

import (
	"context"
	"image"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"gonum.org/v1/gonum/floats"

	"go.viam.com/depth2metric/pointcloud"
	"go.viam.com/depth2metric/rimage"
	"go.viam.com/depth2metric/utils"
)

// ImagePointTo3DPoint takes in a image coordinate and returns the 3D point from the camera matrix.
func (params *PinholeCameraIntrinsics) ImagePointTo3DPoint(pt image.Point, depth float64) r3.Vector {
	x, y, z := params.PixelToPoint(float64(pt.X), float64(pt.Y), depth)
	return pointcloud.NewVector(x, y, z)
}

// DepthMapToPoints unprojects every pixel of dm into camera space, in raster
// order (index = v*width + u). The work is bulk slice arithmetic over a pixel
// meshgrid, split into contiguous chunks that run in parallel.
func DepthMapToPoints(
	ctx context.Context,
	dm *rimage.DepthMap,
	params *PinholeCameraIntrinsics,
) (pointcloud.Points, error) {
	ctx, span := trace.StartSpan(ctx, "transform::DepthMapToPoints")
	defer span.End()
	if dm == nil {
		return pointcloud.Points{}, errors.New("no depth map. Cannot project to points")
	}
	if err := params.CheckValid(); err != nil {
		return pointcloud.Points{}, err
	}
	if err := dm.CheckShape(params.Width, params.Height); err != nil {
		return pointcloud.Points{}, err
	}

	us, vs := utils.PixelGrid(dm.Width(), dm.Height())
	depth := dm.Data()
	pts := pointcloud.NewPoints(len(depth))
	invFx, invFy := 1/params.Fx, -1/params.Fy
	err := utils.GroupWorkParallel(ctx, len(depth), func(_, from, to int) {
		d := depth[from:to]

		x := pts.X[from:to]
		copy(x, us[from:to])
		floats.AddConst(-params.Ppx, x)
		floats.Mul(x, d)
		floats.Scale(invFx, x)

		y := pts.Y[from:to]
		copy(y, vs[from:to])
		floats.AddConst(-params.Ppy, y)
		floats.Mul(y, d)
		floats.Scale(invFy, y)

		copy(pts.Z[from:to], d)
	})
	if err != nil {
		return pointcloud.Points{}, err
	}
	return pts, nil
}

// PixelDistance is the Euclidean distance between the camera-space points of
// two pixels of dm.
func PixelDistance(p1, p2 image.Point, dm *rimage.DepthMap, params *PinholeCameraIntrinsics) float64 {
	a := params.ImagePointTo3DPoint(p1, dm.GetDepth(p1.X, p1.Y))
	b := params.ImagePointTo3DPoint(p2, dm.GetDepth(p2.X, p2.Y))
	return a.Sub(b).Norm()
}
