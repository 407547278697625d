package scale

import (
	"context"

	"go.viam.com/depth2metric/pointcloud"
	"go.viam.com/depth2metric/vision/segmentation"
)

// FromGroundPlane fits the dominant plane of pts and, when it is close enough
// to horizontal, scales its distance from the camera to cameraHeightCM. A plane
// whose normal has |n_y|/|n| below minVerticalAlignment is a wall or a heavily
// rolled view and is not used. Only context errors are returned.
func FromGroundPlane(
	ctx context.Context,
	pts pointcloud.Points,
	fitter segmentation.PlaneFitter,
	cameraHeightCM, minVerticalAlignment float64,
) (float64, pointcloud.Plane, bool, error) {
	plane, ok, err := fitter.FitPlane(ctx, pts)
	if err != nil {
		return 0, pointcloud.Plane{}, false, err
	}
	if !ok || !plane.IsValid() {
		return 0, pointcloud.Plane{}, false, nil
	}
	if plane.VerticalAlignment() < minVerticalAlignment {
		return 0, plane, false, nil
	}
	s := cameraHeightCM / plane.OriginDistance()
	if !positiveFinite(s) {
		return 0, plane, false, nil
	}
	return s, plane, true, nil
}
