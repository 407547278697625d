// Package reconstruct turns a photo and its relative depth map into a metric,
// colored, downsampled point cloud packed for transport.
package reconstruct

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"go.viam.com/depth2metric/config"
	"go.viam.com/depth2metric/logging"
	"go.viam.com/depth2metric/pointcloud"
	"go.viam.com/depth2metric/rimage"
	"go.viam.com/depth2metric/rimage/transform"
	"go.viam.com/depth2metric/scale"
	"go.viam.com/depth2metric/vision/objectdetection"
	"go.viam.com/depth2metric/vision/segmentation"
)

// Input is one reconstruction request. Image and Depth are required and must
// have the same dimensions. Nothing in Input is modified.
type Input struct {
	Image image.Image
	// Metadata holds the focal lengths read from the image, if any.
	Metadata *rimage.CameraMetadata
	// Depth is the relative depth predicted for Image.
	Depth *rimage.DepthMap
	// Detections are used as is when non-nil. Otherwise the reconstructor's
	// detector, if it has one, is run on Image.
	Detections []objectdetection.Detection
	// Intrinsics overrides estimation when set.
	Intrinsics *transform.PinholeCameraIntrinsics
}

// Output is the result of a reconstruction.
type Output struct {
	// Buffer is the packed cloud, pointcloud.RecordSize bytes per point.
	Buffer []byte
	// Cloud is the cloud that was packed.
	Cloud pointcloud.ColoredPoints
	// Depth is the metric depth map: the input depth times Scale.Scale.
	Depth                  *rimage.DepthMap
	Intrinsics             *transform.PinholeCameraIntrinsics
	IntrinsicsFromMetadata bool
	Scale                  scale.Result
	NumPoints              int
}

// Reconstructor runs the reconstruction pipeline. It holds only read-only
// state, so one Reconstructor may serve concurrent calls.
type Reconstructor struct {
	useMetadata bool
	intrinsics  *transform.PinholeCameraIntrinsics
	voxelSize   float64
	estimator   *scale.Estimator
	detector    objectdetection.Detector
	logger      logging.Logger
}

// NewReconstructor builds a Reconstructor from cfg. detector may be nil.
func NewReconstructor(cfg *config.Config, detector objectdetection.Detector, logger logging.Logger) (*Reconstructor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	priors, err := cfg.ScalePriors()
	if err != nil {
		return nil, err
	}
	intrinsics, err := cfg.Intrinsics()
	if err != nil {
		return nil, err
	}
	fitter, err := segmentation.NewRANSACPlaneFitter(cfg.RANSAC)
	if err != nil {
		return nil, err
	}
	estimator, err := scale.NewEstimator(cfg.Scale.Config, priors, fitter, logger.Sublogger("scale"))
	if err != nil {
		return nil, err
	}
	return &Reconstructor{
		useMetadata: cfg.Camera.UseMetadata,
		intrinsics:  intrinsics,
		voxelSize:   cfg.PointCloud.VoxelSize,
		estimator:   estimator,
		detector:    detector,
		logger:      logger,
	}, nil
}

// Reconstruct estimates intrinsics and metric scale, rescales the depth map,
// unprojects it again at metric scale, colors the points from the image,
// downsamples them and packs them.
func (r *Reconstructor) Reconstruct(ctx context.Context, in Input) (*Output, error) {
	ctx, span := trace.StartSpan(ctx, "reconstruct::Reconstructor::Reconstruct")
	defer span.End()
	if in.Image == nil {
		return nil, errors.New("reconstruction needs an image")
	}
	if in.Depth == nil {
		return nil, errors.New("reconstruction needs a depth map")
	}
	width, height := in.Image.Bounds().Dx(), in.Image.Bounds().Dy()
	if err := in.Depth.CheckShape(width, height); err != nil {
		return nil, err
	}

	intrinsics, fromMetadata, err := r.Intrinsics(in, width, height)
	if err != nil {
		return nil, err
	}
	r.logger.Debugw("intrinsics", "fx", intrinsics.Fx, "fy", intrinsics.Fy,
		"ppx", intrinsics.Ppx, "ppy", intrinsics.Ppy, "from_metadata", fromMetadata)

	dets := in.Detections
	if dets == nil && r.detector != nil {
		if dets, err = r.detector(ctx, in.Image); err != nil {
			return nil, errors.Wrap(err, "object detection failed")
		}
	}

	relPts, err := transform.DepthMapToPoints(ctx, in.Depth, intrinsics)
	if err != nil {
		return nil, err
	}
	res, err := r.estimator.Estimate(ctx, scale.Input{
		Depth:      in.Depth,
		Intrinsics: intrinsics,
		Points:     relPts,
		Detections: dets,
	})
	if err != nil {
		return nil, err
	}
	if res.Confident() {
		r.logger.Infow("metric scale estimated", "strategy", res.Strategy.String(), "scale", res.Scale)
	} else {
		r.logger.Warnw("no scale strategy succeeded, using placeholder scale", "scale", res.Scale)
	}

	// X and Y are linear in depth, so the cloud is rebuilt from the scaled
	// depth rather than scaling the relative points.
	metric := in.Depth.Clone()
	if err := metric.Scale(res.Scale); err != nil {
		return nil, err
	}
	lo, hi := metric.MinMax()
	r.logger.Debugw("metric depth range", "min", lo, "max", hi)
	pts, err := transform.DepthMapToPoints(ctx, metric, intrinsics)
	if err != nil {
		return nil, err
	}
	colors, err := rimage.ImageColors(ctx, in.Image)
	if err != nil {
		return nil, err
	}
	cloud, err := pointcloud.NewColoredPoints(pts, colors)
	if err != nil {
		return nil, err
	}
	if r.voxelSize > 0 {
		if cloud, err = pointcloud.VoxelDownsample(cloud, r.voxelSize); err != nil {
			return nil, err
		}
	}
	buf, err := pointcloud.Pack(cloud)
	if err != nil {
		return nil, err
	}
	r.logger.Debugw("point cloud packed", "points", cloud.Len(), "bytes", len(buf))

	return &Output{
		Buffer:                 buf,
		Cloud:                  cloud,
		Depth:                  metric,
		Intrinsics:             intrinsics,
		IntrinsicsFromMetadata: fromMetadata,
		Scale:                  res,
		NumPoints:              cloud.Len(),
	}, nil
}

// Intrinsics picks the intrinsics for a width x height image. In order: the
// override in in.Intrinsics, the configured intrinsics file, the image
// metadata when enabled, and finally the fallback pinhole. The boolean reports
// whether metadata was used. Only in.Intrinsics and in.Metadata are read.
func (r *Reconstructor) Intrinsics(in Input, width, height int) (*transform.PinholeCameraIntrinsics, bool, error) {
	override := in.Intrinsics
	if override == nil {
		override = r.intrinsics
	}
	if override != nil {
		if err := override.CheckValid(); err != nil {
			return nil, false, err
		}
		if override.Width != width || override.Height != height {
			return nil, false, errors.Errorf("intrinsics are for a %dx%d image, got %dx%d",
				override.Width, override.Height, width, height)
		}
		return override, false, nil
	}
	if !r.useMetadata {
		return transform.FallbackIntrinsics(width, height), false, nil
	}
	intrinsics, fromMetadata := transform.EstimateIntrinsics(in.Metadata, width, height)
	return intrinsics, fromMetadata, nil
}
