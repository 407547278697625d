package reconstruct

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/depth2metric/config"
	"go.viam.com/depth2metric/logging"
	"go.viam.com/depth2metric/pointcloud"
	"go.viam.com/depth2metric/rimage"
	"go.viam.com/depth2metric/rimage/transform"
	"go.viam.com/depth2metric/scale"
	"go.viam.com/depth2metric/vision/objectdetection"
)

var solid = color.NRGBA{R: 10, G: 200, B: 30, A: 255}

func solidImage(width, height int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, solid)
		}
	}
	return img
}

func flatDepth(t *testing.T, width, height int, depth float64) *rimage.DepthMap {
	t.Helper()
	data := make([]float64, width*height)
	for i := range data {
		data[i] = depth
	}
	dm, err := rimage.NewDepthMapFromData(width, height, data)
	test.That(t, err, test.ShouldBeNil)
	return dm
}

func TestReconstructFlatGridFallsBack(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	r, err := NewReconstructor(config.Default(), nil, logger)
	test.That(t, err, test.ShouldBeNil)

	depth := flatDepth(t, 64, 48, 2)
	out, err := r.Reconstruct(context.Background(), Input{Image: solidImage(64, 48), Depth: depth})
	test.That(t, err, test.ShouldBeNil)

	test.That(t, out.Scale.Strategy, test.ShouldEqual, scale.StrategyFallback)
	test.That(t, out.Scale.Scale, test.ShouldEqual, 0.1)
	test.That(t, out.Scale.Confident(), test.ShouldBeFalse)
	test.That(t, logs.FilterMessageSnippet("placeholder scale").Len(), test.ShouldEqual, 1)

	for i, d := range out.Depth.Data() {
		test.That(t, d, test.ShouldAlmostEqual, depth.Data()[i]*0.1)
	}
	// the caller's depth map is left alone
	test.That(t, depth.GetDepth(0, 0), test.ShouldEqual, 2)
	lo, hi := out.Depth.MinMax()
	test.That(t, lo, test.ShouldAlmostEqual, 0.2)
	test.That(t, hi, test.ShouldAlmostEqual, 0.2)
	ranges := logs.FilterMessage("metric depth range").All()
	test.That(t, ranges, test.ShouldHaveLength, 1)
	test.That(t, ranges[0].ContextMap()["max"], test.ShouldAlmostEqual, 0.2)

	test.That(t, out.IntrinsicsFromMetadata, test.ShouldBeFalse)
	test.That(t, out.Intrinsics, test.ShouldResemble, transform.FallbackIntrinsics(64, 48))

	// at metric scale the whole grid fits in one voxel
	test.That(t, out.NumPoints, test.ShouldEqual, 1)
	test.That(t, len(out.Buffer), test.ShouldEqual, pointcloud.RecordSize)
	cloud, err := pointcloud.Unpack(out.Buffer)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Z[0], test.ShouldAlmostEqual, 0.2, 1e-6)
	r8, g8, b8 := cloud.RGB255(0)
	test.That(t, []uint8{r8, g8, b8}, test.ShouldResemble, []uint8{solid.R, solid.G, solid.B})
}

func TestReconstructWithDetections(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	cfg := config.Default()
	cfg.PointCloud.VoxelSize = 0
	r, err := NewReconstructor(cfg, nil, logger)
	test.That(t, err, test.ShouldBeNil)

	// a person box spanning rows 50 to 150 at depth 20 with fy 200 is 10
	// units tall, so the scale is 170/10
	person := objectdetection.NewDetection(image.Rect(90, 50, 110, 150), 0.9, 0, "person")
	out, err := r.Reconstruct(context.Background(), Input{
		Image:      solidImage(200, 200),
		Depth:      flatDepth(t, 200, 200, 20),
		Detections: []objectdetection.Detection{person},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Scale.Strategy, test.ShouldEqual, scale.StrategyDetectionPriors)
	test.That(t, out.Scale.Scale, test.ShouldAlmostEqual, 17)
	test.That(t, out.Scale.Confident(), test.ShouldBeTrue)
	test.That(t, out.Depth.GetDepth(7, 7), test.ShouldAlmostEqual, 340)
	test.That(t, logs.FilterMessageSnippet("metric scale estimated").Len(), test.ShouldEqual, 1)

	// no downsampling: one record per pixel, in raster order
	test.That(t, out.NumPoints, test.ShouldEqual, 200*200)
	test.That(t, len(out.Buffer), test.ShouldEqual, 200*200*pointcloud.RecordSize)
	cloud, err := pointcloud.Unpack(out.Buffer)
	test.That(t, err, test.ShouldBeNil)
	center := cloud.At(100*200 + 100)
	test.That(t, center.X, test.ShouldAlmostEqual, 0)
	test.That(t, center.Y, test.ShouldAlmostEqual, 0)
	test.That(t, center.Z, test.ShouldAlmostEqual, 340, 1e-4)
	corner := cloud.At(0)
	test.That(t, corner.X, test.ShouldAlmostEqual, -170, 1e-3)
	test.That(t, corner.Y, test.ShouldAlmostEqual, 170, 1e-3)
}

func TestReconstructRunsDetector(t *testing.T) {
	cfg := config.Default()
	person := objectdetection.NewDetection(image.Rect(90, 50, 110, 150), 0.9, 0, "person")
	det, err := objectdetection.Build(nil, objectdetection.NewStaticDetector([]objectdetection.Detection{person}), nil)
	test.That(t, err, test.ShouldBeNil)
	r, err := NewReconstructor(cfg, det, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	in := Input{Image: solidImage(200, 200), Depth: flatDepth(t, 200, 200, 20)}
	out, err := r.Reconstruct(context.Background(), in)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Scale.Strategy, test.ShouldEqual, scale.StrategyDetectionPriors)

	// explicit empty detections skip the detector
	in.Detections = []objectdetection.Detection{}
	out, err = r.Reconstruct(context.Background(), in)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Scale.Strategy, test.ShouldEqual, scale.StrategyFallback)

	failing := func(context.Context, image.Image) ([]objectdetection.Detection, error) {
		return nil, errors.New("no model")
	}
	r, err = NewReconstructor(cfg, failing, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	_, err = r.Reconstruct(context.Background(), Input{Image: solidImage(8, 8), Depth: flatDepth(t, 8, 8, 1)})
	test.That(t, err.Error(), test.ShouldContainSubstring, "no model")
}

func TestReconstructIntrinsics(t *testing.T) {
	logger := logging.NewTestLogger(t)
	ctx := context.Background()
	f35 := 36.0
	in := Input{
		Image:    solidImage(40, 30),
		Depth:    flatDepth(t, 40, 30, 1),
		Metadata: &rimage.CameraMetadata{FocalLength35mm: &f35},
	}

	r, err := NewReconstructor(config.Default(), nil, logger)
	test.That(t, err, test.ShouldBeNil)
	out, err := r.Reconstruct(ctx, in)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.IntrinsicsFromMetadata, test.ShouldBeTrue)
	test.That(t, out.Intrinsics.Fx, test.ShouldAlmostEqual, 40)

	cfg := config.Default()
	cfg.Camera.UseMetadata = false
	r, err = NewReconstructor(cfg, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	out, err = r.Reconstruct(ctx, in)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.IntrinsicsFromMetadata, test.ShouldBeFalse)

	override := &transform.PinholeCameraIntrinsics{Width: 40, Height: 30, Fx: 50, Fy: 55, Ppx: 20, Ppy: 15}
	in.Intrinsics = override
	out, err = r.Reconstruct(ctx, in)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Intrinsics, test.ShouldEqual, override)

	in.Intrinsics = &transform.PinholeCameraIntrinsics{Width: 41, Height: 30, Fx: 50, Fy: 55, Ppx: 20, Ppy: 15}
	_, err = r.Reconstruct(ctx, in)
	test.That(t, err.Error(), test.ShouldContainSubstring, "41x30")
}

func TestReconstructErrors(t *testing.T) {
	r, err := NewReconstructor(config.Default(), nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	ctx := context.Background()

	_, err = r.Reconstruct(ctx, Input{Image: solidImage(10, 10), Depth: flatDepth(t, 10, 9, 1)})
	test.That(t, errors.Is(err, rimage.ErrDepthShapeMismatch), test.ShouldBeTrue)

	_, err = r.Reconstruct(ctx, Input{Depth: flatDepth(t, 10, 9, 1)})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = r.Reconstruct(ctx, Input{Image: solidImage(10, 10)})
	test.That(t, err, test.ShouldNotBeNil)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = r.Reconstruct(cancelled, Input{Image: solidImage(10, 10), Depth: flatDepth(t, 10, 10, 1)})
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)

	cfg := config.Default()
	cfg.Scale.PriorsFile = "/nonexistent/priors.json"
	_, err = NewReconstructor(cfg, nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}
