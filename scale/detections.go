package scale

import (
	"image"
	"math"

	"github.com/montanaflynn/stats"

	"go.viam.com/depth2metric/rimage"
	"go.viam.com/depth2metric/rimage/transform"
	"go.viam.com/depth2metric/utils"
	"go.viam.com/depth2metric/vision/objectdetection"
)

// DetectionCandidate is the scale implied by a single detection.
type DetectionCandidate struct {
	Detection objectdetection.Detection
	// HeightRel is the vertical extent of the box in unscaled camera space.
	HeightRel float64
	// Extent is the full 3D distance between the top and bottom box midpoints.
	Extent float64
	Scale  float64
}

// DetectionCandidates computes a scale for every detection of a known class
// with at least minConfidence. The box is measured along its vertical center
// line: the top and bottom midpoints are unprojected with the unscaled depth
// and only the difference of their Y coordinates is used, so that depth noise
// along X and Z does not leak in. Box coordinates are clamped to the grid.
// Boxes with no vertical extent are skipped.
func DetectionCandidates(
	dm *rimage.DepthMap,
	intrinsics *transform.PinholeCameraIntrinsics,
	dets []objectdetection.Detection,
	priors *objectdetection.ScalePriors,
	minConfidence float64,
) []DetectionCandidate {
	filter := objectdetection.Chain(
		objectdetection.NewScoreFilter(minConfidence),
		objectdetection.NewClassFilter(priors.Has),
	)
	maxX, maxY := dm.Width()-1, dm.Height()-1

	var candidates []DetectionCandidate
	for _, d := range filter(dets) {
		prior, _ := priors.Lookup(d.ClassID())
		box := d.BoundingBox()
		xc := utils.Clamp((box.Min.X+box.Max.X)/2, 0, maxX)
		top := image.Pt(xc, utils.Clamp(box.Min.Y, 0, maxY))
		bottom := image.Pt(xc, utils.Clamp(box.Max.Y, 0, maxY))

		p1 := intrinsics.ImagePointTo3DPoint(top, dm.GetDepth(top.X, top.Y))
		p2 := intrinsics.ImagePointTo3DPoint(bottom, dm.GetDepth(bottom.X, bottom.Y))
		hRel := math.Abs(p1.Y - p2.Y)
		if hRel == 0 || math.IsNaN(hRel) || math.IsInf(hRel, 0) {
			continue
		}
		s := prior.HeightCM / hRel
		if !(s > 0) || math.IsInf(s, 0) {
			continue
		}
		candidates = append(candidates, DetectionCandidate{
			Detection: d,
			HeightRel: hRel,
			Extent:    transform.PixelDistance(top, bottom, dm, intrinsics),
			Scale:     s,
		})
	}
	return candidates
}

// FromDetections returns the median of the detection candidates. The median
// keeps a single occluded or mislabeled box from moving the result. ok is
// false when no detection qualifies.
func FromDetections(
	dm *rimage.DepthMap,
	intrinsics *transform.PinholeCameraIntrinsics,
	dets []objectdetection.Detection,
	priors *objectdetection.ScalePriors,
	minConfidence float64,
) (float64, []float64, bool) {
	candidates := DetectionCandidates(dm, intrinsics, dets, priors, minConfidence)
	if len(candidates) == 0 {
		return 0, nil, false
	}
	scales := make([]float64, len(candidates))
	for i, c := range candidates {
		scales[i] = c.Scale
	}
	median, err := stats.Median(scales)
	if err != nil {
		return 0, nil, false
	}
	return median, scales, true
}
