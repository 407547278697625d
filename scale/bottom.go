package scale

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"

	"go.viam.com/depth2metric/pointcloud"
)

// FromImageBottom assumes the last bottomFactor share of the raster-ordered
// points lies on the ground. It picks the point of that strip whose distance
// from the camera is closest to the strip's median distance, splits that
// distance into horizontal and vertical parts, and scales the vertical part
// to cameraHeightCM.
func FromImageBottom(pts pointcloud.Points, bottomFactor, cameraHeightCM float64) (float64, bool) {
	n := pts.Len()
	k := int(float64(n) * bottomFactor)
	if k < 1 || k > n {
		return 0, false
	}
	strip := pts.Slice(n-k, n)

	vs := strip.Vectors()
	dists := make([]float64, k)
	for i, v := range vs {
		dists[i] = v.Norm()
	}
	median, err := stats.Median(dists)
	if err != nil {
		return 0, false
	}
	best := 0
	for i, d := range dists {
		if math.Abs(d-median) < math.Abs(dists[best]-median) {
			best = i
		}
	}

	p := vs[best]
	hyp := dists[best]
	horizontal := r3.Vector{X: p.X, Z: p.Z}.Norm()
	vertical := math.Sqrt(math.Max(hyp*hyp-horizontal*horizontal, 0))
	s := cameraHeightCM / vertical
	if !positiveFinite(s) {
		return 0, false
	}
	return s, true
}
