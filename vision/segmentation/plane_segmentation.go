// Package segmentation implements plane segmentation for point clouds.
package segmentation

import (
	"context"
	"math"
	"math/rand"
	"sync/atomic"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	pc "go.viam.com/depth2metric/pointcloud"
	"go.viam.com/depth2metric/utils"
)

// PlaneConfig holds the RANSAC parameters used to look for the dominant plane.
type PlaneConfig struct {
	// DistanceThreshold is the maximum distance from the plane for a point to count as an inlier.
	DistanceThreshold float64 `json:"distance_threshold"`
	// SampleSize is the number of distinct points used to hypothesize each plane.
	SampleSize int `json:"sample_size"`
	// Iterations is the number of hypotheses tried.
	// nIter to choose? nIter = log(1-p)/log(1-(1-e)^s), where p is prob of success, e is outlier ratio, s is subset size.
	Iterations int `json:"iterations"`
	// Seed seeds the random sampler so that fits are reproducible.
	Seed int64 `json:"seed"`
}

// DefaultPlaneConfig returns threshold 0.5, 10 samples and 500 iterations.
func DefaultPlaneConfig() PlaneConfig {
	return PlaneConfig{
		DistanceThreshold: 0.5,
		SampleSize:        10,
		Iterations:        500,
		Seed:              1,
	}
}

// CheckValid checks that every parameter is usable.
func (cfg PlaneConfig) CheckValid() error {
	var err error
	if !(cfg.DistanceThreshold > 0) || math.IsInf(cfg.DistanceThreshold, 0) {
		err = multierr.Append(err, errors.Errorf("distance_threshold must be positive, got %v", cfg.DistanceThreshold))
	}
	if cfg.SampleSize < 3 {
		err = multierr.Append(err, errors.Errorf("sample_size must be at least 3, got %d", cfg.SampleSize))
	}
	if cfg.Iterations < 1 {
		err = multierr.Append(err, errors.Errorf("iterations must be at least 1, got %d", cfg.Iterations))
	}
	return err
}

// PlaneFitter finds the dominant plane of a point set. ok is false when no
// plane could be found; that is not an error.
type PlaneFitter interface {
	FitPlane(ctx context.Context, pts pc.Points) (plane pc.Plane, ok bool, err error)
}

// RANSACPlaneFitter is a PlaneFitter that tries random least-squares plane
// hypotheses and keeps the one with the most inliers.
type RANSACPlaneFitter struct {
	cfg PlaneConfig
}

// NewRANSACPlaneFitter returns a fitter for the given parameters.
func NewRANSACPlaneFitter(cfg PlaneConfig) (*RANSACPlaneFitter, error) {
	if err := cfg.CheckValid(); err != nil {
		return nil, errors.Wrap(err, "invalid plane segmentation config")
	}
	return &RANSACPlaneFitter{cfg: cfg}, nil
}

// FitPlane segments the biggest plane in pts. Too few points, or a best
// hypothesis supported by fewer than SampleSize inliers, yields ok == false.
// The winning hypothesis is refit on all of its inliers.
func (f *RANSACPlaneFitter) FitPlane(ctx context.Context, pts pc.Points) (pc.Plane, bool, error) {
	ctx, span := trace.StartSpan(ctx, "segmentation::RANSACPlaneFitter::FitPlane")
	defer span.End()
	nPoints := pts.Len()
	if nPoints < f.cfg.SampleSize {
		return pc.Plane{}, false, nil
	}
	r := rand.New(rand.NewSource(f.cfg.Seed)) //nolint:gosec
	dists := make([]float64, nPoints)
	sample := make([]r3.Vector, f.cfg.SampleSize)

	var bestPlane pc.Plane
	bestInliers := 0
	for i := 0; i < f.cfg.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return pc.Plane{}, false, err
		}
		for j, idx := range sampleDistinct(r, nPoints, f.cfg.SampleSize) {
			sample[j] = pts.At(idx)
		}
		plane, ok := FitPlaneLeastSquares(sample)
		if !ok {
			continue
		}
		inliers, err := countInliers(ctx, pts, plane, f.cfg.DistanceThreshold, dists)
		if err != nil {
			return pc.Plane{}, false, err
		}
		if inliers > bestInliers {
			bestPlane = plane
			bestInliers = inliers
		}
	}
	if bestInliers < f.cfg.SampleSize {
		return pc.Plane{}, false, nil
	}

	if _, err := countInliers(ctx, pts, bestPlane, f.cfg.DistanceThreshold, dists); err != nil {
		return pc.Plane{}, false, err
	}
	inlierPts := make([]r3.Vector, 0, bestInliers)
	limit := f.cfg.DistanceThreshold * bestPlane.Normal().Norm()
	for i, d := range dists {
		if math.Abs(d) < limit {
			inlierPts = append(inlierPts, pts.At(i))
		}
	}
	if refined, ok := FitPlaneLeastSquares(inlierPts); ok {
		bestPlane = refined
	}
	return bestPlane, true, nil
}

// countInliers writes the unnormalized plane residual of every point into
// dists and returns how many fall within threshold.
func countInliers(ctx context.Context, pts pc.Points, plane pc.Plane, threshold float64, dists []float64) (int, error) {
	limit := threshold * plane.Normal().Norm()
	var total int64
	err := utils.GroupWorkParallel(ctx, pts.Len(), func(_, from, to int) {
		d := dists[from:to]
		xs, ys, zs := pts.X[from:to], pts.Y[from:to], pts.Z[from:to]
		var n int64
		for i := range d {
			d[i] = plane.A*xs[i] + plane.B*ys[i] + plane.C*zs[i] + plane.D
			if math.Abs(d[i]) < limit {
				n++
			}
		}
		atomic.AddInt64(&total, n)
	})
	if err != nil {
		return 0, err
	}
	return int(total), nil
}

// sampleDistinct draws k distinct indices from [0, n) using Floyd's algorithm.
func sampleDistinct(r *rand.Rand, n, k int) []int {
	picked := make(map[int]struct{}, k)
	out := make([]int, 0, k)
	for j := n - k; j < n; j++ {
		t := r.Intn(j + 1)
		if _, ok := picked[t]; ok {
			t = j
		}
		picked[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// FitPlaneLeastSquares fits a plane through pts by orthogonal least squares.
// The normal is the direction of least variance of the centered points, taken
// from the SVD of their scatter matrix. It fails on fewer than three points or
// when the points are (nearly) collinear.
func FitPlaneLeastSquares(pts []r3.Vector) (pc.Plane, bool) {
	if len(pts) < 3 {
		return pc.Plane{}, false
	}
	var centroid r3.Vector
	for _, p := range pts {
		centroid = centroid.Add(p)
	}
	centroid = centroid.Mul(1 / float64(len(pts)))

	var s [9]float64
	for _, p := range pts {
		c := p.Sub(centroid)
		v := [3]float64{c.X, c.Y, c.Z}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				s[3*i+j] += v[i] * v[j]
			}
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(mat.NewDense(3, 3, s[:]), mat.SVDFull); !ok {
		return pc.Plane{}, false
	}
	values := svd.Values(nil)
	if values[0] <= 0 || values[1] <= 1e-12*values[0] {
		return pc.Plane{}, false
	}
	var v mat.Dense
	svd.VTo(&v)
	normal := pc.NewVector(v.At(0, 2), v.At(1, 2), v.At(2, 2))
	plane := pc.NewPlaneFromNormal(normal, centroid)
	if !plane.IsValid() {
		return pc.Plane{}, false
	}
	return plane, true
}
