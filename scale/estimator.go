package scale

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.opencensus.io/trace"
	"go.uber.org/multierr"

	"go.viam.com/depth2metric/logging"
	"go.viam.com/depth2metric/pointcloud"
	"go.viam.com/depth2metric/rimage"
	"go.viam.com/depth2metric/rimage/transform"
	"go.viam.com/depth2metric/vision/objectdetection"
	"go.viam.com/depth2metric/vision/segmentation"
)

// Config controls which strategies run and their constants.
type Config struct {
	// DetectionConfidence is the minimum detector score for a detection to be measured.
	DetectionConfidence float64 `json:"detection_confidence"`
	// CameraHeightCM is the assumed height of the camera above the ground.
	CameraHeightCM float64 `json:"camera_height_cm"`
	// BottomFactor is the share of the image, from the bottom, assumed to be ground.
	BottomFactor float64 `json:"bottom_factor"`
	// FallbackScale is applied when no strategy succeeds. It is a placeholder,
	// not a measurement.
	FallbackScale        float64 `json:"fallback_scale"`
	EnableGroundPlane    bool    `json:"enable_ground_plane"`
	EnableImageBottom    bool    `json:"enable_image_bottom"`
	MinVerticalAlignment float64 `json:"min_vertical_alignment"`
}

// DefaultConfig returns the defaults. The image bottom heuristic is off: it
// succeeds on almost any input, including ones with no visible ground.
func DefaultConfig() Config {
	return Config{
		DetectionConfidence:  0.5,
		CameraHeightCM:       160,
		BottomFactor:         0.05,
		FallbackScale:        0.1,
		EnableGroundPlane:    true,
		EnableImageBottom:    false,
		MinVerticalAlignment: 0.75,
	}
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// Validate ensures all parts of the config are valid.
func (cfg Config) Validate() error {
	var err error
	if cfg.DetectionConfidence < 0 || cfg.DetectionConfidence > 1 || math.IsNaN(cfg.DetectionConfidence) {
		err = multierr.Append(err, errors.Errorf("detection_confidence must be in [0, 1], got %v", cfg.DetectionConfidence))
	}
	if !positiveFinite(cfg.CameraHeightCM) {
		err = multierr.Append(err, errors.Errorf("camera_height_cm must be positive, got %v", cfg.CameraHeightCM))
	}
	if !(cfg.BottomFactor > 0 && cfg.BottomFactor <= 1) {
		err = multierr.Append(err, errors.Errorf("bottom_factor must be in (0, 1], got %v", cfg.BottomFactor))
	}
	if !positiveFinite(cfg.FallbackScale) {
		err = multierr.Append(err, errors.Errorf("fallback_scale must be positive, got %v", cfg.FallbackScale))
	}
	if !(cfg.MinVerticalAlignment >= 0 && cfg.MinVerticalAlignment <= 1) {
		err = multierr.Append(err, errors.Errorf("min_vertical_alignment must be in [0, 1], got %v", cfg.MinVerticalAlignment))
	}
	return err
}

// Input is what the strategies measure. Depth and Points are unscaled, and
// Points is Depth unprojected with Intrinsics.
type Input struct {
	Depth      *rimage.DepthMap
	Intrinsics *transform.PinholeCameraIntrinsics
	Points     pointcloud.Points
	Detections []objectdetection.Detection
}

type strategyFunc func(ctx context.Context, in Input) (Result, bool, error)

type step struct {
	strategy Strategy
	enabled  bool
	run      strategyFunc
}

// Estimator tries the strategies in priority order and returns the first
// scale found. It holds only read-only state and may be shared.
type Estimator struct {
	cfg    Config
	priors *objectdetection.ScalePriors
	fitter segmentation.PlaneFitter
	steps  []step
	logger logging.Logger
}

// NewEstimator returns an Estimator. A nil fitter disables the ground plane
// strategy and nil priors disable the detection strategy.
func NewEstimator(
	cfg Config,
	priors *objectdetection.ScalePriors,
	fitter segmentation.PlaneFitter,
	logger logging.Logger,
) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid scale config")
	}
	e := &Estimator{cfg: cfg, priors: priors, fitter: fitter, logger: logger}
	all := []step{
		{StrategyDetectionPriors, priors.Len() > 0, e.fromDetections},
		{StrategyGroundPlane, cfg.EnableGroundPlane && fitter != nil, e.fromGroundPlane},
		{StrategyImageBottom, cfg.EnableImageBottom, e.fromImageBottom},
	}
	e.steps = lo.Filter(all, func(s step, _ int) bool { return s.enabled })
	return e, nil
}

// Strategies lists the enabled strategies in the order they are tried, not
// counting the fallback.
func (e *Estimator) Strategies() []Strategy {
	return lo.Map(e.steps, func(s step, _ int) Strategy { return s.strategy })
}

// Estimate returns the scale from the first strategy that succeeds, or the
// fallback. Declining is never an error; only cancellation is.
func (e *Estimator) Estimate(ctx context.Context, in Input) (Result, error) {
	ctx, span := trace.StartSpan(ctx, "scale::Estimator::Estimate")
	defer span.End()
	if in.Depth == nil {
		return Result{}, errors.New("scale estimation needs a depth map")
	}
	if err := in.Intrinsics.CheckValid(); err != nil {
		return Result{}, err
	}
	if err := in.Depth.CheckShape(in.Intrinsics.Width, in.Intrinsics.Height); err != nil {
		return Result{}, err
	}
	for _, s := range e.steps {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		res, ok, err := s.run(ctx, in)
		if err != nil {
			return Result{}, errors.Wrapf(err, "%s scale estimation", s.strategy)
		}
		if ok {
			return res, nil
		}
		e.logger.Debugf("%s scale estimation declined", s.strategy)
	}
	return Result{Scale: e.cfg.FallbackScale, Strategy: StrategyFallback}, nil
}

func (e *Estimator) fromDetections(_ context.Context, in Input) (Result, bool, error) {
	if len(in.Detections) == 0 {
		return Result{}, false, nil
	}
	s, candidates, ok := FromDetections(in.Depth, in.Intrinsics, in.Detections, e.priors, e.cfg.DetectionConfidence)
	if !ok {
		return Result{}, false, nil
	}
	e.logger.Debugw("detection scale candidates", "count", len(candidates), "candidates", candidates, "median", s)
	return Result{Scale: s, Strategy: StrategyDetectionPriors, Candidates: candidates}, true, nil
}

func (e *Estimator) fromGroundPlane(ctx context.Context, in Input) (Result, bool, error) {
	s, plane, ok, err := FromGroundPlane(ctx, in.Points, e.fitter, e.cfg.CameraHeightCM, e.cfg.MinVerticalAlignment)
	if err != nil {
		return Result{}, false, err
	}
	if !ok {
		if plane.IsValid() {
			e.logger.Debugw("ground plane rejected", "equation", plane.Equation(), "vertical_alignment", plane.VerticalAlignment())
		}
		return Result{}, false, nil
	}
	e.logger.Debugw("ground plane found", "equation", plane.Equation(), "height_to_origin", plane.OriginDistance())
	return Result{Scale: s, Strategy: StrategyGroundPlane}, true, nil
}

func (e *Estimator) fromImageBottom(_ context.Context, in Input) (Result, bool, error) {
	s, ok := FromImageBottom(in.Points, e.cfg.BottomFactor, e.cfg.CameraHeightCM)
	if !ok {
		return Result{}, false, nil
	}
	return Result{Scale: s, Strategy: StrategyImageBottom}, true, nil
}
