// Package scale turns relative depth into metric depth. It estimates the
// single positive factor that converts the output of a monocular depth
// network into centimeters by trying, in order, known object heights, the
// height of the camera above a fitted ground plane, and the height above the
// bottom rows of the image, before settling on a fixed placeholder.
package scale

import (
	"fmt"
)

// Strategy names the method that produced a scale.
type Strategy int

// The strategies, in the order they are tried.
const (
	StrategyDetectionPriors Strategy = iota
	StrategyGroundPlane
	StrategyImageBottom
	StrategyFallback
)

func (s Strategy) String() string {
	switch s {
	case StrategyDetectionPriors:
		return "detection_priors"
	case StrategyGroundPlane:
		return "ground_plane"
	case StrategyImageBottom:
		return "image_bottom"
	case StrategyFallback:
		return "fallback"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// Result is a chosen scale and where it came from.
type Result struct {
	Scale    float64
	Strategy Strategy
	// Candidates holds the per-detection scales the median was taken over.
	// It is only set for StrategyDetectionPriors.
	Candidates []float64
}

// Confident is false when the scale is the placeholder fallback rather than a
// measurement.
func (r Result) Confident() bool {
	return r.Strategy != StrategyFallback
}

func (r Result) String() string {
	return fmt.Sprintf("%s scale %.6g", r.Strategy, r.Scale)
}
