package objectdetection

import (
	"github.com/samber/lo"
)

// Postprocessor defines a function that filters/modifies on an incoming array of Detections.
type Postprocessor func([]Detection) []Detection

// NewScoreFilter returns a function that filters out detections below a certain confidence.
func NewScoreFilter(conf float64) Postprocessor {
	return func(in []Detection) []Detection {
		return lo.Filter(in, func(d Detection, _ int) bool {
			return d.Score() >= conf
		})
	}
}

// NewClassFilter returns a function that keeps only detections whose class is accepted by keep.
func NewClassFilter(keep func(classID int) bool) Postprocessor {
	return func(in []Detection) []Detection {
		return lo.Filter(in, func(d Detection, _ int) bool {
			return keep(d.ClassID())
		})
	}
}

// Chain applies each postprocessor in order.
func Chain(posts ...Postprocessor) Postprocessor {
	return func(in []Detection) []Detection {
		return lo.Reduce(posts, func(dets []Detection, post Postprocessor, _ int) []Detection {
			return post(dets)
		}, in)
	}
}
