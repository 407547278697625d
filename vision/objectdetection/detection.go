// Package objectdetection holds the 2D detections produced by an external
// object detector, the filters applied to them, and the table of real-world
// class heights used to turn a detection into a metric scale.
package objectdetection

import (
	"context"
	"fmt"
	"image"

	"github.com/pkg/errors"
)

// Detection returns a bounding box around the object, a confidence score of the detection,
// and the class of the detected object.
type Detection interface {
	BoundingBox() *image.Rectangle
	Score() float64
	ClassID() int
	Label() string
}

// NewDetection creates a simple 2D detection.
func NewDetection(boundingBox image.Rectangle, score float64, classID int, label string) Detection {
	return &detection2D{boundingBox: boundingBox, score: score, classID: classID, label: label}
}

// detection2D is a simple struct for storing 2D detections.
type detection2D struct {
	boundingBox image.Rectangle
	score       float64
	classID     int
	label       string
}

// BoundingBox returns a bounding box around the detected object.
func (d *detection2D) BoundingBox() *image.Rectangle {
	return &d.boundingBox
}

// Score returns a confidence score of the detection between 0.0 and 1.0.
func (d *detection2D) Score() float64 {
	return d.score
}

// ClassID returns the index of the detected class.
func (d *detection2D) ClassID() int {
	return d.classID
}

// Label returns the class name of the detected object, if known.
func (d *detection2D) Label() string {
	return d.label
}

// String turns the detection into a string.
func (d *detection2D) String() string {
	return fmt.Sprintf("Label: %s(%d), Score: %.2f, Box: %v", d.label, d.classID, d.score, d.boundingBox)
}

// Preprocessor will apply processing to an input image before feeding it into the detector.
type Preprocessor func(image.Image) image.Image

// Detector returns a slice of object detections from an input image.
type Detector func(context.Context, image.Image) ([]Detection, error)

// Build zips up a preprocessor-detector-postprocessor stream detector.
func Build(prep Preprocessor, det Detector, post Postprocessor) (Detector, error) {
	if det == nil {
		return nil, errors.New("object detection pipeline must have a Detector")
	}
	if prep == nil {
		prep = func(img image.Image) image.Image { return img }
	}
	if post == nil {
		post = func(inp []Detection) []Detection { return inp }
	}
	return func(ctx context.Context, img image.Image) ([]Detection, error) {
		dets, err := det(ctx, prep(img))
		if err != nil {
			return nil, err
		}
		return post(dets), nil
	}, nil
}

// NewStaticDetector returns a Detector that ignores its input and always
// reports dets. It stands in for a detector that already ran out of process.
func NewStaticDetector(dets []Detection) Detector {
	return func(ctx context.Context, _ image.Image) ([]Detection, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out := make([]Detection, len(dets))
		copy(out, dets)
		return out, nil
	}
}
