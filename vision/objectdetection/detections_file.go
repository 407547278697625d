package objectdetection

import (
	"encoding/json"
	"image"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// detectionJSON is one entry of a detections file:
// {"bbox":[xmin,ymin,xmax,ymax],"class_id":0,"confidence":0.9,"label":"person"}.
type detectionJSON struct {
	BBox       []float64 `json:"bbox"`
	ClassID    int       `json:"class_id"`
	Confidence float64   `json:"confidence"`
	Label      string    `json:"label,omitempty"`
}

// ReadDetectionsJSON decodes a JSON array of detections. Box corners are
// rounded to the nearest pixel. A missing label is filled from priors when
// priors is non-nil.
func ReadDetectionsJSON(r io.Reader, priors *ScalePriors) ([]Detection, error) {
	var raw []detectionJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "error decoding detections")
	}
	dets := make([]Detection, 0, len(raw))
	for i, d := range raw {
		if len(d.BBox) != 4 {
			return nil, errors.Errorf("detection %d: bbox must have 4 values, got %d", i, len(d.BBox))
		}
		for _, v := range d.BBox {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.Errorf("detection %d: bbox has non-finite value %v", i, d.BBox)
			}
		}
		box := image.Rect(
			int(math.Round(d.BBox[0])), int(math.Round(d.BBox[1])),
			int(math.Round(d.BBox[2])), int(math.Round(d.BBox[3])),
		)
		label := d.Label
		if label == "" && priors != nil {
			if prior, ok := priors.Lookup(d.ClassID); ok {
				label = prior.Name
			}
		}
		dets = append(dets, NewDetection(box, d.Confidence, d.ClassID, label))
	}
	return dets, nil
}

// NewDetectionsFromJSONFile reads detections from a JSON file.
func NewDetectionsFromJSONFile(path string, priors *ScalePriors) ([]Detection, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening detections file")
	}
	defer utils.UncheckedErrorFunc(f.Close)
	return ReadDetectionsJSON(f, priors)
}
