package objectdetection

import (
	_ "embed"
	"encoding/json"
	"io"
	"math"
	"os"
	"sync"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

//go:embed data/coco_heights.json
var cocoHeightsJSON []byte

// ClassPrior is the typical real-world height of an object class.
type ClassPrior struct {
	ClassID  int     `json:"class_id"`
	Name     string  `json:"name"`
	HeightCM float64 `json:"height_cm"`
}

// ScalePriors maps detector class ids to real-world heights. It is read-only
// once built and safe to share between goroutines.
type ScalePriors struct {
	priors map[int]ClassPrior
}

// NewScalePriors builds a table from a list of priors. Duplicate class ids and
// non-positive heights are rejected.
func NewScalePriors(priors []ClassPrior) (*ScalePriors, error) {
	m := make(map[int]ClassPrior, len(priors))
	for _, p := range priors {
		if !(p.HeightCM > 0) || math.IsInf(p.HeightCM, 0) {
			return nil, errors.Errorf("class %d (%s): height must be positive, got %v", p.ClassID, p.Name, p.HeightCM)
		}
		if _, ok := m[p.ClassID]; ok {
			return nil, errors.Errorf("class %d listed twice", p.ClassID)
		}
		m[p.ClassID] = p
	}
	return &ScalePriors{priors: m}, nil
}

// ReadScalePriors decodes a JSON array of ClassPrior.
func ReadScalePriors(r io.Reader) (*ScalePriors, error) {
	var priors []ClassPrior
	if err := json.NewDecoder(r).Decode(&priors); err != nil {
		return nil, errors.Wrap(err, "error decoding scale priors")
	}
	return NewScalePriors(priors)
}

// NewScalePriorsFromJSONFile reads a prior table from disk.
func NewScalePriorsFromJSONFile(path string) (*ScalePriors, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening scale priors file")
	}
	defer utils.UncheckedErrorFunc(f.Close)
	return ReadScalePriors(f)
}

var defaultPriors = sync.OnceValues(func() (*ScalePriors, error) {
	var priors []ClassPrior
	if err := json.Unmarshal(cocoHeightsJSON, &priors); err != nil {
		return nil, err
	}
	return NewScalePriors(priors)
})

// DefaultScalePriors returns the built-in table of heights for the COCO
// classes that have a meaningful upright height. It is parsed once.
func DefaultScalePriors() *ScalePriors {
	priors, err := defaultPriors()
	if err != nil {
		panic(errors.Wrap(err, "embedded scale priors are invalid"))
	}
	return priors
}

// Lookup returns the prior for classID.
func (sp *ScalePriors) Lookup(classID int) (ClassPrior, bool) {
	if sp == nil {
		return ClassPrior{}, false
	}
	p, ok := sp.priors[classID]
	return p, ok
}

// Has reports whether classID has a prior.
func (sp *ScalePriors) Has(classID int) bool {
	_, ok := sp.Lookup(classID)
	return ok
}

// Len returns the number of classes in the table.
func (sp *ScalePriors) Len() int {
	if sp == nil {
		return 0
	}
	return len(sp.priors)
}
