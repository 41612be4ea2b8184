package classifier

import (
	"fmt"
	"image"

	"github.com/ivlev/geoanomaly/internal/detector"
)

// New creates a classifier based on the specified variant
func New(variant string, seed int64) (Classifier, error) {
	switch variant {
	case "heuristic", "":
		return Validating{NewHeuristic()}, nil
	case "demo", "seeded":
		return Validating{NewSeeded(seed)}, nil
	case "model":
		return nil, fmt.Errorf("model classifier not yet implemented")
	default:
		return nil, fmt.Errorf("unknown classifier variant: %s", variant)
	}
}

// Validating rejects results with unknown labels or out-of-range
// confidence from the wrapped classifier.
type Validating struct {
	Inner Classifier
}

func (v Validating) Classify(img image.Image, region detector.Region) (Result, error) {
	r, err := v.Inner.Classify(img, region)
	if err != nil {
		return Result{}, err
	}
	if err := validate(r); err != nil {
		return Result{}, err
	}
	return r, nil
}
