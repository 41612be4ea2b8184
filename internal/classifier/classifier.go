// Package classifier assigns an anomaly label and confidence to a
// changed region. Implementations are swappable behind Classifier.
package classifier

import (
	"fmt"
	"image"

	"github.com/ivlev/geoanomaly/internal/detector"
)

// Label is the anomaly type of a region.
type Label string

const (
	Fire          Label = "fire"
	Deforestation Label = "deforestation"
	Dump          Label = "dump"
	Construction  Label = "construction"
	Flood         Label = "flood"
	Normal        Label = "normal"
)

// AnomalyLabels lists every label except Normal.
var AnomalyLabels = []Label{Fire, Deforestation, Dump, Construction, Flood}

// Valid reports whether l is one of the known labels.
func (l Label) Valid() bool {
	if l == Normal {
		return true
	}
	for _, a := range AnomalyLabels {
		if l == a {
			return true
		}
	}
	return false
}

// Result is the decision for one region.
type Result struct {
	Label      Label
	Confidence float64 // 0.0-1.0
}

// Classifier labels a region of img. Implementations must be
// deterministic and read only the pixels inside the region.
type Classifier interface {
	Classify(img image.Image, region detector.Region) (Result, error)
}

// NormalKeepThreshold is the confidence a "normal" result needs to be
// reported.
const NormalKeepThreshold = 0.5

// Keep applies the reporting filter: a "normal" result below
// NormalKeepThreshold is dropped, every other result is kept whatever its
// confidence. The asymmetry is intentional.
func Keep(r Result) bool {
	return !(r.Label == Normal && r.Confidence < NormalKeepThreshold)
}

// ClassificationError wraps a classifier failure on one region.
type ClassificationError struct {
	Region detector.Region
	Err    error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify region %v: %v", e.Region.BBox, e.Err)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

func validate(r Result) error {
	if !r.Label.Valid() {
		return fmt.Errorf("unknown label %q", r.Label)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %f out of range", r.Confidence)
	}
	return nil
}
