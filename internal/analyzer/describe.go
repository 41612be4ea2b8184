package analyzer

import (
	"fmt"
	"math"

	"github.com/ivlev/geoanomaly/internal/classifier"
)

// Severity is a coarse band derived from confidence.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SeverityFor maps confidence to a band: > 0.8 high, > 0.6 medium,
// otherwise low.
func SeverityFor(confidence float64) Severity {
	switch {
	case confidence > 0.8:
		return SeverityHigh
	case confidence > 0.6:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

var descriptions = map[classifier.Label][]string{
	classifier.Fire: {
		"Thermal anomaly detected, possible fire source",
		"High temperature area, likely wildfire",
		"Thermal activity detected",
	},
	classifier.Deforestation: {
		"Forest clearing detected",
		"Vegetation cover change, possible logging",
		"Area with removed vegetation",
	},
	classifier.Dump: {
		"Unauthorized dump detected",
		"Accumulation of foreign objects on the site",
		"Anomaly resembling a waste dump",
	},
	classifier.Construction: {
		"Construction activity detected",
		"New structures or terrain changes",
		"Man-made landscape changes",
	},
	classifier.Flood: {
		"Flooding detected",
		"Abnormal water accumulation",
		"Change in water cover",
	},
	classifier.Normal: {
		"Change consistent with normal surface variation",
	},
}

// Describe builds the human-readable description of an anomaly. The
// template variant is picked from the first decimal of confidence so the
// same input always yields the same text.
func Describe(label classifier.Label, confidence float64) string {
	base := fmt.Sprintf("Anomaly of type %q detected", label)
	if list, ok := descriptions[label]; ok {
		base = list[int(confidence*10)%len(list)]
	}
	percent := int(math.Round(confidence * 100))
	return fmt.Sprintf("%s (%s severity, confidence %d%%)", base, SeverityFor(confidence), percent)
}
