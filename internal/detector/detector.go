// Package detector finds changed regions between two rasters of the same
// scene: luminance differencing, thresholding, morphological cleanup and
// external connected-component extraction.
package detector

import (
	"errors"
	"image"
	"sort"
)

const (
	DefaultThreshold = 25
	DefaultMinArea   = 50
)

// ErrEmptyImage is returned when an input raster has no pixels.
var ErrEmptyImage = errors.New("detector: empty image")

// Region is a candidate anomaly: one external connected component of the
// change mask.
type Region struct {
	// BBox spans (x, y, x+w, y+h); Max is exclusive.
	BBox image.Rectangle
	// Area counts changed pixels in the component, not the bbox area.
	Area   int
	Center image.Point
}

// ChangeMask is a binary raster (0 or 255) marking changed pixels. It
// always starts at the origin.
type ChangeMask struct {
	Gray *image.Gray
	// Resized is set when the inputs had different sizes and were both
	// area-averaged down to the common minimum before comparison.
	Resized bool
	SizeA   image.Point
	SizeB   image.Point
}

// Size returns the dimensions of the comparison frame.
func (m *ChangeMask) Size() image.Point {
	return m.Gray.Rect.Size()
}

// ChangedPixels counts non-zero mask pixels.
func (m *ChangeMask) ChangedPixels() int {
	n := 0
	for _, v := range m.Gray.Pix {
		if v > 0 {
			n++
		}
	}
	return n
}

// Percentage returns the share of the frame that changed, in percent.
func (m *ChangeMask) Percentage() float64 {
	total := len(m.Gray.Pix)
	if total == 0 {
		return 0
	}
	return float64(m.ChangedPixels()) / float64(total) * 100
}

// ChangeDetector holds the two tunables of the change pipeline.
type ChangeDetector struct {
	Threshold uint8 // Absolute luminance difference cutoff
	MinArea   int   // Components with Area <= MinArea are dropped
}

// New creates a detector with the given threshold and minimum area.
func New(threshold uint8, minArea int) *ChangeDetector {
	return &ChangeDetector{
		Threshold: threshold,
		MinArea:   minArea,
	}
}

// NewDefault creates a detector with the stock parameters.
func NewDefault() *ChangeDetector {
	return New(DefaultThreshold, DefaultMinArea)
}

// DetectChanges compares a and b and returns the cleaned binary mask.
// Inputs are never modified. Mismatched sizes are normalised to the
// common minimum width and height (lossy, reported through Resized).
func (d *ChangeDetector) DetectChanges(a, b image.Image) (*ChangeMask, error) {
	sizeA, sizeB := a.Bounds().Size(), b.Bounds().Size()
	if sizeA.X <= 0 || sizeA.Y <= 0 || sizeB.X <= 0 || sizeB.Y <= 0 {
		return nil, ErrEmptyImage
	}

	mask := &ChangeMask{SizeA: sizeA, SizeB: sizeB}

	if sizeA != sizeB {
		target := image.Point{X: min(sizeA.X, sizeB.X), Y: min(sizeA.Y, sizeB.Y)}
		a = ResizeArea(a, target)
		b = ResizeArea(b, target)
		mask.Resized = true
	}

	grayA := toGrayscale(a)
	grayB := toGrayscale(b)

	thresh := absDiffThreshold(grayA, grayB, d.Threshold)

	// Close first to bridge gaps inside a real change, then open to strip
	// isolated speckle.
	mask.Gray = openMask(closeMask(thresh))
	return mask, nil
}

// FindAnomalyRegions extracts external components of the mask with area
// strictly above MinArea. Order is scan order and carries no meaning; use
// SortRegions when a stable order is needed.
func (d *ChangeDetector) FindAnomalyRegions(mask *ChangeMask) []Region {
	if mask == nil || mask.Gray == nil {
		return nil
	}

	regions := []Region{}
	for _, c := range findComponents(mask.Gray) {
		if c.area <= d.MinArea {
			continue
		}
		w, h := c.rect.Dx(), c.rect.Dy()
		regions = append(regions, Region{
			BBox:   c.rect,
			Area:   c.area,
			Center: image.Point{X: c.rect.Min.X + w/2, Y: c.rect.Min.Y + h/2},
		})
	}
	return regions
}

// SortRegions orders regions top-to-bottom, then left-to-right.
func SortRegions(regions []Region) {
	sort.SliceStable(regions, func(i, j int) bool {
		ri, rj := regions[i].BBox.Min, regions[j].BBox.Min
		if ri.Y != rj.Y {
			return ri.Y < rj.Y
		}
		if ri.X != rj.X {
			return ri.X < rj.X
		}
		return regions[i].Area > regions[j].Area
	})
}
