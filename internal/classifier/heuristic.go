package classifier

import (
	"errors"
	"image"
	"math"

	"github.com/ivlev/geoanomaly/internal/detector"
)

// ErrRegionOutsideImage is returned when a region does not overlap the
// image it is classified against.
var ErrRegionOutsideImage = errors.New("region outside image")

// Heuristic labels regions from colour statistics of the pixels inside
// the region bbox. Thresholds are tuned for 8-bit true-colour imagery.
type Heuristic struct {
	FireDominance  float64 // Red over max(green, blue)
	WaterDominance float64 // Blue over max(red, green)
	BrightLuma     float64 // Mean luminance of built-up surfaces
	GreySaturation float64 // Saturation ceiling for built-up and dumps
	ClutterStdDev  float64 // Luminance spread of heterogeneous debris
}

// NewHeuristic returns a heuristic classifier with default thresholds.
func NewHeuristic() *Heuristic {
	return &Heuristic{
		FireDominance:  1.4,
		WaterDominance: 1.15,
		BrightLuma:     170,
		GreySaturation: 0.18,
		ClutterStdDev:  35,
	}
}

type regionStats struct {
	r, g, b    float64 // channel means, 0-255
	luma       float64
	lumaStdDev float64
	saturation float64 // mean HSV saturation, 0-1
}

func (h *Heuristic) Classify(img image.Image, region detector.Region) (Result, error) {
	s, err := measure(img, region.BBox)
	if err != nil {
		return Result{}, err
	}

	switch {
	case s.r > 110 && s.r > h.FireDominance*s.g && s.r > h.FireDominance*s.b:
		dom := s.r / math.Max(math.Max(s.g, s.b), 1)
		return result(Fire, 0.6+(dom-h.FireDominance)*0.5, 0.6, 0.97), nil

	case s.b > h.WaterDominance*math.Max(s.r, s.g) && s.luma < 160:
		dom := s.b / math.Max(math.Max(s.r, s.g), 1)
		return result(Flood, 0.55+(dom-h.WaterDominance)*0.8, 0.55, 0.95), nil

	case s.luma > h.BrightLuma && s.saturation < h.GreySaturation:
		return result(Construction, 0.55+(s.luma-h.BrightLuma)/170, 0.55, 0.93), nil

	case s.saturation < h.GreySaturation+0.07 && s.lumaStdDev > h.ClutterStdDev:
		return result(Dump, 0.5+(s.lumaStdDev-h.ClutterStdDev)/100, 0.5, 0.9), nil

	case s.r >= s.g && s.g > s.b && s.r > 80 && s.saturation > 0.15:
		// Bare soil: red-brown, not vegetated.
		return result(Deforestation, 0.5+(s.r-s.b)/250, 0.5, 0.9), nil

	case s.g > s.r && s.g > s.b:
		return result(Normal, 0.5+(s.g-math.Max(s.r, s.b))/100, 0.5, 0.95), nil
	}

	return Result{Label: Normal, Confidence: 0.4}, nil
}

func measure(img image.Image, bbox image.Rectangle) (regionStats, error) {
	b := img.Bounds()
	r := bbox.Add(b.Min).Intersect(b)
	if r.Empty() {
		return regionStats{}, ErrRegionOutsideImage
	}

	var s regionStats
	var sumLuma, sumLuma2 float64
	n := float64(r.Dx() * r.Dy())

	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			fr, fg, fb := float64(cr>>8), float64(cg>>8), float64(cb>>8)
			s.r += fr
			s.g += fg
			s.b += fb

			luma := 0.299*fr + 0.587*fg + 0.114*fb
			sumLuma += luma
			sumLuma2 += luma * luma

			hi := math.Max(fr, math.Max(fg, fb))
			lo := math.Min(fr, math.Min(fg, fb))
			if hi > 0 {
				s.saturation += (hi - lo) / hi
			}
		}
	}

	s.r /= n
	s.g /= n
	s.b /= n
	s.saturation /= n
	s.luma = sumLuma / n
	s.lumaStdDev = math.Sqrt(math.Max(sumLuma2/n-s.luma*s.luma, 0))
	return s, nil
}

func result(l Label, conf, lo, hi float64) Result {
	conf = math.Min(math.Max(conf, lo), hi)
	return Result{Label: l, Confidence: math.Round(conf*100) / 100}
}
