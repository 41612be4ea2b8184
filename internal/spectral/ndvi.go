// Package spectral holds band-math helpers for multi-band deliveries. It
// is not part of the change pipeline.
package spectral

import (
	"errors"
	"image"
	"math"

	"golang.org/x/image/draw"
)

const epsilon = 1e-7

var ErrBandMismatch = errors.New("spectral: bands differ in size")

// Field is a row-major float raster.
type Field struct {
	Width, Height int
	Values        []float64
}

func (f *Field) At(x, y int) float64 {
	return f.Values[y*f.Width+x]
}

// Band converts a decoded raster into an origin-anchored single band.
func Band(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Rect, img, b.Min, draw.Src)
	return g
}

// NDVI computes (nir - red) / (nir + red) per pixel, clipped to [-1, 1].
// Pixels where both bands are zero yield 0.
func NDVI(red, nir *image.Gray) (*Field, error) {
	rs, ns := red.Bounds().Size(), nir.Bounds().Size()
	if rs != ns {
		return nil, ErrBandMismatch
	}

	f := &Field{Width: rs.X, Height: rs.Y, Values: make([]float64, rs.X*rs.Y)}
	rb, nb := red.Bounds(), nir.Bounds()
	for y := 0; y < rs.Y; y++ {
		for x := 0; x < rs.X; x++ {
			r := float64(red.GrayAt(rb.Min.X+x, rb.Min.Y+y).Y)
			n := float64(nir.GrayAt(nb.Min.X+x, nb.Min.Y+y).Y)
			v := (n - r) / (n + r + epsilon)
			f.Values[y*rs.X+x] = math.Max(-1, math.Min(1, v))
		}
	}
	return f, nil
}

// Normalize rescales values to [0, 1] by min-max. A constant field maps to
// all zeros.
func Normalize(f *Field) *Field {
	out := &Field{Width: f.Width, Height: f.Height, Values: make([]float64, len(f.Values))}
	if len(f.Values) == 0 {
		return out
	}

	lo, hi := f.Values[0], f.Values[0]
	for _, v := range f.Values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	for i, v := range f.Values {
		out.Values[i] = (v - lo) / (hi - lo + epsilon)
	}
	return out
}

// ToGray maps an NDVI field from [-1, 1] onto 0-255 for previews.
func (f *Field) ToGray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	for i, v := range f.Values {
		img.Pix[i] = uint8(math.Round((v + 1) / 2 * 255))
	}
	return img
}

// MeanOver averages the field inside r, clipped to the field.
func (f *Field) MeanOver(r image.Rectangle) (float64, bool) {
	r = r.Intersect(image.Rect(0, 0, f.Width, f.Height))
	if r.Empty() {
		return 0, false
	}
	sum := 0.0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			sum += f.At(x, y)
		}
	}
	return sum / float64(r.Dx()*r.Dy()), true
}

// Preview renders f as 8-bit gray. With stretch the field is min-max
// normalized first and mapped onto the full 0-255 range.
func Preview(f *Field, stretch bool) *image.Gray {
	if !stretch {
		return f.ToGray()
	}
	n := Normalize(f)
	img := image.NewGray(image.Rect(0, 0, n.Width, n.Height))
	for i, v := range n.Values {
		img.Pix[i] = uint8(math.Round(v * 255))
	}
	return img
}
