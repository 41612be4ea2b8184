package spectral

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func band(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestNDVI(t *testing.T) {
	red := band(4, 2, 50)
	nir := band(4, 2, 150)
	red.SetGray(0, 0, color.Gray{Y: 200})
	nir.SetGray(0, 0, color.Gray{Y: 0})
	red.SetGray(1, 0, color.Gray{Y: 0})
	nir.SetGray(1, 0, color.Gray{Y: 0})

	f, err := NDVI(red, nir)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, f.At(3, 1), 1e-6)
	assert.InDelta(t, -1.0, f.At(0, 0), 1e-6)
	assert.Equal(t, 0.0, f.At(1, 0))
	for _, v := range f.Values {
		assert.GreaterOrEqual(t, v, -1.0)
		assert.LessOrEqual(t, v, 1.0)
	}

	mean, ok := f.MeanOver(image.Rect(2, 0, 4, 2))
	require.True(t, ok)
	assert.InDelta(t, 0.5, mean, 1e-6)

	_, ok = f.MeanOver(image.Rect(10, 10, 12, 12))
	assert.False(t, ok)
}

func TestNDVIBandMismatch(t *testing.T) {
	_, err := NDVI(band(4, 4, 0), band(4, 5, 0))
	assert.ErrorIs(t, err, ErrBandMismatch)
}

func TestNDVINonOriginBands(t *testing.T) {
	red := band(10, 10, 50).SubImage(image.Rect(5, 5, 7, 7)).(*image.Gray)
	nir := band(2, 2, 150)
	f, err := NDVI(red, nir)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Width)
	assert.InDelta(t, 0.5, f.At(1, 1), 1e-6)
}

func TestNormalize(t *testing.T) {
	f := &Field{Width: 3, Height: 1, Values: []float64{-1, 0, 1}}
	n := Normalize(f)
	assert.InDelta(t, 0.0, n.Values[0], 1e-6)
	assert.InDelta(t, 0.5, n.Values[1], 1e-6)
	assert.InDelta(t, 1.0, n.Values[2], 1e-6)

	flat := Normalize(&Field{Width: 2, Height: 1, Values: []float64{0.3, 0.3}})
	assert.Equal(t, []float64{0, 0}, flat.Values)
}

func TestToGray(t *testing.T) {
	g := (&Field{Width: 3, Height: 1, Values: []float64{-1, 0, 1}}).ToGray()
	assert.Equal(t, []uint8{0, 128, 255}, g.Pix)
}

func TestPreview(t *testing.T) {
	f := &Field{Width: 2, Height: 1, Values: []float64{-0.5, 0.5}}
	assert.Equal(t, []uint8{64, 191}, Preview(f, false).Pix)
	assert.Equal(t, []uint8{0, 255}, Preview(f, true).Pix)
}

func TestBand(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, 6, 6))
	for i := 0; i < len(rgba.Pix); i += 4 {
		rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2], rgba.Pix[i+3] = 100, 100, 100, 255
	}
	sub := rgba.SubImage(image.Rect(2, 3, 5, 6))

	g := Band(sub)
	assert.Equal(t, image.Rect(0, 0, 3, 3), g.Rect)
	assert.Equal(t, uint8(100), g.GrayAt(0, 0).Y)

	gray := band(2, 2, 7)
	assert.Same(t, gray, Band(gray))
}
