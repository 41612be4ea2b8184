package geo

import (
	"errors"
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var moscow = Bounds{LatMin: 55.0, LonMin: 37.0, LatMax: 56.0, LonMax: 38.0}

func TestPixelToGeoCorners(t *testing.T) {
	m, err := NewMapper(1920, 1080, moscow)
	require.NoError(t, err)

	nw := m.PixelToGeo(0, 0)
	assert.InDelta(t, 56.0, nw.Lat, 1e-9)
	assert.InDelta(t, 37.0, nw.Lon, 1e-9)

	se := m.PixelToGeo(1920, 1080)
	assert.InDelta(t, 55.0, se.Lat, 1e-9)
	assert.InDelta(t, 38.0, se.Lon, 1e-9)

	center := m.PixelToGeo(960, 540)
	assert.InDelta(t, 55.5, center.Lat, 1e-9)
	assert.InDelta(t, 37.5, center.Lon, 1e-9)
}

func TestPixelToGeoRoundsToSixDecimals(t *testing.T) {
	m, err := NewMapper(3, 7, moscow)
	require.NoError(t, err)

	p := m.PixelToGeo(1, 1)
	assert.Equal(t, p.Lat, math.Round(p.Lat*1e6)/1e6)
	assert.Equal(t, p.Lon, math.Round(p.Lon*1e6)/1e6)
}

func TestPixelToGeoExtrapolates(t *testing.T) {
	m, err := NewMapper(100, 100, moscow)
	require.NoError(t, err)

	p := m.PixelToGeo(-50, 150)
	assert.InDelta(t, 36.5, p.Lon, 1e-9)
	assert.InDelta(t, 54.5, p.Lat, 1e-9)
}

func TestRoundTrip(t *testing.T) {
	bounds := []Bounds{
		moscow,
		{LatMin: -35.5, LonMin: 148.9, LatMax: -35.1, LonMax: 149.3},
		{LatMin: -0.01, LonMin: -0.02, LatMax: 0.01, LonMax: 0.02},
	}
	sizes := []image.Point{{1920, 1080}, {100, 100}, {7, 3}}

	for _, b := range bounds {
		for _, sz := range sizes {
			m, err := NewMapper(sz.X, sz.Y, b)
			require.NoError(t, err)

			// One rounding step of 1e-6 degrees bounds the pixel error.
			tolX := 1e-6 / (b.LonMax - b.LonMin) * float64(sz.X)
			tolY := 1e-6 / (b.LatMax - b.LatMin) * float64(sz.Y)

			for y := 0; y <= sz.Y; y += max(1, sz.Y/13) {
				for x := 0; x <= sz.X; x += max(1, sz.X/17) {
					p := m.PixelToGeo(float64(x), float64(y))
					gx, gy := m.GeoToPixel(p.Lat, p.Lon)
					assert.InDelta(t, float64(x), gx, tolX+1e-9, "x round trip for %v @ %v", b, sz)
					assert.InDelta(t, float64(y), gy, tolY+1e-9, "y round trip for %v @ %v", b, sz)
				}
			}
		}
	}
}

func TestMonotonicity(t *testing.T) {
	m, err := NewMapper(1920, 1080, moscow)
	require.NoError(t, err)

	prev := m.PixelToGeo(0, 500)
	for x := 1; x <= 1920; x++ {
		cur := m.PixelToGeo(float64(x), 500)
		if cur.Lon <= prev.Lon {
			t.Fatalf("longitude not increasing at x=%d: %f <= %f", x, cur.Lon, prev.Lon)
		}
		prev = cur
	}

	prev = m.PixelToGeo(800, 0)
	for y := 1; y <= 1080; y++ {
		cur := m.PixelToGeo(800, float64(y))
		if cur.Lat >= prev.Lat {
			t.Fatalf("latitude not decreasing at y=%d: %f >= %f", y, cur.Lat, prev.Lat)
		}
		prev = cur
	}
}

func TestBBoxToGeoPreservesCornerOrder(t *testing.T) {
	m, err := NewMapper(1920, 1080, moscow)
	require.NoError(t, err)

	box := m.BBoxToGeo(image.Rect(480, 270, 1440, 810))
	assert.InDelta(t, 55.75, box.North, 1e-9)
	assert.InDelta(t, 37.25, box.West, 1e-9)
	assert.InDelta(t, 55.25, box.South, 1e-9)
	assert.InDelta(t, 37.75, box.East, 1e-9)
	assert.Greater(t, box.North, box.South)
	assert.Less(t, box.West, box.East)
}

func TestNewMapperRejectsInvalidBounds(t *testing.T) {
	tests := []struct {
		name   string
		w, h   int
		bounds Bounds
	}{
		{"lat inverted", 10, 10, Bounds{LatMin: 56, LonMin: 37, LatMax: 55, LonMax: 38}},
		{"lon equal", 10, 10, Bounds{LatMin: 55, LonMin: 37, LatMax: 56, LonMax: 37}},
		{"nan", 10, 10, Bounds{LatMin: math.NaN(), LonMin: 37, LatMax: 56, LonMax: 38}},
		{"zero width", 0, 10, moscow},
		{"negative height", 10, -1, moscow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMapper(tt.w, tt.h, tt.bounds)
			var ibe *InvalidBoundsError
			require.True(t, errors.As(err, &ibe), "expected InvalidBoundsError, got %v", err)
			assert.NotEmpty(t, ibe.Reason)
		})
	}
}

func TestParseBounds(t *testing.T) {
	b, err := ParseBounds("55.0, 37.0,56.0,38.0")
	require.NoError(t, err)
	assert.Equal(t, moscow, b)

	_, err = ParseBounds("55,37,56")
	assert.Error(t, err)

	_, err = ParseBounds("55,37,abc,38")
	assert.Error(t, err)

	_, err = ParseBounds("56,37,55,38")
	var ibe *InvalidBoundsError
	assert.True(t, errors.As(err, &ibe))
}

func TestBoundsContains(t *testing.T) {
	assert.True(t, moscow.Contains(Point{Lat: 55.5, Lon: 37.5}))
	assert.True(t, moscow.Contains(Point{Lat: 56.0, Lon: 37.0}))
	assert.False(t, moscow.Contains(Point{Lat: 56.1, Lon: 37.5}))
}
