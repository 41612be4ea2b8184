// Package geo maps raster pixel coordinates to geographic coordinates
// with a linear bounding-box transform.
package geo

import (
	"image"
	"math"
)

// coordScale rounds to 6 decimal places (~0.11 m at the equator).
const coordScale = 1e6

// Mapper converts between pixel space of a width x height raster and the
// geographic rectangle it covers. Pixel row 0 is the northern edge.
type Mapper struct {
	width  float64
	height float64
	bounds Bounds
}

// NewMapper validates the image size and bounds up front so that the
// transforms themselves never divide by zero.
func NewMapper(width, height int, b Bounds) (*Mapper, error) {
	if width <= 0 || height <= 0 {
		return nil, &InvalidBoundsError{Bounds: b, Width: width, Height: height, Reason: "image size must be positive"}
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &Mapper{width: float64(width), height: float64(height), bounds: b}, nil
}

// Bounds returns the rectangle the mapper was built with.
func (m *Mapper) Bounds() Bounds {
	return m.bounds
}

// PixelToGeo maps a pixel coordinate to latitude/longitude. Coordinates
// outside the image extrapolate linearly.
func (m *Mapper) PixelToGeo(x, y float64) Point {
	xNorm := x / m.width
	yNorm := y / m.height

	lon := m.bounds.LonMin + xNorm*(m.bounds.LonMax-m.bounds.LonMin)
	lat := m.bounds.LatMin + (1-yNorm)*(m.bounds.LatMax-m.bounds.LatMin)

	return Point{Lat: round6(lat), Lon: round6(lon)}
}

// GeoToPixel is the exact inverse of PixelToGeo, without rounding.
func (m *Mapper) GeoToPixel(lat, lon float64) (x, y float64) {
	xNorm := (lon - m.bounds.LonMin) / (m.bounds.LonMax - m.bounds.LonMin)
	yNorm := 1 - (lat-m.bounds.LatMin)/(m.bounds.LatMax-m.bounds.LatMin)
	return xNorm * m.width, yNorm * m.height
}

// BBoxToGeo maps a pixel rectangle to a geographic box, preserving corner
// order: Min (top-left) becomes North/West, Max becomes South/East.
func (m *Mapper) BBoxToGeo(r image.Rectangle) BBox {
	nw := m.PixelToGeo(float64(r.Min.X), float64(r.Min.Y))
	se := m.PixelToGeo(float64(r.Max.X), float64(r.Max.Y))
	return BBox{North: nw.Lat, West: nw.Lon, South: se.Lat, East: se.Lon}
}

func round6(v float64) float64 {
	return math.Round(v*coordScale) / coordScale
}
