package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Bounds is the geographic rectangle a raster is assumed to cover.
type Bounds struct {
	LatMin float64 `yaml:"lat_min" json:"lat_min"`
	LonMin float64 `yaml:"lon_min" json:"lon_min"`
	LatMax float64 `yaml:"lat_max" json:"lat_max"`
	LonMax float64 `yaml:"lon_max" json:"lon_max"`
}

// Point is a geographic coordinate in degrees.
type Point struct {
	Lat float64 `yaml:"lat" json:"lat"`
	Lon float64 `yaml:"lon" json:"lon"`
}

// BBox is a geographic bounding box. North/West come from the top-left
// pixel corner, South/East from the bottom-right one.
type BBox struct {
	North float64 `yaml:"north" json:"north"`
	West  float64 `yaml:"west" json:"west"`
	South float64 `yaml:"south" json:"south"`
	East  float64 `yaml:"east" json:"east"`
}

// Validate reports an *InvalidBoundsError for degenerate rectangles.
func (b Bounds) Validate() error {
	for _, v := range []float64{b.LatMin, b.LonMin, b.LatMax, b.LonMax} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &InvalidBoundsError{Bounds: b, Reason: "non-finite coordinate"}
		}
	}
	if b.LatMax <= b.LatMin {
		return &InvalidBoundsError{Bounds: b, Reason: "lat_max must be greater than lat_min"}
	}
	if b.LonMax <= b.LonMin {
		return &InvalidBoundsError{Bounds: b, Reason: "lon_max must be greater than lon_min"}
	}
	return nil
}

// Contains reports whether p lies inside b, edges included.
func (b Bounds) Contains(p Point) bool {
	return p.Lat >= b.LatMin && p.Lat <= b.LatMax && p.Lon >= b.LonMin && p.Lon <= b.LonMax
}

func (b Bounds) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.LatMin, b.LonMin, b.LatMax, b.LonMax)
}

// ParseBounds parses "lat_min,lon_min,lat_max,lon_max" and validates it.
func ParseBounds(s string) (Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Bounds{}, fmt.Errorf("bounds %q: expected lat_min,lon_min,lat_max,lon_max", s)
	}

	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Bounds{}, fmt.Errorf("bounds %q: %w", s, err)
		}
		vals[i] = v
	}

	b := Bounds{LatMin: vals[0], LonMin: vals[1], LatMax: vals[2], LonMax: vals[3]}
	if err := b.Validate(); err != nil {
		return Bounds{}, err
	}
	return b, nil
}
