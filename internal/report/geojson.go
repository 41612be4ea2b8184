package report

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/ivlev/geoanomaly/internal/analyzer"
	"github.com/ivlev/geoanomaly/internal/geo"
)

// Feature geometries.
const (
	GeometryPoint   = "point"
	GeometryPolygon = "polygon"
)

// FeatureCollection turns every anomaly into a feature. With
// GeometryPolygon the geographic bbox is used, otherwise the center
// point. GeoJSON orders coordinates lon, lat.
func FeatureCollection(results []*analyzer.Result, geometry string) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, res := range results {
		if res == nil {
			continue
		}
		for _, a := range res.Anomalies {
			var g orb.Geometry = orb.Point{a.Location.Lon, a.Location.Lat}
			if geometry == GeometryPolygon {
				g = bboxPolygon(a.GeoBBox)
			}

			f := geojson.NewFeature(g)
			f.Properties["type"] = string(a.Type)
			f.Properties["confidence"] = a.Confidence
			f.Properties["severity"] = string(a.Severity)
			f.Properties["area"] = a.Area
			f.Properties["description"] = a.Description
			f.Properties["source"] = a.Source
			f.Properties["mode"] = string(res.Mode)
			f.Properties["detected_at"] = res.Timestamp
			fc.Append(f)
		}
	}
	return fc
}

func bboxPolygon(b geo.BBox) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{b.West, b.North},
		{b.East, b.North},
		{b.East, b.South},
		{b.West, b.South},
		{b.West, b.North},
	}}
}

// WriteGeoJSON writes the anomalies of results as a FeatureCollection.
func WriteGeoJSON(results []*analyzer.Result, geometry, path string) error {
	data, err := FeatureCollection(results, geometry).MarshalJSON()
	if err != nil {
		return err
	}
	return writeFile(path, data)
}
