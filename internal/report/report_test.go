package report

import (
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/geoanomaly/internal/analyzer"
	"github.com/ivlev/geoanomaly/internal/classifier"
	"github.com/ivlev/geoanomaly/internal/geo"
	"github.com/ivlev/geoanomaly/internal/system"
)

func sampleResults() []*analyzer.Result {
	return []*analyzer.Result{
		{
			ImagePath: "/data/north/scene_a.png",
			Mode:      analyzer.ModeComparative,
			Timestamp: time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC),
			Anomalies: []analyzer.Anomaly{
				{
					Type:       classifier.Fire,
					Confidence: 0.92,
					Severity:   analyzer.SeverityHigh,
					Location:   geo.Point{Lat: 55.6, Lon: 37.3},
					GeoBBox:    geo.BBox{North: 55.8, West: 37.2, South: 55.4, East: 37.4},
					Area:       1600,
				},
				{
					Type:       classifier.Flood,
					Confidence: 0.65,
					Severity:   analyzer.SeverityMedium,
					Location:   geo.Point{Lat: 55.1, Lon: 37.9},
				},
			},
		},
		nil,
		{ImagePath: "/data/empty.png", Mode: analyzer.ModeSingle, Anomalies: []analyzer.Anomaly{}},
	}
}

func TestWriteAndReadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "result.yaml")
	in := sampleResults()[0]
	require.NoError(t, WriteYAML(in, path))

	var out analyzer.Result
	require.NoError(t, ReadYAML(path, &out))
	assert.Equal(t, in.ImagePath, out.ImagePath)
	require.Len(t, out.Anomalies, 2)
	assert.Equal(t, classifier.Flood, out.Anomalies[1].Type)
	assert.Equal(t, in.Anomalies[0].GeoBBox, out.Anomalies[0].GeoBBox)
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	require.NoError(t, WriteJSON(sampleResults()[0], path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "comparative", raw["mode"])
	assert.Len(t, raw["anomalies"], 2)
}

func TestFeatureCollectionPoints(t *testing.T) {
	fc := FeatureCollection(sampleResults(), GeometryPoint)
	require.Len(t, fc.Features, 2)

	f := fc.Features[0]
	p, ok := f.Geometry.(orb.Point)
	require.True(t, ok)
	assert.Equal(t, 37.3, p.Lon())
	assert.Equal(t, 55.6, p.Lat())
	assert.Equal(t, "fire", f.Properties["type"])
	assert.Equal(t, "high", f.Properties["severity"])
}

func TestFeatureCollectionPolygons(t *testing.T) {
	fc := FeatureCollection(sampleResults(), GeometryPolygon)
	poly, ok := fc.Features[0].Geometry.(orb.Polygon)
	require.True(t, ok)
	require.Len(t, poly, 1)
	ring := poly[0]
	assert.True(t, ring.Closed())
	assert.Equal(t, orb.Point{37.2, 55.8}, ring[0])
	assert.Equal(t, orb.Point{37.4, 55.4}, ring[2])
}

func TestWriteGeoJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anomalies.geojson")
	require.NoError(t, WriteGeoJSON(sampleResults(), GeometryPoint, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	assert.Len(t, fc.Features, 2)
	assert.Equal(t, "flood", fc.Features[1].Properties.MustString("type"))
}

func TestGeoURI(t *testing.T) {
	assert.Equal(t, "geo:55.6,37.3", GeoURI(geo.Point{Lat: 55.6, Lon: 37.3}))
	assert.Equal(t, "geo:-12.5,130", GeoURI(geo.Point{Lat: -12.5, Lon: 130}))
}

func TestWriteQRCodes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "qr")
	paths, err := WriteQRCodes(sampleResults(), dir)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "qr_scene_a_1.png"), paths[0])
	assert.Equal(t, filepath.Join(dir, "qr_scene_a_2.png"), paths[1])

	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}

func TestFormatStatsAndRunLog(t *testing.T) {
	batch := &analyzer.BatchResult{
		RunID:           "run-1",
		Duration:        2 * time.Second,
		TotalImages:     4,
		AnalyzedImages:  3,
		FailedImages:    1,
		TotalAnomalies:  5,
		AnomaliesByType: map[classifier.Label]int{classifier.Fire: 3, classifier.Dump: 2},
		TotalChangeArea: 9000,
	}

	out := FormatStats(batch, system.Snapshot{LogicalCPUs: 8}, "v1.2.0")
	assert.Contains(t, out, "Build: v1.2.0")
	assert.Contains(t, out, "Images: 3 analyzed / 1 failed / 4 total")
	assert.Contains(t, out, "Throughput: 2.00 images/s")
	assert.Less(t, strings.Index(out, "dump"), strings.Index(out, "fire"))

	path := filepath.Join(t.TempDir(), "logs", "runs.log")
	require.NoError(t, AppendRunLog(path, batch, "v1.2.0"))
	require.NoError(t, AppendRunLog(path, batch, "v1.2.0"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "Run: run-1"))
}

func TestWritePNG(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 2))
	img.Pix[4] = 200
	path := filepath.Join(t.TempDir(), "maps", "ndvi.png")
	require.NoError(t, WritePNG(img, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	decoded, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), decoded.Bounds())
	assert.Equal(t, color.Gray{Y: 200}, color.GrayModel.Convert(decoded.At(1, 1)))
}
