package analyzer

import (
	"fmt"
	"image"
	"time"

	"github.com/ivlev/geoanomaly/internal/classifier"
	"github.com/ivlev/geoanomaly/internal/geo"
	"github.com/ivlev/geoanomaly/internal/source"
)

// Mode tells how a result was produced.
type Mode string

const (
	ModeComparative Mode = "comparative"
	ModeSingle      Mode = "single"
)

// Request names the image to analyze. An empty ReferencePath selects the
// single-image grid scan. Bounds overrides any geo context the source
// knows about.
type Request struct {
	ImagePath     string      `yaml:"image_path" json:"image_path"`
	ReferencePath string      `yaml:"reference_path,omitempty" json:"reference_path,omitempty"`
	Bounds        *geo.Bounds `yaml:"bounds,omitempty" json:"bounds,omitempty"`
}

// Pixel is an image coordinate.
type Pixel struct {
	X int `yaml:"x" json:"x"`
	Y int `yaml:"y" json:"y"`
}

// PixelBox is an axis-aligned pixel box; Max is exclusive.
type PixelBox struct {
	XMin int `yaml:"x_min" json:"x_min"`
	YMin int `yaml:"y_min" json:"y_min"`
	XMax int `yaml:"x_max" json:"x_max"`
	YMax int `yaml:"y_max" json:"y_max"`
}

func boxOf(r image.Rectangle) PixelBox {
	return PixelBox{XMin: r.Min.X, YMin: r.Min.Y, XMax: r.Max.X, YMax: r.Max.Y}
}

// Anomaly is one geolocated, classified region.
type Anomaly struct {
	Type        classifier.Label `yaml:"type" json:"type"`
	Confidence  float64          `yaml:"confidence" json:"confidence"`
	Severity    Severity         `yaml:"severity" json:"severity"`
	Location    geo.Point        `yaml:"location" json:"location"`
	PixelCenter Pixel            `yaml:"pixel_center" json:"pixel_center"`
	PixelBBox   PixelBox         `yaml:"pixel_bbox" json:"pixel_bbox"`
	GeoBBox     geo.BBox         `yaml:"geo_bbox" json:"geo_bbox"`
	// Area counts changed pixels; in single-image mode it is the cell area.
	Area        int    `yaml:"area" json:"area"`
	Description string `yaml:"description" json:"description"`
	Source      string `yaml:"source" json:"source"`
}

// ChangeStats summarises a comparison.
type ChangeStats struct {
	Regions          int     `yaml:"regions" json:"regions"`
	ChangedPixels    int     `yaml:"changed_pixels" json:"changed_pixels"`
	ChangePercentage float64 `yaml:"change_percentage" json:"change_percentage"`
	SkippedRegions   int     `yaml:"skipped_regions" json:"skipped_regions"`
	Resized          bool    `yaml:"resized" json:"resized"`
	FrameWidth       int     `yaml:"frame_width" json:"frame_width"`
	FrameHeight      int     `yaml:"frame_height" json:"frame_height"`
}

// Result is the outcome of analyzing one image.
type Result struct {
	ImagePath     string          `yaml:"image_path" json:"image_path"`
	ReferencePath string          `yaml:"reference_path,omitempty" json:"reference_path,omitempty"`
	Mode          Mode            `yaml:"mode" json:"mode"`
	Width         int             `yaml:"width" json:"width"`
	Height        int             `yaml:"height" json:"height"`
	Metadata      source.Metadata `yaml:"metadata" json:"metadata"`
	// MetadataFallback mirrors Metadata.Fallback so callers can spot
	// derived values without digging.
	MetadataFallback  bool         `yaml:"metadata_fallback" json:"metadata_fallback"`
	Bounds            geo.Bounds   `yaml:"bounds" json:"bounds"`
	Timestamp         time.Time    `yaml:"timestamp" json:"timestamp"`
	Anomalies         []Anomaly    `yaml:"anomalies" json:"anomalies"`
	Stats             *ChangeStats `yaml:"change_statistics,omitempty" json:"change_statistics,omitempty"`
	Warnings          []string     `yaml:"warnings,omitempty" json:"warnings,omitempty"`
	Degraded          bool         `yaml:"degraded" json:"degraded"`
	VisualizationPath string       `yaml:"visualization_path,omitempty" json:"visualization_path,omitempty"`
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Failure records one image that could not be analyzed.
type Failure struct {
	ImagePath string `yaml:"image_path" json:"image_path"`
	Kind      string `yaml:"kind" json:"kind"`
	Error     string `yaml:"error" json:"error"`
}

// BatchResult aggregates a batch run.
type BatchResult struct {
	RunID           string                   `yaml:"run_id" json:"run_id"`
	StartedAt       time.Time                `yaml:"started_at" json:"started_at"`
	Duration        time.Duration            `yaml:"duration" json:"duration"`
	TotalImages     int                      `yaml:"total_images" json:"total_images"`
	AnalyzedImages  int                      `yaml:"analyzed_images" json:"analyzed_images"`
	FailedImages    int                      `yaml:"failed_images" json:"failed_images"`
	TotalAnomalies  int                      `yaml:"total_anomalies" json:"total_anomalies"`
	AnomaliesByType map[classifier.Label]int `yaml:"anomalies_by_type" json:"anomalies_by_type"`
	TotalChangeArea int                      `yaml:"total_change_area" json:"total_change_area"`
	Results         []*Result                `yaml:"results" json:"results"`
	Failures        []Failure                `yaml:"failures,omitempty" json:"failures,omitempty"`
}
