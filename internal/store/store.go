// Package store persists analysis runs and their anomalies with GORM on
// SQLite.
package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ivlev/geoanomaly/internal/analyzer"
	"github.com/ivlev/geoanomaly/internal/classifier"
	"github.com/ivlev/geoanomaly/internal/geo"
)

// DefaultListLimit caps ListAnomalies when the filter sets no limit.
const DefaultListLimit = 100

// Open connects to the SQLite database at dsn and migrates the schema.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", dsn, err)
	}

	if dsn == ":memory:" {
		// Every pooled connection would get its own empty in-memory DB.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&RunModel{}, &ImageModel{}, &AnomalyModel{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Record is a stored anomaly with the context it was found in.
type Record struct {
	analyzer.Anomaly `yaml:",inline"`

	ID         uint      `json:"id" yaml:"id"`
	ImageID    uint      `json:"image_id" yaml:"image_id"`
	DetectedAt time.Time `json:"detected_at" yaml:"detected_at"`
}

// Filter narrows ListAnomalies. Zero values mean "any".
type Filter struct {
	Type          classifier.Label
	MinConfidence float64
	Limit         int
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// SaveBatch stores the run row and every successful result in one
// transaction.
func (r *Repository) SaveBatch(ctx context.Context, batch *analyzer.BatchResult) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run := RunModel{
			ID:              batch.RunID,
			StartedAt:       batch.StartedAt,
			DurationMS:      batch.Duration.Milliseconds(),
			TotalImages:     batch.TotalImages,
			AnalyzedImages:  batch.AnalyzedImages,
			FailedImages:    batch.FailedImages,
			TotalAnomalies:  batch.TotalAnomalies,
			TotalChangeArea: batch.TotalChangeArea,
		}
		if err := tx.Create(&run).Error; err != nil {
			return err
		}
		for _, res := range batch.Results {
			if _, err := saveResult(tx, batch.RunID, res); err != nil {
				return err
			}
		}
		return nil
	})
}

// saveResult stores one analyzed image inside tx and returns the image
// row ID. runID may be empty.
func saveResult(tx *gorm.DB, runID string, res *analyzer.Result) (uint, error) {
	m, err := toImageModel(runID, res)
	if err != nil {
		return 0, err
	}
	if err := tx.Create(m).Error; err != nil {
		return 0, err
	}
	return m.ID, nil
}

func toImageModel(runID string, res *analyzer.Result) (*ImageModel, error) {
	if res == nil {
		return nil, fmt.Errorf("nil result")
	}
	analyzedAt := res.Timestamp
	if analyzedAt.IsZero() {
		analyzedAt = time.Now().UTC()
	}

	m := &ImageModel{
		RunID:         runID,
		Path:          res.ImagePath,
		ReferencePath: res.ReferencePath,
		Mode:          string(res.Mode),
		Width:         res.Width,
		Height:        res.Height,
		Format:        res.Metadata.Format,
		LatMin:        res.Bounds.LatMin,
		LonMin:        res.Bounds.LonMin,
		LatMax:        res.Bounds.LatMax,
		LonMax:        res.Bounds.LonMax,
		Degraded:      res.Degraded,
		AnalyzedAt:    analyzedAt,
	}
	for _, a := range res.Anomalies {
		m.Anomalies = append(m.Anomalies, toAnomalyModel(a, analyzedAt))
	}
	return m, nil
}

func toAnomalyModel(a analyzer.Anomaly, detectedAt time.Time) AnomalyModel {
	return AnomalyModel{
		AnomalyType: string(a.Type),
		Confidence:  a.Confidence,
		Severity:    string(a.Severity),
		Latitude:    a.Location.Lat,
		Longitude:   a.Location.Lon,
		North:       a.GeoBBox.North,
		West:        a.GeoBBox.West,
		South:       a.GeoBBox.South,
		East:        a.GeoBBox.East,
		XMin:        a.PixelBBox.XMin,
		YMin:        a.PixelBBox.YMin,
		XMax:        a.PixelBBox.XMax,
		YMax:        a.PixelBBox.YMax,
		Area:        a.Area,
		Description: a.Description,
		Source:      a.Source,
		DetectedAt:  detectedAt,
	}
}

func toRecord(m AnomalyModel) Record {
	return Record{
		ID:         m.ID,
		ImageID:    m.ImageID,
		DetectedAt: m.DetectedAt,
		Anomaly: analyzer.Anomaly{
			Type:       classifier.Label(m.AnomalyType),
			Confidence: m.Confidence,
			Severity:   analyzer.Severity(m.Severity),
			Location:   geo.Point{Lat: m.Latitude, Lon: m.Longitude},
			PixelCenter: analyzer.Pixel{
				X: m.XMin + (m.XMax-m.XMin)/2,
				Y: m.YMin + (m.YMax-m.YMin)/2,
			},
			PixelBBox:   analyzer.PixelBox{XMin: m.XMin, YMin: m.YMin, XMax: m.XMax, YMax: m.YMax},
			GeoBBox:     geo.BBox{North: m.North, West: m.West, South: m.South, East: m.East},
			Area:        m.Area,
			Description: m.Description,
			Source:      m.Source,
		},
	}
}

// ListAnomalies returns stored anomalies matching f, newest first.
func (r *Repository) ListAnomalies(ctx context.Context, f Filter) ([]Record, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	q := r.db.WithContext(ctx).Model(&AnomalyModel{})
	if f.Type != "" {
		q = q.Where("anomaly_type = ?", string(f.Type))
	}
	if f.MinConfidence > 0 {
		q = q.Where("confidence >= ?", f.MinConfidence)
	}

	var rows []AnomalyModel
	if err := q.Order("detected_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(rows))
	for _, m := range rows {
		out = append(out, toRecord(m))
	}
	return out, nil
}

// CountByType returns the number of stored anomalies per label.
func (r *Repository) CountByType(ctx context.Context) (map[classifier.Label]int, error) {
	var rows []struct {
		AnomalyType string
		N           int
	}
	err := r.db.WithContext(ctx).
		Model(&AnomalyModel{}).
		Select("anomaly_type, COUNT(*) AS n").
		Group("anomaly_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[classifier.Label]int, len(rows))
	for _, row := range rows {
		out[classifier.Label(row.AnomalyType)] = row.N
	}
	return out, nil
}

// GetRun loads a stored run by ID.
func (r *Repository) GetRun(ctx context.Context, id string) (*RunModel, error) {
	var run RunModel
	if err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}
