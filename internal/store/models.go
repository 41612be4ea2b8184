package store

import "time"

type RunModel struct {
	ID              string    `gorm:"primaryKey;size:36"`
	StartedAt       time.Time `gorm:"not null;index"`
	DurationMS      int64     `gorm:"not null;default:0"`
	TotalImages     int       `gorm:"not null;default:0"`
	AnalyzedImages  int       `gorm:"not null;default:0"`
	FailedImages    int       `gorm:"not null;default:0"`
	TotalAnomalies  int       `gorm:"not null;default:0"`
	TotalChangeArea int       `gorm:"not null;default:0"`
}

func (RunModel) TableName() string {
	return "runs"
}

type ImageModel struct {
	ID            uint      `gorm:"primaryKey"`
	RunID         string    `gorm:"size:36;index"`
	Path          string    `gorm:"size:1024;not null;index"`
	ReferencePath string    `gorm:"size:1024"`
	Mode          string    `gorm:"size:16;not null"`
	Width         int       `gorm:"not null"`
	Height        int       `gorm:"not null"`
	Format        string    `gorm:"size:16"`
	LatMin        float64   `gorm:"not null"`
	LonMin        float64   `gorm:"not null"`
	LatMax        float64   `gorm:"not null"`
	LonMax        float64   `gorm:"not null"`
	Degraded      bool      `gorm:"not null;default:false"`
	AnalyzedAt    time.Time `gorm:"not null;index"`

	Anomalies []AnomalyModel `gorm:"foreignKey:ImageID;constraint:OnDelete:CASCADE"`
}

func (ImageModel) TableName() string {
	return "satellite_images"
}

type AnomalyModel struct {
	ID          uint    `gorm:"primaryKey"`
	ImageID     uint    `gorm:"not null;index"`
	AnomalyType string  `gorm:"size:32;not null;index"`
	Confidence  float64 `gorm:"not null;index"`
	Severity    string  `gorm:"size:8;not null"`
	Latitude    float64 `gorm:"not null"`
	Longitude   float64 `gorm:"not null"`

	North float64
	West  float64
	South float64
	East  float64
	XMin  int
	YMin  int
	XMax  int
	YMax  int

	Area        int       `gorm:"not null;default:0"`
	Description string    `gorm:"type:text"`
	Source      string    `gorm:"size:1024"`
	DetectedAt  time.Time `gorm:"not null;index"`
}

func (AnomalyModel) TableName() string {
	return "anomalies"
}
