package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ivlev/geoanomaly/internal/detector"
	"github.com/ivlev/geoanomaly/internal/geo"
)

type Config struct {
	Threshold      int         `yaml:"threshold"`
	MinArea        int         `yaml:"min_area"`
	GridSize       int         `yaml:"grid_size"`
	Classifier     string      `yaml:"classifier"`
	ClassifierSeed int64       `yaml:"classifier_seed"`
	Workers        int         `yaml:"workers"`
	RegionWorkers  int         `yaml:"region_workers"`
	DefaultBounds  *geo.Bounds `yaml:"default_bounds"`
	PDFDPI         int         `yaml:"pdf_dpi"`
	PDFPage        int         `yaml:"pdf_page"`

	OutputDir    string `yaml:"output_dir"`
	ReportFormat string `yaml:"report_format"` // yaml or json
	Visualize    bool   `yaml:"visualize"`
	QRCodes      bool   `yaml:"qr_codes"`
	GeoJSON      bool   `yaml:"geojson"`

	Database      string        `yaml:"database"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`

	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
	ShowStats    bool   `yaml:"show_stats"`
	BuildVersion string `yaml:"-"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Threshold:     detector.DefaultThreshold,
		MinArea:       detector.DefaultMinArea,
		GridSize:      8,
		Classifier:    "heuristic",
		RegionWorkers: 4,
		PDFDPI:        150,
		OutputDir:     "output",
		ReportFormat:  "yaml",
		CacheTTL:      24 * time.Hour,
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv loads .env (if present) and overrides fields from GEOANOMALY_*
// variables.
func (c *Config) ApplyEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if v := os.Getenv("GEOANOMALY_DATABASE"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("GEOANOMALY_REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("GEOANOMALY_REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("GEOANOMALY_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("GEOANOMALY_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("GEOANOMALY_CLASSIFIER"); v != "" {
		c.Classifier = v
	}
	if v := os.Getenv("GEOANOMALY_BOUNDS"); v != "" {
		b, err := geo.ParseBounds(v)
		if err != nil {
			return fmt.Errorf("GEOANOMALY_BOUNDS: %w", err)
		}
		c.DefaultBounds = &b
	}
	if v := os.Getenv("GEOANOMALY_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GEOANOMALY_WORKERS: %w", err)
		}
		c.Workers = n
	}
	return nil
}

// Validate checks ranges. Default bounds are validated here so a bad
// configuration fails before any image is read.
func (c *Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 255 {
		return fmt.Errorf("threshold %d out of range 0-255", c.Threshold)
	}
	if c.MinArea < 0 {
		return fmt.Errorf("min_area must not be negative")
	}
	if c.GridSize <= 0 {
		return fmt.Errorf("grid_size must be positive")
	}
	if c.Workers < 0 || c.RegionWorkers < 0 {
		return fmt.Errorf("worker counts must not be negative")
	}
	if c.PDFPage < 0 {
		return fmt.Errorf("pdf_page must not be negative")
	}
	if c.ReportFormat != "yaml" && c.ReportFormat != "json" {
		return fmt.Errorf("report_format must be yaml or json, got %q", c.ReportFormat)
	}
	if c.DefaultBounds != nil {
		if err := c.DefaultBounds.Validate(); err != nil {
			return err
		}
	}
	return nil
}
