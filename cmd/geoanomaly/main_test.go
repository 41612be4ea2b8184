package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/geoanomaly/internal/analyzer"
	"github.com/ivlev/geoanomaly/internal/classifier"
	"github.com/ivlev/geoanomaly/internal/config"
	"github.com/ivlev/geoanomaly/internal/geo"
	"github.com/ivlev/geoanomaly/internal/report"
	"github.com/ivlev/geoanomaly/internal/store"
)

func touch(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	}
}

func TestBuildRequestsSingleImage(t *testing.T) {
	b := geo.Bounds{LatMin: 1, LonMin: 2, LatMax: 3, LonMax: 4}
	reqs, err := buildRequests("scene.png", "ref.png", "", &b)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "scene.png", reqs[0].ImagePath)
	assert.Equal(t, "ref.png", reqs[0].ReferencePath)
	assert.Equal(t, &b, reqs[0].Bounds)
}

func TestBuildRequestsBatchWithReferenceDir(t *testing.T) {
	dir := t.TempDir()
	batch := filepath.Join(dir, "current")
	refs := filepath.Join(dir, "reference")
	touch(t,
		filepath.Join(batch, "b.png"),
		filepath.Join(batch, "a.tif"),
		filepath.Join(batch, "a.tif.geo.yaml"),
		filepath.Join(batch, "notes.txt"),
		filepath.Join(refs, "a.tif"),
	)

	reqs, err := buildRequests("", refs, batch, nil)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, filepath.Join(batch, "a.tif"), reqs[0].ImagePath)
	assert.Equal(t, filepath.Join(refs, "a.tif"), reqs[0].ReferencePath)
	assert.Equal(t, filepath.Join(refs, "b.png"), reqs[1].ReferencePath)
}

func TestBuildRequestsEmptyBatch(t *testing.T) {
	_, err := buildRequests("", "", t.TempDir(), nil)
	assert.Error(t, err)
}

func TestParamsFingerprint(t *testing.T) {
	base := paramsFingerprint(config.Default())
	assert.Equal(t, base, paramsFingerprint(config.Default()))

	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"threshold", func(c *config.Config) { c.Threshold = 40 }},
		{"classifier seed", func(c *config.Config) { c.ClassifierSeed = 3 }},
		{"default bounds", func(c *config.Config) {
			c.DefaultBounds = &geo.Bounds{LatMin: 10, LonMin: 10, LatMax: 11, LonMax: 11}
		}},
		{"visualize", func(c *config.Config) { c.Visualize = true }},
		{"pdf page", func(c *config.Config) { c.PDFPage = 1 }},
		{"pdf dpi", func(c *config.Config) { c.PDFDPI = 300 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			assert.NotEqual(t, base, paramsFingerprint(cfg))
		})
	}
}

func TestParamsFingerprintDefaultBoundsValues(t *testing.T) {
	a := config.Default()
	a.DefaultBounds = &geo.Bounds{LatMin: 55, LonMin: 37, LatMax: 56, LonMax: 38}
	b := config.Default()
	b.DefaultBounds = &geo.Bounds{LatMin: 10, LonMin: 10, LatMax: 11, LonMax: 11}
	assert.NotEqual(t, paramsFingerprint(a), paramsFingerprint(b))
}

func TestParamsFingerprintOverlayDir(t *testing.T) {
	a := config.Default()
	a.Visualize = true
	b := config.Default()
	b.Visualize = true
	b.OutputDir = "elsewhere"
	assert.NotEqual(t, paramsFingerprint(a), paramsFingerprint(b))

	// Without overlays the output directory does not reach the Result.
	c := config.Default()
	c.OutputDir = "elsewhere"
	assert.Equal(t, paramsFingerprint(config.Default()), paramsFingerprint(c))
}

func TestNewLoaderUsesPDFSettings(t *testing.T) {
	cfg := config.Default()
	cfg.PDFDPI = 200
	cfg.PDFPage = 3
	l := newLoader(cfg)
	assert.Equal(t, 200, l.DPI)
	assert.Equal(t, 3, l.Page)
}

func sampleBatch() *analyzer.BatchResult {
	at := time.Date(2024, 8, 2, 9, 30, 0, 0, time.UTC)
	return &analyzer.BatchResult{
		RunID:           "6f1c2c1e-0d52-4c59-9a51-2f0c8b7d1e11",
		StartedAt:       at,
		Duration:        1500 * time.Millisecond,
		TotalImages:     2,
		AnalyzedImages:  1,
		FailedImages:    1,
		TotalAnomalies:  1,
		AnomaliesByType: map[classifier.Label]int{classifier.Fire: 1},
		TotalChangeArea: 1600,
		Results: []*analyzer.Result{{
			ImagePath: "scene.png",
			Mode:      analyzer.ModeComparative,
			Width:     200,
			Height:    100,
			Bounds:    geo.Bounds{LatMin: 55, LonMin: 37, LatMax: 56, LonMax: 38},
			Timestamp: at,
			Anomalies: []analyzer.Anomaly{{
				Type:       classifier.Fire,
				Confidence: 0.91,
				Severity:   analyzer.SeverityHigh,
				Location:   geo.Point{Lat: 55.6, Lon: 37.3},
				Area:       1600,
			}},
		}},
		Failures: []analyzer.Failure{{ImagePath: "missing.png", Kind: analyzer.FailureLoad, Error: "no such file"}},
	}
}

func TestWriteReportFormats(t *testing.T) {
	cfg := config.Default()
	cfg.OutputDir = t.TempDir()

	path, err := writeReport(cfg, sampleBatch(), "stamp")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "report_stamp.yaml"), path)
	var fromYAML analyzer.BatchResult
	require.NoError(t, report.ReadYAML(path, &fromYAML))
	assert.Equal(t, 1500*time.Millisecond, fromYAML.Duration)

	cfg.ReportFormat = "json"
	path, err = writeReport(cfg, sampleBatch(), "stamp")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "report_stamp.json"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, sampleBatch().RunID, raw["run_id"])
}

func TestImportReportAndQuery(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dsn := filepath.Join(dir, "results.db")
	reportPath := filepath.Join(dir, "report.yaml")
	batch := sampleBatch()
	require.NoError(t, report.WriteYAML(batch, reportPath))

	runID, err := importReport(ctx, dsn, reportPath)
	require.NoError(t, err)
	assert.Equal(t, batch.RunID, runID)

	db, err := store.Open(dsn)
	require.NoError(t, err)
	repo := store.NewRepository(db)
	run, err := repo.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.AnalyzedImages)
	assert.Equal(t, int64(1500), run.DurationMS)
	recs, err := repo.ListAnomalies(ctx, store.Filter{Type: classifier.Fire})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 0.91, recs[0].Confidence)
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	assert.NoError(t, queryStore(ctx, dsn, store.Filter{}, runID))
	assert.Error(t, queryStore(ctx, dsn, store.Filter{}, "no-such-run"))
	assert.Error(t, queryStore(ctx, dsn, store.Filter{Type: "volcano"}, ""))
}

func TestImportAndQueryNeedDatabase(t *testing.T) {
	_, err := importReport(context.Background(), "", "report.yaml")
	assert.Error(t, err)
	assert.Error(t, queryStore(context.Background(), "", store.Filter{}, ""))
}
