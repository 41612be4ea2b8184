// Package analyzer drives the change-detection pipeline: it loads the
// rasters, runs the detector and classifier, and turns surviving regions
// into geolocated anomaly records.
package analyzer

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/geoanomaly/internal/classifier"
	"github.com/ivlev/geoanomaly/internal/detector"
	"github.com/ivlev/geoanomaly/internal/geo"
	"github.com/ivlev/geoanomaly/internal/logging"
	"github.com/ivlev/geoanomaly/internal/renderer"
	"github.com/ivlev/geoanomaly/internal/source"
)

const DefaultGridSize = 8

// Service analyzes one image. Analyzer implements it; the cache wraps it.
type Service interface {
	Analyze(ctx context.Context, req Request) (*Result, error)
}

// Visualizer stores an overlay of a comparison and returns its path.
type Visualizer interface {
	Visualize(name string, frame image.Image, mask *image.Gray, marks []renderer.Mark) (string, error)
}

type Analyzer struct {
	loader        source.Loader
	detector      *detector.ChangeDetector
	classifier    classifier.Classifier
	defaultBounds *geo.Bounds
	gridSize      int
	regionWorkers int
	visualizer    Visualizer
	logger        *slog.Logger
	now           func() time.Time
}

type Option func(*Analyzer)

// WithDefaultBounds sets the geo context used when neither the request
// nor the source provides one.
func WithDefaultBounds(b *geo.Bounds) Option {
	return func(a *Analyzer) { a.defaultBounds = b }
}

func WithGridSize(n int) Option {
	return func(a *Analyzer) { a.gridSize = n }
}

// WithRegionWorkers bounds concurrent region classification.
func WithRegionWorkers(n int) Option {
	return func(a *Analyzer) { a.regionWorkers = n }
}

func WithVisualizer(v Visualizer) Option {
	return func(a *Analyzer) { a.visualizer = v }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// New wires an analyzer. Invalid default bounds are a configuration error
// and fail here.
func New(loader source.Loader, det *detector.ChangeDetector, cls classifier.Classifier, opts ...Option) (*Analyzer, error) {
	a := &Analyzer{
		loader:        loader,
		detector:      det,
		classifier:    cls,
		gridSize:      DefaultGridSize,
		regionWorkers: 4,
		logger:        logging.Discard(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.loader == nil || a.detector == nil || a.classifier == nil {
		return nil, errors.New("analyzer: loader, detector and classifier are required")
	}
	if a.defaultBounds != nil {
		if err := a.defaultBounds.Validate(); err != nil {
			return nil, err
		}
	}
	if a.gridSize <= 0 {
		a.gridSize = DefaultGridSize
	}
	if a.regionWorkers <= 0 {
		a.regionWorkers = 1
	}
	return a, nil
}

// Analyze runs the comparative pipeline when a reference is given and the
// single-image grid scan otherwise. Load failures come back as
// *source.ImageLoadError; missing or invalid geo context as the geo error
// types.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := a.loader.Load(ctx, req.ImagePath)
	if err != nil {
		return nil, err
	}

	bounds, err := a.resolveBounds(req, img)
	if err != nil {
		return nil, err
	}

	size := img.Raster.Bounds().Size()
	res := &Result{
		ImagePath:        req.ImagePath,
		ReferencePath:    req.ReferencePath,
		Width:            size.X,
		Height:           size.Y,
		Metadata:         img.Metadata,
		MetadataFallback: img.Metadata.Fallback,
		Bounds:           bounds,
		Timestamp:        a.now().UTC(),
		Anomalies:        []Anomaly{},
	}
	if img.Metadata.Fallback {
		res.warn("image header unreadable, metadata derived from decoded pixels")
	}

	if req.ReferencePath == "" {
		err = a.scanGrid(res, img)
	} else {
		err = a.compare(ctx, res, img)
	}
	if err != nil {
		return nil, err
	}

	a.logger.Debug("image analyzed",
		"path", req.ImagePath,
		"mode", res.Mode,
		"anomalies", len(res.Anomalies),
		"warnings", len(res.Warnings))
	return res, nil
}

func (a *Analyzer) resolveBounds(req Request, img *source.Image) (geo.Bounds, error) {
	var b *geo.Bounds
	switch {
	case req.Bounds != nil:
		b = req.Bounds
	case img.Bounds != nil:
		b = img.Bounds
	case a.defaultBounds != nil:
		b = a.defaultBounds
	default:
		return geo.Bounds{}, &geo.MissingGeoContextError{Path: req.ImagePath}
	}
	if err := b.Validate(); err != nil {
		return geo.Bounds{}, err
	}
	return *b, nil
}

func (a *Analyzer) compare(ctx context.Context, res *Result, current *source.Image) error {
	res.Mode = ModeComparative

	ref, err := a.loader.Load(ctx, res.ReferencePath)
	if err != nil {
		return err
	}

	mask, err := a.detector.DetectChanges(ref.Raster, current.Raster)
	if err != nil {
		return &source.ImageLoadError{Path: res.ImagePath, Err: err}
	}

	// Regions live in the comparison frame, so classification and mapping
	// do too.
	frameSize := mask.Size()
	frame := current.Raster
	if mask.Resized {
		frame = detector.ResizeArea(current.Raster, frameSize)
		res.warn("image sizes differ (%dx%d vs %dx%d), both resized to %dx%d before comparison",
			mask.SizeA.X, mask.SizeA.Y, mask.SizeB.X, mask.SizeB.Y, frameSize.X, frameSize.Y)
	}

	mapper, err := geo.NewMapper(frameSize.X, frameSize.Y, res.Bounds)
	if err != nil {
		return err
	}

	regions := a.detector.FindAnomalyRegions(mask)
	detector.SortRegions(regions)

	results, errs, err := a.classifyRegions(ctx, frame, regions)
	if err != nil {
		return err
	}

	stats := &ChangeStats{
		Regions:          len(regions),
		ChangedPixels:    mask.ChangedPixels(),
		ChangePercentage: mask.Percentage(),
		Resized:          mask.Resized,
		FrameWidth:       frameSize.X,
		FrameHeight:      frameSize.Y,
	}

	marks := make([]renderer.Mark, 0, len(regions))
	for i, region := range regions {
		mark := renderer.Mark{Rect: region.BBox}
		if errs[i] != nil {
			stats.SkippedRegions++
			res.warn("%v", errs[i])
			a.logger.Warn("region skipped", "path", res.ImagePath, logging.Err(errs[i]))
			marks = append(marks, mark)
			continue
		}
		if classifier.Keep(results[i]) {
			res.Anomalies = append(res.Anomalies, newAnomaly(mapper, region, results[i], res.ImagePath))
			mark.Label = string(results[i].Label)
		}
		marks = append(marks, mark)
	}
	res.Stats = stats

	if a.visualizer != nil {
		path, err := a.visualizer.Visualize(filepath.Base(res.ImagePath), frame, mask.Gray, marks)
		if err != nil {
			res.warn("visualization not saved: %v", err)
		} else {
			res.VisualizationPath = path
		}
	}
	return nil
}

// classifyRegions fans classification out over regionWorkers goroutines.
// Each slot is written by exactly one goroutine. Per-region failures land
// in errs; only cancellation is returned as err.
func (a *Analyzer) classifyRegions(ctx context.Context, frame image.Image, regions []detector.Region) ([]classifier.Result, []error, error) {
	results := make([]classifier.Result, len(regions))
	errs := make([]error, len(regions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.regionWorkers)
	for i, region := range regions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := a.classifier.Classify(frame, region)
			if err != nil {
				errs[i] = &classifier.ClassificationError{Region: region, Err: err}
				return nil
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return results, errs, nil
}

func newAnomaly(m *geo.Mapper, region detector.Region, r classifier.Result, src string) Anomaly {
	return Anomaly{
		Type:        r.Label,
		Confidence:  r.Confidence,
		Severity:    SeverityFor(r.Confidence),
		Location:    m.PixelToGeo(float64(region.Center.X), float64(region.Center.Y)),
		PixelCenter: Pixel{X: region.Center.X, Y: region.Center.Y},
		PixelBBox:   boxOf(region.BBox),
		GeoBBox:     m.BBoxToGeo(region.BBox),
		Area:        region.Area,
		Description: Describe(r.Label, r.Confidence),
		Source:      src,
	}
}
