package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ivlev/geoanomaly/internal/analyzer"
	"github.com/ivlev/geoanomaly/internal/cache"
	"github.com/ivlev/geoanomaly/internal/classifier"
	"github.com/ivlev/geoanomaly/internal/config"
	"github.com/ivlev/geoanomaly/internal/detector"
	"github.com/ivlev/geoanomaly/internal/geo"
	"github.com/ivlev/geoanomaly/internal/logging"
	"github.com/ivlev/geoanomaly/internal/renderer"
	"github.com/ivlev/geoanomaly/internal/report"
	"github.com/ivlev/geoanomaly/internal/source"
	"github.com/ivlev/geoanomaly/internal/spectral"
	"github.com/ivlev/geoanomaly/internal/store"
	"github.com/ivlev/geoanomaly/internal/system"
)

// BuildVersion is set at link time with -ldflags "-X main.BuildVersion=...".
var BuildVersion = "dev"

func main() {
	configPtr := flag.String("config", "", "Path to a YAML config file")
	imagePtr := flag.String("image", "", "Image to analyze (default: the newest raster in -batch or input/)")
	referencePtr := flag.String("reference", "", "Reference image, or a directory of references matched by file name; empty selects the grid scan")
	batchPtr := flag.String("batch", "", "Analyze every raster in this directory")
	boundsPtr := flag.String("bounds", "", "Geographic bounds lat_min,lon_min,lat_max,lon_max")
	saveBoundsPtr := flag.Bool("save-bounds", false, "Store -bounds as a .geo.yaml sidecar next to each input")
	thresholdPtr := flag.Int("threshold", -1, "Grayscale difference threshold 0-255")
	minAreaPtr := flag.Int("min-area", -1, "Minimum region area in pixels")
	classifierPtr := flag.String("classifier", "", "Classifier: heuristic, seeded")
	seedPtr := flag.Int64("seed", 0, "Seed for the seeded classifier")
	workersPtr := flag.Int("workers", 0, "Batch workers (0: sized from CPU and memory)")
	outputPtr := flag.String("output", "", "Output directory")
	formatPtr := flag.String("format", "", "Run report format: yaml, json")
	pagePtr := flag.Int("page", 0, "PDF page to analyze (0-based)")
	visualizePtr := flag.Bool("visualize", false, "Save change overlays")
	qrPtr := flag.Bool("qr", false, "Write a geo: QR code per anomaly")
	geojsonPtr := flag.String("geojson", "", "Write a GeoJSON FeatureCollection: point or polygon")
	dbPtr := flag.String("db", "", "SQLite database for results")
	redisPtr := flag.String("redis", "", "Redis address for the result cache")
	flushCachePtr := flag.Bool("flush-cache", false, "Drop cached results before the run")
	statsPtr := flag.Bool("stats", false, "Print the run report")
	logLevelPtr := flag.String("log-level", "", "Log level: debug, info, warn, error")
	logFormatPtr := flag.String("log-format", "", "Log format: text, json")
	queryPtr := flag.Bool("query", false, "List anomalies stored in -db instead of analyzing")
	queryTypePtr := flag.String("type", "", "With -query: only this anomaly type")
	queryMinConfPtr := flag.Float64("min-confidence", 0, "With -query: minimum confidence")
	queryLimitPtr := flag.Int("limit", store.DefaultListLimit, "With -query: maximum rows")
	queryRunPtr := flag.String("run", "", "With -query: also show this stored run")
	importPtr := flag.String("import", "", "Store a YAML run report into -db instead of analyzing")
	ndviRedPtr := flag.String("ndvi-red", "", "Red band raster for an NDVI map")
	ndviNIRPtr := flag.String("ndvi-nir", "", "Near-infrared band raster for an NDVI map")
	ndviStretchPtr := flag.Bool("ndvi-stretch", false, "Min-max stretch the NDVI map")

	flag.Parse()

	cfg, err := config.Load(*configPtr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[-] Config error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ApplyEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "[-] Config error: %v\n", err)
		os.Exit(1)
	}

	// Flags win over the file and the environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "threshold":
			cfg.Threshold = *thresholdPtr
		case "min-area":
			cfg.MinArea = *minAreaPtr
		case "classifier":
			cfg.Classifier = *classifierPtr
		case "seed":
			cfg.ClassifierSeed = *seedPtr
		case "workers":
			cfg.Workers = *workersPtr
		case "output":
			cfg.OutputDir = *outputPtr
		case "format":
			cfg.ReportFormat = *formatPtr
		case "page":
			cfg.PDFPage = *pagePtr
		case "visualize":
			cfg.Visualize = *visualizePtr
		case "qr":
			cfg.QRCodes = *qrPtr
		case "geojson":
			cfg.GeoJSON = *geojsonPtr != ""
		case "db":
			cfg.Database = *dbPtr
		case "redis":
			cfg.RedisAddr = *redisPtr
		case "stats":
			cfg.ShowStats = *statsPtr
		case "log-level":
			cfg.LogLevel = *logLevelPtr
		case "log-format":
			cfg.LogFormat = *logFormatPtr
		}
	})
	cfg.BuildVersion = BuildVersion

	var requestBounds *geo.Bounds
	if *boundsPtr != "" {
		b, err := geo.ParseBounds(*boundsPtr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[-] Config error: %v\n", err)
			os.Exit(1)
		}
		requestBounds = &b
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "[-] Config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	system.InitResourceLimits(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := newLoader(cfg)

	if *ndviRedPtr != "" || *ndviNIRPtr != "" {
		if err := writeNDVI(ctx, loader, *ndviRedPtr, *ndviNIRPtr, cfg.OutputDir, *ndviStretchPtr); err != nil {
			logger.Error("ndvi failed", logging.Err(err))
			os.Exit(1)
		}
		return
	}

	if *queryPtr {
		filter := store.Filter{
			Type:          classifier.Label(*queryTypePtr),
			MinConfidence: *queryMinConfPtr,
			Limit:         *queryLimitPtr,
		}
		if err := queryStore(ctx, cfg.Database, filter, *queryRunPtr); err != nil {
			logger.Error("query failed", logging.Err(err))
			os.Exit(1)
		}
		return
	}

	if *importPtr != "" {
		runID, err := importReport(ctx, cfg.Database, *importPtr)
		if err != nil {
			logger.Error("import failed", logging.Err(err))
			os.Exit(1)
		}
		fmt.Printf("[+++] Imported run %s into %s\n", runID, cfg.Database)
		return
	}

	reqs, err := buildRequests(*imagePtr, *referencePtr, *batchPtr, requestBounds)
	if err != nil {
		logger.Error("no input", logging.Err(err))
		os.Exit(1)
	}

	if *saveBoundsPtr && requestBounds != nil {
		for _, req := range reqs {
			if err := source.WriteSidecar(req.ImagePath, &source.Sidecar{Bounds: requestBounds}); err != nil {
				logger.Warn("sidecar not written", "path", req.ImagePath, logging.Err(err))
			}
		}
	}

	cls, err := classifier.New(cfg.Classifier, cfg.ClassifierSeed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[-] Config error: %v\n", err)
		os.Exit(1)
	}
	det := detector.New(uint8(cfg.Threshold), cfg.MinArea)

	opts := []analyzer.Option{
		analyzer.WithDefaultBounds(cfg.DefaultBounds),
		analyzer.WithGridSize(cfg.GridSize),
		analyzer.WithRegionWorkers(cfg.RegionWorkers),
		analyzer.WithLogger(logger),
	}
	if cfg.Visualize {
		opts = append(opts, analyzer.WithVisualizer(renderer.NewOverlay(cfg.OutputDir)))
	}
	an, err := analyzer.New(loader, det, cls, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[-] Config error: %v\n", err)
		os.Exit(1)
	}

	var svc analyzer.Service = an
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, cache disabled", "addr", cfg.RedisAddr, logging.Err(err))
		} else {
			cached := cache.NewCachingAnalyzer(rdb, cfg.CacheTTL, an, "", paramsFingerprint(cfg))
			if *flushCachePtr {
				if err := cached.Invalidate(ctx); err != nil {
					logger.Warn("cache flush failed", logging.Err(err))
				}
			}
			svc = cached
			fmt.Printf("[*] Result cache: %s\n", cfg.RedisAddr)
		}
	}

	workers := cfg.Workers
	if workers == 0 {
		workers = system.DefaultWorkers()
	}
	fmt.Printf("[*] Analyzing %d image(s) with %d worker(s)\n", len(reqs), workers)

	batch := analyzer.AnalyzeBatch(ctx, svc, reqs, workers)

	for _, res := range batch.Results {
		printResult(res)
	}
	for _, f := range batch.Failures {
		fmt.Printf("[!] %s: %s (%s)\n", f.ImagePath, f.Error, f.Kind)
	}

	if err := writeOutputs(ctx, cfg, *geojsonPtr, batch, logger); err != nil {
		logger.Error("writing results failed", logging.Err(err))
		os.Exit(1)
	}

	if cfg.ShowStats {
		fmt.Print(report.FormatStats(batch, system.TakeSnapshot(), cfg.BuildVersion))
	}
	if err := report.AppendRunLog(filepath.Join(cfg.OutputDir, "runs.log"), batch, cfg.BuildVersion); err != nil {
		logger.Warn("run log not written", logging.Err(err))
	}

	if batch.AnalyzedImages == 0 {
		fmt.Println("[-] No image was analyzed")
		os.Exit(2)
	}
	fmt.Printf("[+++] Done! %d anomalies in %d image(s), results in %s\n",
		batch.TotalAnomalies, batch.AnalyzedImages, cfg.OutputDir)
}

// buildRequests turns the input flags into analyzer requests. A reference
// directory pairs each image with the reference of the same file name.
func buildRequests(imagePath, referencePath, batchDir string, bounds *geo.Bounds) ([]analyzer.Request, error) {
	var paths []string
	switch {
	case imagePath != "":
		paths = []string{imagePath}
	case batchDir != "":
		list, err := system.ListImages(batchDir)
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("no images in %s", batchDir)
		}
		paths = list
	default:
		latest, err := system.FindLatestImage("input")
		if err != nil {
			return nil, fmt.Errorf("%w; put images into input/ or pass -image", err)
		}
		fmt.Printf("[*] Selected image: %s\n", latest)
		paths = []string{latest}
	}

	refDir := false
	if referencePath != "" {
		if fi, err := os.Stat(referencePath); err == nil && fi.IsDir() {
			refDir = true
		}
	}

	reqs := make([]analyzer.Request, 0, len(paths))
	for _, p := range paths {
		req := analyzer.Request{ImagePath: p, ReferencePath: referencePath, Bounds: bounds}
		if refDir {
			req.ReferencePath = filepath.Join(referencePath, filepath.Base(p))
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func newLoader(cfg *config.Config) *source.FileLoader {
	l := source.NewFileLoader(cfg.PDFDPI)
	l.Page = cfg.PDFPage
	return l
}

// paramsFingerprint covers every setting that changes a cached Result:
// detection and classification, raster decoding, the fallback bounds and
// where overlays are written.
func paramsFingerprint(cfg *config.Config) string {
	bounds := "none"
	if cfg.DefaultBounds != nil {
		bounds = cfg.DefaultBounds.String()
	}
	overlay := "off"
	if cfg.Visualize {
		overlay = filepath.Clean(cfg.OutputDir)
	}
	return fmt.Sprintf("threshold=%d,min_area=%d,grid=%d,classifier=%s,seed=%d,dpi=%d,page=%d,default_bounds=%s,overlay=%s",
		cfg.Threshold, cfg.MinArea, cfg.GridSize, cfg.Classifier, cfg.ClassifierSeed,
		cfg.PDFDPI, cfg.PDFPage, bounds, overlay)
}

func printResult(res *analyzer.Result) {
	fmt.Printf("[*] %s (%s, %dx%d): %d anomalies\n", res.ImagePath, res.Mode, res.Width, res.Height, len(res.Anomalies))
	for _, a := range res.Anomalies {
		fmt.Printf("    %-13s %.2f  %.6f,%.6f  %s\n", a.Type, a.Confidence, a.Location.Lat, a.Location.Lon, a.Description)
	}
	for _, w := range res.Warnings {
		fmt.Printf("[!] %s\n", w)
	}
}

func writeOutputs(ctx context.Context, cfg *config.Config, geometry string, batch *analyzer.BatchResult, logger *slog.Logger) error {
	stamp := time.Now().Format("2006-01-02_15-04-05")
	reportPath, err := writeReport(cfg, batch, stamp)
	if err != nil {
		return err
	}
	fmt.Printf("[*] Report: %s\n", reportPath)

	if cfg.GeoJSON {
		if geometry == "" {
			geometry = report.GeometryPoint
		}
		path := filepath.Join(cfg.OutputDir, fmt.Sprintf("anomalies_%s.geojson", stamp))
		if err := report.WriteGeoJSON(batch.Results, geometry, path); err != nil {
			return err
		}
		fmt.Printf("[*] GeoJSON: %s\n", path)
	}

	if cfg.QRCodes {
		paths, err := report.WriteQRCodes(batch.Results, filepath.Join(cfg.OutputDir, "qr"))
		if err != nil {
			return err
		}
		fmt.Printf("[*] QR codes: %d\n", len(paths))
	}

	if cfg.Database != "" {
		db, err := store.Open(cfg.Database)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		if err := store.NewRepository(db).SaveBatch(ctx, batch); err != nil {
			return err
		}
		logger.Info("results stored", "database", cfg.Database, "run", batch.RunID)
	}
	return nil
}

// writeReport writes the batch as report_<stamp>.yaml or .json.
func writeReport(cfg *config.Config, batch *analyzer.BatchResult, stamp string) (string, error) {
	path := filepath.Join(cfg.OutputDir, fmt.Sprintf("report_%s.%s", stamp, cfg.ReportFormat))
	var err error
	if cfg.ReportFormat == "json" {
		err = report.WriteJSON(batch, path)
	} else {
		err = report.WriteYAML(batch, path)
	}
	return path, err
}

// importReport stores a YAML run report written by an earlier run, for
// runs made without -db.
func importReport(ctx context.Context, dsn, path string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("-import needs -db")
	}
	var batch analyzer.BatchResult
	if err := report.ReadYAML(path, &batch); err != nil {
		return "", fmt.Errorf("read report %s: %w", path, err)
	}
	if batch.RunID == "" {
		return "", fmt.Errorf("report %s has no run_id", path)
	}

	db, err := store.Open(dsn)
	if err != nil {
		return "", err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := store.NewRepository(db).SaveBatch(ctx, &batch); err != nil {
		return "", err
	}
	return batch.RunID, nil
}

func queryStore(ctx context.Context, dsn string, filter store.Filter, runID string) error {
	if dsn == "" {
		return fmt.Errorf("-query needs -db")
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return fmt.Errorf("unknown anomaly type %q", filter.Type)
	}
	db, err := store.Open(dsn)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	repo := store.NewRepository(db)

	if runID != "" {
		run, err := repo.GetRun(ctx, runID)
		if err != nil {
			return fmt.Errorf("run %s: %w", runID, err)
		}
		fmt.Printf("[*] Run %s: %d analyzed / %d failed / %d total, %d anomalies\n",
			run.ID, run.AnalyzedImages, run.FailedImages, run.TotalImages, run.TotalAnomalies)
	}

	recs, err := repo.ListAnomalies(ctx, filter)
	if err != nil {
		return err
	}
	for _, r := range recs {
		fmt.Printf("%5d  %s  %-13s %.2f  %.6f,%.6f  %s\n", r.ID, r.DetectedAt.Format(time.DateTime),
			r.Type, r.Confidence, r.Location.Lat, r.Location.Lon, r.Description)
	}

	counts, err := repo.CountByType(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("[*] %d shown; stored by type:", len(recs))
	for _, l := range append(classifier.AnomalyLabels[:len(classifier.AnomalyLabels):len(classifier.AnomalyLabels)], classifier.Normal) {
		fmt.Printf(" %s=%d", l, counts[l])
	}
	fmt.Println()
	return nil
}

// writeNDVI renders a normalized NDVI map of the two bands into dir.
func writeNDVI(ctx context.Context, loader source.Loader, redPath, nirPath, dir string, stretch bool) error {
	if redPath == "" || nirPath == "" {
		return fmt.Errorf("both -ndvi-red and -ndvi-nir are required")
	}
	red, err := loader.Load(ctx, redPath)
	if err != nil {
		return err
	}
	nir, err := loader.Load(ctx, nirPath)
	if err != nil {
		return err
	}

	field, err := spectral.NDVI(spectral.Band(red.Raster), spectral.Band(nir.Raster))
	if err != nil {
		return err
	}
	mean, _ := field.MeanOver(image.Rect(0, 0, field.Width, field.Height))

	base := strings.TrimSuffix(filepath.Base(redPath), filepath.Ext(redPath))
	path := filepath.Join(dir, fmt.Sprintf("ndvi_%s.png", base))
	if err := report.WritePNG(spectral.Preview(field, stretch), path); err != nil {
		return err
	}
	fmt.Printf("[+++] NDVI map: %s (mean %.3f)\n", path, mean)
	return nil
}
