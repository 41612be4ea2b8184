package source

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gen2brain/go-fitz"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"gopkg.in/yaml.v3"

	"github.com/ivlev/geoanomaly/internal/geo"
)

// SidecarSuffix is appended to an image path to find its geo context.
const SidecarSuffix = ".geo.yaml"

// Sidecar is the optional YAML file delivered next to an image.
type Sidecar struct {
	Bounds     *geo.Bounds `yaml:"bounds"`
	Sensor     string      `yaml:"sensor,omitempty"`
	AcquiredAt time.Time   `yaml:"acquired_at,omitempty"`
}

// FileLoader reads rasters from the local filesystem. PDFs (GeoPDF
// deliveries) are rendered page by page through MuPDF.
type FileLoader struct {
	DPI  int // PDF render resolution
	Page int // PDF page to analyze
}

func NewFileLoader(dpi int) *FileLoader {
	if dpi <= 0 {
		dpi = 150
	}
	return &FileLoader{DPI: dpi}
}

func (l *FileLoader) Load(ctx context.Context, path string) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		img *Image
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		img, err = l.loadPDF(path)
	} else {
		img, err = loadRaster(path)
	}
	if err != nil {
		return nil, &ImageLoadError{Path: path, Err: err}
	}

	sc, err := ReadSidecar(path)
	if err != nil {
		return nil, &ImageLoadError{Path: path, Err: err}
	}
	if sc != nil {
		img.Bounds = sc.Bounds
		img.Metadata.Sensor = sc.Sensor
		img.Metadata.AcquiredAt = sc.AcquiredAt
	}
	return img, nil
}

func loadRaster(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, _, cfgErr := image.DecodeConfig(bytes.NewReader(data))
	raster, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	return &Image{
		Path:     path,
		Raster:   raster,
		Metadata: buildMetadata(cfg, cfgErr, raster, format),
	}, nil
}

// buildMetadata prefers the header; when it is unreadable the size comes
// from the decoded raster and the result is flagged.
func buildMetadata(cfg image.Config, cfgErr error, raster image.Image, format string) Metadata {
	md := Metadata{Width: cfg.Width, Height: cfg.Height, Format: format}
	size := raster.Bounds().Size()
	if cfgErr != nil || cfg.Width != size.X || cfg.Height != size.Y {
		md.Width, md.Height = size.X, size.Y
		md.Fallback = true
	}
	return md
}

func (l *FileLoader) loadPDF(path string) (*Image, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	if doc.NumPage() <= l.Page {
		return nil, ErrNoPages
	}

	raster, err := doc.ImageDPI(l.Page, float64(l.DPI))
	if err != nil {
		return nil, err
	}

	size := raster.Bounds().Size()
	return &Image{
		Path:     path,
		Raster:   raster,
		Metadata: Metadata{Width: size.X, Height: size.Y, Format: "pdf"},
	}, nil
}

// ReadSidecar returns the parsed sidecar of path, or nil when there is
// none.
func ReadSidecar(path string) (*Sidecar, error) {
	data, err := os.ReadFile(path + SidecarSuffix)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var sc Sidecar
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// WriteSidecar stores geo context next to an image.
func WriteSidecar(path string, sc *Sidecar) error {
	data, err := yaml.Marshal(sc)
	if err != nil {
		return err
	}
	return os.WriteFile(path+SidecarSuffix, data, 0644)
}
