// Package source loads rasters and their geographic context from storage.
package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/ivlev/geoanomaly/internal/geo"
)

// Metadata describes a loaded raster.
type Metadata struct {
	Width  int    `yaml:"width" json:"width"`
	Height int    `yaml:"height" json:"height"`
	Format string `yaml:"format" json:"format"`
	// Fallback is set when the header could not be read on its own and
	// the values were derived from the decoded pixels instead.
	Fallback   bool      `yaml:"fallback,omitempty" json:"fallback,omitempty"`
	Sensor     string    `yaml:"sensor,omitempty" json:"sensor,omitempty"`
	AcquiredAt time.Time `yaml:"acquired_at,omitempty" json:"acquired_at,omitempty"`
}

// Image is a decoded raster plus whatever the source knows about it.
type Image struct {
	Path     string
	Raster   image.Image
	Metadata Metadata
	// Bounds is the geographic context supplied by the source, if any.
	Bounds *geo.Bounds
}

// Loader reads an image by path.
type Loader interface {
	Load(ctx context.Context, path string) (*Image, error)
}

// ImageLoadError reports a missing, unreadable or corrupt input.
type ImageLoadError struct {
	Path string
	Err  error
}

func (e *ImageLoadError) Error() string {
	return fmt.Sprintf("load image %s: %v", e.Path, e.Err)
}

func (e *ImageLoadError) Unwrap() error {
	return e.Err
}

// ErrNoPages is returned for documents without renderable pages.
var ErrNoPages = errors.New("document has no pages")
