package geo

import "fmt"

// InvalidBoundsError is returned when a mapper is configured with a
// degenerate rectangle or image size. It is fatal to the analysis call.
type InvalidBoundsError struct {
	Bounds Bounds
	Width  int
	Height int
	Reason string
}

func (e *InvalidBoundsError) Error() string {
	if e.Width != 0 || e.Height != 0 {
		return fmt.Sprintf("invalid geo bounds %s for %dx%d image: %s", e.Bounds, e.Width, e.Height, e.Reason)
	}
	return fmt.Sprintf("invalid geo bounds %s: %s", e.Bounds, e.Reason)
}

// MissingGeoContextError is returned when neither the request, the image
// source nor the analyzer defaults provide bounds for an image.
type MissingGeoContextError struct {
	Path string
}

func (e *MissingGeoContextError) Error() string {
	return fmt.Sprintf("no geographic bounds known for %s", e.Path)
}
