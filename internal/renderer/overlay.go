// Package renderer draws change overlays: the change mask tinted over the
// current frame plus a labelled box per region.
package renderer

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Mark is one box to outline. An empty Label draws the box only.
type Mark struct {
	Rect  image.Rectangle
	Label string
}

// Overlay renders and stores visualizations under OutputDir.
type Overlay struct {
	OutputDir string
	Tint      color.RGBA
	BoxColor  color.RGBA
	LineWidth int
}

func NewOverlay(outputDir string) *Overlay {
	return &Overlay{
		OutputDir: outputDir,
		Tint:      color.RGBA{255, 0, 0, 255},
		BoxColor:  color.RGBA{0, 255, 0, 255},
		LineWidth: 2,
	}
}

// Render returns a new origin-anchored RGBA copy of frame with the mask
// blended in and every mark outlined. frame and mask are not modified.
func (o *Overlay) Render(frame image.Image, mask *image.Gray, marks []Mark) *image.RGBA {
	b := frame.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), frame, b.Min, draw.Src)

	if mask != nil {
		area := dst.Rect.Intersect(mask.Rect)
		for y := area.Min.Y; y < area.Max.Y; y++ {
			for x := area.Min.X; x < area.Max.X; x++ {
				if mask.GrayAt(x, y).Y == 0 {
					continue
				}
				dst.SetRGBA(x, y, blend(dst.RGBAAt(x, y), o.Tint))
			}
		}
	}

	for _, m := range marks {
		o.strokeRect(dst, m.Rect)
		if m.Label != "" {
			o.drawLabel(dst, m.Rect, m.Label)
		}
	}
	return dst
}

// Visualize renders the overlay and writes it as
// <OutputDir>/visualization_<name>.png, returning the written path.
func (o *Overlay) Visualize(name string, frame image.Image, mask *image.Gray, marks []Mark) (string, error) {
	img := o.Render(frame, mask, marks)

	if err := os.MkdirAll(o.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	path := filepath.Join(o.OutputDir, "visualization_"+base+".png")

	if err := writePNG(path, img); err != nil {
		return "", err
	}
	return path, nil
}

func writePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}

func (o *Overlay) strokeRect(dst *image.RGBA, r image.Rectangle) {
	lw := max(o.LineWidth, 1)
	r = r.Intersect(dst.Rect)
	if r.Empty() {
		return
	}
	src := image.NewUniform(o.BoxColor)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, min(r.Min.Y+lw, r.Max.Y)),
		image.Rect(r.Min.X, max(r.Max.Y-lw, r.Min.Y), r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, min(r.Min.X+lw, r.Max.X), r.Max.Y),
		image.Rect(max(r.Max.X-lw, r.Min.X), r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e, src, image.Point{}, draw.Src)
	}
}

func (o *Overlay) drawLabel(dst *image.RGBA, r image.Rectangle, label string) {
	face := basicfont.Face7x13
	// Above the box when there is room, inside it otherwise.
	y := r.Min.Y - 3
	if y-face.Ascent < 0 {
		y = r.Min.Y + face.Ascent + 2
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(o.BoxColor),
		Face: face,
		Dot:  fixed.P(r.Min.X+2, y),
	}
	d.DrawString(label)
}

func blend(base, tint color.RGBA) color.RGBA {
	return color.RGBA{
		R: uint8((uint16(base.R) + uint16(tint.R)) / 2),
		G: uint8((uint16(base.G) + uint16(tint.G)) / 2),
		B: uint8((uint16(base.B) + uint16(tint.B)) / 2),
		A: 255,
	}
}
