package detector

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/ivlev/geoanomaly/internal/system"
)

// areaKernel is a box filter. x/image/draw widens the support by the
// downscale factor, so each destination pixel becomes the mean of the
// source area it covers.
var areaKernel = &draw.Kernel{
	Support: 0.5,
	At:      func(t float64) float64 { return 1 },
}

// ResizeArea scales img to size with area averaging. It returns img
// unchanged when the size already matches.
func ResizeArea(img image.Image, size image.Point) image.Image {
	if img.Bounds().Size() == size {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	areaKernel.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// toGrayscale converts an image to an origin-anchored luminance raster
func toGrayscale(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := gray.Pix[(y-bounds.Min.Y)*gray.Stride:]
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			row[x-bounds.Min.X] = color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
		}
	}

	return gray
}

// absDiffThreshold marks pixels whose luminance differs by more than
// threshold. Both inputs are origin-anchored and equally sized.
func absDiffThreshold(a, b *image.Gray, threshold uint8) *image.Gray {
	mask := image.NewGray(a.Rect)
	for i, va := range a.Pix {
		vb := b.Pix[i]
		diff := va - vb
		if vb > va {
			diff = vb - va
		}
		if diff > threshold {
			mask.Pix[i] = 255
		}
	}
	return mask
}

// closeMask is a 3x3 dilation followed by a 3x3 erosion.
func closeMask(src *image.Gray) *image.Gray {
	tmp := system.GetGray(src.Rect)
	defer system.PutGray(tmp)

	out := image.NewGray(src.Rect)
	morph3x3(src, tmp, true)
	morph3x3(tmp, out, false)
	return out
}

// openMask is a 3x3 erosion followed by a 3x3 dilation.
func openMask(src *image.Gray) *image.Gray {
	tmp := system.GetGray(src.Rect)
	defer system.PutGray(tmp)

	out := image.NewGray(src.Rect)
	morph3x3(src, tmp, false)
	morph3x3(tmp, out, true)
	return out
}

// morph3x3 writes the max (dilate) or min (erode) of each 3x3
// neighbourhood of src into dst. Neighbours outside the frame are
// ignored, so borders neither grow nor shrink the mask artificially.
func morph3x3(src, dst *image.Gray, dilate bool) {
	w, h := src.Rect.Dx(), src.Rect.Dy()

	for y := 0; y < h; y++ {
		y0, y1 := max(y-1, 0), min(y+1, h-1)
		for x := 0; x < w; x++ {
			x0, x1 := max(x-1, 0), min(x+1, w-1)

			val := uint8(255)
			if dilate {
				val = 0
			}
			for ky := y0; ky <= y1; ky++ {
				row := src.Pix[ky*src.Stride:]
				for kx := x0; kx <= x1; kx++ {
					p := row[kx]
					if dilate && p > val {
						val = p
					} else if !dilate && p < val {
						val = p
					}
				}
			}
			dst.Pix[y*dst.Stride+x] = val
		}
	}
}
