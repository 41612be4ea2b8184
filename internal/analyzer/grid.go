package analyzer

import (
	"image"

	"github.com/ivlev/geoanomaly/internal/classifier"
	"github.com/ivlev/geoanomaly/internal/detector"
	"github.com/ivlev/geoanomaly/internal/geo"
	"github.com/ivlev/geoanomaly/internal/source"
)

// Grid scan rules. Without a baseline there is no change to measure and
// confidences are fixed.
const (
	gridFireDominance   = 1.5
	gridFireConfidence  = 0.6
	gridBareRedFloor    = 100
	gridBareConfidence  = 0.5
	degradedModeWarning = "no reference image: grid colour scan only, confidences are not change-based"
)

type cellHit struct {
	region detector.Region
	result classifier.Result
}

func (a *Analyzer) scanGrid(res *Result, img *source.Image) error {
	res.Mode = ModeSingle
	res.Degraded = true
	res.warn(degradedModeWarning)

	size := img.Raster.Bounds().Size()
	mapper, err := geo.NewMapper(size.X, size.Y, res.Bounds)
	if err != nil {
		return err
	}

	for _, hit := range scanCells(img.Raster, a.gridSize) {
		anomaly := newAnomaly(mapper, hit.region, hit.result, res.ImagePath)
		res.Anomalies = append(res.Anomalies, anomaly)
	}
	return nil
}

// scanCells splits img into an n×n grid of equal cells (remainder pixels
// on the right and bottom edges are not scanned) and flags cells by their
// mean colour: red-dominant as fire, red with dark green and blue as
// deforestation.
func scanCells(img image.Image, n int) []cellHit {
	b := img.Bounds()
	cw, ch := b.Dx()/n, b.Dy()/n
	if cw == 0 || ch == 0 {
		return nil
	}

	var hits []cellHit
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			cell := image.Rect(col*cw, row*ch, (col+1)*cw, (row+1)*ch)
			r, g, bl := meanRGB(img, cell.Add(b.Min))

			var res classifier.Result
			switch {
			case r > g*gridFireDominance && r > bl*gridFireDominance:
				res = classifier.Result{Label: classifier.Fire, Confidence: gridFireConfidence}
			case r > gridBareRedFloor && g < gridBareRedFloor && bl < gridBareRedFloor:
				res = classifier.Result{Label: classifier.Deforestation, Confidence: gridBareConfidence}
			default:
				continue
			}

			hits = append(hits, cellHit{
				region: detector.Region{
					BBox:   cell,
					Area:   cw * ch,
					Center: image.Point{X: cell.Min.X + cw/2, Y: cell.Min.Y + ch/2},
				},
				result: res,
			})
		}
	}
	return hits
}

func meanRGB(img image.Image, r image.Rectangle) (float64, float64, float64) {
	var sr, sg, sb float64
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			sr += float64(cr >> 8)
			sg += float64(cg >> 8)
			sb += float64(cb >> 8)
		}
	}
	n := float64(r.Dx() * r.Dy())
	return sr / n, sg / n, sb / n
}
