package classifier

import (
	"encoding/binary"
	"hash/fnv"
	"image"
	"math"
	"math/rand"

	"github.com/ivlev/geoanomaly/internal/detector"
)

// Seeded is a demo classifier with the label distribution of the
// prototype service (70% anomalies at 0.6-0.95, otherwise "normal" at
// 0.3-0.6). Each region gets its own PRNG seeded from Seed and the
// pixels inside the region bbox, so the same content gets the same
// decision wherever it appears. Safe for concurrent use.
type Seeded struct {
	Seed int64
}

func NewSeeded(seed int64) *Seeded {
	return &Seeded{Seed: seed}
}

func (s *Seeded) Classify(img image.Image, region detector.Region) (Result, error) {
	seed, err := s.contentSeed(img, region.BBox)
	if err != nil {
		return Result{}, err
	}
	r := rand.New(rand.NewSource(seed))

	if r.Float64() > 0.3 {
		label := AnomalyLabels[r.Intn(len(AnomalyLabels))]
		return Result{Label: label, Confidence: round2(0.6 + r.Float64()*0.35)}, nil
	}
	return Result{Label: Normal, Confidence: round2(0.3 + r.Float64()*0.3)}, nil
}

// contentSeed hashes the RGBA values inside bbox, row by row, together
// with the clipped size.
func (s *Seeded) contentSeed(img image.Image, bbox image.Rectangle) (int64, error) {
	b := img.Bounds()
	r := bbox.Add(b.Min).Intersect(b)
	if r.Empty() {
		return 0, ErrRegionOutsideImage
	}

	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[:4], uint32(r.Dx()))
	binary.LittleEndian.PutUint32(buf[4:], uint32(r.Dy()))
	h.Write(buf[:])
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			cr, cg, cb, ca := img.At(x, y).RGBA()
			binary.LittleEndian.PutUint16(buf[0:], uint16(cr))
			binary.LittleEndian.PutUint16(buf[2:], uint16(cg))
			binary.LittleEndian.PutUint16(buf[4:], uint16(cb))
			binary.LittleEndian.PutUint16(buf[6:], uint16(ca))
			h.Write(buf[:])
		}
	}
	return s.Seed ^ int64(h.Sum64()), nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
