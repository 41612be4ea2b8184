package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/ivlev/geoanomaly/internal/analyzer"
	"github.com/ivlev/geoanomaly/internal/geo"
)

const qrSize = 256

// GeoURI formats p as an RFC 5870 geo URI.
func GeoURI(p geo.Point) string {
	return "geo:" + strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lon, 'f', -1, 64)
}

// WriteQRCodes writes one PNG QR code per anomaly into dir, encoding its
// geo URI so field teams can open the location on a phone. Files are
// named qr_<image>_<n>.png; the written paths are returned in order.
func WriteQRCodes(results []*analyzer.Result, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	var paths []string
	for _, res := range results {
		if res == nil {
			continue
		}
		base := filepath.Base(res.ImagePath)
		base = strings.TrimSuffix(base, filepath.Ext(base))
		for i, a := range res.Anomalies {
			path := filepath.Join(dir, fmt.Sprintf("qr_%s_%d.png", base, i+1))
			if err := qrcode.WriteFile(GeoURI(a.Location), qrcode.Medium, qrSize, path); err != nil {
				return paths, fmt.Errorf("qr for %s: %w", path, err)
			}
			paths = append(paths, path)
		}
	}
	return paths, nil
}
