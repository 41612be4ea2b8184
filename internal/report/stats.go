package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ivlev/geoanomaly/internal/analyzer"
	"github.com/ivlev/geoanomaly/internal/classifier"
	"github.com/ivlev/geoanomaly/internal/system"
)

// FormatStats renders the run report printed with -stats.
func FormatStats(batch *analyzer.BatchResult, snap system.Snapshot, build string) string {
	var b strings.Builder
	b.WriteString("--- [RUN REPORT] ---\n")
	fmt.Fprintf(&b, "Build: %s\n", build)
	fmt.Fprintf(&b, "Run: %s\n", batch.RunID)
	fmt.Fprintf(&b, "Total Time: %.2fs\n", batch.Duration.Seconds())
	fmt.Fprintf(&b, "Images: %d analyzed / %d failed / %d total\n", batch.AnalyzedImages, batch.FailedImages, batch.TotalImages)
	fmt.Fprintf(&b, "Anomalies: %d\n", batch.TotalAnomalies)

	labels := make([]string, 0, len(batch.AnomaliesByType))
	for l := range batch.AnomaliesByType {
		labels = append(labels, string(l))
	}
	sort.Strings(labels)
	for _, l := range labels {
		fmt.Fprintf(&b, "  %-14s %d\n", l, batch.AnomaliesByType[classifier.Label(l)])
	}

	fmt.Fprintf(&b, "Changed Area: %d px\n", batch.TotalChangeArea)
	if secs := batch.Duration.Seconds(); secs > 0 {
		fmt.Fprintf(&b, "Throughput: %.2f images/s\n", float64(batch.TotalImages)/secs)
	}
	fmt.Fprintf(&b, "CPUs: %d | Memory: %d MB total, %d MB available (%.1f%% used)\n",
		snap.LogicalCPUs, snap.TotalMemoryMB, snap.AvailableMB, snap.MemoryUsedPct)
	b.WriteString("--------------------\n")
	return b.String()
}

// AppendRunLog appends a one-line summary of the run to path.
func AppendRunLog(path string, batch *analyzer.BatchResult, build string) error {
	entry := fmt.Sprintf("[%s] Build: %s | Run: %s | Images: %d | Failed: %d | Anomalies: %d | Total: %.2fs\n",
		time.Now().Format("2006-01-02 15:04:05"),
		build,
		batch.RunID,
		batch.TotalImages,
		batch.FailedImages,
		batch.TotalAnomalies,
		batch.Duration.Seconds(),
	)

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(entry)
	return err
}
