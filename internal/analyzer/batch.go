package analyzer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/geoanomaly/internal/classifier"
	"github.com/ivlev/geoanomaly/internal/geo"
	"github.com/ivlev/geoanomaly/internal/source"
)

// Failure kinds.
const (
	FailureLoad      = "load"
	FailureGeo       = "geo"
	FailureCancelled = "cancelled"
	FailureOther     = "other"
)

// collector is the batch's single synchronized sink. Results are stored
// by input index so the output order matches the request order however
// the workers interleave.
type collector struct {
	mu       sync.Mutex
	batch    *BatchResult
	results  []*Result
	failures []*Failure
}

func (c *collector) success(i int, res *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results[i] = res
	c.batch.AnalyzedImages++
	c.batch.TotalAnomalies += len(res.Anomalies)
	for _, an := range res.Anomalies {
		c.batch.AnomaliesByType[an.Type]++
	}
	if res.Stats != nil {
		c.batch.TotalChangeArea += res.Stats.ChangedPixels
	}
}

func (c *collector) failure(i int, path string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures[i] = &Failure{ImagePath: path, Kind: failureKind(err), Error: err.Error()}
	c.batch.FailedImages++
}

// AnalyzeBatch runs svc over reqs with at most workers images in flight.
// A failing image never aborts the batch: it is recorded under Failures
// and the rest continue.
func AnalyzeBatch(ctx context.Context, svc Service, reqs []Request, workers int) *BatchResult {
	start := time.Now()
	batch := &BatchResult{
		RunID:           uuid.NewString(),
		StartedAt:       start.UTC(),
		TotalImages:     len(reqs),
		AnomaliesByType: make(map[classifier.Label]int),
		Results:         []*Result{},
	}
	c := &collector{
		batch:    batch,
		results:  make([]*Result, len(reqs)),
		failures: make([]*Failure, len(reqs)),
	}

	var g errgroup.Group
	g.SetLimit(max(workers, 1))
	for i, req := range reqs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				c.failure(i, req.ImagePath, err)
				return nil
			}
			res, err := svc.Analyze(ctx, req)
			if err != nil {
				c.failure(i, req.ImagePath, err)
				return nil
			}
			c.success(i, res)
			return nil
		})
	}
	g.Wait()

	for i := range reqs {
		if c.results[i] != nil {
			batch.Results = append(batch.Results, c.results[i])
		}
		if c.failures[i] != nil {
			batch.Failures = append(batch.Failures, *c.failures[i])
		}
	}
	batch.Duration = time.Since(start)
	return batch
}

func failureKind(err error) string {
	var loadErr *source.ImageLoadError
	var boundsErr *geo.InvalidBoundsError
	var geoErr *geo.MissingGeoContextError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return FailureCancelled
	case errors.As(err, &loadErr):
		return FailureLoad
	case errors.As(err, &boundsErr), errors.As(err, &geoErr):
		return FailureGeo
	default:
		return FailureOther
	}
}
