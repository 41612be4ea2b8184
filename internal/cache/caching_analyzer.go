// Package cache provides a Redis-backed result cache for the analyzer.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ivlev/geoanomaly/internal/analyzer"
	"github.com/ivlev/geoanomaly/internal/source"
)

// CachingAnalyzer decorates an analyzer.Service with Redis caching. Keys
// are content hashes, so a rewritten file never hits a stale entry.
type CachingAnalyzer struct {
	inner     analyzer.Service
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
	params    string
}

var _ analyzer.Service = (*CachingAnalyzer)(nil)

// NewCachingAnalyzer wraps inner. If ttl is 0 it defaults to 24 hours; an
// empty namespace becomes "geoanomaly". params fingerprints the detector
// and classifier settings that change results.
func NewCachingAnalyzer(rdb *redis.Client, ttl time.Duration, inner analyzer.Service, namespace, params string) *CachingAnalyzer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if namespace == "" {
		namespace = "geoanomaly"
	}
	return &CachingAnalyzer{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
		params:    params,
	}
}

// Analyze returns a cached result when one exists and otherwise runs the
// wrapped analyzer, storing successful results. Cache failures are never
// reported to the caller.
func (c *CachingAnalyzer) Analyze(ctx context.Context, req analyzer.Request) (*analyzer.Result, error) {
	if c.rdb == nil {
		return c.inner.Analyze(ctx, req)
	}

	key, err := c.Key(req)
	if err != nil {
		// Unreadable inputs: let the analyzer produce the real load error.
		return c.inner.Analyze(ctx, req)
	}

	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out analyzer.Result
		if err := json.Unmarshal(b, &out); err == nil {
			return &out, nil
		}
		_ = c.rdb.Del(ctx, key).Err()
	}

	out, err := c.inner.Analyze(ctx, req)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(out); err == nil {
		_ = c.rdb.Set(ctx, key, b, c.ttl).Err()
	}
	return out, nil
}

// Key derives the cache key from the bytes of the image, its reference
// and sidecars, the request bounds and the parameter fingerprint.
func (c *CachingAnalyzer) Key(req analyzer.Request) (string, error) {
	h := sha256.New()

	if err := hashFile(h, req.ImagePath, true); err != nil {
		return "", err
	}
	if err := hashFile(h, req.ImagePath+source.SidecarSuffix, false); err != nil {
		return "", err
	}
	if req.ReferencePath != "" {
		if err := hashFile(h, req.ReferencePath, true); err != nil {
			return "", err
		}
	}
	if req.Bounds != nil {
		fmt.Fprintf(h, "bounds=%s;", req.Bounds)
	}
	fmt.Fprintf(h, "params=%s;", c.params)

	return fmt.Sprintf("%s:%s", c.namespace, hex.EncodeToString(h.Sum(nil))), nil
}

// Invalidate drops every entry in the namespace.
func (c *CachingAnalyzer) Invalidate(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	return c.deleteByPattern(ctx, c.namespace+":*")
}

func (c *CachingAnalyzer) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, cur, err := c.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return nil
}

func hashFile(w io.Writer, path string, required bool) error {
	f, err := os.Open(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			fmt.Fprint(w, "-;")
			return nil
		}
		return err
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return err
	}
	fmt.Fprint(w, ";")
	return nil
}
