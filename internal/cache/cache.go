// Package cache memoizes the latest extraction result for a bounded window.
package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/joseph-ayodele/datalake-etl/constants"
	"github.com/joseph-ayodele/datalake-etl/internal/entity"
	"github.com/joseph-ayodele/datalake-etl/internal/metrics"
)

// DefaultTTL applies when New is given a non-positive TTL.
const DefaultTTL = 5 * time.Minute

// Extractor produces a fresh result. *extract.Orchestrator satisfies it.
type Extractor interface {
	Extract(ctx context.Context, categories ...constants.Category) (*entity.ExtractionResult, error)
	Dataset() constants.Dataset
}

// entry is immutable once stored.
type entry struct {
	result     *entity.ExtractionResult
	computedAt time.Time
}

// Cache holds at most one entry. Readers load the entry through an atomic
// pointer, so they observe either the previous or the next complete entry.
// Concurrent refreshes share one extraction run.
type Cache struct {
	extractor Extractor
	ttl       time.Duration
	now       func() time.Time
	metrics   *metrics.Metrics
	logger    *slog.Logger

	current    atomic.Pointer[entry]
	generation atomic.Uint64
	group      singleflight.Group
}

type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

func New(extractor Extractor, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{extractor: extractor, ttl: ttl, now: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Cache) TTL() time.Duration { return c.ttl }

// GetOrExtract returns the cached result while it is younger than the TTL and
// runs a fresh extraction otherwise. forceRefresh always runs one. A failed
// run leaves the previous entry in place.
func (c *Cache) GetOrExtract(ctx context.Context, forceRefresh bool) (*entity.ExtractionResult, error) {
	dataset := string(c.extractor.Dataset())
	if !forceRefresh {
		if e := c.current.Load(); e != nil && c.now().Sub(e.computedAt) < c.ttl {
			c.metrics.CacheRequest(dataset, "hit")
			return e.result, nil
		}
		c.metrics.CacheRequest(dataset, "miss")
	} else {
		c.metrics.CacheRequest(dataset, "forced")
	}

	// The shared run outlives any single caller's context.
	runCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("refresh", func() (any, error) {
		return c.refresh(runCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*entity.ExtractionResult), nil
	}
}

func (c *Cache) refresh(ctx context.Context) (*entity.ExtractionResult, error) {
	gen := c.generation.Load()
	res, err := c.extractor.Extract(ctx)
	if err != nil {
		c.logger.Warn("cache.refresh.failed", "dataset", c.extractor.Dataset(), "error", err)
		return nil, err
	}
	e := &entry{result: res, computedAt: c.now()}
	// A run overlapped by Invalidate is returned to its waiters but not stored.
	if c.generation.Load() == gen {
		c.current.Store(e)
	}
	c.logger.Debug("cache.refresh.ok", "dataset", c.extractor.Dataset(), "run_id", res.RunID, "records", res.Total())
	return res, nil
}

// Invalidate drops the entry so the next read recomputes.
func (c *Cache) Invalidate() {
	c.generation.Add(1)
	c.current.Store(nil)
}

// Peek returns the current entry without refreshing it.
func (c *Cache) Peek() (*entity.ExtractionResult, time.Time, bool) {
	e := c.current.Load()
	if e == nil {
		return nil, time.Time{}, false
	}
	return e.result, e.computedAt, true
}
