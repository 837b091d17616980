package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/datalake-etl/constants"
	"github.com/joseph-ayodele/datalake-etl/internal/entity"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeExtractor struct {
	clock *clock
	runs  atomic.Int32
	err   error
	gate  chan struct{}
}

func (f *fakeExtractor) Dataset() constants.Dataset { return constants.DatasetPurchases }

func (f *fakeExtractor) Extract(context.Context, ...constants.Category) (*entity.ExtractionResult, error) {
	n := f.runs.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return &entity.ExtractionResult{
		RunID:      string(rune('a' + n - 1)),
		Dataset:    constants.DatasetPurchases,
		Records:    []entity.Record{entity.PurchaseRecord{PurchaseID: "P1", TotalAmount: float64(n)}},
		ComputedAt: f.clock.Now(),
	}, nil
}

func newCache(ttl time.Duration) (*Cache, *fakeExtractor, *clock) {
	clk := &clock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	fx := &fakeExtractor{clock: clk}
	return New(fx, ttl, WithClock(clk.Now)), fx, clk
}

func TestGetOrExtractWithinTTL(t *testing.T) {
	c, fx, clk := newCache(5 * time.Minute)
	ctx := context.Background()

	first, err := c.GetOrExtract(ctx, false)
	require.NoError(t, err)

	clk.Advance(4 * time.Minute)
	second, err := c.GetOrExtract(ctx, false)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, first.ComputedAt, second.ComputedAt)
	assert.Equal(t, int32(1), fx.runs.Load())
}

func TestGetOrExtractAfterTTL(t *testing.T) {
	c, fx, clk := newCache(5 * time.Minute)
	ctx := context.Background()

	first, err := c.GetOrExtract(ctx, false)
	require.NoError(t, err)

	clk.Advance(5 * time.Minute)
	second, err := c.GetOrExtract(ctx, false)
	require.NoError(t, err)
	assert.True(t, second.ComputedAt.After(first.ComputedAt))
	assert.Equal(t, int32(2), fx.runs.Load())

	_, at, ok := c.Peek()
	require.True(t, ok)
	assert.Equal(t, clk.Now(), at)
}

func TestForceRefreshBypassesCache(t *testing.T) {
	c, fx, _ := newCache(time.Hour)
	ctx := context.Background()

	first, err := c.GetOrExtract(ctx, false)
	require.NoError(t, err)
	forced, err := c.GetOrExtract(ctx, true)
	require.NoError(t, err)
	assert.NotSame(t, first, forced)
	assert.Equal(t, int32(2), fx.runs.Load())

	cached, err := c.GetOrExtract(ctx, false)
	require.NoError(t, err)
	assert.Same(t, forced, cached, "forced result replaces the entry")
}

func TestFailedRefreshKeepsPreviousEntry(t *testing.T) {
	c, fx, clk := newCache(time.Minute)
	ctx := context.Background()

	first, err := c.GetOrExtract(ctx, false)
	require.NoError(t, err)

	fx.err = errors.New("landing down")
	clk.Advance(2 * time.Minute)
	_, err = c.GetOrExtract(ctx, false)
	require.EqualError(t, err, "landing down")

	kept, _, ok := c.Peek()
	require.True(t, ok)
	assert.Same(t, first, kept)
}

func TestInvalidate(t *testing.T) {
	c, fx, _ := newCache(time.Hour)
	ctx := context.Background()

	_, err := c.GetOrExtract(ctx, false)
	require.NoError(t, err)
	c.Invalidate()
	_, _, ok := c.Peek()
	assert.False(t, ok)

	_, err = c.GetOrExtract(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fx.runs.Load())
}

func TestConcurrentRefreshesShareOneRun(t *testing.T) {
	c, fx, _ := newCache(time.Hour)
	fx.gate = make(chan struct{})

	const callers = 8
	results := make([]*entity.ExtractionResult, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.GetOrExtract(context.Background(), false)
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	require.Eventually(t, func() bool { return fx.runs.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(fx.gate)
	wg.Wait()

	assert.Equal(t, int32(1), fx.runs.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestCallerCancellationDoesNotAbortRun(t *testing.T) {
	c, fx, _ := newCache(time.Hour)
	fx.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.GetOrExtract(ctx, false)
		done <- err
	}()
	require.Eventually(t, func() bool { return fx.runs.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(fx.gate)
	require.Eventually(t, func() bool {
		_, _, ok := c.Peek()
		return ok
	}, time.Second, time.Millisecond)
}

func TestDefaultTTL(t *testing.T) {
	c := New(&fakeExtractor{clock: &clock{}}, 0)
	assert.Equal(t, DefaultTTL, c.TTL())
}
