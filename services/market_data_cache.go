package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"gitlab.com/aoterocom/autotrader/helpers"
	"gitlab.com/aoterocom/autotrader/models"
	"golang.org/x/sync/singleflight"
)

const defaultCacheCapacity = 128

// ErrHistoricalData wraps failures to obtain historical bars.
var ErrHistoricalData = errors.New("historical data unavailable")

// BarFetcher is the venue side of the cache.
type BarFetcher interface {
	GetBars(ctx context.Context, symbol string, timeframe models.Timeframe, from, to time.Time) ([]models.Bar, error)
}

// BarArchive is an optional persistent second level behind the memory cache.
type BarArchive interface {
	// LoadBars returns the archived bars of a range and whether the range was
	// archived at all.
	LoadBars(ctx context.Context, symbol string, timeframe models.Timeframe, from, to time.Time) ([]models.Bar, bool, error)
	StoreBars(ctx context.Context, symbol string, timeframe models.Timeframe, from, to time.Time, bars []models.Bar) error
}

type cacheKey struct {
	symbol    string
	from      int64
	to        int64
	timeframe models.Timeframe
}

func newCacheKey(symbol string, from, to time.Time, timeframe models.Timeframe) cacheKey {
	return cacheKey{symbol: symbol, from: from.UnixNano(), to: to.UnixNano(), timeframe: timeframe}
}

func (k cacheKey) String() string {
	return fmt.Sprintf("%s|%d|%d|%s", k.symbol, k.from, k.to, k.timeframe)
}

// CacheStats describes cache effectiveness since construction or the last
// Clear.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
	Capacity  int
}

type CacheOption func(*MarketDataCache)

func WithArchive(archive BarArchive) CacheOption {
	return func(c *MarketDataCache) { c.archive = archive }
}

// WithCacheClock sets the clock used to decide whether a range has fully
// elapsed and may be archived.
func WithCacheClock(clock func() time.Time) CacheOption {
	return func(c *MarketDataCache) { c.now = clock }
}

// WithFetchTimeout bounds every venue fetch. Zero leaves fetches bounded by
// the caller context only.
func WithFetchTimeout(timeout time.Duration) CacheOption {
	return func(c *MarketDataCache) { c.fetchTimeout = timeout }
}

// MarketDataCache is a bounded LRU of historical bar ranges keyed by
// (symbol, from, to, timeframe). Concurrent misses of the same key share one
// fetch; failed fetches and ranges still open at fetch time are not kept.
// Callers always get their own copy.
type MarketDataCache struct {
	fetcher  BarFetcher
	archive  BarArchive
	entries  *lru.Cache[cacheKey, []models.Bar]
	flights  singleflight.Group
	capacity int
	now      func() time.Time

	fetchTimeout time.Duration

	mu        sync.Mutex
	hits      uint64
	misses    uint64
	evictions uint64
}

// NewMarketDataCache builds a cache holding at most capacity ranges. A
// non-positive capacity means the default of 128.
func NewMarketDataCache(fetcher BarFetcher, capacity int, opts ...CacheOption) (*MarketDataCache, error) {
	if fetcher == nil {
		return nil, errors.New("market data cache needs a fetcher")
	}
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	c := &MarketDataCache{fetcher: fetcher, capacity: capacity, now: time.Now}
	entries, err := lru.NewWithEvict[cacheKey, []models.Bar](capacity, func(key cacheKey, _ []models.Bar) {
		c.mu.Lock()
		c.evictions++
		c.mu.Unlock()
		helpers.Logger.Debugln(fmt.Sprintf("Market data cache evicted %s", key))
	})
	if err != nil {
		return nil, err
	}
	c.entries = entries
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the bars of the range, fetching them on a miss.
func (c *MarketDataCache) Get(ctx context.Context, symbol string, from, to time.Time, timeframe models.Timeframe) ([]models.Bar, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end %s is before start %s", ErrHistoricalData, to, from)
	}
	key := newCacheKey(symbol, from, to, timeframe)

	if bars, ok := c.entries.Get(key); ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return copyBars(bars), nil
	}
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()

	result, err, _ := c.flights.Do(key.String(), func() (interface{}, error) {
		if bars, ok := c.entries.Peek(key); ok {
			return bars, nil
		}
		bars, err := c.load(ctx, symbol, from, to, timeframe)
		if err != nil {
			return nil, err
		}
		if c.closed(to) {
			c.entries.Add(key, bars)
		}
		return bars, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s %s..%s: %w", ErrHistoricalData, symbol, timeframe,
			from.Format(time.RFC3339), to.Format(time.RFC3339), err)
	}
	return copyBars(result.([]models.Bar)), nil
}

// Clear drops every entry and resets the statistics.
func (c *MarketDataCache) Clear() {
	c.entries.Purge()
	c.mu.Lock()
	c.hits, c.misses, c.evictions = 0, 0, 0
	c.mu.Unlock()
}

func (c *MarketDataCache) Stats() CacheStats {
	size := c.entries.Len()
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      size,
		Capacity:  c.capacity,
	}
}

func (c *MarketDataCache) load(ctx context.Context, symbol string, from, to time.Time, timeframe models.Timeframe) ([]models.Bar, error) {
	if c.archive != nil {
		bars, found, err := c.archive.LoadBars(ctx, symbol, timeframe, from, to)
		switch {
		case err != nil:
			helpers.Logger.Warnln(fmt.Sprintf("Bar archive read failed for %s %s: %s", symbol, timeframe, err.Error()))
		case found:
			return bars, nil
		}
	}

	fetchCtx := ctx
	if c.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
	}
	bars, err := c.fetcher.GetBars(fetchCtx, symbol, timeframe, from, to)
	if err != nil {
		return nil, err
	}

	if c.archive != nil && c.closed(to) {
		if err := c.archive.StoreBars(ctx, symbol, timeframe, from, to, bars); err != nil {
			helpers.Logger.Warnln(fmt.Sprintf("Bar archive write failed for %s %s: %s", symbol, timeframe, err.Error()))
		}
	}
	return bars, nil
}

// closed reports whether a range ending at to has fully elapsed, so its bars
// can no longer change.
func (c *MarketDataCache) closed(to time.Time) bool {
	return !to.After(c.now())
}

func copyBars(bars []models.Bar) []models.Bar {
	if bars == nil {
		return []models.Bar{}
	}
	out := make([]models.Bar, len(bars))
	copy(out, bars)
	return out
}
