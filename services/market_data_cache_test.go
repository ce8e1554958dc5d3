package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/aoterocom/autotrader/models"
)

type countingFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	bars  func(symbol string) ([]models.Bar, error)
	gate  chan struct{}
}

func newCountingFetcher() *countingFetcher {
	return &countingFetcher{
		calls: make(map[string]int),
		bars: func(symbol string) ([]models.Bar, error) {
			return []models.Bar{{Symbol: symbol, Time: monday, Close: 1}}, nil
		},
	}
}

func (f *countingFetcher) GetBars(ctx context.Context, symbol string, timeframe models.Timeframe, from, to time.Time) ([]models.Bar, error) {
	f.mu.Lock()
	f.calls[symbol]++
	f.mu.Unlock()
	if f.gate != nil {
		<-f.gate
	}
	return f.bars(symbol)
}

func (f *countingFetcher) count(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

func getBars(t *testing.T, cache *MarketDataCache, symbol string) []models.Bar {
	t.Helper()
	bars, err := cache.Get(context.Background(), symbol, monday, monday.Add(24*time.Hour), models.TimeframeH1)
	require.NoError(t, err)
	return bars
}

func TestRepeatedGetFetchesOnce(t *testing.T) {
	fetcher := newCountingFetcher()
	cache, err := NewMarketDataCache(fetcher, 0)
	require.NoError(t, err)

	first := getBars(t, cache, "EURUSD")
	second := getBars(t, cache, "EURUSD")

	assert.Equal(t, first, second)
	assert.Equal(t, 1, fetcher.count("EURUSD"))
	assert.Equal(t, CacheStats{Hits: 1, Misses: 1, Size: 1, Capacity: 128}, cache.Stats())
}

func TestDifferentTimeframeIsADifferentEntry(t *testing.T) {
	fetcher := newCountingFetcher()
	cache, err := NewMarketDataCache(fetcher, 4)
	require.NoError(t, err)

	getBars(t, cache, "EURUSD")
	_, err = cache.Get(context.Background(), "EURUSD", monday, monday.Add(24*time.Hour), models.TimeframeM15)
	require.NoError(t, err)

	assert.Equal(t, 2, fetcher.count("EURUSD"))
}

func TestLeastRecentlyUsedIsEvicted(t *testing.T) {
	fetcher := newCountingFetcher()
	cache, err := NewMarketDataCache(fetcher, 2)
	require.NoError(t, err)

	getBars(t, cache, "A")
	getBars(t, cache, "B")
	getBars(t, cache, "A")
	getBars(t, cache, "C")

	getBars(t, cache, "A")
	assert.Equal(t, 1, fetcher.count("A"), "A was used after B so it survives")
	getBars(t, cache, "B")
	assert.Equal(t, 2, fetcher.count("B"), "B was the least recently used entry")

	stats := cache.Stats()
	assert.Equal(t, uint64(2), stats.Evictions)
	assert.Equal(t, 2, stats.Size)
}

func TestFetchErrorsAreNotCached(t *testing.T) {
	cause := errors.New("venue down")
	fetcher := newCountingFetcher()
	fail := true
	fetcher.bars = func(symbol string) ([]models.Bar, error) {
		if fail {
			return nil, cause
		}
		return []models.Bar{{Symbol: symbol, Close: 2}}, nil
	}
	cache, err := NewMarketDataCache(fetcher, 2)
	require.NoError(t, err)

	_, err = cache.Get(context.Background(), "EURUSD", monday, monday.Add(time.Hour), models.TimeframeH1)
	assert.ErrorIs(t, err, ErrHistoricalData)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 0, cache.Stats().Size)

	fail = false
	bars, err := cache.Get(context.Background(), "EURUSD", monday, monday.Add(time.Hour), models.TimeframeH1)
	require.NoError(t, err)
	assert.Len(t, bars, 1)
	assert.Equal(t, 2, fetcher.count("EURUSD"))
}

func TestCallersGetCopies(t *testing.T) {
	cache, err := NewMarketDataCache(newCountingFetcher(), 2)
	require.NoError(t, err)

	bars := getBars(t, cache, "EURUSD")
	bars[0].Close = 999

	assert.Equal(t, 1.0, getBars(t, cache, "EURUSD")[0].Close)
}

func TestConcurrentMissesShareOneFetch(t *testing.T) {
	fetcher := newCountingFetcher()
	fetcher.gate = make(chan struct{})
	cache, err := NewMarketDataCache(fetcher, 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bars, err := cache.Get(context.Background(), "EURUSD", monday, monday.Add(time.Hour), models.TimeframeH1)
			assert.NoError(t, err)
			assert.Len(t, bars, 1)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(fetcher.gate)
	wg.Wait()

	assert.Equal(t, 1, fetcher.count("EURUSD"))
}

func TestClearResetsEntriesAndStats(t *testing.T) {
	fetcher := newCountingFetcher()
	cache, err := NewMarketDataCache(fetcher, 2)
	require.NoError(t, err)
	getBars(t, cache, "EURUSD")
	getBars(t, cache, "EURUSD")

	cache.Clear()

	assert.Equal(t, CacheStats{Capacity: 2}, cache.Stats())
	getBars(t, cache, "EURUSD")
	assert.Equal(t, 2, fetcher.count("EURUSD"))
}

func TestInvertedRangeIsRejected(t *testing.T) {
	fetcher := newCountingFetcher()
	cache, err := NewMarketDataCache(fetcher, 2)
	require.NoError(t, err)

	_, err = cache.Get(context.Background(), "EURUSD", monday.Add(time.Hour), monday, models.TimeframeH1)

	assert.ErrorIs(t, err, ErrHistoricalData)
	assert.Equal(t, 0, fetcher.count("EURUSD"))
}

type memoryArchive struct {
	mu     sync.Mutex
	ranges map[string][]models.Bar
	stores int
}

func (a *memoryArchive) key(symbol string, timeframe models.Timeframe, from, to time.Time) string {
	return newCacheKey(symbol, from, to, timeframe).String()
}

func (a *memoryArchive) LoadBars(ctx context.Context, symbol string, timeframe models.Timeframe, from, to time.Time) ([]models.Bar, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	bars, ok := a.ranges[a.key(symbol, timeframe, from, to)]
	return bars, ok, nil
}

func (a *memoryArchive) StoreBars(ctx context.Context, symbol string, timeframe models.Timeframe, from, to time.Time, bars []models.Bar) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ranges[a.key(symbol, timeframe, from, to)] = bars
	a.stores++
	return nil
}

func TestArchiveIsConsultedBeforeTheVenue(t *testing.T) {
	archive := &memoryArchive{ranges: map[string][]models.Bar{}}
	fetcher := newCountingFetcher()
	clock := func() time.Time { return monday.Add(48 * time.Hour) }

	first, err := NewMarketDataCache(fetcher, 2, WithArchive(archive), WithCacheClock(clock))
	require.NoError(t, err)
	getBars(t, first, "EURUSD")
	assert.Equal(t, 1, archive.stores)

	second, err := NewMarketDataCache(fetcher, 2, WithArchive(archive), WithCacheClock(clock))
	require.NoError(t, err)
	bars := getBars(t, second, "EURUSD")

	assert.Len(t, bars, 1)
	assert.Equal(t, 1, fetcher.count("EURUSD"), "the second cache is served by the archive")
}

func TestOpenRangesAreNotArchived(t *testing.T) {
	archive := &memoryArchive{ranges: map[string][]models.Bar{}}
	cache, err := NewMarketDataCache(newCountingFetcher(), 2, WithArchive(archive),
		WithCacheClock(func() time.Time { return monday.Add(time.Hour) }))
	require.NoError(t, err)

	getBars(t, cache, "EURUSD")

	assert.Equal(t, 0, archive.stores)
}

func TestOpenRangesAreRefetched(t *testing.T) {
	fetcher := newCountingFetcher()
	now := monday.Add(time.Hour)
	cache, err := NewMarketDataCache(fetcher, 2, WithCacheClock(func() time.Time { return now }))
	require.NoError(t, err)

	getBars(t, cache, "EURUSD")
	getBars(t, cache, "EURUSD")
	assert.Equal(t, 2, fetcher.count("EURUSD"), "bars of a range still open may change")
	assert.Equal(t, 0, cache.Stats().Size)

	now = monday.Add(48 * time.Hour)
	getBars(t, cache, "EURUSD")
	getBars(t, cache, "EURUSD")
	assert.Equal(t, 3, fetcher.count("EURUSD"))
	assert.Equal(t, 1, cache.Stats().Size)
}

type deadlineFetcher struct {
	deadlines []time.Duration
}

func (f *deadlineFetcher) GetBars(ctx context.Context, symbol string, timeframe models.Timeframe, from, to time.Time) ([]models.Bar, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil, errors.New("unbounded fetch")
	}
	f.deadlines = append(f.deadlines, time.Until(deadline))
	return []models.Bar{{Symbol: symbol, Time: monday, Close: 1}}, nil
}

func TestFetchesAreBoundedByTimeout(t *testing.T) {
	fetcher := &deadlineFetcher{}
	cache, err := NewMarketDataCache(fetcher, 2, WithFetchTimeout(3*time.Second))
	require.NoError(t, err)

	getBars(t, cache, "EURUSD")

	require.Len(t, fetcher.deadlines, 1)
	assert.LessOrEqual(t, fetcher.deadlines[0], 3*time.Second)

	unbounded, err := NewMarketDataCache(&deadlineFetcher{}, 2)
	require.NoError(t, err)
	_, err = unbounded.Get(context.Background(), "EURUSD", monday, monday.Add(time.Hour), models.TimeframeH1)
	assert.ErrorContains(t, err, "unbounded fetch")
}
