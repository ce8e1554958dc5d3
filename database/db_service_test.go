package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/aoterocom/autotrader/models"
	"gorm.io/driver/sqlite"
)

func newArchive(t *testing.T) *DBService {
	t.Helper()
	dbs, err := NewDBServiceWithDialector(sqlite.Open("file::memory:"))
	require.NoError(t, err)
	sqlDB, err := dbs.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = dbs.Close() })
	return dbs
}

var start = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func hourlyBars(n int) []models.Bar {
	bars := make([]models.Bar, n)
	for i := range bars {
		price := 100 + float64(i)
		bars[i] = models.Bar{
			Symbol: "EURUSD",
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   price, High: price + 1, Low: price - 1, Close: price + 0.5,
			Volume: 10, Trades: uint(i),
		}
	}
	return bars
}

func TestUnknownRangeIsNotFound(t *testing.T) {
	dbs := newArchive(t)

	bars, found, err := dbs.LoadBars(context.Background(), "EURUSD", models.TimeframeH1, start, start.Add(time.Hour))

	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, bars)
}

func TestStoreAndLoadRange(t *testing.T) {
	dbs := newArchive(t)
	end := start.Add(3 * time.Hour)
	require.NoError(t, dbs.StoreBars(context.Background(), "EURUSD", models.TimeframeH1, start, end, hourlyBars(4)))

	bars, found, err := dbs.LoadBars(context.Background(), "EURUSD", models.TimeframeH1, start, end)

	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, bars, 4)
	assert.True(t, bars[2].Time.Equal(start.Add(2*time.Hour)))
	assert.Equal(t, 102.0, bars[2].Open)
	assert.Equal(t, 103.0, bars[2].High)
	assert.Equal(t, 101.0, bars[2].Low)
	assert.Equal(t, 102.5, bars[2].Close)
	assert.Equal(t, uint(2), bars[2].Trades)

	_, found, err = dbs.LoadBars(context.Background(), "EURUSD", models.TimeframeM15, start, end)
	require.NoError(t, err)
	assert.False(t, found, "ranges are per timeframe")
}

func TestOverlappingRangesShareCandles(t *testing.T) {
	dbs := newArchive(t)
	bars := hourlyBars(6)
	require.NoError(t, dbs.StoreBars(context.Background(), "EURUSD", models.TimeframeH1, start, start.Add(3*time.Hour), bars[:4]))
	require.NoError(t, dbs.StoreBars(context.Background(), "EURUSD", models.TimeframeH1, start.Add(2*time.Hour), start.Add(5*time.Hour), bars[2:]))

	var count int64
	require.NoError(t, dbs.DB.Table("candles").Count(&count).Error)
	assert.Equal(t, int64(6), count)

	loaded, found, err := dbs.LoadBars(context.Background(), "EURUSD", models.TimeframeH1, start.Add(2*time.Hour), start.Add(5*time.Hour))
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, loaded, 4)
}

func TestStoringARangeTwiceUpdatesIt(t *testing.T) {
	dbs := newArchive(t)
	end := start.Add(time.Hour)
	bars := hourlyBars(2)
	require.NoError(t, dbs.StoreBars(context.Background(), "EURUSD", models.TimeframeH1, start, end, bars))

	bars[1].Close = 42
	require.NoError(t, dbs.StoreBars(context.Background(), "EURUSD", models.TimeframeH1, start, end, bars))

	loaded, found, err := dbs.LoadBars(context.Background(), "EURUSD", models.TimeframeH1, start, end)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 42.0, loaded[1].Close)
}
