package risk

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var defaultConfig = Config{MaxRiskPerTrade: 1.0, MaxDailyDrawdown: 5.0, MaxTradesPerDay: 3}

func newManager(t *testing.T, config Config) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)}
	m, err := NewManager(config, 10000, clock.Now)
	require.NoError(t, err)
	return m, clock
}

func TestRegisterTradeResultAccumulates(t *testing.T) {
	m, _ := newManager(t, Config{MaxRiskPerTrade: 1, MaxDailyDrawdown: 50, MaxTradesPerDay: 100})
	pnls := []float64{12.5, -3, 0, 40.25, -20}

	for _, pnl := range pnls {
		m.RegisterTradeResult(pnl)
	}

	state := m.Snapshot()
	assert.Equal(t, len(pnls), state.TradesToday)
	assert.InDelta(t, 29.75, state.CurrentDailyPnL, 1e-9)
}

func TestTradeLimitResetsOnNewDay(t *testing.T) {
	m, clock := newManager(t, defaultConfig)

	for i := 0; i < defaultConfig.MaxTradesPerDay; i++ {
		require.True(t, m.CanOpenNewTrade())
		m.RegisterTradeResult(1)
	}
	assert.False(t, m.CanOpenNewTrade())

	clock.Set(clock.Now().Add(24 * time.Hour))

	assert.True(t, m.CanOpenNewTrade())
	state := m.Snapshot()
	assert.Equal(t, 0, state.TradesToday)
	assert.Equal(t, 0.0, state.CurrentDailyPnL)
	assert.Equal(t, time.Date(2024, 5, 7, 0, 0, 0, 0, time.UTC), state.LastResetDate)
}

func TestRolloverFollowsCalendarDateNotElapsedTime(t *testing.T) {
	m, clock := newManager(t, defaultConfig)
	clock.Set(time.Date(2024, 5, 6, 23, 59, 0, 0, time.UTC))
	m.RegisterTradeResult(-10)

	clock.Set(time.Date(2024, 5, 7, 0, 1, 0, 0, time.UTC))

	assert.Equal(t, 0, m.Snapshot().TradesToday)
}

func TestDrawdownGate(t *testing.T) {
	m, _ := newManager(t, defaultConfig)

	m.RegisterTradeResult(-400)
	assert.True(t, m.CanOpenNewTrade())

	m.RegisterTradeResult(-100)
	assert.False(t, m.CanOpenNewTrade(), "a loss equal to 5% of 10000 blocks new trades")
}

func TestCalculatePositionSize(t *testing.T) {
	m, _ := newManager(t, defaultConfig)

	size, err := m.CalculatePositionSize(10000, 50, 1.0)

	require.NoError(t, err)
	assert.InDelta(t, 2.0, size, 1e-12)
}

func TestCalculatePositionSizeInvalidInput(t *testing.T) {
	m, _ := newManager(t, defaultConfig)

	tests := []struct {
		name                         string
		balance, stopLoss, tickValue float64
	}{
		{"zero stop loss", 10000, 0, 1},
		{"negative balance", -1, 50, 1},
		{"zero tick value", 10000, 50, 0},
		{"NaN balance", math.NaN(), 50, 1},
		{"infinite balance", math.Inf(1), 50, 1},
		{"NaN stop loss", 10000, math.NaN(), 1},
		{"infinite tick value", 10000, 50, math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.CalculatePositionSize(tt.balance, tt.stopLoss, tt.tickValue)
			assert.True(t, errors.Is(err, ErrInvalidInput))
		})
	}
}

func TestNewManagerValidatesConfig(t *testing.T) {
	_, err := NewManager(Config{MaxRiskPerTrade: 0, MaxDailyDrawdown: 120, MaxTradesPerDay: 0}, 10000, nil)

	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "max_risk_per_trade")
	assert.Contains(t, err.Error(), "max_daily_drawdown")
	assert.Contains(t, err.Error(), "max_trades_per_day")

	_, err = NewManager(defaultConfig, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewManager(defaultConfig, math.NaN(), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestManagerIsSafeForConcurrentUse(t *testing.T) {
	m, _ := newManager(t, Config{MaxRiskPerTrade: 1, MaxDailyDrawdown: 100, MaxTradesPerDay: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.CanOpenNewTrade()
			m.RegisterTradeResult(1)
		}()
	}
	wg.Wait()

	state := m.Snapshot()
	assert.Equal(t, 50, state.TradesToday)
	assert.Equal(t, 50.0, state.CurrentDailyPnL)
}

func TestSnapshotIsACopy(t *testing.T) {
	m, _ := newManager(t, defaultConfig)
	state := m.Snapshot()
	state.TradesToday = 99

	assert.Equal(t, 0, m.Snapshot().TradesToday)
}
