package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/aoterocom/autotrader/models"
	"gitlab.com/aoterocom/autotrader/risk"
)

const strategiesYAML = `
strategies:
  - name: btc-breakout
    description: Daily range breakout
    type: breakout
    config:
      lookback: 20
    symbols: [BTCUSDT, ETHUSDT]
    start: "09:00"
    end: "17:30"
    timezone: Europe/Madrid
    capital: 10000
    risk:
      max_risk_per_trade: 1
      max_daily_drawdown: 5
      max_trades_per_day: 10
    stop_loss_points: 50
    take_profit_points: 100
    point_size: 0.01
    tick_value: 1
    comment: breakout
  - name: night-scalper
    type: scalping
    config:
      period: 14
      oversold: 0.1
    symbols: [BTCUSDT]
    start: "22:00"
    end: "06:00"
    capital: 5000
    risk:
      max_risk_per_trade: 0.5
      max_daily_drawdown: 2
      max_trades_per_day: 40
    stop_loss_points: 20
    point_size: 0.01
    tick_value: 1
`

func TestLoadStrategies(t *testing.T) {
	path := writeFile(t, "strategies.yaml", strategiesYAML)

	instances, err := LoadStrategies(path)
	require.NoError(t, err)
	require.Len(t, instances, 2)

	breakout := instances[0]
	assert.Equal(t, "btc-breakout", breakout.Name)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, breakout.Symbols)
	assert.Equal(t, risk.Config{MaxRiskPerTrade: 1, MaxDailyDrawdown: 5, MaxTradesPerDay: 10}, breakout.Risk)
	assert.Equal(t, 100.0, breakout.Execution().TakeProfitPoints)

	params, err := breakout.Params()
	require.NoError(t, err)
	assert.Equal(t, models.StrategyTypeBreakout, params.Type)

	instance, err := breakout.Build(nil)
	require.NoError(t, err)
	assert.Equal(t, "btc-breakout", instance.Name())
	assert.Equal(t, "Europe/Madrid", instance.Location.String())
	assert.Equal(t, "17:30", instance.End.String())

	scalper, err := instances[1].Build(nil)
	require.NoError(t, err)
	assert.True(t, scalper.Overnight())
	assert.Equal(t, time.UTC, scalper.Location)
}

func TestBuildGivesIndependentRiskManagers(t *testing.T) {
	instances, err := ParseStrategies([]byte(strategiesYAML))
	require.NoError(t, err)

	first, err := instances[0].Build(nil)
	require.NoError(t, err)
	second, err := instances[0].Build(nil)
	require.NoError(t, err)

	first.Risk.RegisterTradeResult(-50)
	assert.Equal(t, 0, second.Risk.Snapshot().TradesToday)
}

func TestParseStrategiesValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "empty file",
			yaml: "strategies: []",
			want: []string{"no strategies defined"},
		},
		{
			name: "malformed",
			yaml: "strategies: [",
			want: []string{"yaml"},
		},
		{
			name: "unknown type and bad window",
			yaml: `
strategies:
  - name: a
    type: martingale
    symbols: [X]
    start: "9am"
    end: "17:00"
    capital: 100
    risk: {max_risk_per_trade: 1, max_daily_drawdown: 5, max_trades_per_day: 1}
    stop_loss_points: 1
    point_size: 1
    tick_value: 1
`,
			want: []string{"strategy a:", "martingale is not a known strategy type", "start:"},
		},
		{
			name: "bad risk and capital",
			yaml: `
strategies:
  - name: b
    type: breakout
    symbols: [X]
    start: "09:00"
    end: "17:00"
    timezone: Mars/Olympus
    risk: {max_risk_per_trade: 150, max_daily_drawdown: 5, max_trades_per_day: 1}
    stop_loss_points: 1
    point_size: 1
    tick_value: 1
`,
			want: []string{"capital 0 must be positive", "max_risk_per_trade 150", "Mars/Olympus"},
		},
		{
			name: "strategy parameters",
			yaml: `
strategies:
  - name: c
    type: trend_following
    config: {fast: 30, slow: 10}
    symbols: [X]
    start: "09:00"
    end: "17:00"
    capital: 100
    risk: {max_risk_per_trade: 1, max_daily_drawdown: 5, max_trades_per_day: 1}
    stop_loss_points: 1
    point_size: 1
    tick_value: 1
`,
			want: []string{"strategy c:", "invalid config"},
		},
		{
			name: "duplicate names",
			yaml: `
strategies:
  - &d
    name: d
    type: breakout
    symbols: [X]
    start: "09:00"
    end: "17:00"
    capital: 100
    risk: {max_risk_per_trade: 1, max_daily_drawdown: 5, max_trades_per_day: 1}
    stop_loss_points: 1
    point_size: 1
    tick_value: 1
  - *d
`,
			want: []string{"strategy d defined twice"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instances, err := ParseStrategies([]byte(tt.yaml))
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Nil(t, instances)
			for _, want := range tt.want {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestLoadStrategiesMissingFile(t *testing.T) {
	_, err := LoadStrategies(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
