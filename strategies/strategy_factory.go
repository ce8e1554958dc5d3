package strategies

import (
	"fmt"
	"time"

	"github.com/sdcoffey/big"
	"github.com/sdcoffey/techan"
	"gitlab.com/aoterocom/autotrader/models"
)

const defaultMaxCandles = 500

// Strategy is one configured trading strategy. The variant is fixed at
// construction; GenerateSignal dispatches on it.
//
// A Strategy keeps a rolling candle window that grows by one candle per
// snapshot. Callers must present snapshots in chronological order and show
// each snapshot only once.
type Strategy struct {
	params     models.StrategyParams
	maxCandles int
	series     *techan.TimeSeries
	lastTime   time.Time
	lastQuote  models.Snapshot

	meanReversion  meanReversionSettings
	trendFollowing trendFollowingSettings
	breakout       breakoutSettings
	scalping       scalpingSettings
	arbitrage      arbitrageSettings
}

// New validates params and builds the matching strategy variant.
func New(params models.StrategyParams) (*Strategy, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("strategy name is empty")
	}

	cfg := newConfigReader(params.Config)
	maxCandles := cfg.int("max_candles", defaultMaxCandles)

	s := &Strategy{
		params: params,
		series: techan.NewTimeSeries(),
	}

	var needed int
	switch params.Type {
	case models.StrategyTypeMeanReversion:
		s.meanReversion, needed = newMeanReversionSettings(cfg)
	case models.StrategyTypeTrendFollowing:
		s.trendFollowing, needed = newTrendFollowingSettings(cfg)
	case models.StrategyTypeBreakout:
		s.breakout, needed = newBreakoutSettings(cfg)
	case models.StrategyTypeScalping:
		s.scalping, needed = newScalpingSettings(cfg)
	case models.StrategyTypeArbitrage:
		s.arbitrage, needed = newArbitrageSettings(cfg)
	default:
		return nil, fmt.Errorf("%s is not a known strategy type", params.Type)
	}

	if err := cfg.finish(); err != nil {
		return nil, fmt.Errorf("strategy %s: %w", params.Name, err)
	}
	if maxCandles < needed {
		return nil, fmt.Errorf("strategy %s: max_candles %d is smaller than the %d candles the rule needs", params.Name, maxCandles, needed)
	}
	s.maxCandles = maxCandles
	return s, nil
}

// Clone builds a fresh strategy from the same params with an empty window.
func (s *Strategy) Clone() (*Strategy, error) {
	return New(s.params)
}

func (s *Strategy) Params() models.StrategyParams {
	return s.params
}

func (s *Strategy) Name() string {
	return s.params.Name
}

func (s *Strategy) Type() models.StrategyType {
	return s.params.Type
}

// Len is the number of candles currently held in the rolling window.
func (s *Strategy) Len() int {
	return len(s.series.Candles)
}

// GenerateSignal advances the rolling window with snapshot and evaluates the
// strategy rule on it.
func (s *Strategy) GenerateSignal(snapshot models.Snapshot) models.Signal {
	if !s.advance(snapshot) {
		return models.SignalHold
	}

	switch s.params.Type {
	case models.StrategyTypeMeanReversion:
		return s.meanReversionSignal()
	case models.StrategyTypeTrendFollowing:
		return s.trendFollowingSignal()
	case models.StrategyTypeBreakout:
		return s.breakoutSignal()
	case models.StrategyTypeScalping:
		return s.scalpingSignal()
	case models.StrategyTypeArbitrage:
		return s.arbitrageSignal()
	default:
		return models.SignalHold
	}
}

func (s *Strategy) advance(snapshot models.Snapshot) bool {
	if !s.lastTime.IsZero() && snapshot.Time.Before(s.lastTime) {
		return false
	}
	price := snapshot.Price()
	if price <= 0 {
		return false
	}

	candle := techan.NewCandle(techan.NewTimePeriod(snapshot.Time, 0))
	if bar := snapshot.Bar; bar != nil {
		candle.OpenPrice = big.NewDecimal(bar.Open)
		candle.ClosePrice = big.NewDecimal(bar.Close)
		candle.MaxPrice = big.NewDecimal(bar.High)
		candle.MinPrice = big.NewDecimal(bar.Low)
		candle.Volume = big.NewDecimal(bar.Volume)
		candle.TradeCount = bar.Trades
	} else {
		p := big.NewDecimal(price)
		candle.OpenPrice = p
		candle.ClosePrice = p
		candle.MaxPrice = p
		candle.MinPrice = p
		candle.Volume = big.NewDecimal(snapshot.Volume)
	}

	if !s.series.AddCandle(candle) {
		return false
	}
	if n := len(s.series.Candles); n > s.maxCandles {
		trimmed := make([]*techan.Candle, s.maxCandles)
		copy(trimmed, s.series.Candles[n-s.maxCandles:])
		s.series.Candles = trimmed
	}
	s.lastTime = snapshot.Time
	s.lastQuote = snapshot
	return true
}

func (s *Strategy) closePrices() []float64 {
	closes := make([]float64, len(s.series.Candles))
	for i, c := range s.series.Candles {
		closes[i] = c.ClosePrice.Float()
	}
	return closes
}
