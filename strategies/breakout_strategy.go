package strategies

import (
	"github.com/sdcoffey/techan"
	"gitlab.com/aoterocom/autotrader/models"
)

type breakoutSettings struct {
	lookback int
}

func newBreakoutSettings(cfg *configReader) (breakoutSettings, int) {
	s := breakoutSettings{lookback: cfg.int("lookback", 20)}
	cfg.check(s.lookback >= 1, "lookback must be positive")
	return s, s.lookback + 1
}

// Close above the highest high of the previous lookback candles buys, below
// the lowest low sells.
func (s *Strategy) breakoutSignal() models.Signal {
	settings := s.breakout
	lastIndex := s.series.LastIndex()
	if lastIndex < settings.lookback {
		return models.SignalHold
	}

	highest := techan.NewMaximumValueIndicator(techan.NewHighPriceIndicator(s.series), settings.lookback).
		Calculate(lastIndex - 1).Float()
	lowest := techan.NewMinimumValueIndicator(techan.NewLowPriceIndicator(s.series), settings.lookback).
		Calculate(lastIndex - 1).Float()
	lastClose := s.series.LastCandle().ClosePrice.Float()

	switch {
	case lastClose > highest:
		return models.SignalBuy
	case lastClose < lowest:
		return models.SignalSell
	default:
		return models.SignalHold
	}
}
