package strategies

import (
	"github.com/sdcoffey/techan"
	"gitlab.com/aoterocom/autotrader/models"
	"gitlab.com/aoterocom/autotrader/strategies/indicators"
)

type scalpingSettings struct {
	period     int
	oversold   float64
	overbought float64
}

func newScalpingSettings(cfg *configReader) (scalpingSettings, int) {
	s := scalpingSettings{
		period:     cfg.int("period", 14),
		oversold:   cfg.float("oversold", 0.2),
		overbought: cfg.float("overbought", 0.8),
	}
	cfg.check(s.period >= 2, "period must be at least 2")
	cfg.check(s.oversold >= 0 && s.oversold < s.overbought && s.overbought <= 1,
		"oversold and overbought must satisfy 0 <= oversold < overbought <= 1")
	return s, 2 * s.period
}

// Stochastic RSI at the bottom of its range buys, at the top sells.
func (s *Strategy) scalpingSignal() models.Signal {
	settings := s.scalping
	lastIndex := s.series.LastIndex()
	if lastIndex+1 < 2*settings.period {
		return models.SignalHold
	}

	rsi := techan.NewRelativeStrengthIndexIndicator(techan.NewClosePriceIndicator(s.series), settings.period)
	stochRSI := indicators.NewStochasticRelativeStrengthIndicator(rsi, settings.period)
	value := stochRSI.Calculate(lastIndex).Float()

	switch {
	case value < settings.oversold:
		return models.SignalBuy
	case value > settings.overbought:
		return models.SignalSell
	default:
		return models.SignalHold
	}
}
