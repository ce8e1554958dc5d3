package strategies

import (
	"github.com/sdcoffey/techan"
	"gitlab.com/aoterocom/autotrader/helpers"
	"gitlab.com/aoterocom/autotrader/models"
)

type meanReversionSettings struct {
	window     int
	deviations float64
}

func newMeanReversionSettings(cfg *configReader) (meanReversionSettings, int) {
	s := meanReversionSettings{
		window:     cfg.int("window", 20),
		deviations: cfg.float("deviations", 2),
	}
	cfg.check(s.window >= 2, "window must be at least 2")
	cfg.check(s.deviations > 0, "deviations must be positive")
	return s, s.window
}

// Close outside SMA ± k·σ: below the lower band buys, above the upper band sells.
func (s *Strategy) meanReversionSignal() models.Signal {
	settings := s.meanReversion
	lastIndex := s.series.LastIndex()
	if lastIndex+1 < settings.window {
		return models.SignalHold
	}

	sma := techan.NewSimpleMovingAverage(techan.NewClosePriceIndicator(s.series), settings.window).
		Calculate(lastIndex).Float()
	closes := s.closePrices()
	window := closes[len(closes)-settings.window:]
	band := settings.deviations * helpers.StdDev(window, sma)
	if band == 0 {
		return models.SignalHold
	}

	lastClose := closes[len(closes)-1]
	switch {
	case lastClose < sma-band:
		return models.SignalBuy
	case lastClose > sma+band:
		return models.SignalSell
	default:
		return models.SignalHold
	}
}
