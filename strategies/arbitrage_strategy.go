package strategies

import (
	"gitlab.com/aoterocom/autotrader/helpers"
	"gitlab.com/aoterocom/autotrader/models"
)

type arbitrageSettings struct {
	window       int
	thresholdBps float64
}

func newArbitrageSettings(cfg *configReader) (arbitrageSettings, int) {
	s := arbitrageSettings{
		window:       cfg.int("window", 50),
		thresholdBps: cfg.float("threshold_bps", 25),
	}
	cfg.check(s.window >= 1, "window must be positive")
	cfg.check(s.thresholdBps > 0, "threshold_bps must be positive")
	return s, s.window + 1
}

// Quote crossing a band around the rolling fair price: an ask below the band
// buys, a bid above it sells. Using the touch prices keeps the spread in the
// decision.
func (s *Strategy) arbitrageSignal() models.Signal {
	settings := s.arbitrage
	closes := s.closePrices()
	if len(closes) < settings.window+1 {
		return models.SignalHold
	}

	fair := helpers.Mean(closes[len(closes)-1-settings.window : len(closes)-1])
	offset := fair * settings.thresholdBps / 10000

	ask, bid := s.lastQuote.Ask, s.lastQuote.Bid
	if ask <= 0 {
		ask = s.lastQuote.Price()
	}
	if bid <= 0 {
		bid = s.lastQuote.Price()
	}

	switch {
	case ask < fair-offset:
		return models.SignalBuy
	case bid > fair+offset:
		return models.SignalSell
	default:
		return models.SignalHold
	}
}
