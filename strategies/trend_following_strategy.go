package strategies

import (
	"github.com/sdcoffey/techan"
	"gitlab.com/aoterocom/autotrader/models"
)

type trendFollowingSettings struct {
	fast int
	slow int
}

func newTrendFollowingSettings(cfg *configReader) (trendFollowingSettings, int) {
	s := trendFollowingSettings{
		fast: cfg.int("fast", 12),
		slow: cfg.int("slow", 26),
	}
	cfg.check(s.fast >= 1, "fast must be positive")
	cfg.check(s.fast < s.slow, "fast must be smaller than slow")
	return s, s.slow + 1
}

// Fast EMA crossing above the slow EMA buys, crossing below sells.
func (s *Strategy) trendFollowingSignal() models.Signal {
	settings := s.trendFollowing
	lastIndex := s.series.LastIndex()
	if lastIndex < settings.slow {
		return models.SignalHold
	}

	closePrices := techan.NewClosePriceIndicator(s.series)
	fast := techan.NewEMAIndicator(closePrices, settings.fast)
	slow := techan.NewEMAIndicator(closePrices, settings.slow)

	fastNow, slowNow := fast.Calculate(lastIndex).Float(), slow.Calculate(lastIndex).Float()
	fastPrev, slowPrev := fast.Calculate(lastIndex-1).Float(), slow.Calculate(lastIndex-1).Float()

	switch {
	case fastPrev <= slowPrev && fastNow > slowNow:
		return models.SignalBuy
	case fastPrev >= slowPrev && fastNow < slowNow:
		return models.SignalSell
	default:
		return models.SignalHold
	}
}
