package indicators

import (
	"github.com/sdcoffey/big"
	"github.com/sdcoffey/techan"
)

type stochasticRelativeStrengthIndicator struct {
	rsi    techan.Indicator
	minRSI techan.Indicator
	maxRSI techan.Indicator
}

// NewStochasticRelativeStrengthIndicator scales an RSI into [0, 1] against
// its own range over the last window values. A flat range yields 0.5.
func NewStochasticRelativeStrengthIndicator(baseIndicator techan.Indicator, window int) techan.Indicator {
	return stochasticRelativeStrengthIndicator{
		rsi:    baseIndicator,
		minRSI: techan.NewMinimumValueIndicator(baseIndicator, window),
		maxRSI: techan.NewMaximumValueIndicator(baseIndicator, window),
	}
}

func (srs stochasticRelativeStrengthIndicator) Calculate(index int) big.Decimal {
	rsi := srs.rsi.Calculate(index).Float()
	minRSI := srs.minRSI.Calculate(index).Float()
	maxRSI := srs.maxRSI.Calculate(index).Float()

	divisor := maxRSI - minRSI
	if divisor == 0.0 {
		return big.NewDecimal(0.5)
	}

	return big.NewDecimal((rsi - minRSI) / divisor)
}
