package risk

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidInput is returned for non-positive sizing inputs and invalid
// risk configuration.
var ErrInvalidInput = errors.New("invalid input")

// Config holds the risk limits of one strategy instance. Percentages are
// expressed as 1.0 = 1%.
type Config struct {
	MaxRiskPerTrade  float64 `yaml:"max_risk_per_trade"`
	MaxDailyDrawdown float64 `yaml:"max_daily_drawdown"`
	MaxTradesPerDay  int     `yaml:"max_trades_per_day"`
}

func (c Config) Validate() error {
	var problems []string
	if c.MaxRiskPerTrade <= 0 || c.MaxRiskPerTrade > 100 {
		problems = append(problems, fmt.Sprintf("max_risk_per_trade %v must be in (0, 100]", c.MaxRiskPerTrade))
	}
	if c.MaxDailyDrawdown <= 0 || c.MaxDailyDrawdown > 100 {
		problems = append(problems, fmt.Sprintf("max_daily_drawdown %v must be in (0, 100]", c.MaxDailyDrawdown))
	}
	if c.MaxTradesPerDay <= 0 {
		problems = append(problems, fmt.Sprintf("max_trades_per_day %d must be positive", c.MaxTradesPerDay))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

// State is the per-day counters of a Manager.
type State struct {
	CurrentDailyPnL float64
	TradesToday     int
	LastResetDate   time.Time
}
