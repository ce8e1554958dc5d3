package models

import (
	"fmt"
	"strings"
)

type StrategyType string

const (
	StrategyTypeMeanReversion  StrategyType = "mean_reversion"
	StrategyTypeTrendFollowing StrategyType = "trend_following"
	StrategyTypeBreakout       StrategyType = "breakout"
	StrategyTypeScalping       StrategyType = "scalping"
	StrategyTypeArbitrage      StrategyType = "arbitrage"
)

var strategyTypes = []StrategyType{
	StrategyTypeMeanReversion,
	StrategyTypeTrendFollowing,
	StrategyTypeBreakout,
	StrategyTypeScalping,
	StrategyTypeArbitrage,
}

func ParseStrategyType(s string) (StrategyType, error) {
	for _, t := range strategyTypes {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%s is not a known strategy type", s)
}

// StrategyParams describes one configured strategy. Config is opaque here and
// validated by the concrete strategy on construction.
type StrategyParams struct {
	Name        string
	Description string
	Type        StrategyType
	Config      map[string]interface{}
}
