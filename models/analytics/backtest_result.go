package analytics

import (
	"time"

	"gitlab.com/aoterocom/autotrader/models"
)

// BacktestResult summarizes one replay. It is built once by the runner and
// never changed afterwards.
type BacktestResult struct {
	Strategy       string
	Symbol         string
	Timeframe      models.Timeframe
	From           time.Time
	To             time.Time
	Bars           int
	InitialBalance float64
	FinalBalance   float64
	NetPnL         float64
	ReturnPct      float64
	MaxDrawdownPct float64
	Trades         int
	ClosedTrades   int
	Wins           int
	Losses         int
	WinRate        float64
	Rejected       int
	ProfitList     []float64
	TradeLog       []SimulatedTrade
}

// SimulatedTrade is one closed round trip of a replay
type SimulatedTrade struct {
	Symbol     string
	Side       models.SideType
	Volume     float64
	EntryTime  time.Time
	EntryPrice float64
	ExitTime   time.Time
	ExitPrice  float64
	Profit     float64
	Trigger    models.ExitTrigger
}
