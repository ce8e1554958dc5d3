package models

import "time"

// Bar is one OHLCV record of a historical series
type Bar struct {
	Symbol string
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Trades uint
}

// Snapshot is the market state a strategy evaluates. Live snapshots carry a
// quote (Bid/Ask/Last); replayed snapshots carry the bar being evaluated.
type Snapshot struct {
	Symbol string
	Time   time.Time
	Bid    float64
	Ask    float64
	Last   float64
	Volume float64
	Bar    *Bar
}

// SnapshotFromBar wraps a historical bar so it can be fed to a strategy.
func SnapshotFromBar(bar Bar) Snapshot {
	b := bar
	return Snapshot{
		Symbol: bar.Symbol,
		Time:   bar.Time,
		Bid:    bar.Close,
		Ask:    bar.Close,
		Last:   bar.Close,
		Volume: bar.Volume,
		Bar:    &b,
	}
}

// Price returns the best reference price of the snapshot: last trade if
// known, otherwise the mid quote.
func (s Snapshot) Price() float64 {
	if s.Last > 0 {
		return s.Last
	}
	if s.Bid > 0 && s.Ask > 0 {
		return (s.Bid + s.Ask) / 2
	}
	if s.Bid > 0 {
		return s.Bid
	}
	return s.Ask
}

// Mid returns the mid quote, falling back to Price.
func (s Snapshot) Mid() float64 {
	if s.Bid > 0 && s.Ask > 0 {
		return (s.Bid + s.Ask) / 2
	}
	return s.Price()
}
