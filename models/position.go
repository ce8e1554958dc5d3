package models

import "time"

// Position is an open exposure held at the venue
type Position struct {
	Ticket     int64
	Symbol     string
	Side       SideType
	Volume     float64
	OpenPrice  float64
	StopLoss   float64
	TakeProfit float64
	OpenTime   time.Time
	Comment    string
}

// IsLong returns true if the position was opened with a buy order
func (p Position) IsLong() bool {
	return p.Side == SideTypeBuy
}

// IsShort returns true if the position was opened with a sell order
func (p Position) IsShort() bool {
	return p.Side == SideTypeSell
}

// Deal is one executed trade from the venue history
type Deal struct {
	Ticket     int64
	OrderID    int64
	Symbol     string
	Side       SideType
	Volume     float64
	Price      float64
	Profit     float64
	Commission float64
	Time       time.Time
	Comment    string
}
