package models

import "fmt"

// Signal is a strategy directive for one evaluation
type Signal int

const (
	SignalHold Signal = iota
	SignalBuy
	SignalSell
)

func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	default:
		return "HOLD"
	}
}

// Side maps a trading signal to an order side. HOLD has no side.
func (s Signal) Side() (SideType, error) {
	switch s {
	case SignalBuy:
		return SideTypeBuy, nil
	case SignalSell:
		return SideTypeSell, nil
	default:
		return "", fmt.Errorf("signal %s has no order side", s)
	}
}
