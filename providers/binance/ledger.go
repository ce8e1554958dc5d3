package binance

import (
	"math"
	"sync"

	"gitlab.com/aoterocom/autotrader/models"
)

// ledger tracks the average entry price of each spot holding so that sells
// report the profit they realize. Holdings bought before the connector
// started have no basis and realize nothing.
type ledger struct {
	mu     sync.Mutex
	basis  map[string]*costBasis
	orders map[int64]orderResult
	trades map[int64]float64
}

type costBasis struct {
	volume float64
	price  float64
}

type orderResult struct {
	volume   float64
	realized float64
}

func newLedger() *ledger {
	return &ledger{
		basis:  make(map[string]*costBasis),
		orders: make(map[int64]orderResult),
		trades: make(map[int64]float64),
	}
}

// applyOrder books a whole order filled by this connector and returns its
// realized profit net of commission.
func (l *ledger) applyOrder(orderID int64, symbol string, side models.SideType, volume, price, commission float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if result, ok := l.orders[orderID]; ok {
		return result.realized
	}
	realized := l.apply(symbol, side, volume, price) - commission
	l.orders[orderID] = orderResult{volume: volume, realized: realized}
	return realized
}

// tradeProfit returns the realized profit of one account trade. Trades of
// orders already booked by applyOrder get their share of the order result;
// others, such as exit bracket fills, are booked here once.
func (l *ledger) tradeProfit(tradeID, orderID int64, symbol string, side models.SideType, volume, price, commission float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if profit, ok := l.trades[tradeID]; ok {
		return profit
	}
	var profit float64
	if result, ok := l.orders[orderID]; ok {
		if result.volume > 0 {
			profit = result.realized * volume / result.volume
		}
	} else {
		profit = l.apply(symbol, side, volume, price) - commission
	}
	l.trades[tradeID] = profit
	return profit
}

func (l *ledger) apply(symbol string, side models.SideType, volume, price float64) float64 {
	basis, ok := l.basis[symbol]
	if !ok {
		basis = &costBasis{}
		l.basis[symbol] = basis
	}
	if side == models.SideTypeBuy {
		total := basis.volume + volume
		if total > 0 {
			basis.price = (basis.price*basis.volume + price*volume) / total
		}
		basis.volume = total
		return 0
	}

	closed := math.Min(volume, basis.volume)
	if closed <= 0 {
		return 0
	}
	realized := (price - basis.price) * closed
	basis.volume -= closed
	if basis.volume <= 0 {
		basis.volume, basis.price = 0, 0
	}
	return realized
}
