package models

import "time"

// OrderStatusType define order status type
type OrderStatusType string

// SideType define order side
type SideType string

// Global enums
const (
	SideTypeBuy  SideType = "BUY"
	SideTypeSell SideType = "SELL"

	OrderStatusTypeNew             OrderStatusType = "NEW"
	OrderStatusTypePartiallyFilled OrderStatusType = "PARTIALLY_FILLED"
	OrderStatusTypeFilled          OrderStatusType = "FILLED"
	OrderStatusTypeCanceled        OrderStatusType = "CANCELED"
	OrderStatusTypeRejected        OrderStatusType = "REJECTED"
	OrderStatusTypeExpired         OrderStatusType = "EXPIRED"
)

// Opposite returns the side that closes a position opened with s.
func (s SideType) Opposite() SideType {
	if s == SideTypeBuy {
		return SideTypeSell
	}
	return SideTypeBuy
}

// Direction is +1 for buys and -1 for sells.
func (s SideType) Direction() float64 {
	if s == SideTypeSell {
		return -1
	}
	return 1
}

// OrderRequest is a market order. StopLoss and TakeProfit are absolute
// prices; zero means not set.
type OrderRequest struct {
	Symbol     string
	Volume     float64
	Side       SideType
	StopLoss   float64
	TakeProfit float64
	Comment    string
}

// Fill is the venue's answer to an accepted order.
type Fill struct {
	OrderID     int64
	Symbol      string
	Side        SideType
	Volume      float64
	Price       float64
	Status      OrderStatusType
	RealizedPnL float64
	Commission  float64
	Time        time.Time
	Comment     string
}

func (f Fill) IsFilled() bool {
	return f.Status == OrderStatusTypeFilled || f.Status == OrderStatusTypePartiallyFilled
}
