package models

import "errors"

var (
	// ErrNotConnected is returned by venue calls issued without a live session.
	ErrNotConnected = errors.New("venue: not connected")
	// ErrOrderRejected is returned when the venue refuses an order.
	ErrOrderRejected = errors.New("venue: order rejected")
)
