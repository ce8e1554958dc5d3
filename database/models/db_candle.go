package database

import (
	"time"

	"gorm.io/gorm"
)

// Candle is one archived bar. A bar is identified by symbol, timeframe and
// open time, so overlapping ranges share rows.
type Candle struct {
	gorm.Model
	Symbol     string    `json:"symbol" gorm:"uniqueIndex:idx_symbol_timeframe_time;size:64"`
	Timeframe  string    `json:"timeframe" gorm:"uniqueIndex:idx_symbol_timeframe_time;size:8"`
	Time       time.Time `json:"time" gorm:"uniqueIndex:idx_symbol_timeframe_time"`
	OpenPrice  float64   `json:"openPrice"`
	ClosePrice float64   `json:"closePrice"`
	MaxPrice   float64   `json:"maxPrice"`
	MinPrice   float64   `json:"minPrice"`
	Volume     float64   `json:"volume"`
	TradeCount uint      `json:"tradeCount"`
}
