package database

import (
	"time"

	"gorm.io/gorm"
)

// BarRange records that every bar of [RangeStart, RangeEnd] for a symbol and
// timeframe is archived.
type BarRange struct {
	gorm.Model
	Symbol     string    `gorm:"uniqueIndex:idx_bar_range;size:64"`
	Timeframe  string    `gorm:"uniqueIndex:idx_bar_range;size:8"`
	RangeStart time.Time `gorm:"uniqueIndex:idx_bar_range"`
	RangeEnd   time.Time `gorm:"uniqueIndex:idx_bar_range"`
	Bars       int
}
