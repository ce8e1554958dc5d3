package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	database "gitlab.com/aoterocom/autotrader/database/models"
	"gitlab.com/aoterocom/autotrader/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// DBService archives historical bars so backtests survive restarts without
// refetching from the venue.
type DBService struct {
	DB *gorm.DB
}

func NewDBService(dbHost string, dbPort string, dbName string, dbUser string, dbPass string) (*DBService, error) {
	dsn := dbUser + ":" + dbPass + "@tcp(" + dbHost + ":" + dbPort + ")/" + dbName + "?charset=utf8mb4&parseTime=True&loc=UTC"
	return NewDBServiceWithDialector(mysql.Open(dsn))
}

// NewDBServiceWithDialector opens the archive on any gorm dialector and
// migrates its tables.
func NewDBServiceWithDialector(dialector gorm.Dialector) (*DBService, error) {
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("opening bar archive: %w", err)
	}

	dbs := &DBService{
		DB: db,
	}

	err = dbs.DB.AutoMigrate(&database.Candle{}, &database.BarRange{})
	if err != nil {
		return nil, fmt.Errorf("migrating bar archive: %w", err)
	}

	return dbs, nil
}

func (dbs *DBService) Close() error {
	sqlDB, err := dbs.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// LoadBars returns the archived bars of a range. The boolean is false when
// the range was never archived.
func (dbs *DBService) LoadBars(ctx context.Context, symbol string, timeframe models.Timeframe, from, to time.Time) ([]models.Bar, bool, error) {
	db := dbs.DB.WithContext(ctx)

	var barRange database.BarRange
	err := db.Where("symbol = ? AND timeframe = ? AND range_start = ? AND range_end = ?",
		symbol, timeframe.String(), from.UTC(), to.UTC()).First(&barRange).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var candles []database.Candle
	err = db.Where("symbol = ? AND timeframe = ? AND time >= ? AND time <= ?",
		symbol, timeframe.String(), from.UTC(), to.UTC()).Order("time").Find(&candles).Error
	if err != nil {
		return nil, false, err
	}
	if len(candles) != barRange.Bars {
		return nil, false, nil
	}

	bars := make([]models.Bar, 0, len(candles))
	for _, candle := range candles {
		bars = append(bars, models.Bar{
			Symbol: candle.Symbol,
			Time:   candle.Time.UTC(),
			Open:   candle.OpenPrice,
			High:   candle.MaxPrice,
			Low:    candle.MinPrice,
			Close:  candle.ClosePrice,
			Volume: candle.Volume,
			Trades: candle.TradeCount,
		})
	}
	return bars, true, nil
}

// StoreBars upserts the bars of a range and marks the range as archived.
// Bars outside [from, to] are ignored.
func (dbs *DBService) StoreBars(ctx context.Context, symbol string, timeframe models.Timeframe, from, to time.Time, bars []models.Bar) error {
	candles := make([]database.Candle, 0, len(bars))
	for _, bar := range bars {
		if bar.Time.Before(from) || bar.Time.After(to) {
			continue
		}
		candles = append(candles, database.Candle{
			Symbol:     symbol,
			Timeframe:  timeframe.String(),
			Time:       bar.Time.UTC(),
			OpenPrice:  bar.Open,
			ClosePrice: bar.Close,
			MaxPrice:   bar.High,
			MinPrice:   bar.Low,
			Volume:     bar.Volume,
			TradeCount: bar.Trades,
		})
	}

	return dbs.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(candles) > 0 {
			// Update columns to new value on conflict
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "symbol"}, {Name: "timeframe"}, {Name: "time"}},
				DoUpdates: clause.AssignmentColumns([]string{"open_price", "close_price", "max_price", "min_price", "volume", "trade_count", "updated_at"}),
			}).CreateInBatches(&candles, 500).Error
			if err != nil {
				return err
			}
		}

		barRange := database.BarRange{
			Symbol:     symbol,
			Timeframe:  timeframe.String(),
			RangeStart: from.UTC(),
			RangeEnd:   to.UTC(),
			Bars:       len(candles),
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "timeframe"}, {Name: "range_start"}, {Name: "range_end"}},
			DoUpdates: clause.AssignmentColumns([]string{"bars", "updated_at"}),
		}).Create(&barRange).Error
	})
}
