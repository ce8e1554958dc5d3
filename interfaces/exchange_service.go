package interfaces

import (
	"context"
	"time"

	"gitlab.com/aoterocom/autotrader/models"
)

// ExchangeService is a market-data and order-execution venue. Implementations
// return models.ErrNotConnected when called without a live session.
type ExchangeService interface {
	Connect(ctx context.Context, credentials models.Credentials) error
	Disconnect() error
	GetSnapshot(ctx context.Context, symbol string) (models.Snapshot, error)
	GetBars(ctx context.Context, symbol string, timeframe models.Timeframe, from, to time.Time) ([]models.Bar, error)
	SendOrder(ctx context.Context, request models.OrderRequest) (models.Fill, error)
	GetOpenPositions(ctx context.Context) ([]models.Position, error)
	GetHistoryDeals(ctx context.Context, from, to time.Time) ([]models.Deal, error)
	GetBalance(ctx context.Context, asset string) (float64, error)
}
