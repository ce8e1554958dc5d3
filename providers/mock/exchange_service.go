package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"gitlab.com/aoterocom/autotrader/models"
)

// ExchangeService is a testify mock of interfaces.ExchangeService.
type ExchangeService struct {
	mock.Mock
}

func (m *ExchangeService) Connect(ctx context.Context, credentials models.Credentials) error {
	args := m.Called(ctx, credentials)
	return args.Error(0)
}

func (m *ExchangeService) Disconnect() error {
	args := m.Called()
	return args.Error(0)
}

func (m *ExchangeService) GetSnapshot(ctx context.Context, symbol string) (models.Snapshot, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(models.Snapshot), args.Error(1)
}

func (m *ExchangeService) GetBars(ctx context.Context, symbol string, timeframe models.Timeframe, from, to time.Time) ([]models.Bar, error) {
	args := m.Called(ctx, symbol, timeframe, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Bar), args.Error(1)
}

func (m *ExchangeService) SendOrder(ctx context.Context, request models.OrderRequest) (models.Fill, error) {
	args := m.Called(ctx, request)
	return args.Get(0).(models.Fill), args.Error(1)
}

func (m *ExchangeService) GetOpenPositions(ctx context.Context) ([]models.Position, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Position), args.Error(1)
}

func (m *ExchangeService) GetHistoryDeals(ctx context.Context, from, to time.Time) ([]models.Deal, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Deal), args.Error(1)
}

func (m *ExchangeService) GetBalance(ctx context.Context, asset string) (float64, error) {
	args := m.Called(ctx, asset)
	return args.Get(0).(float64), args.Error(1)
}
