package paper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gitlab.com/aoterocom/autotrader/models"
	venuemock "gitlab.com/aoterocom/autotrader/providers/mock"
)

var now = time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

func newPaper(t *testing.T, quotes ...models.Snapshot) (*PaperService, *venuemock.ExchangeService) {
	t.Helper()
	feed := &venuemock.ExchangeService{}
	feed.On("Connect", mock.Anything, mock.Anything).Return(nil)
	for _, q := range quotes {
		feed.On("GetSnapshot", mock.Anything, q.Symbol).Return(q, nil).Once()
	}
	p := NewPaperService(feed, "USD", 1000, WithClock(func() time.Time { return now }), WithCommission(1))
	require.NoError(t, p.Connect(context.Background(), models.Credentials{}))
	return p, feed
}

func TestNotConnected(t *testing.T) {
	p := NewPaperService(&venuemock.ExchangeService{}, "USD", 1000)

	_, err := p.SendOrder(context.Background(), models.OrderRequest{Symbol: "X", Volume: 1, Side: models.SideTypeBuy})

	assert.True(t, errors.Is(err, models.ErrNotConnected))
}

func TestRoundTripUpdatesBalanceAndDeals(t *testing.T) {
	p, feed := newPaper(t,
		models.Snapshot{Symbol: "EURUSD", Bid: 99, Ask: 100},
		models.Snapshot{Symbol: "EURUSD", Bid: 110, Ask: 111},
	)

	open, err := p.SendOrder(context.Background(), models.OrderRequest{Symbol: "EURUSD", Volume: 2, Side: models.SideTypeBuy})
	require.NoError(t, err)
	assert.Equal(t, 100.0, open.Price)
	assert.Equal(t, -1.0, open.RealizedPnL)

	positions, err := p.GetOpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 2.0, positions[0].Volume)

	closeFill, err := p.SendOrder(context.Background(), models.OrderRequest{Symbol: "EURUSD", Volume: 2, Side: models.SideTypeSell})
	require.NoError(t, err)
	assert.Equal(t, 110.0, closeFill.Price)
	assert.Equal(t, 19.0, closeFill.RealizedPnL)

	balance, err := p.GetBalance(context.Background(), "USD")
	require.NoError(t, err)
	assert.Equal(t, 1018.0, balance)

	deals, err := p.GetHistoryDeals(context.Background(), now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, deals, 2)

	positions, _ = p.GetOpenPositions(context.Background())
	assert.Empty(t, positions)
	feed.AssertExpectations(t)
}

func TestStopLossClosesOnSnapshot(t *testing.T) {
	p, _ := newPaper(t,
		models.Snapshot{Symbol: "EURUSD", Bid: 99, Ask: 100},
		models.Snapshot{Symbol: "EURUSD", Bid: 94, Ask: 95},
	)
	_, err := p.SendOrder(context.Background(), models.OrderRequest{
		Symbol: "EURUSD", Volume: 1, Side: models.SideTypeBuy, StopLoss: 95, TakeProfit: 110,
	})
	require.NoError(t, err)

	_, err = p.GetSnapshot(context.Background(), "EURUSD")
	require.NoError(t, err)

	positions, _ := p.GetOpenPositions(context.Background())
	assert.Empty(t, positions)
	balance, _ := p.GetBalance(context.Background(), "")
	assert.Equal(t, 1000.0-1-6, balance)
}

func TestGetBalanceOfOtherAsset(t *testing.T) {
	p, _ := newPaper(t)

	_, err := p.GetBalance(context.Background(), "BTC")

	assert.Error(t, err)
}
