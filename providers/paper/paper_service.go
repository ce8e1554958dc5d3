package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gitlab.com/aoterocom/autotrader/helpers"
	"gitlab.com/aoterocom/autotrader/interfaces"
	"gitlab.com/aoterocom/autotrader/models"
)

// PaperService simulates order execution on top of a real market data feed.
// Orders fill immediately at the current ask (buys) or bid (sells); positions
// are netted per symbol and exits are checked on every snapshot.
type PaperService struct {
	mu           sync.Mutex
	marketData   interfaces.ExchangeService
	book         *Book
	deals        []models.Deal
	balance      float64
	balanceAsset string
	commission   float64
	nextOrderID  int64
	connected    bool
	now          func() time.Time
}

type Option func(*PaperService)

// WithCommission charges a flat commission per fill.
func WithCommission(commission float64) Option {
	return func(p *PaperService) { p.commission = commission }
}

// WithContractSize values one unit of volume as contractSize units of the
// underlying.
func WithContractSize(contractSize float64) Option {
	return func(p *PaperService) { p.book = NewBook(ContractValuer(contractSize)) }
}

func WithClock(now func() time.Time) Option {
	return func(p *PaperService) { p.now = now }
}

// NewPaperService builds a paper venue that takes quotes and bars from
// marketData and starts with balance funds of balanceAsset.
func NewPaperService(marketData interfaces.ExchangeService, balanceAsset string, balance float64, opts ...Option) *PaperService {
	p := &PaperService{
		marketData:   marketData,
		book:         NewBook(nil),
		balance:      balance,
		balanceAsset: balanceAsset,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (paperService *PaperService) Connect(ctx context.Context, credentials models.Credentials) error {
	if err := paperService.marketData.Connect(ctx, credentials); err != nil {
		return err
	}
	paperService.mu.Lock()
	paperService.connected = true
	paperService.mu.Unlock()
	helpers.Logger.Infoln(fmt.Sprintf("Paper trading with %.2f %s", paperService.balance, paperService.balanceAsset))
	return nil
}

func (paperService *PaperService) Disconnect() error {
	paperService.mu.Lock()
	paperService.connected = false
	paperService.mu.Unlock()
	return paperService.marketData.Disconnect()
}

// GetSnapshot returns the delegated quote and closes the open position of
// the symbol if the quote crosses its stop-loss or take-profit.
func (paperService *PaperService) GetSnapshot(ctx context.Context, symbol string) (models.Snapshot, error) {
	if err := paperService.checkConnected(); err != nil {
		return models.Snapshot{}, err
	}
	snapshot, err := paperService.marketData.GetSnapshot(ctx, symbol)
	if err != nil {
		return snapshot, err
	}

	paperService.mu.Lock()
	defer paperService.mu.Unlock()
	position, ok := paperService.book.Position(symbol)
	if !ok {
		return snapshot, nil
	}
	exitPrice := snapshot.Bid
	if position.IsShort() {
		exitPrice = snapshot.Ask
	}
	if exitPrice <= 0 {
		exitPrice = snapshot.Price()
	}
	trigger := exitTrigger(position, exitPrice)
	if trigger == models.ExitTriggerNone {
		return snapshot, nil
	}

	closed, _ := paperService.book.Close(symbol, exitPrice, paperService.now())
	paperService.recordClose(closed, string(trigger))
	helpers.Logger.WithFields(log.Fields{helpers.NotifyField: true}).Infoln(
		fmt.Sprintf("[paper] %s %s hit at %f, profit %.2f", symbol, trigger, exitPrice, closed.Profit))
	return snapshot, nil
}

func (paperService *PaperService) GetBars(ctx context.Context, symbol string, timeframe models.Timeframe, from, to time.Time) ([]models.Bar, error) {
	if err := paperService.checkConnected(); err != nil {
		return nil, err
	}
	return paperService.marketData.GetBars(ctx, symbol, timeframe, from, to)
}

func (paperService *PaperService) SendOrder(ctx context.Context, request models.OrderRequest) (models.Fill, error) {
	if err := paperService.checkConnected(); err != nil {
		return models.Fill{}, err
	}
	if request.Volume <= 0 {
		return models.Fill{}, fmt.Errorf("%w: volume %v", models.ErrOrderRejected, request.Volume)
	}
	snapshot, err := paperService.marketData.GetSnapshot(ctx, request.Symbol)
	if err != nil {
		return models.Fill{}, err
	}
	price := snapshot.Ask
	if request.Side == models.SideTypeSell {
		price = snapshot.Bid
	}
	if price <= 0 {
		price = snapshot.Price()
	}
	if price <= 0 {
		return models.Fill{}, fmt.Errorf("%w: no price for %s", models.ErrOrderRejected, request.Symbol)
	}

	paperService.mu.Lock()
	defer paperService.mu.Unlock()

	now := paperService.now()
	paperService.nextOrderID++
	orderID := paperService.nextOrderID

	realized := -paperService.commission
	for _, closed := range paperService.book.Execute(request, price, now) {
		realized += closed.Profit
	}
	paperService.balance += realized
	paperService.deals = append(paperService.deals, models.Deal{
		Ticket:     int64(len(paperService.deals) + 1),
		OrderID:    orderID,
		Symbol:     request.Symbol,
		Side:       request.Side,
		Volume:     request.Volume,
		Price:      price,
		Profit:     realized + paperService.commission,
		Commission: paperService.commission,
		Time:       now,
		Comment:    request.Comment,
	})

	helpers.Logger.WithFields(log.Fields{helpers.NotifyField: true}).Infoln(
		fmt.Sprintf("[paper] %s %f %s at %f", request.Side, request.Volume, request.Symbol, price))

	return models.Fill{
		OrderID:     orderID,
		Symbol:      request.Symbol,
		Side:        request.Side,
		Volume:      request.Volume,
		Price:       price,
		Status:      models.OrderStatusTypeFilled,
		RealizedPnL: realized,
		Commission:  paperService.commission,
		Time:        now,
		Comment:     request.Comment,
	}, nil
}

func (paperService *PaperService) GetOpenPositions(ctx context.Context) ([]models.Position, error) {
	if err := paperService.checkConnected(); err != nil {
		return nil, err
	}
	paperService.mu.Lock()
	defer paperService.mu.Unlock()
	return paperService.book.Positions(), nil
}

func (paperService *PaperService) GetHistoryDeals(ctx context.Context, from, to time.Time) ([]models.Deal, error) {
	if err := paperService.checkConnected(); err != nil {
		return nil, err
	}
	paperService.mu.Lock()
	defer paperService.mu.Unlock()
	var deals []models.Deal
	for _, deal := range paperService.deals {
		if !deal.Time.Before(from) && !deal.Time.After(to) {
			deals = append(deals, deal)
		}
	}
	return deals, nil
}

// GetBalance returns the simulated balance of the account asset. An empty
// asset means the account asset.
func (paperService *PaperService) GetBalance(ctx context.Context, asset string) (float64, error) {
	if err := paperService.checkConnected(); err != nil {
		return 0, err
	}
	if asset != "" && asset != paperService.balanceAsset {
		return 0, fmt.Errorf("paper account only holds %s", paperService.balanceAsset)
	}
	paperService.mu.Lock()
	defer paperService.mu.Unlock()
	return paperService.balance, nil
}

func (paperService *PaperService) checkConnected() error {
	paperService.mu.Lock()
	defer paperService.mu.Unlock()
	if !paperService.connected {
		return models.ErrNotConnected
	}
	return nil
}

func (paperService *PaperService) recordClose(closed Closed, comment string) {
	paperService.balance += closed.Profit
	paperService.nextOrderID++
	paperService.deals = append(paperService.deals, models.Deal{
		Ticket:  int64(len(paperService.deals) + 1),
		OrderID: paperService.nextOrderID,
		Symbol:  closed.Position.Symbol,
		Side:    closed.Position.Side.Opposite(),
		Volume:  closed.Volume,
		Price:   closed.ExitPrice,
		Profit:  closed.Profit,
		Time:    closed.ExitTime,
		Comment: comment,
	})
}

// exitTrigger reports which protective level price has crossed, if any.
func exitTrigger(position models.Position, price float64) models.ExitTrigger {
	if position.IsLong() {
		switch {
		case position.StopLoss > 0 && price <= position.StopLoss:
			return models.ExitTriggerStopLoss
		case position.TakeProfit > 0 && price >= position.TakeProfit:
			return models.ExitTriggerTakeProfit
		}
		return models.ExitTriggerNone
	}
	switch {
	case position.StopLoss > 0 && price >= position.StopLoss:
		return models.ExitTriggerStopLoss
	case position.TakeProfit > 0 && price <= position.TakeProfit:
		return models.ExitTriggerTakeProfit
	}
	return models.ExitTriggerNone
}
