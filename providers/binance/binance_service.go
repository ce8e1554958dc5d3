package binance

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"gitlab.com/aoterocom/autotrader/helpers"
	"gitlab.com/aoterocom/autotrader/models"
)

const klinesPageLimit = 1000

// Binance error code for orders refused by the matching engine.
const codeOrderRejected = -2010

var intervals = map[models.Timeframe]string{
	models.TimeframeM1:  "1m",
	models.TimeframeM5:  "5m",
	models.TimeframeM15: "15m",
	models.TimeframeM30: "30m",
	models.TimeframeH1:  "1h",
	models.TimeframeH4:  "4h",
	models.TimeframeD1:  "1d",
	models.TimeframeW1:  "1w",
	models.TimeframeMN1: "1M",
}

// BinanceService is the spot REST connector. Login and Password of the
// credentials are the API key and secret; Server, when set, replaces the
// REST base URL (e.g. the testnet).
type BinanceService struct {
	mu            sync.Mutex
	binanceClient *binance.Client
	quoteAsset    string
	pairInfo      map[string]*models.PairInfo
	symbols       map[string]bool
	ledger        *ledger
}

// NewBinanceService builds a disconnected connector. quoteAsset is the coin
// balances and positions are measured in.
func NewBinanceService(quoteAsset string) *BinanceService {
	if quoteAsset == "" {
		quoteAsset = "USDT"
	}
	return &BinanceService{
		quoteAsset: quoteAsset,
		pairInfo:   make(map[string]*models.PairInfo),
		symbols:    make(map[string]bool),
		ledger:     newLedger(),
	}
}

func (binanceService *BinanceService) Connect(ctx context.Context, credentials models.Credentials) error {
	client := binance.NewClient(credentials.Login, credentials.Password)
	if credentials.Server != "" {
		client.BaseURL = strings.TrimRight(credentials.Server, "/")
	}

	if err := client.NewPingService().Do(ctx); err != nil {
		return fmt.Errorf("binance ping: %w", binanceService.translate(err))
	}
	if _, err := client.NewGetAccountService().Do(ctx); err != nil {
		return fmt.Errorf("binance account: %w", binanceService.translate(err))
	}

	binanceService.mu.Lock()
	binanceService.binanceClient = client
	binanceService.mu.Unlock()
	helpers.Logger.Infoln(fmt.Sprintf("Connected to Binance at %s", client.BaseURL))
	return nil
}

func (binanceService *BinanceService) Disconnect() error {
	binanceService.mu.Lock()
	defer binanceService.mu.Unlock()
	binanceService.binanceClient = nil
	return nil
}

func (binanceService *BinanceService) GetSnapshot(ctx context.Context, symbol string) (models.Snapshot, error) {
	client, err := binanceService.client()
	if err != nil {
		return models.Snapshot{}, err
	}
	binanceService.remember(symbol)

	tickers, err := client.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("book ticker %s: %w", symbol, binanceService.translate(err))
	}
	if len(tickers) == 0 {
		return models.Snapshot{}, fmt.Errorf("book ticker %s: empty response", symbol)
	}
	prices, err := client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("last price %s: %w", symbol, binanceService.translate(err))
	}

	snapshot := models.Snapshot{
		Symbol: symbol,
		Time:   time.Now(),
		Bid:    parseFloat(tickers[0].BidPrice),
		Ask:    parseFloat(tickers[0].AskPrice),
	}
	if len(prices) > 0 {
		snapshot.Last = parseFloat(prices[0].Price)
	}
	return snapshot, nil
}

// GetBars pages through klines of [from, to] in chunks of 1000.
func (binanceService *BinanceService) GetBars(ctx context.Context, symbol string, timeframe models.Timeframe, from, to time.Time) ([]models.Bar, error) {
	client, err := binanceService.client()
	if err != nil {
		return nil, err
	}
	interval, ok := intervals[timeframe]
	if !ok {
		return nil, fmt.Errorf("timeframe %s is not supported by binance", timeframe)
	}
	binanceService.remember(symbol)

	var bars []models.Bar
	start := from.UnixMilli()
	end := to.UnixMilli()
	for start <= end {
		klines, err := client.NewKlinesService().Symbol(symbol).Interval(interval).
			StartTime(start).EndTime(end).Limit(klinesPageLimit).Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("klines %s %s: %w", symbol, interval, binanceService.translate(err))
		}
		for _, k := range klines {
			bars = append(bars, klineToBar(symbol, k))
		}
		if len(klines) < klinesPageLimit {
			break
		}
		start = klines[len(klines)-1].OpenTime + 1
	}
	return bars, nil
}

// SendOrder places a market order. Stop-loss and take-profit, when both are
// set, are attached as an OCO exit bracket once the entry has filled.
func (binanceService *BinanceService) SendOrder(ctx context.Context, request models.OrderRequest) (models.Fill, error) {
	client, err := binanceService.client()
	if err != nil {
		return models.Fill{}, err
	}
	binanceService.remember(request.Symbol)

	pairInfo, err := binanceService.GetPairInfo(ctx, request.Symbol)
	if err != nil {
		return models.Fill{}, err
	}
	volume := pairInfo.RoundVolume(request.Volume)
	if volume <= 0 {
		return models.Fill{}, fmt.Errorf("%w: volume %v of %s is below the minimum lot %v",
			models.ErrOrderRejected, request.Volume, request.Symbol, pairInfo.Min)
	}

	service := client.NewCreateOrderService().Symbol(request.Symbol).
		Side(binance.SideType(request.Side)).Type(binance.OrderTypeMarket).
		Quantity(formatVolume(volume, pairInfo.StepSize)).
		NewOrderRespType(binance.NewOrderRespTypeFULL)
	if request.Comment != "" {
		service = service.NewClientOrderID(clientOrderID(request.Comment, time.Now()))
	}
	response, err := service.Do(ctx)
	if err != nil {
		return models.Fill{}, fmt.Errorf("order %s %s: %w", request.Side, request.Symbol, binanceService.translate(err))
	}

	fill := binanceService.orderResponseToFill(response, request.Comment)
	switch fill.Status {
	case models.OrderStatusTypeRejected, models.OrderStatusTypeExpired, models.OrderStatusTypeCanceled:
		return fill, fmt.Errorf("%w: order %d is %s", models.ErrOrderRejected, fill.OrderID, fill.Status)
	}

	if request.StopLoss > 0 && request.TakeProfit > 0 && fill.IsFilled() {
		oco, err := binanceService.MakeOCOOrder(ctx, request.Symbol, fill.Volume, request.Side.Opposite(),
			request.TakeProfit, request.StopLoss, pairInfo)
		if err != nil {
			helpers.Logger.Errorln(fmt.Sprintf("%s: couldn't place exit bracket for order %d: %s",
				request.Symbol, fill.OrderID, err.Error()))
		} else {
			helpers.Logger.Debugln(fmt.Sprintf("%s: exit bracket %d placed (TP %f, SL %f)",
				request.Symbol, oco.OrderListID, oco.LimitPrice, oco.StopPrice))
		}
	}
	return fill, nil
}

// MakeOCOOrder places a one-cancels-the-other exit: a limit at takeProfit and a
// stop-limit at stopLoss.
func (binanceService *BinanceService) MakeOCOOrder(ctx context.Context, symbol string, volume float64,
	side models.SideType, takeProfit, stopLoss float64, pairInfo *models.PairInfo) (models.OCOOrder, error) {
	client, err := binanceService.client()
	if err != nil {
		return models.OCOOrder{}, err
	}

	priceFormat := fmt.Sprintf("%%.%df", pairInfo.Precision)
	response, err := client.NewCreateOCOService().Symbol(symbol).Side(binance.SideType(side)).
		Quantity(formatVolume(volume, pairInfo.StepSize)).
		Price(fmt.Sprintf(priceFormat, takeProfit)).
		StopPrice(fmt.Sprintf(priceFormat, stopLoss)).
		StopLimitPrice(fmt.Sprintf(priceFormat, stopLoss)).
		StopLimitTimeInForce(binance.TimeInForceTypeGTC).Do(ctx)
	if err != nil {
		return models.OCOOrder{}, binanceService.translate(err)
	}

	return models.OCOOrder{
		OrderListID:       response.OrderListID,
		ListStatusType:    response.ListStatusType,
		ListOrderStatus:   response.ListOrderStatus,
		ListClientOrderID: response.ListClientOrderID,
		TransactionTime:   response.TransactionTime,
		Symbol:            response.Symbol,
		StopPrice:         stopLoss,
		LimitPrice:        takeProfit,
	}, nil
}

// GetOpenPositions reports every non-zero base asset balance as a long
// position against the quote asset. Spot accounts cannot hold shorts.
func (binanceService *BinanceService) GetOpenPositions(ctx context.Context) ([]models.Position, error) {
	client, err := binanceService.client()
	if err != nil {
		return nil, err
	}
	account, err := client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("account: %w", binanceService.translate(err))
	}

	var positions []models.Position
	for _, balance := range account.Balances {
		if balance.Asset == binanceService.quoteAsset {
			continue
		}
		volume := parseFloat(balance.Free) + parseFloat(balance.Locked)
		if volume <= 0 {
			continue
		}
		positions = append(positions, models.Position{
			Symbol: balance.Asset + binanceService.quoteAsset,
			Side:   models.SideTypeBuy,
			Volume: volume,
		})
	}
	return positions, nil
}

// GetHistoryDeals lists the account trades of [from, to] for every symbol this
// connector has touched. Binance only answers trade history per symbol. Sells
// carry the profit realized against the average entry price.
func (binanceService *BinanceService) GetHistoryDeals(ctx context.Context, from, to time.Time) ([]models.Deal, error) {
	client, err := binanceService.client()
	if err != nil {
		return nil, err
	}

	var deals []models.Deal
	for _, symbol := range binanceService.knownSymbols() {
		trades, err := client.NewListTradesService().Symbol(symbol).
			StartTime(from.UnixMilli()).EndTime(to.UnixMilli()).Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("trades %s: %w", symbol, binanceService.translate(err))
		}
		for _, trade := range trades {
			side := models.SideTypeSell
			if trade.IsBuyer {
				side = models.SideTypeBuy
			}
			volume, price := parseFloat(trade.Quantity), parseFloat(trade.Price)
			commission := 0.0
			if trade.CommissionAsset == binanceService.quoteAsset {
				commission = parseFloat(trade.Commission)
			}
			deals = append(deals, models.Deal{
				Ticket:     trade.ID,
				OrderID:    trade.OrderID,
				Symbol:     trade.Symbol,
				Side:       side,
				Volume:     volume,
				Price:      price,
				Profit:     binanceService.ledger.tradeProfit(trade.ID, trade.OrderID, trade.Symbol, side, volume, price, commission),
				Commission: commission,
				Time:       time.UnixMilli(trade.Time),
			})
		}
	}
	sort.Slice(deals, func(i, j int) bool { return deals[i].Time.Before(deals[j].Time) })
	return deals, nil
}

// GetBalance returns free plus locked funds of asset.
func (binanceService *BinanceService) GetBalance(ctx context.Context, asset string) (float64, error) {
	client, err := binanceService.client()
	if err != nil {
		return 0, err
	}
	if asset == "" {
		asset = binanceService.quoteAsset
	}
	account, err := client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("account: %w", binanceService.translate(err))
	}
	for _, balance := range account.Balances {
		if balance.Asset == asset {
			return parseFloat(balance.Free) + parseFloat(balance.Locked), nil
		}
	}
	return 0, fmt.Errorf("asset %s not found in account balances", asset)
}

// GetPairInfo returns the lot filters of symbol, cached per session.
func (binanceService *BinanceService) GetPairInfo(ctx context.Context, symbol string) (*models.PairInfo, error) {
	binanceService.mu.Lock()
	info, ok := binanceService.pairInfo[symbol]
	binanceService.mu.Unlock()
	if ok {
		return info, nil
	}

	client, err := binanceService.client()
	if err != nil {
		return nil, err
	}
	exchangeInfo, err := client.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange info %s: %w", symbol, binanceService.translate(err))
	}
	for _, s := range exchangeInfo.Symbols {
		if s.Symbol != symbol {
			continue
		}
		info = models.NewPairInfo(0, 0, 0, s.QuotePrecision)
		if lot := s.LotSizeFilter(); lot != nil {
			info.Max = parseFloat(lot.MaxQuantity)
			info.Min = parseFloat(lot.MinQuantity)
			info.StepSize = parseFloat(lot.StepSize)
		}
		binanceService.mu.Lock()
		binanceService.pairInfo[symbol] = info
		binanceService.mu.Unlock()
		return info, nil
	}
	return nil, fmt.Errorf("symbol %s not listed", symbol)
}

func (binanceService *BinanceService) client() (*binance.Client, error) {
	binanceService.mu.Lock()
	defer binanceService.mu.Unlock()
	if binanceService.binanceClient == nil {
		return nil, models.ErrNotConnected
	}
	return binanceService.binanceClient, nil
}

func (binanceService *BinanceService) remember(symbol string) {
	binanceService.mu.Lock()
	binanceService.symbols[symbol] = true
	binanceService.mu.Unlock()
}

func (binanceService *BinanceService) knownSymbols() []string {
	binanceService.mu.Lock()
	defer binanceService.mu.Unlock()
	symbols := make([]string, 0, len(binanceService.symbols))
	for symbol := range binanceService.symbols {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// translate maps transport failures to ErrNotConnected and order refusals to
// ErrOrderRejected, keeping the original error in the chain.
func (binanceService *BinanceService) translate(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) && apiErr.Code == codeOrderRejected {
		return fmt.Errorf("%w: %s", models.ErrOrderRejected, apiErr.Message)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && !netErr.Timeout() {
		_ = binanceService.Disconnect()
		return fmt.Errorf("%w: %s", models.ErrNotConnected, err.Error())
	}
	return err
}

func (binanceService *BinanceService) orderResponseToFill(o *binance.CreateOrderResponse, comment string) models.Fill {
	executed := parseFloat(o.ExecutedQuantity)
	price := parseFloat(o.Price)
	if quote := parseFloat(o.CummulativeQuoteQuantity); executed > 0 && quote > 0 {
		price = quote / executed
	}

	commission := 0.0
	for _, f := range o.Fills {
		if f.CommissionAsset == binanceService.quoteAsset {
			commission += parseFloat(f.Commission)
		}
	}

	side := models.SideType(o.Side)
	realized := -commission
	if executed > 0 {
		realized = binanceService.ledger.applyOrder(o.OrderID, o.Symbol, side, executed, price, commission)
	}

	return models.Fill{
		OrderID:     o.OrderID,
		Symbol:      o.Symbol,
		Side:        side,
		Volume:      executed,
		Price:       price,
		Status:      models.OrderStatusType(o.Status),
		RealizedPnL: realized,
		Commission:  commission,
		Time:        time.UnixMilli(o.TransactTime),
		Comment:     comment,
	}
}

func klineToBar(symbol string, k *binance.Kline) models.Bar {
	return models.Bar{
		Symbol: symbol,
		Time:   time.UnixMilli(k.OpenTime),
		Open:   parseFloat(k.Open),
		High:   parseFloat(k.High),
		Low:    parseFloat(k.Low),
		Close:  parseFloat(k.Close),
		Volume: parseFloat(k.Volume),
		Trades: uint(k.TradeNum),
	}
}

func formatVolume(volume, stepSize float64) string {
	decimals := 8
	if stepSize > 0 {
		stepString := strconv.FormatFloat(stepSize, 'f', -1, 64)
		if dot := strings.IndexByte(stepString, '.'); dot >= 0 {
			decimals = len(stepString) - dot - 1
		} else {
			decimals = 0
		}
	}
	return strconv.FormatFloat(volume, 'f', decimals, 64)
}

// Binance client order ids are unique, at most 36 chars of [a-zA-Z0-9-_].
func clientOrderID(comment string, now time.Time) string {
	var b strings.Builder
	for _, r := range comment {
		if b.Len() == 23 {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	b.WriteByte('-')
	b.WriteString(strconv.FormatInt(now.UnixNano()%(1<<62), 36))
	return b.String()
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
