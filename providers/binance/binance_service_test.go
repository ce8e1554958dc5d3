package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/aoterocom/autotrader/models"
)

const accountJSON = `{"makerCommission":10,"takerCommission":10,"canTrade":true,"balances":[
{"asset":"USDT","free":"1000.50","locked":"20.00"},
{"asset":"BTC","free":"0.002","locked":"0"},
{"asset":"ETH","free":"0","locked":"0"}]}`

const exchangeInfoJSON = `{"timezone":"UTC","serverTime":1700000000000,"symbols":[{"symbol":"BTCUSDT","status":"TRADING",
"baseAsset":"BTC","baseAssetPrecision":8,"quoteAsset":"USDT","quotePrecision":2,
"filters":[{"filterType":"LOT_SIZE","minQty":"0.00100000","maxQty":"100.00000000","stepSize":"0.00100000"}]}]}`

func newVenue(t *testing.T, orders *[]string) (*BinanceService, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/ping", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("/api/v3/account", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, accountJSON)
	})
	mux.HandleFunc("/api/v3/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, exchangeInfoJSON)
	})
	mux.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		fmt.Fprint(w, `[
[1700000000000,"100.0","110.0","95.0","105.0","12.5",1700003599999,"0",42,"0","0","0"],
[1700003600000,"105.0","108.0","101.0","102.0","7.0",1700007199999,"0",17,"0","0","0"]]`)
	})
	mux.HandleFunc("/api/v3/order", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if orders != nil {
			*orders = append(*orders, r.Form.Get("side")+" "+r.Form.Get("quantity"))
		}
		if r.Form.Get("side") == "SELL" {
			fmt.Fprint(w, `{"symbol":"BTCUSDT","orderId":8,"clientOrderId":"c","transactTime":1700000060000,
"price":"0.00000000","origQty":"0.002","executedQty":"0.002","cummulativeQuoteQty":"62.00","status":"FILLED",
"timeInForce":"GTC","type":"MARKET","side":"SELL",
"fills":[{"price":"31000","qty":"0.002","commission":"0.06","commissionAsset":"USDT"}]}`)
			return
		}
		fmt.Fprint(w, `{"symbol":"BTCUSDT","orderId":7,"clientOrderId":"c","transactTime":1700000000000,
"price":"0.00000000","origQty":"0.002","executedQty":"0.002","cummulativeQuoteQty":"60.00","status":"FILLED",
"timeInForce":"GTC","type":"MARKET","side":"BUY",
"fills":[{"price":"30000","qty":"0.002","commission":"0.06","commissionAsset":"USDT"}]}`)
	})
	mux.HandleFunc("/api/v3/myTrades", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
{"symbol":"BTCUSDT","id":101,"orderId":7,"price":"30000","qty":"0.002","quoteQty":"60","commission":"0.06",
"commissionAsset":"USDT","time":1700000000000,"isBuyer":true,"isMaker":false,"isBestMatch":true},
{"symbol":"BTCUSDT","id":102,"orderId":9,"price":"29000","qty":"0.002","quoteQty":"58","commission":"0.058",
"commissionAsset":"USDT","time":1700000120000,"isBuyer":false,"isMaker":true,"isBestMatch":true}]`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return NewBinanceService("USDT"), server
}

func TestCallsBeforeConnectFail(t *testing.T) {
	venue := NewBinanceService("")

	_, err := venue.GetBalance(context.Background(), "USDT")

	assert.True(t, errors.Is(err, models.ErrNotConnected))
}

func TestConnectAndGetBalance(t *testing.T) {
	venue, server := newVenue(t, nil)
	require.NoError(t, venue.Connect(context.Background(), models.Credentials{Login: "key", Password: "secret", Server: server.URL}))

	balance, err := venue.GetBalance(context.Background(), "USDT")

	require.NoError(t, err)
	assert.InDelta(t, 1020.5, balance, 1e-9)

	_, err = venue.GetBalance(context.Background(), "XRP")
	assert.Error(t, err)
}

func TestGetBars(t *testing.T) {
	venue, server := newVenue(t, nil)
	require.NoError(t, venue.Connect(context.Background(), models.Credentials{Server: server.URL}))

	from := time.UnixMilli(1700000000000)
	bars, err := venue.GetBars(context.Background(), "BTCUSDT", models.TimeframeH1, from, from.Add(2*time.Hour))

	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, models.Bar{Symbol: "BTCUSDT", Time: from, Open: 100, High: 110, Low: 95, Close: 105, Volume: 12.5, Trades: 42}, bars[0])
	assert.Equal(t, 102.0, bars[1].Close)
}

func TestSendOrderRoundsVolumeAndReportsFill(t *testing.T) {
	var orders []string
	venue, server := newVenue(t, &orders)
	require.NoError(t, venue.Connect(context.Background(), models.Credentials{Server: server.URL}))

	fill, err := venue.SendOrder(context.Background(), models.OrderRequest{
		Symbol: "BTCUSDT", Volume: 0.0027, Side: models.SideTypeBuy, Comment: "trend eurusd",
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"BUY 0.002"}, orders)
	assert.True(t, fill.IsFilled())
	assert.InDelta(t, 30000, fill.Price, 1e-9)
	assert.InDelta(t, 0.06, fill.Commission, 1e-12)
	assert.InDelta(t, -0.06, fill.RealizedPnL, 1e-12)
}

func TestSendOrderBelowMinimumLotIsRejected(t *testing.T) {
	venue, server := newVenue(t, nil)
	require.NoError(t, venue.Connect(context.Background(), models.Credentials{Server: server.URL}))

	_, err := venue.SendOrder(context.Background(), models.OrderRequest{Symbol: "BTCUSDT", Volume: 0.0001, Side: models.SideTypeBuy})

	assert.True(t, errors.Is(err, models.ErrOrderRejected))
}

func TestGetOpenPositions(t *testing.T) {
	venue, server := newVenue(t, nil)
	require.NoError(t, venue.Connect(context.Background(), models.Credentials{Server: server.URL}))

	positions, err := venue.GetOpenPositions(context.Background())

	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "BTCUSDT", positions[0].Symbol)
	assert.True(t, positions[0].IsLong())
}

func TestTransportFailureDisconnects(t *testing.T) {
	venue, server := newVenue(t, nil)
	require.NoError(t, venue.Connect(context.Background(), models.Credentials{Server: server.URL}))
	server.Close()

	_, err := venue.GetBalance(context.Background(), "USDT")
	require.True(t, errors.Is(err, models.ErrNotConnected))

	_, err = venue.GetBalance(context.Background(), "USDT")
	assert.True(t, errors.Is(err, models.ErrNotConnected))
}

func TestClientOrderID(t *testing.T) {
	id := clientOrderID("mean reversion / EURUSD session #1", time.Unix(0, 123456789))

	assert.LessOrEqual(t, len(id), 36)
	assert.True(t, strings.HasPrefix(id, "mean_reversion___EURUS"))
	assert.NotContains(t, id, " ")
}

func TestFormatVolume(t *testing.T) {
	assert.Equal(t, "0.002", formatVolume(0.002, 0.001))
	assert.Equal(t, "3", formatVolume(3, 1))
	assert.Equal(t, "0.12345679", formatVolume(0.123456789, 0))
}

func TestClosingSellReportsRealizedProfit(t *testing.T) {
	venue, server := newVenue(t, nil)
	require.NoError(t, venue.Connect(context.Background(), models.Credentials{Server: server.URL}))

	_, err := venue.SendOrder(context.Background(), models.OrderRequest{Symbol: "BTCUSDT", Volume: 0.002, Side: models.SideTypeBuy})
	require.NoError(t, err)
	fill, err := venue.SendOrder(context.Background(), models.OrderRequest{Symbol: "BTCUSDT", Volume: 0.002, Side: models.SideTypeSell})
	require.NoError(t, err)

	// (31000 - 30000) * 0.002 - 0.06
	assert.InDelta(t, 1.94, fill.RealizedPnL, 1e-9)
}

func TestHistoryDealsCarryExitProfit(t *testing.T) {
	venue, server := newVenue(t, nil)
	require.NoError(t, venue.Connect(context.Background(), models.Credentials{Server: server.URL}))
	_, err := venue.SendOrder(context.Background(), models.OrderRequest{Symbol: "BTCUSDT", Volume: 0.002, Side: models.SideTypeBuy})
	require.NoError(t, err)

	from := time.UnixMilli(1700000000000)
	for i := 0; i < 2; i++ {
		deals, err := venue.GetHistoryDeals(context.Background(), from, from.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, deals, 2)

		assert.Equal(t, int64(7), deals[0].OrderID)
		assert.InDelta(t, -0.06, deals[0].Profit, 1e-9)

		// Exit bracket fill: (29000 - 30000) * 0.002 - 0.058, booked once.
		assert.Equal(t, int64(9), deals[1].OrderID)
		assert.Equal(t, models.SideTypeSell, deals[1].Side)
		assert.InDelta(t, -2.058, deals[1].Profit, 1e-9)
	}
}
