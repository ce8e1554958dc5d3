package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gitlab.com/aoterocom/autotrader/helpers"
	"gitlab.com/aoterocom/autotrader/models"
	"gitlab.com/aoterocom/autotrader/models/analytics"
	"gitlab.com/aoterocom/autotrader/providers/paper"
	"gitlab.com/aoterocom/autotrader/risk"
)

const defaultInitialBalance = 10000

type BacktestOption func(*BacktestRunner)

func WithInitialBalance(balance float64) BacktestOption {
	return func(r *BacktestRunner) { r.initialBalance = balance }
}

// WithSlippage worsens every signal fill by the given number of points.
func WithSlippage(points float64) BacktestOption {
	return func(r *BacktestRunner) { r.slippagePoints = points }
}

// BacktestRunner replays historical bars through the signal and risk
// pipeline the scheduler uses live.
type BacktestRunner struct {
	cache          *MarketDataCache
	initialBalance float64
	slippagePoints float64
}

func NewBacktestRunner(cache *MarketDataCache, opts ...BacktestOption) (*BacktestRunner, error) {
	if cache == nil {
		return nil, fmt.Errorf("backtest runner needs a market data cache")
	}
	r := &BacktestRunner{cache: cache, initialBalance: defaultInitialBalance}
	for _, opt := range opts {
		opt(r)
	}
	if r.initialBalance <= 0 {
		return nil, fmt.Errorf("initial balance %v must be positive", r.initialBalance)
	}
	if r.slippagePoints < 0 {
		return nil, fmt.Errorf("slippage %v must not be negative", r.slippagePoints)
	}
	return r, nil
}

// simulation is the mutable state of one Run.
type simulation struct {
	instance *StrategyInstance
	symbol   string
	book     *paper.Book
	risk     *risk.Manager
	balance  float64
	result   analytics.BacktestResult
}

// Run replays [from, to] of symbol on timeframe. The instance's strategy and
// risk manager are not touched: the run uses fresh copies built from their
// parameters, with the risk clock following bar time.
//
// Each bar is handled in order: protective exits against the bar range, then
// the strategy signal filled at the close.
func (r *BacktestRunner) Run(ctx context.Context, instance *StrategyInstance, symbol string, from, to time.Time, timeframe models.Timeframe) (analytics.BacktestResult, error) {
	bars, err := r.cache.Get(ctx, symbol, from, to, timeframe)
	if err != nil {
		return analytics.BacktestResult{}, err
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })

	strategy, err := instance.Strategy.Clone()
	if err != nil {
		return analytics.BacktestResult{}, err
	}
	var simulatedNow time.Time
	riskManager, err := risk.NewManager(instance.Risk.Config(), instance.Risk.ReferenceCapital(),
		func() time.Time { return simulatedNow })
	if err != nil {
		return analytics.BacktestResult{}, err
	}
	riskManager.WithName(instance.Name() + " (backtest)")

	execution := instance.Execution
	sim := &simulation{
		instance: instance,
		symbol:   symbol,
		book: paper.NewBook(func(_ string, priceDelta, volume float64) float64 {
			return priceDelta / execution.PointSize * execution.TickValue * volume
		}),
		risk:    riskManager,
		balance: r.initialBalance,
		result: analytics.BacktestResult{
			Strategy:       instance.Name(),
			Symbol:         symbol,
			Timeframe:      timeframe,
			From:           from,
			To:             to,
			Bars:           len(bars),
			InitialBalance: r.initialBalance,
			ProfitList:     []float64{},
			TradeLog:       []analytics.SimulatedTrade{},
		},
	}

	equity := make([]float64, 0, len(bars)+1)
	equity = append(equity, r.initialBalance)
	for _, bar := range bars {
		if err := ctx.Err(); err != nil {
			return analytics.BacktestResult{}, err
		}
		bar.Symbol = symbol
		simulatedNow = bar.Time.In(instance.Location)

		sim.checkProtectiveExits(bar)

		signal := strategy.GenerateSignal(models.SnapshotFromBar(bar))
		if signal != models.SignalHold {
			r.trade(sim, signal, bar)
		}
		equity = append(equity, sim.balance+sim.book.UnrealizedPnL(symbol, bar.Close))
	}

	if len(bars) > 0 {
		last := bars[len(bars)-1]
		if closed, ok := sim.book.Close(symbol, last.Close, last.Time); ok {
			sim.recordClose(closed, models.ExitTriggerEndOfData)
			equity[len(equity)-1] = sim.balance
		}
	}

	result := sim.result
	result.FinalBalance = sim.balance
	result.NetPnL = sim.balance - r.initialBalance
	result.ReturnPct = result.NetPnL * 100 / r.initialBalance
	result.MaxDrawdownPct = helpers.MaxDrawdownPct(equity)
	result.ClosedTrades = len(result.TradeLog)
	if result.ClosedTrades > 0 {
		result.WinRate = float64(result.Wins) * 100 / float64(result.ClosedTrades)
	}

	helpers.Logger.Infoln(fmt.Sprintf("Backtest %s on %s %s: %d bars, %d trades, net %.2f (%.2f%%), max drawdown %.2f%%",
		result.Strategy, symbol, timeframe, result.Bars, result.Trades, result.NetPnL, result.ReturnPct, result.MaxDrawdownPct))
	return result, nil
}

func (r *BacktestRunner) trade(sim *simulation, signal models.Signal, bar models.Bar) {
	side, _ := signal.Side()
	if position, ok := sim.book.Position(sim.symbol); ok && position.Side == side {
		return
	}
	if !sim.risk.CanOpenNewTrade() {
		sim.result.Rejected++
		return
	}

	execution := sim.instance.Execution
	volume, err := sim.risk.CalculatePositionSize(sim.balance, execution.StopLossPoints, execution.TickValue)
	if err != nil {
		helpers.Logger.Warnln(fmt.Sprintf("Backtest %s: %s", sim.instance.Name(), err.Error()))
		sim.result.Rejected++
		return
	}

	price := bar.Close + side.Direction()*r.slippagePoints*execution.PointSize
	request := buildOrderRequest(sim.symbol, side, volume, price, execution)

	realized := 0.0
	for _, closed := range sim.book.Execute(request, price, bar.Time) {
		sim.recordClose(closed, models.ExitTriggerStrategy)
		realized += closed.Profit
	}
	sim.result.Trades++
	sim.risk.RegisterTradeResult(realized)
}

// checkProtectiveExits closes the position when the bar range reaches its
// stop-loss or take-profit. If both are inside the range the stop-loss wins.
func (sim *simulation) checkProtectiveExits(bar models.Bar) {
	position, ok := sim.book.Position(sim.symbol)
	if !ok {
		return
	}

	var exitPrice float64
	trigger := models.ExitTriggerNone
	if position.IsLong() {
		switch {
		case position.StopLoss > 0 && bar.Low <= position.StopLoss:
			exitPrice, trigger = position.StopLoss, models.ExitTriggerStopLoss
		case position.TakeProfit > 0 && bar.High >= position.TakeProfit:
			exitPrice, trigger = position.TakeProfit, models.ExitTriggerTakeProfit
		}
	} else {
		switch {
		case position.StopLoss > 0 && bar.High >= position.StopLoss:
			exitPrice, trigger = position.StopLoss, models.ExitTriggerStopLoss
		case position.TakeProfit > 0 && bar.Low <= position.TakeProfit:
			exitPrice, trigger = position.TakeProfit, models.ExitTriggerTakeProfit
		}
	}
	if trigger == models.ExitTriggerNone {
		return
	}

	closed, _ := sim.book.Close(sim.symbol, exitPrice, bar.Time)
	sim.recordClose(closed, trigger)
	sim.result.Trades++
	sim.risk.RegisterTradeResult(closed.Profit)
}

func (sim *simulation) recordClose(closed paper.Closed, trigger models.ExitTrigger) {
	sim.balance += closed.Profit
	sim.result.ProfitList = append(sim.result.ProfitList, closed.Profit)
	if closed.Profit > 0 {
		sim.result.Wins++
	} else {
		sim.result.Losses++
	}
	sim.result.TradeLog = append(sim.result.TradeLog, analytics.SimulatedTrade{
		Symbol:     closed.Position.Symbol,
		Side:       closed.Position.Side,
		Volume:     closed.Volume,
		EntryTime:  closed.Position.OpenTime,
		EntryPrice: closed.Position.OpenPrice,
		ExitTime:   closed.ExitTime,
		ExitPrice:  closed.ExitPrice,
		Profit:     closed.Profit,
		Trigger:    trigger,
	})
}
