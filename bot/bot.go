package bot

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"gitlab.com/aoterocom/autotrader/config"
	"gitlab.com/aoterocom/autotrader/database"
	"gitlab.com/aoterocom/autotrader/helpers"
	"gitlab.com/aoterocom/autotrader/interfaces"
	"gitlab.com/aoterocom/autotrader/models"
	"gitlab.com/aoterocom/autotrader/models/analytics"
	"gitlab.com/aoterocom/autotrader/providers"
	"gitlab.com/aoterocom/autotrader/providers/binance"
	"gitlab.com/aoterocom/autotrader/providers/paper"
	"gitlab.com/aoterocom/autotrader/services"
)

// Bot wires configuration, venue, scheduler and backtests together.
type Bot struct {
	config *config.Config

	// newVenue builds the raw venue connector.
	newVenue func(cfg *config.Config) interfaces.ExchangeService
	// newArchive opens the bar archive when enabled.
	newArchive func(cfg *config.Config) (*database.DBService, error)
}

func NewBot(cfg *config.Config) *Bot {
	return &Bot{
		config: cfg,
		newVenue: func(cfg *config.Config) interfaces.ExchangeService {
			return binance.NewBinanceService(cfg.TargetCoin)
		},
		newArchive: func(cfg *config.Config) (*database.DBService, error) {
			return database.NewDBService(cfg.Database.Host, cfg.Database.Port, cfg.Database.Name,
				cfg.Database.User, cfg.Database.Password)
		},
	}
}

// LiveOptions are the run-live command options.
type LiveOptions struct {
	StrategiesFile string
	Paper          bool
}

// RunLive trades every configured instance until ctx is cancelled or the
// process receives SIGINT/SIGTERM.
func (b *Bot) RunLive(ctx context.Context, opts LiveOptions) error {
	helpers.Logger.Infoln("🖖🏻 Autotrader started")

	if opts.StrategiesFile == "" {
		opts.StrategiesFile = b.config.StrategiesFile
	}
	instanceConfigs, err := config.LoadStrategies(opts.StrategiesFile)
	if err != nil {
		return err
	}
	instances, err := BuildInstances(instanceConfigs)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exchange := b.exchange(opts.Paper)
	if err := exchange.Connect(ctx, b.config.Credentials); err != nil {
		return fmt.Errorf("connecting to %s: %w", b.config.Credentials.Server, err)
	}
	defer func() {
		if err := exchange.Disconnect(); err != nil {
			helpers.Logger.Errorln(fmt.Sprintf("Error disconnecting: %s", err.Error()))
		}
	}()

	scheduler, err := services.NewScheduler(exchange, instances,
		services.WithPollInterval(b.config.PollInterval),
		services.WithCallTimeout(b.config.CallTimeout),
		services.WithBalanceAsset(b.config.TargetCoin),
	)
	if err != nil {
		return err
	}

	if b.config.RearmSchedule != "" {
		rearm, err := scheduleRearm(b.config.RearmSchedule, scheduler)
		if err != nil {
			return err
		}
		rearm.Start()
		defer rearm.Stop()
	}

	err = scheduler.Run(ctx)
	for _, summary := range scheduler.Record().Summaries() {
		helpers.Logger.Infoln(summary.String())
	}
	if errors.Is(err, context.Canceled) {
		helpers.Logger.Infoln("Autotrader stopped")
		return nil
	}
	return err
}

// exchange returns the connector the scheduler talks to. Paper trading keeps
// the real venue for market data only.
func (b *Bot) exchange(paperTrading bool) interfaces.ExchangeService {
	venue := b.newVenue(b.config)
	if paperTrading {
		venue = paper.NewPaperService(venue, b.config.TargetCoin, b.config.PaperBalance,
			paper.WithCommission(b.config.PaperCommission),
			paper.WithContractSize(b.config.PaperContractSize),
		)
	}
	return providers.NewSerializedExchange(venue)
}

func scheduleRearm(spec string, scheduler *services.Scheduler) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		helpers.Logger.Infoln("Re-arming strategy instances for the new session")
		scheduler.RearmAll()
	}); err != nil {
		return nil, fmt.Errorf("%w: rearmSchedule %q: %s", config.ErrInvalidConfig, spec, err.Error())
	}
	return c, nil
}

// BacktestOptions are the backtest command options. An empty Symbol replays
// every symbol of the strategy.
type BacktestOptions struct {
	StrategiesFile string
	Strategy       string
	Symbol         string
	From           time.Time
	To             time.Time
	Timeframe      models.Timeframe
	InitialBalance float64
	Slippage       float64
}

// Backtest replays the named strategy over history fetched from the venue.
func (b *Bot) Backtest(ctx context.Context, opts BacktestOptions) ([]analytics.BacktestResult, error) {
	if opts.StrategiesFile == "" {
		opts.StrategiesFile = b.config.StrategiesFile
	}
	instanceConfigs, err := config.LoadStrategies(opts.StrategiesFile)
	if err != nil {
		return nil, err
	}
	instanceConfig, err := findInstance(instanceConfigs, opts.Strategy)
	if err != nil {
		return nil, err
	}
	instance, err := instanceConfig.Build(nil)
	if err != nil {
		return nil, err
	}

	venue := providers.NewSerializedExchange(b.newVenue(b.config))
	if err := venue.Connect(ctx, b.config.Credentials); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", b.config.Credentials.Server, err)
	}
	defer venue.Disconnect()

	cacheOpts := []services.CacheOption{services.WithFetchTimeout(b.config.CallTimeout)}
	if b.config.EnableBarArchive {
		archive, err := b.newArchive(b.config)
		if err != nil {
			return nil, err
		}
		defer archive.Close()
		cacheOpts = append(cacheOpts, services.WithArchive(archive))
	}
	cache, err := services.NewMarketDataCache(venue, b.config.CacheSize, cacheOpts...)
	if err != nil {
		return nil, err
	}

	var runnerOpts []services.BacktestOption
	if opts.InitialBalance > 0 {
		runnerOpts = append(runnerOpts, services.WithInitialBalance(opts.InitialBalance))
	}
	if opts.Slippage > 0 {
		runnerOpts = append(runnerOpts, services.WithSlippage(opts.Slippage))
	}
	runner, err := services.NewBacktestRunner(cache, runnerOpts...)
	if err != nil {
		return nil, err
	}

	symbols := instance.Symbols
	if opts.Symbol != "" {
		symbols = []string{opts.Symbol}
	}
	results := make([]analytics.BacktestResult, 0, len(symbols))
	for _, symbol := range symbols {
		result, err := runner.Run(ctx, instance, symbol, opts.From, opts.To, opts.Timeframe)
		if err != nil {
			return nil, fmt.Errorf("backtest of %s on %s: %w", instance.Name(), symbol, err)
		}
		helpers.Logger.Infoln(FormatBacktestResult(result))
		results = append(results, result)
	}
	stats := cache.Stats()
	helpers.Logger.Debugln(fmt.Sprintf("Bar cache: %d hits, %d misses, %d/%d entries",
		stats.Hits, stats.Misses, stats.Size, stats.Capacity))
	return results, nil
}

func FormatBacktestResult(result analytics.BacktestResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Backtest %s on %s %s [%s, %s] over %d bars\n", result.Strategy, result.Symbol, result.Timeframe,
		result.From.Format(time.RFC3339), result.To.Format(time.RFC3339), result.Bars)
	fmt.Fprintf(&b, "  Balance:   %.2f -> %.2f (net %.2f, %.2f%%)\n", result.InitialBalance, result.FinalBalance,
		result.NetPnL, result.ReturnPct)
	fmt.Fprintf(&b, "  Drawdown:  %.2f%%\n", result.MaxDrawdownPct)
	fmt.Fprintf(&b, "  Trades:    %d (%d closed, %d rejected by risk)\n", result.Trades, result.ClosedTrades, result.Rejected)
	fmt.Fprintf(&b, "  Win rate:  %.2f%% (%d won, %d lost)", result.WinRate, result.Wins, result.Losses)
	for _, trade := range result.TradeLog {
		fmt.Fprintf(&b, "\n  %s %s %.4f %s @ %f -> %s @ %f  %+.2f (%s)", trade.Side, trade.Symbol, trade.Volume,
			trade.EntryTime.Format(time.RFC3339), trade.EntryPrice, trade.ExitTime.Format(time.RFC3339),
			trade.ExitPrice, trade.Profit, trade.Trigger)
	}
	return b.String()
}
