package bot

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"gitlab.com/aoterocom/autotrader/config"
	"gitlab.com/aoterocom/autotrader/helpers"
	"gitlab.com/aoterocom/autotrader/models"
)

const dateLayout = "2006-01-02"

// Commands returns the command line entry points.
func Commands() []*cli.Command {
	configFlag := &cli.StringFlag{
		Name:  "config",
		Usage: "settings file (defaults to $CONF_FILE or ./conf.env)",
	}
	strategiesFlag := &cli.StringFlag{
		Name:  "strategies",
		Usage: "strategy instances YAML file (defaults to the strategiesFile setting)",
	}

	return []*cli.Command{
		{
			Name:  "run-live",
			Usage: "trade every configured strategy instance until interrupted",
			Flags: []cli.Flag{
				configFlag,
				strategiesFlag,
				&cli.BoolFlag{Name: "paper", Usage: "simulate fills on top of live market data"},
			},
			Action: runLive,
		},
		{
			Name:  "backtest",
			Usage: "replay a strategy instance over historical bars",
			Flags: []cli.Flag{
				configFlag,
				strategiesFlag,
				&cli.StringFlag{Name: "strategy", Required: true, Usage: "strategy instance name"},
				&cli.StringFlag{Name: "symbol", Usage: "symbol to replay (defaults to every symbol of the instance)"},
				&cli.StringFlag{Name: "from", Required: true, Usage: "first bar, YYYY-MM-DD or RFC3339"},
				&cli.StringFlag{Name: "to", Required: true, Usage: "last bar, YYYY-MM-DD (the whole day) or RFC3339"},
				&cli.StringFlag{Name: "timeframe", Value: string(models.TimeframeH1), Usage: "bar timeframe, M1 to MN1"},
				&cli.Float64Flag{Name: "balance", Usage: "initial simulated balance"},
				&cli.Float64Flag{Name: "slippage", Usage: "fill slippage in points"},
			},
			Action: runBacktest,
		},
	}
}

func runLive(c *cli.Context) error {
	b, err := setup(c)
	if err != nil {
		return err
	}
	err = b.RunLive(c.Context, LiveOptions{
		StrategiesFile: c.String("strategies"),
		Paper:          c.Bool("paper"),
	})
	return exitOnError(err)
}

func runBacktest(c *cli.Context) error {
	opts, err := backtestOptions(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	b, err := setup(c)
	if err != nil {
		return err
	}
	_, err = b.Backtest(c.Context, opts)
	return exitOnError(err)
}

func backtestOptions(c *cli.Context) (BacktestOptions, error) {
	from, err := parseDate(c.String("from"), false)
	if err != nil {
		return BacktestOptions{}, fmt.Errorf("--from: %w", err)
	}
	to, err := parseDate(c.String("to"), true)
	if err != nil {
		return BacktestOptions{}, fmt.Errorf("--to: %w", err)
	}
	timeframe, err := models.ParseTimeframe(c.String("timeframe"))
	if err != nil {
		return BacktestOptions{}, fmt.Errorf("--timeframe: %w", err)
	}
	return BacktestOptions{
		StrategiesFile: c.String("strategies"),
		Strategy:       c.String("strategy"),
		Symbol:         c.String("symbol"),
		From:           from,
		To:             to,
		Timeframe:      timeframe,
		InitialBalance: c.Float64("balance"),
		Slippage:       c.Float64("slippage"),
	}, nil
}

// setup loads the settings and points the logger at them.
func setup(c *cli.Context) (*Bot, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	if err := helpers.SetupLogger(helpers.LoggerOptions{
		File:           cfg.LogFile,
		Level:          cfg.LogLevel,
		TelegramOutput: cfg.TelegramOutput,
		TelegramToken:  cfg.TelegramToken,
		TelegramChatId: cfg.TelegramChatId,
	}); err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	return NewBot(cfg), nil
}

// exitOnError turns configuration problems into exit status 1 and leaves
// every other failure to the app's error handler.
func exitOnError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, config.ErrInvalidConfig) {
		return cli.Exit(err.Error(), 1)
	}
	return err
}

// parseDate accepts a calendar date or an RFC3339 timestamp. A calendar date
// is UTC midnight, or the last instant of that day when endOfDay is set.
func parseDate(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		if endOfDay {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither YYYY-MM-DD nor RFC3339", s)
	}
	return t, nil
}
