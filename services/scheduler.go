package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gitlab.com/aoterocom/autotrader/helpers"
	"gitlab.com/aoterocom/autotrader/interfaces"
	"gitlab.com/aoterocom/autotrader/models"
	"gitlab.com/aoterocom/autotrader/risk"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultCallTimeout  = 10 * time.Second

	// dealSyncTask names the TickError of a failed exit sync.
	dealSyncTask = "deal sync"
)

var (
	ErrUnknownInstance = errors.New("unknown strategy instance")
	// ErrPanic marks a panic recovered while processing a symbol.
	ErrPanic = errors.New("recovered panic")
)

// TickError is the failure of one (instance, symbol) evaluation, or of the
// exit sync when Symbol is empty.
type TickError struct {
	Instance string
	Symbol   string
	Err      error
}

func (e TickError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("%s: %s", e.Instance, e.Err.Error())
	}
	return fmt.Sprintf("%s/%s: %s", e.Instance, e.Symbol, e.Err.Error())
}

func (e TickError) Unwrap() error {
	return e.Err
}

// Sleeper waits for d or until ctx is done, returning ctx.Err() in the latter
// case.
type Sleeper func(ctx context.Context, d time.Duration) error

func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type SchedulerOption func(*Scheduler)

func WithPollInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.pollInterval = d }
}

// WithCallTimeout bounds every venue call.
func WithCallTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.callTimeout = d }
}

func WithClock(clock func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.clock = clock }
}

func WithSleeper(sleeper Sleeper) SchedulerOption {
	return func(s *Scheduler) { s.sleep = sleeper }
}

// WithBalanceAsset selects the balance used for position sizing. Empty means
// the venue's account currency.
func WithBalanceAsset(asset string) SchedulerOption {
	return func(s *Scheduler) { s.balanceAsset = asset }
}

// Scheduler drives the live loop: every poll interval each active instance
// inside its trading window evaluates its symbols and trades the signals its
// risk manager allows.
type Scheduler struct {
	exchange     interfaces.ExchangeService
	instances    []*StrategyInstance
	byName       map[string]*StrategyInstance
	pollInterval time.Duration
	callTimeout  time.Duration
	clock        func() time.Time
	sleep        Sleeper
	balanceAsset string
	record       *TradingRecordService
	exits        *exitTracker
}

func NewScheduler(exchange interfaces.ExchangeService, instances []*StrategyInstance, opts ...SchedulerOption) (*Scheduler, error) {
	if exchange == nil {
		return nil, errors.New("scheduler needs an exchange")
	}
	s := &Scheduler{
		exchange:     exchange,
		byName:       make(map[string]*StrategyInstance, len(instances)),
		pollInterval: defaultPollInterval,
		callTimeout:  defaultCallTimeout,
		clock:        time.Now,
		sleep:        contextSleep,
		record:       NewTradingRecordService(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pollInterval <= 0 || s.callTimeout <= 0 {
		return nil, fmt.Errorf("poll interval %s and call timeout %s must be positive", s.pollInterval, s.callTimeout)
	}
	s.exits = newExitTracker(2*s.pollInterval + s.callTimeout)

	owners := make(map[*risk.Manager]string, len(instances))
	for _, instance := range instances {
		if instance == nil {
			return nil, errors.New("nil strategy instance")
		}
		name := instance.Name()
		if _, ok := s.byName[name]; ok {
			return nil, fmt.Errorf("duplicate strategy instance name %q", name)
		}
		if owner, ok := owners[instance.Risk]; ok {
			return nil, fmt.Errorf("strategy instances %q and %q share a risk manager", owner, name)
		}
		owners[instance.Risk] = name
		s.byName[name] = instance
		s.instances = append(s.instances, instance)
	}
	return s, nil
}

// Run ticks until ctx is done and returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	helpers.Logger.Infoln(fmt.Sprintf("Scheduler started with %d strategy instances, polling every %s",
		len(s.instances), s.pollInterval))
	for {
		if err := ctx.Err(); err != nil {
			helpers.Logger.Infoln("Scheduler stopped")
			return err
		}
		for _, tickErr := range s.Tick(ctx) {
			helpers.Logger.Errorln(tickErr.Error())
		}
		if err := s.sleep(ctx, s.pollInterval); err != nil {
			helpers.Logger.Infoln("Scheduler stopped")
			return err
		}
	}
}

// Tick runs one evaluation pass. Exits filled by the venue since the last
// pass are registered first. Instances then run concurrently; the symbols of
// one instance run in order. Failures are collected, never propagated.
func (s *Scheduler) Tick(ctx context.Context) []TickError {
	now := s.clock()

	var (
		mu    sync.Mutex
		errs  []TickError
		group errgroup.Group
	)
	if err := s.syncExits(ctx, now); err != nil {
		errs = append(errs, TickError{Instance: dealSyncTask, Err: err})
	}
	for _, instance := range s.instances {
		instance := instance
		if !s.inSession(instance, now) {
			continue
		}
		group.Go(func() error {
			instanceErrs := s.runInstance(ctx, instance)
			if len(instanceErrs) > 0 {
				mu.Lock()
				errs = append(errs, instanceErrs...)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()
	return errs
}

// Record returns the fills executed so far.
func (s *Scheduler) Record() *TradingRecordService {
	return s.record
}

func (s *Scheduler) Instances() []*StrategyInstance {
	return append([]*StrategyInstance(nil), s.instances...)
}

// Rearm re-activates an instance for its next session.
func (s *Scheduler) Rearm(name string) error {
	instance, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownInstance, name)
	}
	if instance.setActive(true) {
		helpers.Logger.Infoln(fmt.Sprintf("%s: re-armed for the next session", name))
	}
	return nil
}

func (s *Scheduler) RearmAll() {
	for _, instance := range s.instances {
		_ = s.Rearm(instance.Name())
	}
}

// Deactivate switches an instance off for the rest of its current session.
// It re-arms itself when its next session opens, or earlier through Rearm.
func (s *Scheduler) Deactivate(name string) error {
	instance, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownInstance, name)
	}
	if instance.closeSession(s.clock()) {
		helpers.Logger.Infoln(fmt.Sprintf("%s: deactivated", name))
	}
	return nil
}

func (s *Scheduler) inSession(instance *StrategyInstance, now time.Time) bool {
	if !instance.IsActive() {
		if !instance.reopen(now) {
			return false
		}
		helpers.Logger.Infoln(fmt.Sprintf("%s: session of %s opened, re-armed",
			instance.Name(), instance.SessionStart(now).Format("2006-01-02 15:04 MST")))
	}
	if instance.InWindow(now) {
		return true
	}
	if instance.PastWindow(now) {
		helpers.Logger.Infoln(fmt.Sprintf("%s: trading window %s-%s %s is over",
			instance.Name(), instance.Start, instance.End, instance.Location))
		if instance.closeSession(now) {
			helpers.Logger.Infoln(fmt.Sprintf("%s: deactivated", instance.Name()))
		}
	}
	return false
}

// syncExits registers, with the risk manager of the instance that opened the
// position, every closing deal the venue filled on its own since the last
// pass.
func (s *Scheduler) syncExits(ctx context.Context, now time.Time) error {
	from, to, ok := s.exits.window(now)
	if !ok {
		return nil
	}
	var deals []models.Deal
	if err := s.venueCall(ctx, func(ctx context.Context) (err error) {
		deals, err = s.exchange.GetHistoryDeals(ctx, from, to)
		return err
	}); err != nil {
		return fmt.Errorf("history deals: %w", err)
	}

	for _, exit := range s.exits.attribute(deals, now) {
		deal := exit.deal
		exit.instance.Risk.RegisterTradeResult(deal.Profit)
		s.record.Record(exit.instance.Name(), models.Fill{
			OrderID:     deal.OrderID,
			Symbol:      deal.Symbol,
			Side:        deal.Side,
			Volume:      deal.Volume,
			Price:       deal.Price,
			Status:      models.OrderStatusTypeFilled,
			RealizedPnL: deal.Profit,
			Commission:  deal.Commission,
			Time:        deal.Time,
			Comment:     deal.Comment,
		})
		helpers.Logger.WithFields(log.Fields{helpers.NotifyField: true}).Infoln(
			fmt.Sprintf("%s: %s exit of %f %s at %f, profit %.2f", exit.instance.Name(), deal.Side, deal.Volume,
				deal.Symbol, deal.Price, deal.Profit))
	}
	return nil
}

func (s *Scheduler) runInstance(ctx context.Context, instance *StrategyInstance) []TickError {
	var errs []TickError
	for _, symbol := range instance.Symbols {
		if ctx.Err() != nil {
			break
		}
		if err := s.processSymbol(ctx, instance, symbol); err != nil {
			errs = append(errs, TickError{Instance: instance.Name(), Symbol: symbol, Err: err})
		}
	}
	return errs
}

func (s *Scheduler) processSymbol(ctx context.Context, instance *StrategyInstance, symbol string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			helpers.Logger.Errorln(fmt.Sprintf("Recovered. Error processing %s on %s: %+v", symbol, instance.Name(), r))
			helpers.Logger.Errorln(string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	var snapshot models.Snapshot
	if err := s.venueCall(ctx, func(ctx context.Context) (err error) {
		snapshot, err = s.exchange.GetSnapshot(ctx, symbol)
		return err
	}); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	signal := instance.Strategy.GenerateSignal(snapshot)
	if signal == models.SignalHold {
		return nil
	}
	side, err := signal.Side()
	if err != nil {
		return err
	}
	helpers.Logger.Debugln(fmt.Sprintf("%s: %s signal on %s", instance.Name(), signal, symbol))

	if !instance.Risk.CanOpenNewTrade() {
		helpers.Logger.Infoln(fmt.Sprintf("%s: %s signal on %s blocked by risk limits", instance.Name(), signal, symbol))
		return nil
	}

	var positions []models.Position
	if err := s.venueCall(ctx, func(ctx context.Context) (err error) {
		positions, err = s.exchange.GetOpenPositions(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("open positions: %w", err)
	}
	for _, position := range positions {
		if position.Symbol == symbol && position.Side == side {
			helpers.Logger.Debugln(fmt.Sprintf("%s: %s position on %s already open", instance.Name(), side, symbol))
			return nil
		}
	}

	var balance float64
	if err := s.venueCall(ctx, func(ctx context.Context) (err error) {
		balance, err = s.exchange.GetBalance(ctx, s.balanceAsset)
		return err
	}); err != nil {
		return fmt.Errorf("balance: %w", err)
	}

	execution := instance.Execution
	volume, err := instance.Risk.CalculatePositionSize(balance, execution.StopLossPoints, execution.TickValue)
	if err != nil {
		return fmt.Errorf("position size: %w", err)
	}

	request := buildOrderRequest(symbol, side, volume, entryPrice(snapshot, side), execution)
	var fill models.Fill
	if err := s.venueCall(ctx, func(ctx context.Context) (err error) {
		fill, err = s.exchange.SendOrder(ctx, request)
		return err
	}); err != nil {
		return fmt.Errorf("send order: %w", err)
	}
	if !fill.IsFilled() {
		return fmt.Errorf("%w: order %d on %s is %s", models.ErrOrderRejected, fill.OrderID, symbol, fill.Status)
	}

	instance.Risk.RegisterTradeResult(fill.RealizedPnL)
	s.record.Record(instance.Name(), fill)
	s.exits.opened(instance, fill, s.clock())
	helpers.Logger.WithFields(log.Fields{helpers.NotifyField: true}).Infoln(
		fmt.Sprintf("%s: %s %f %s at %f (SL %f, TP %f)", instance.Name(), fill.Side, fill.Volume, symbol,
			fill.Price, request.StopLoss, request.TakeProfit))
	return nil
}

func (s *Scheduler) venueCall(ctx context.Context, call func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return call(ctx)
}

func entryPrice(snapshot models.Snapshot, side models.SideType) float64 {
	price := snapshot.Ask
	if side == models.SideTypeSell {
		price = snapshot.Bid
	}
	if price <= 0 {
		price = snapshot.Price()
	}
	return price
}

// buildOrderRequest places the protective levels the configured number of
// points away from price, on the losing and winning side respectively.
func buildOrderRequest(symbol string, side models.SideType, volume, price float64, execution ExecutionSettings) models.OrderRequest {
	direction := side.Direction()
	request := models.OrderRequest{
		Symbol:  symbol,
		Volume:  volume,
		Side:    side,
		Comment: execution.Comment,
	}
	if price > 0 {
		request.StopLoss = price - direction*execution.StopLossPoints*execution.PointSize
		if execution.TakeProfitPoints > 0 {
			request.TakeProfit = price + direction*execution.TakeProfitPoints*execution.PointSize
		}
	}
	return request
}
