package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"gitlab.com/aoterocom/autotrader/helpers"
)

// Manager gates and sizes the trades of one strategy instance. It resets its
// daily counters the first time it is used on a new calendar date, as seen in
// the location of its clock.
type Manager struct {
	mu               sync.Mutex
	name             string
	config           Config
	referenceCapital float64
	clock            func() time.Time
	state            State
}

// NewManager builds a Manager. referenceCapital is the balance the daily
// drawdown limit is measured against. A nil clock means time.Now.
func NewManager(config Config, referenceCapital float64, clock func() time.Time) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if !positive(referenceCapital) {
		return nil, fmt.Errorf("%w: reference capital %v must be positive", ErrInvalidInput, referenceCapital)
	}
	if clock == nil {
		clock = time.Now
	}
	m := &Manager{
		config:           config,
		referenceCapital: referenceCapital,
		clock:            clock,
	}
	m.state.LastResetDate = dateOf(clock())
	return m, nil
}

// WithName sets the name used in log lines.
func (m *Manager) WithName(name string) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	return m
}

func (m *Manager) CanOpenNewTrade() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()

	if m.state.TradesToday >= m.config.MaxTradesPerDay {
		helpers.Logger.Infoln(fmt.Sprintf("%s: daily trade limit reached (%d/%d)",
			m.name, m.state.TradesToday, m.config.MaxTradesPerDay))
		return false
	}
	if m.state.CurrentDailyPnL <= -m.maxDailyLoss() {
		helpers.Logger.Infoln(fmt.Sprintf("%s: daily drawdown limit reached (P&L %.2f, limit %.2f)",
			m.name, m.state.CurrentDailyPnL, -m.maxDailyLoss()))
		return false
	}
	return true
}

// RegisterTradeResult records one completed trade and its realized P&L.
func (m *Manager) RegisterTradeResult(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()

	m.state.CurrentDailyPnL += pnl
	m.state.TradesToday++
	helpers.Logger.Debugln(fmt.Sprintf("%s: trade registered, P&L %.2f, day P&L %.2f, trades %d",
		m.name, pnl, m.state.CurrentDailyPnL, m.state.TradesToday))
}

// CalculatePositionSize returns the volume that loses MaxRiskPerTrade percent
// of balance when the stop loss is hit.
func (m *Manager) CalculatePositionSize(balance, stopLossPoints, tickValue float64) (float64, error) {
	if !positive(balance) || !positive(stopLossPoints) || !positive(tickValue) {
		return 0, fmt.Errorf("%w: balance=%v stop_loss_points=%v tick_value=%v",
			ErrInvalidInput, balance, stopLossPoints, tickValue)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()

	riskAmount := balance * m.config.MaxRiskPerTrade / 100
	return riskAmount / (stopLossPoints * tickValue), nil
}

// positive rejects NaN and infinities along with non-positive values.
func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

// Snapshot returns a copy of the current state after applying any pending
// daily reset.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()
	return m.state
}

func (m *Manager) Config() Config {
	return m.config
}

func (m *Manager) ReferenceCapital() float64 {
	return m.referenceCapital
}

func (m *Manager) maxDailyLoss() float64 {
	return m.config.MaxDailyDrawdown / 100 * m.referenceCapital
}

func (m *Manager) rollover() {
	today := dateOf(m.clock())
	if today.Equal(m.state.LastResetDate) {
		return
	}
	helpers.Logger.Debugln(fmt.Sprintf("%s: new trading day %s, resetting daily counters (was P&L %.2f, trades %d)",
		m.name, today.Format("2006-01-02"), m.state.CurrentDailyPnL, m.state.TradesToday))
	m.state = State{LastResetDate: today}
}

func dateOf(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}
