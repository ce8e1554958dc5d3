package services

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gitlab.com/aoterocom/autotrader/risk"
	"gitlab.com/aoterocom/autotrader/strategies"
)

const timeOfDayLayout = "15:04"

// TimeOfDay is a wall-clock time without a date, in minutes past midnight.
type TimeOfDay int

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse(timeOfDayLayout, s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a HH:MM time of day", s)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func timeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

// ExecutionSettings are the venue-specific order parameters of an instance.
type ExecutionSettings struct {
	// StopLossPoints is the stop distance used for sizing and for the
	// protective order.
	StopLossPoints float64
	// TakeProfitPoints is optional; zero sends no take-profit.
	TakeProfitPoints float64
	// PointSize is the price increment of one point.
	PointSize float64
	// TickValue is the account-currency value of one point per unit of volume.
	TickValue float64
	Comment   string
}

func (e ExecutionSettings) Validate() error {
	if e.StopLossPoints <= 0 {
		return fmt.Errorf("stop_loss_points %v must be positive", e.StopLossPoints)
	}
	if e.TakeProfitPoints < 0 {
		return fmt.Errorf("take_profit_points %v must not be negative", e.TakeProfitPoints)
	}
	if e.PointSize <= 0 {
		return fmt.Errorf("point_size %v must be positive", e.PointSize)
	}
	if e.TickValue <= 0 {
		return fmt.Errorf("tick_value %v must be positive", e.TickValue)
	}
	return nil
}

// StrategyInstance binds a strategy and its own risk manager to a set of
// symbols and a daily trading window.
type StrategyInstance struct {
	Strategy  *strategies.Strategy
	Risk      *risk.Manager
	Symbols   []string
	Start     TimeOfDay
	End       TimeOfDay
	Location  *time.Location
	Execution ExecutionSettings

	mu     sync.Mutex
	active bool
	// closedSession is the opening time of the session the instance was
	// switched off in. Zero when active or re-armed by hand.
	closedSession time.Time
}

// NewStrategyInstance validates its inputs and returns an active instance.
// A nil location means UTC.
func NewStrategyInstance(strategy *strategies.Strategy, riskManager *risk.Manager, symbols []string,
	start, end TimeOfDay, location *time.Location, execution ExecutionSettings) (*StrategyInstance, error) {
	if strategy == nil {
		return nil, errors.New("strategy instance needs a strategy")
	}
	if riskManager == nil {
		return nil, fmt.Errorf("strategy instance %s needs a risk manager", strategy.Name())
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("strategy instance %s has no symbols", strategy.Name())
	}
	if start == end {
		return nil, fmt.Errorf("strategy instance %s has an empty trading window %s-%s", strategy.Name(), start, end)
	}
	if err := execution.Validate(); err != nil {
		return nil, fmt.Errorf("strategy instance %s: %w", strategy.Name(), err)
	}
	if location == nil {
		location = time.UTC
	}
	riskManager.WithName(strategy.Name())

	return &StrategyInstance{
		Strategy:  strategy,
		Risk:      riskManager,
		Symbols:   append([]string(nil), symbols...),
		Start:     start,
		End:       end,
		Location:  location,
		Execution: execution,
		active:    true,
	}, nil
}

func (i *StrategyInstance) Name() string {
	return i.Strategy.Name()
}

func (i *StrategyInstance) IsActive() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.active
}

func (i *StrategyInstance) setActive(active bool) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	changed := i.active != active
	i.active = active
	i.closedSession = time.Time{}
	return changed
}

// closeSession switches the instance off for the rest of the session open at
// now.
func (i *StrategyInstance) closeSession(now time.Time) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	changed := i.active
	i.active = false
	i.closedSession = i.SessionStart(now)
	return changed
}

// reopen re-activates an instance switched off by closeSession once a later
// session has opened.
func (i *StrategyInstance) reopen(now time.Time) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.active || i.closedSession.IsZero() || !i.SessionStart(now).After(i.closedSession) {
		return false
	}
	i.active = true
	i.closedSession = time.Time{}
	return true
}

// SessionStart returns the opening time, in the instance location, of the
// latest session that opened at or before now.
func (i *StrategyInstance) SessionStart(now time.Time) time.Time {
	local := now.In(i.Location)
	year, month, day := local.Date()
	start := time.Date(year, month, day, int(i.Start)/60, int(i.Start)%60, 0, 0, i.Location)
	if timeOfDayOf(local) < i.Start {
		start = time.Date(year, month, day-1, int(i.Start)/60, int(i.Start)%60, 0, 0, i.Location)
	}
	return start
}

// Overnight reports whether the window spans midnight.
func (i *StrategyInstance) Overnight() bool {
	return i.Start > i.End
}

// InWindow reports whether now, converted to the instance location, falls in
// the trading window. Both bounds are inclusive.
func (i *StrategyInstance) InWindow(now time.Time) bool {
	tod := timeOfDayOf(now.In(i.Location))
	if i.Overnight() {
		return tod >= i.Start || tod <= i.End
	}
	return tod >= i.Start && tod <= i.End
}

// PastWindow reports whether now is after the end of the current session and
// before the next one opens.
func (i *StrategyInstance) PastWindow(now time.Time) bool {
	tod := timeOfDayOf(now.In(i.Location))
	if i.Overnight() {
		return tod > i.End && tod < i.Start
	}
	return tod > i.End
}
