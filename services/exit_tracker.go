package services

import (
	"sync"
	"time"

	"gitlab.com/aoterocom/autotrader/models"
)

const minDealSyncOverlap = time.Minute

type venueOrder struct {
	symbol  string
	orderID int64
}

type dealKey struct {
	symbol string
	ticket int64
}

type positionOwner struct {
	instance *StrategyInstance
	side     models.SideType
}

// exitTracker attributes deals the scheduler did not send itself, such as
// stop-loss and take-profit exits filled by the venue, to the instance whose
// entry opened the position on that symbol.
type exitTracker struct {
	mu      sync.Mutex
	overlap time.Duration
	owners  map[string]positionOwner
	own     map[venueOrder]bool
	// seen maps every deal already handled to when it was first returned.
	seen  map[dealKey]time.Time
	since time.Time
}

type attributedDeal struct {
	instance *StrategyInstance
	deal     models.Deal
}

func newExitTracker(overlap time.Duration) *exitTracker {
	if overlap < minDealSyncOverlap {
		overlap = minDealSyncOverlap
	}
	return &exitTracker{
		overlap: overlap,
		owners:  make(map[string]positionOwner),
		own:     make(map[venueOrder]bool),
		seen:    make(map[dealKey]time.Time),
	}
}

// opened records an entry filled for instance.
func (t *exitTracker) opened(instance *StrategyInstance, fill models.Fill, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.own[venueOrder{symbol: fill.Symbol, orderID: fill.OrderID}] = true
	t.owners[fill.Symbol] = positionOwner{instance: instance, side: fill.Side}
	if t.since.IsZero() {
		t.since = now.Add(-t.overlap)
	}
}

// window returns the range to query, or false before the first entry.
func (t *exitTracker) window(now time.Time) (time.Time, time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.since.IsZero() {
		return time.Time{}, time.Time{}, false
	}
	return t.since, now.Add(t.overlap), true
}

// attribute returns the closing deals not seen before and moves the window
// forward. Queries overlap so late deals are not lost.
func (t *exitTracker) attribute(deals []models.Deal, now time.Time) []attributedDeal {
	t.mu.Lock()
	defer t.mu.Unlock()

	var exits []attributedDeal
	for _, deal := range deals {
		key := dealKey{symbol: deal.Symbol, ticket: deal.Ticket}
		if _, ok := t.seen[key]; ok {
			continue
		}
		t.seen[key] = now
		if t.own[venueOrder{symbol: deal.Symbol, orderID: deal.OrderID}] {
			continue
		}
		owner, ok := t.owners[deal.Symbol]
		if !ok || deal.Side == owner.side {
			continue
		}
		exits = append(exits, attributedDeal{instance: owner.instance, deal: deal})
	}

	// A deal seen at T lies before T+overlap, so queries from after
	// T+2*overlap can no longer return it.
	t.since = now.Add(-t.overlap)
	for key, seenAt := range t.seen {
		if seenAt.Before(now.Add(-3 * t.overlap)) {
			delete(t.seen, key)
		}
	}
	return exits
}
