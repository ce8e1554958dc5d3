package services

import (
	"fmt"
	"sort"
	"sync"

	"gitlab.com/aoterocom/autotrader/helpers"
	"gitlab.com/aoterocom/autotrader/models"
)

// TradingRecordService keeps the fills the scheduler executed, per strategy
// instance, for the session summary.
type TradingRecordService struct {
	mu    sync.Mutex
	fills map[string][]models.Fill
}

// TradingSummary aggregates the recorded fills of one instance.
type TradingSummary struct {
	Instance string
	Fills    int
	Volume   float64
	// RealizedPnL is the sum of the fills' realized P&L net of commission.
	RealizedPnL float64
	Commission  float64
	// WinLossRatio counts fills that realized a profit against those that
	// realized a loss. Opening fills realize nothing and are not counted.
	WinLossRatio float64
}

func NewTradingRecordService() *TradingRecordService {
	return &TradingRecordService{fills: make(map[string][]models.Fill)}
}

func (trs *TradingRecordService) Record(instance string, fill models.Fill) {
	trs.mu.Lock()
	defer trs.mu.Unlock()
	trs.fills[instance] = append(trs.fills[instance], fill)
}

// Fills returns a copy of the recorded fills of instance in execution order.
func (trs *TradingRecordService) Fills(instance string) []models.Fill {
	trs.mu.Lock()
	defer trs.mu.Unlock()
	return append([]models.Fill(nil), trs.fills[instance]...)
}

func (trs *TradingRecordService) Summary(instance string) TradingSummary {
	fills := trs.Fills(instance)
	summary := TradingSummary{Instance: instance, Fills: len(fills)}
	var realized []float64
	for _, fill := range fills {
		summary.Volume += fill.Volume
		summary.RealizedPnL += fill.RealizedPnL
		summary.Commission += fill.Commission
		if fill.RealizedPnL != 0 {
			realized = append(realized, fill.RealizedPnL)
		}
	}
	summary.WinLossRatio = helpers.PositiveNegativeRatio(realized)
	return summary
}

// Summaries returns the summary of every instance with fills, by name.
func (trs *TradingRecordService) Summaries() []TradingSummary {
	trs.mu.Lock()
	names := make([]string, 0, len(trs.fills))
	for name := range trs.fills {
		names = append(names, name)
	}
	trs.mu.Unlock()
	sort.Strings(names)

	summaries := make([]TradingSummary, 0, len(names))
	for _, name := range names {
		summaries = append(summaries, trs.Summary(name))
	}
	return summaries
}

func (s TradingSummary) String() string {
	return fmt.Sprintf("%s: %d fills, volume %f, realized %.2f, commission %.2f, win/loss %.2f",
		s.Instance, s.Fills, s.Volume, s.RealizedPnL, s.Commission, s.WinLossRatio)
}
