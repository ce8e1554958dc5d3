package models

// PairInfo holds the trading filters of a symbol
type PairInfo struct {
	Max       float64
	Min       float64
	StepSize  float64
	Precision int
}

func NewPairInfo(max float64, min float64, step float64, precision int) *PairInfo {
	return &PairInfo{
		Max:       max,
		Min:       min,
		StepSize:  step,
		Precision: precision,
	}
}

// RoundVolume floors volume to the step size and clamps it to Max. A result
// below Min is returned as zero.
func (p *PairInfo) RoundVolume(volume float64) float64 {
	if p == nil {
		return volume
	}
	if p.StepSize > 0 {
		steps := float64(int64(volume/p.StepSize + 1e-9))
		volume = steps * p.StepSize
	}
	if p.Max > 0 && volume > p.Max {
		volume = p.Max
	}
	if volume < p.Min {
		return 0
	}
	return volume
}
