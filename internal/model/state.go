package model

import "time"

// SymbolState is the per-symbol layering state owned by the strategy engine.
// AnchorPrice is the fill price of the first tranche in the current position
// cycle; layering thresholds compare against it rather than the
// volume-weighted average cost. Zero means no anchor (flat).
type SymbolState struct {
	Layers      int
	AnchorPrice float64
}

// Reset returns the state to flat.
func (s *SymbolState) Reset() {
	s.Layers = 0
	s.AnchorPrice = 0
}

// GlobalRiskState is the process-wide account risk snapshot, one instance,
// updated once per cycle.
type GlobalRiskState struct {
	MaxEquityObserved float64 // monotonic equity high-water mark
	CurrentDrawdown   float64 // (max - current) / max
	DailyRealizedLoss float64
	DailyResetAt      time.Time
}

// ObserveEquity folds a fresh equity reading into the high-water mark and
// recomputes the drawdown.
func (g *GlobalRiskState) ObserveEquity(equity float64) {
	if equity > g.MaxEquityObserved {
		g.MaxEquityObserved = equity
	}
	if g.MaxEquityObserved > 0 {
		g.CurrentDrawdown = (g.MaxEquityObserved - equity) / g.MaxEquityObserved
	}
}
