package recorder

import "LayerTrader/internal/model"

// EquitySnapshot is one per-cycle account reading.
type EquitySnapshot struct {
	Equity    float64
	MaxEquity float64
	Drawdown  float64
	DailyPnL  float64
}

// DailySummary is the end-of-session rollup.
type DailySummary struct {
	Date        string // YYYY-MM-DD, US/Eastern
	Trades      int
	RealizedPnL float64
	Equity      float64
	Drawdown    float64
}

// Recorder persists the audit trail for later analysis.
type Recorder interface {
	RecordTransaction(tx *model.Transaction) error
	RecordEquity(snap *EquitySnapshot) error
	RecordDailySummary(sum *DailySummary) error
	Close() error
}
