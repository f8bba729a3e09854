package market

// HistoryProvider supplies historical daily closes, oldest first.
type HistoryProvider interface {
	Closes(symbol string, days int) ([]float64, error)
}

// IndexQuoter supplies the latest level and day-over-day change of a broad
// market index. Change is a fraction (0.01 = +1%).
type IndexQuoter interface {
	DayChange(symbol string) (price, change float64, err error)
}
