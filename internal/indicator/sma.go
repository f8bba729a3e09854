package indicator

import "errors"

// ErrInsufficientData is returned when a series is too short for the
// requested computation. Callers generally treat it as "no signal".
var ErrInsufficientData = errors.New("not enough data")

// SMA computes the trailing simple moving average over the last `period`
// elements of prices.
func SMA(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(prices) < period {
		return 0, ErrInsufficientData
	}
	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	return sum / float64(period), nil
}
