package indicator

import "github.com/markcheno/go-talib"

// ROC returns the percentage change between the latest price and the price
// period steps earlier (period+1 samples back, counting the latest).
func ROC(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices) < period+1 {
		return 0, false
	}
	out := talib.Roc(prices, period)
	return out[len(out)-1], true
}

// Momentum returns the signed difference between the latest price and the
// price period steps earlier.
func Momentum(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices) < period+1 {
		return 0, false
	}
	out := talib.Mom(prices, period)
	return out[len(out)-1], true
}
