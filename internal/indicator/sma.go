package indicator

import "github.com/markcheno/go-talib"

// SMA returns the arithmetic mean of the last period prices.
func SMA(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices) < period {
		return 0, false
	}
	out := talib.Sma(prices, period)
	return out[len(out)-1], true
}
