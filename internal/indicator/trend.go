package indicator

import "github.com/markcheno/go-talib"

// Slope returns the least-squares slope of the last period prices against an
// evenly spaced index.
func Slope(prices []float64, period int) (float64, bool) {
	if period < 2 || len(prices) < period {
		return 0, false
	}
	out := talib.LinearRegSlope(prices, period)
	return out[len(out)-1], true
}

// TrendStability classifies the last TrendWindow prices. Bullish requires a
// positive slope with sma5 above sma20, bearish a negative slope with sma5
// below sma20. Short windows are neither.
func TrendStability(prices []float64, sma5, sma20 float64) (bullish, bearish bool) {
	slope, ok := Slope(prices, TrendWindow)
	if !ok {
		return false, false
	}
	bullish = slope > 0 && sma5 > sma20
	bearish = slope < 0 && sma5 < sma20
	return bullish, bearish
}
