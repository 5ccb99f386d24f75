package indicator

import (
	"math"

	"github.com/markcheno/go-talib"
)

// ATR returns the average absolute successive price difference over the last
// period deltas. This is a close-only proxy for average true range.
func ATR(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices)-1 < period {
		return 0, false
	}
	window := prices[len(prices)-period-1:]
	sum := 0.0
	for i := 1; i < len(window); i++ {
		sum += math.Abs(window[i] - window[i-1])
	}
	return sum / float64(period), true
}

// StdDev returns the population standard deviation of the last period prices.
func StdDev(prices []float64, period int) (float64, bool) {
	if period <= 1 || len(prices) < period {
		return 0, false
	}
	out := talib.StdDev(prices, period, 1.0)
	return out[len(out)-1], true
}

// CV returns the coefficient of variation of the last period prices as a
// percentage (stdev / mean × 100). A non-positive mean yields 0.
func CV(prices []float64, period int) (float64, bool) {
	sd, ok := StdDev(prices, period)
	if !ok {
		return 0, false
	}
	mean := Mean(Tail(prices, period))
	if mean <= 0 {
		return 0, true
	}
	return sd / mean * 100, true
}

// Volatility returns stdev/mean of the last VolatilityWindow prices as a
// ratio, or 0 when the window is not yet full or the mean is not positive.
func Volatility(prices []float64) float64 {
	sd, ok := StdDev(prices, VolatilityWindow)
	if !ok {
		return 0
	}
	mean := Mean(Tail(prices, VolatilityWindow))
	if mean <= 0 {
		return 0
	}
	return sd / mean
}
