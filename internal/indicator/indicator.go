// Package indicator computes technical indicators over a price window.
//
// Every function is pure: it reads the slice it is given, never retains or
// mutates it, and reports availability explicitly instead of returning
// sentinel values.
package indicator

const (
	// MinMomentumPoints is the window needed for ROC(3), ROC(5) and Momentum(10).
	MinMomentumPoints = 11
	// MinVolatilityPoints is the window needed for the ATR/stdev/CV set.
	MinVolatilityPoints = 20
	// TrendWindow is the number of prices fitted by TrendStability.
	TrendWindow = 15
	// VolatilityWindow is the window of StdDev, CV and Volatility.
	VolatilityWindow = 10
	// ATRPeriod is the number of deltas averaged by ATR.
	ATRPeriod = 14
)

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Tail returns the last n values of xs (all of xs when shorter).
func Tail(xs []float64, n int) []float64 {
	if n >= len(xs) {
		return xs
	}
	return xs[len(xs)-n:]
}
