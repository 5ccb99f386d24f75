package indicator

// RSI returns the relative strength index over the last period deltas,
// using the simple mean of gains and of losses (not Wilder smoothing).
// It is unavailable when fewer than period deltas exist. A window without
// losses returns exactly 100.
func RSI(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices)-1 < period {
		return 0, false
	}

	window := prices[len(prices)-period-1:]
	var gain, loss float64
	for i := 1; i < len(window); i++ {
		d := window[i] - window[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// MultiRSI holds RSI at the three confirmation periods.
type MultiRSI struct {
	RSI3, RSI5, RSI14 float64
	Has3, Has5, Has14 bool
}

// ComputeMultiRSI evaluates RSI at periods 3, 5 and 14.
func ComputeMultiRSI(prices []float64) MultiRSI {
	var m MultiRSI
	m.RSI3, m.Has3 = RSI(prices, 3)
	m.RSI5, m.Has5 = RSI(prices, 5)
	m.RSI14, m.Has14 = RSI(prices, 14)
	return m
}
