package strategy

import (
	"fmt"

	"signalbot/internal/indicator"
	"signalbot/internal/model"
)

const (
	// minTimingPoints is the window below which the timing gate always passes.
	minTimingPoints = 10
	// entryWindow is the number of recent prices considered for a better fill.
	entryWindow = 5
)

// CheckEntryTiming confirms a BUY/SELL candidate against short-term price
// action. The last three prices must move strictly in the signal's direction
// and the price must not be stretched more than 1% beyond the 20-period SMA.
// Windows shorter than ten samples always pass.
func CheckEntryTiming(prices []float64, price float64, action model.Action) (bool, string) {
	if !action.IsEntry() || len(prices) < minTimingPoints {
		return true, ""
	}

	last := indicator.Tail(prices, 3)
	rising := last[0] < last[1] && last[1] < last[2]
	falling := last[0] > last[1] && last[1] > last[2]

	sma20, ok := indicator.SMA(prices, 20)

	switch action {
	case model.Buy:
		if !rising {
			return false, "entry timing: no short-term uptrend"
		}
		if ok && price > sma20*1.01 {
			return false, fmt.Sprintf("entry timing: price %.2f extended above SMA20 %.2f", price, sma20)
		}
	case model.Sell:
		if !falling {
			return false, "entry timing: no short-term downtrend"
		}
		if ok && price < sma20*0.99 {
			return false, fmt.Sprintf("entry timing: price %.2f extended below SMA20 %.2f", price, sma20)
		}
	}
	return true, ""
}

// BetterEntryPrice refines the fill of an entry from the last five prices:
// a BUY never pays more than 0.1% over the recent low, a SELL never receives
// less than 0.1% under the recent high.
func BetterEntryPrice(prices []float64, price float64, action model.Action) float64 {
	if len(prices) < entryWindow {
		return price
	}
	recent := indicator.Tail(prices, entryWindow)

	switch action {
	case model.Buy:
		low := recent[0]
		for _, p := range recent[1:] {
			low = min(low, p)
		}
		return min(low*1.001, price)
	case model.Sell:
		high := recent[0]
		for _, p := range recent[1:] {
			high = max(high, p)
		}
		return max(high*0.999, price)
	}
	return price
}
