package indicator

// Snapshot is the full indicator set of one evaluation cycle. It is rebuilt
// from the current window every cycle and never persisted.
type Snapshot struct {
	Price     float64 // latest price
	PrevPrice float64 // price one sample earlier
	Points    int

	MultiRSI

	SMA5, SMA10, SMA20 float64
	HasSMA             bool // all three averages available

	ROC3, ROC5, Momentum10 float64
	HasMomentum            bool

	ATR14, StdDev10, CV float64
	HasVolatility       bool

	// Volatility is stdev/mean of the last 10 prices, used by the mandatory filter.
	Volatility float64

	TrendBullish, TrendBearish bool
}

// Compute builds a Snapshot from an ascending price window.
func Compute(prices []float64) Snapshot {
	s := Snapshot{Points: len(prices)}
	if n := len(prices); n > 0 {
		s.Price = prices[n-1]
		if n > 1 {
			s.PrevPrice = prices[n-2]
		}
	}

	s.MultiRSI = ComputeMultiRSI(prices)

	var ok5, ok10, ok20 bool
	s.SMA5, ok5 = SMA(prices, 5)
	s.SMA10, ok10 = SMA(prices, 10)
	s.SMA20, ok20 = SMA(prices, 20)
	s.HasSMA = ok5 && ok10 && ok20
	if s.HasSMA {
		s.TrendBullish, s.TrendBearish = TrendStability(prices, s.SMA5, s.SMA20)
	}

	if len(prices) >= MinMomentumPoints {
		s.ROC3, _ = ROC(prices, 3)
		s.ROC5, _ = ROC(prices, 5)
		s.Momentum10, _ = Momentum(prices, 10)
		s.HasMomentum = true
	}

	if len(prices) >= MinVolatilityPoints {
		s.ATR14, _ = ATR(prices, ATRPeriod)
		s.StdDev10, _ = StdDev(prices, VolatilityWindow)
		s.CV, _ = CV(prices, VolatilityWindow)
		s.HasVolatility = true
	}

	s.Volatility = Volatility(prices)
	return s
}
