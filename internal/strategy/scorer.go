package strategy

import (
	"fmt"
	"math"
	"strings"
	"time"

	"signalbot/config"
	"signalbot/internal/indicator"
	"signalbot/internal/model"
	"signalbot/internal/portfolio"
)

// volumeWindow is the number of recent volumes averaged by the volume filter.
const volumeWindow = 20

// Input is everything the scorer looks at for one instrument and cycle.
type Input struct {
	Instrument model.Instrument
	Price      float64 // current market price
	Volume     float64 // current traded volume, whether or not it was appended
	Prices     []float64
	Volumes    []float64
	Snapshot   indicator.Snapshot
	Pressure   model.MarketPressure
	Benchmark  *model.BenchmarkSnapshot // nil when unavailable
	Reference  *model.ReferenceQuote    // nil when unavailable
	Position   *model.Position          // nil when flat
	Stats      model.SignalStats
	MinPoints  int
	Now        time.Time
}

// Result is the scored decision plus the rule trail that produced it.
type Result struct {
	Decision model.SignalDecision
	Outcomes []RuleOutcome
	// Exit is set when the decision is EXIT.
	Exit portfolio.Exit
	// EntryPrice is the refined fill for BUY/SELL decisions.
	EntryPrice float64
}

// Scorer turns an Input into a decision. It holds only configuration and is
// safe for concurrent use.
type Scorer struct {
	mode      config.Mode
	th        config.Thresholds
	signal    config.Signal
	benchmark config.Benchmark
	limits    portfolio.RiskLimits
}

// NewScorer builds a scorer for the configured mode.
func NewScorer(cfg config.Config) *Scorer {
	return &Scorer{
		mode:      cfg.Mode,
		th:        cfg.Thresholds(),
		signal:    cfg.Signal,
		benchmark: cfg.Benchmark,
		limits:    portfolio.LimitsFromConfig(cfg.Risk),
	}
}

// Mode returns the rule set in use.
func (s *Scorer) Mode() config.Mode { return s.mode }

// Score evaluates one cycle. It never mutates in.
func (s *Scorer) Score(in Input) Result {
	if len(in.Prices) < in.MinPoints {
		o := RuleOutcome{
			Rule:   RuleInsufficientData,
			Effect: EffectForceHold,
			Reason: fmt.Sprintf("insufficient data (%d/%d points)", len(in.Prices), in.MinPoints),
		}
		return Result{
			Decision:   model.SignalDecision{Action: model.Hold, Reasons: []string{o.Reason}},
			Outcomes:   []RuleOutcome{o},
			EntryPrice: in.Price,
		}
	}

	if exit := portfolio.CheckExit(in.Position, in.Price, in.Now, in.Snapshot.MultiRSI, s.limits); exit.Fire {
		o := RuleOutcome{Rule: RuleExit, Effect: EffectForceHold, Reason: exit.Reason}
		return Result{
			Decision: model.SignalDecision{
				Action:    model.Exit,
				Direction: exit.Action,
				Reasons:   []string{exit.Reason},
				Market:    s.marketInfo(in),
			},
			Outcomes:   []RuleOutcome{o},
			Exit:       exit,
			EntryPrice: in.Price,
		}
	}

	var t tally
	s.scoreRSI(&t, in.Snapshot)
	s.scoreMovingAverages(&t, in.Snapshot)
	s.scoreOrderBook(&t, in.Pressure)
	s.scoreMomentum(&t, in.Snapshot)
	if aborted := s.scoreVolatility(&t, in.Snapshot); !aborted {
		s.scoreTradeDominance(&t, in.Pressure)
		s.scoreBenchmark(&t, in)
	}
	s.applyFilters(&t, in)

	action, strength := s.resolve(&t)

	if action.IsEntry() {
		if ok, reason := CheckEntryTiming(in.Prices, in.Price, action); !ok {
			t.apply(RuleOutcome{Rule: RuleEntryTiming, Effect: EffectForceHold, Reason: reason})
			action = model.Hold
		}
	}

	res := Result{
		Decision: model.SignalDecision{
			Action:       action,
			Strength:     strength,
			BuyStrength:  t.buy,
			SellStrength: t.sell,
			Reasons:      t.reasons(),
			Market:       s.marketInfo(in),
		},
		Outcomes:   t.outcomes,
		EntryPrice: in.Price,
	}
	if action.IsEntry() {
		res.EntryPrice = BetterEntryPrice(in.Prices, in.Price, action)
	}
	return res
}

func (s *Scorer) scoreRSI(t *tally, snap indicator.Snapshot) {
	r := snap.MultiRSI
	if s.mode == config.ModeScalping && r.Has3 && r.Has5 && r.Has14 {
		switch {
		case r.RSI3 < s.th.RSI3Oversold && r.RSI5 < 30 && r.RSI14 < 35:
			t.apply(add(RuleRSI, SideBuy, 2, "RSI oversold (3:%.1f, 5:%.1f, 14:%.1f)", r.RSI3, r.RSI5, r.RSI14))
			return
		case r.RSI3 > s.th.RSI3Overbought && r.RSI5 > 70 && r.RSI14 > 65:
			t.apply(add(RuleRSI, SideSell, 2, "RSI overbought (3:%.1f, 5:%.1f, 14:%.1f)", r.RSI3, r.RSI5, r.RSI14))
			return
		}
	}
	if !r.Has5 || !r.Has14 {
		return
	}
	switch {
	case r.RSI5 < 25 && r.RSI14 < 30:
		t.apply(add(RuleRSIMild, SideBuy, 1, "RSI low (5:%.1f, 14:%.1f)", r.RSI5, r.RSI14))
	case r.RSI5 > 75 && r.RSI14 > 70:
		t.apply(add(RuleRSIMild, SideSell, 1, "RSI high (5:%.1f, 14:%.1f)", r.RSI5, r.RSI14))
	}
}

func (s *Scorer) scoreMovingAverages(t *tally, snap indicator.Snapshot) {
	if !snap.HasSMA {
		return
	}
	price, prev := snap.Price, snap.PrevPrice

	switch {
	case snap.SMA5 > snap.SMA10 && snap.SMA10 > snap.SMA20 && snap.TrendBullish && prev <= snap.SMA10 && snap.SMA10 < price:
		t.apply(add(RuleMACross, SideBuy, 2, "bullish MA cross (SMA5 %.2f > SMA10 %.2f > SMA20 %.2f)", snap.SMA5, snap.SMA10, snap.SMA20))
		return
	case snap.SMA5 < snap.SMA10 && snap.SMA10 < snap.SMA20 && snap.TrendBearish && prev >= snap.SMA10 && snap.SMA10 > price:
		t.apply(add(RuleMACross, SideSell, 2, "bearish MA cross (SMA5 %.2f < SMA10 %.2f < SMA20 %.2f)", snap.SMA5, snap.SMA10, snap.SMA20))
		return
	}

	if s.mode != config.ModeScalping {
		return
	}
	switch {
	case price > snap.SMA5 && snap.SMA5 > snap.SMA10:
		t.apply(add(RuleMATrend, SideBuy, 1, "price above rising SMA5"))
	case price < snap.SMA5 && snap.SMA5 < snap.SMA10:
		t.apply(add(RuleMATrend, SideSell, 1, "price below falling SMA5"))
	}
}

func (s *Scorer) scoreOrderBook(t *tally, p model.MarketPressure) {
	switch {
	case p.BookRatio > 1.2:
		t.apply(add(RuleOrderBook, SideBuy, 1, "order book bid-heavy (%.2f)", p.BookRatio))
	case p.BookRatio < 0.8:
		t.apply(add(RuleOrderBook, SideSell, 1, "order book ask-heavy (%.2f)", p.BookRatio))
	}
}

func (s *Scorer) scoreMomentum(t *tally, snap indicator.Snapshot) {
	if !snap.HasMomentum {
		return
	}
	switch {
	case snap.ROC3 > s.th.ROC3Threshold && snap.ROC5 > s.th.ROC5Threshold && snap.Momentum10 > 0:
		t.apply(add(RuleMomentum, SideBuy, 2, "strong upward momentum (ROC3 %.2f%%, ROC5 %.2f%%)", snap.ROC3, snap.ROC5))
	case snap.ROC3 < -s.th.ROC3Threshold && snap.ROC5 < -s.th.ROC5Threshold && snap.Momentum10 < 0:
		t.apply(add(RuleMomentum, SideSell, 2, "strong downward momentum (ROC3 %.2f%%, ROC5 %.2f%%)", snap.ROC3, snap.ROC5))
	}
}

// scoreVolatility reports whether scoring was aborted by excessive volatility.
func (s *Scorer) scoreVolatility(t *tally, snap indicator.Snapshot) bool {
	if !snap.HasVolatility {
		return false
	}
	switch {
	case snap.CV < s.th.CVLow:
		t.apply(add(RuleLowVolatility, SideBoth, 1, "stable market (CV %.2f%%)", snap.CV))
	case snap.CV > s.th.CVHigh:
		t.apply(RuleOutcome{
			Rule:   RuleHighVolatility,
			Effect: EffectZero,
			Side:   SideBoth,
			Reason: fmt.Sprintf("volatility too high (CV %.2f%%)", snap.CV),
		})
		return true
	}
	return false
}

func (s *Scorer) scoreTradeDominance(t *tally, p model.MarketPressure) {
	switch {
	case p.BuyRatio > 0.7:
		t.apply(add(RuleTradeDominance, SideBuy, 1, "buyers dominate recent trades (%.0f%%)", p.BuyRatio*100))
	case p.SellRatio > 0.7:
		t.apply(add(RuleTradeDominance, SideSell, 1, "sellers dominate recent trades (%.0f%%)", p.SellRatio*100))
	}
}

func (s *Scorer) scoreBenchmark(t *tally, in Input) {
	if b := in.Benchmark; b != nil && b.Ready && !strings.EqualFold(in.Instrument.Asset, b.Asset) {
		switch {
		case b.Bullish:
			t.apply(add(RuleBenchmarkTrend, SideBuy, 1, "%s trend bullish", b.Symbol))
		case b.Bearish:
			t.apply(add(RuleBenchmarkTrend, SideSell, 1, "%s trend bearish", b.Symbol))
		}
		if b.Volatility > s.benchmark.VolatilityThreshold {
			t.apply(RuleOutcome{
				Rule:   RuleBenchmarkVolatility,
				Effect: EffectDampen,
				Side:   SideBoth,
				Weight: 1,
				Reason: fmt.Sprintf("%s volatile (%.2f%%)", b.Symbol, b.Volatility*100),
			})
		}
	}

	ref := in.Reference
	if ref == nil || ref.Price <= 0 || in.Price <= 0 {
		return
	}
	div := math.Abs(in.Price-ref.Price) / ref.Price * 100
	if div <= s.benchmark.DivergencePercent {
		return
	}
	o := RuleOutcome{
		Rule:   RuleDivergence,
		Effect: EffectForceHold,
		Reason: fmt.Sprintf("price diverges %.2f%% from %s", div, ref.Symbol),
	}
	if s.mode == config.ModeScalping {
		o.Effect, o.Side, o.Weight = EffectDampen, SideBoth, 1
	}
	t.apply(o)
}

func (s *Scorer) applyFilters(t *tally, in Input) {
	if ratio := VolumeRatio(in.Volume, in.Volumes); ratio < s.signal.VolumeThreshold {
		t.apply(zeroBoth(RuleVolumeFilter, "low volume (ratio %.2f)", ratio))
	}

	if v := in.Snapshot.Volatility; v > s.signal.VolatilityThreshold {
		t.apply(zeroBoth(RuleVolatilityFilter, "volatility filter (%.2f%%)", v*100))
	}

	if !in.Stats.LastSignalTime.IsZero() && (t.buy > 0 || t.sell > 0) {
		if elapsed := in.Now.Sub(in.Stats.LastSignalTime); elapsed < s.th.Cooldown {
			remaining := (s.th.Cooldown - elapsed).Round(time.Second)
			t.apply(zeroBoth(RuleCooldown, "cooldown active (%s remaining)", remaining))
		}
	}

	if in.Stats.ConsecutiveSame >= 3 {
		switch in.Stats.LastAction {
		case model.Buy:
			t.apply(RuleOutcome{Rule: RuleConsecutive, Effect: EffectZero, Side: SideBuy,
				Reason: fmt.Sprintf("too many consecutive BUY signals (%d)", in.Stats.ConsecutiveSame)})
		case model.Sell:
			t.apply(RuleOutcome{Rule: RuleConsecutive, Effect: EffectZero, Side: SideSell,
				Reason: fmt.Sprintf("too many consecutive SELL signals (%d)", in.Stats.ConsecutiveSame)})
		}
	}
}

func (s *Scorer) resolve(t *tally) (model.Action, int) {
	need := s.th.MinStrength
	switch {
	case t.forceHold:
		return model.Hold, max(t.buy, t.sell)
	case t.buy >= need && t.sell >= need:
		t.apply(RuleOutcome{
			Rule:   RuleConflict,
			Effect: EffectNote,
			Reason: fmt.Sprintf("conflicting signals (buy %d, sell %d)", t.buy, t.sell),
		})
		return model.Hold, max(t.buy, t.sell)
	case t.buy >= need:
		return model.Buy, t.buy
	case t.sell >= need:
		return model.Sell, t.sell
	}
	return model.Hold, max(t.buy, t.sell)
}

func (s *Scorer) marketInfo(in Input) []string {
	p := in.Pressure
	info := []string{
		fmt.Sprintf("OB %.2f", p.BookRatio),
		fmt.Sprintf("Trades B%.0f%%/S%.0f%%", p.BuyRatio*100, p.SellRatio*100),
		fmt.Sprintf("Vol %.2fx", VolumeRatio(in.Volume, in.Volumes)),
	}
	if in.Snapshot.HasMomentum {
		info = append(info, fmt.Sprintf("ROC3 %.2f%%", in.Snapshot.ROC3))
	}
	if in.Snapshot.HasVolatility {
		info = append(info, fmt.Sprintf("CV %.2f%%", in.Snapshot.CV))
	}
	return info
}

// VolumeRatio is current over the mean of the last 20 history volumes.
// It is 1.0 when there is no volume history.
func VolumeRatio(current float64, volumes []float64) float64 {
	if len(volumes) == 0 {
		return 1.0
	}
	mean := indicator.Mean(indicator.Tail(volumes, volumeWindow))
	if mean == 0 {
		return 1.0
	}
	return current / mean
}

func zeroBoth(rule RuleID, format string, args ...any) RuleOutcome {
	return RuleOutcome{Rule: rule, Effect: EffectZero, Side: SideBoth, Reason: fmt.Sprintf(format, args...)}
}
