// Package strategy scores market conditions into BUY/SELL/HOLD/EXIT decisions.
//
// Every rule emits a tagged RuleOutcome. Outcomes are folded into per-side
// accumulators and the decision is resolved from the accumulators alone;
// reason text is for humans only.
package strategy

import "fmt"

// RuleID identifies the rule that produced an outcome.
type RuleID string

const (
	RuleInsufficientData    RuleID = "insufficient_data"
	RuleExit                RuleID = "exit"
	RuleRSI                 RuleID = "rsi"
	RuleRSIMild             RuleID = "rsi_mild"
	RuleMACross             RuleID = "ma_cross"
	RuleMATrend             RuleID = "ma_trend"
	RuleOrderBook           RuleID = "order_book"
	RuleMomentum            RuleID = "momentum"
	RuleLowVolatility       RuleID = "low_cv"
	RuleHighVolatility      RuleID = "high_cv"
	RuleTradeDominance      RuleID = "trade_dominance"
	RuleBenchmarkTrend      RuleID = "benchmark_trend"
	RuleBenchmarkVolatility RuleID = "benchmark_volatility"
	RuleDivergence          RuleID = "divergence"
	RuleVolumeFilter        RuleID = "volume_filter"
	RuleVolatilityFilter    RuleID = "volatility_filter"
	RuleCooldown            RuleID = "cooldown"
	RuleConsecutive         RuleID = "consecutive"
	RuleConflict            RuleID = "conflict"
	RuleEntryTiming         RuleID = "entry_timing"
)

// Effect is how an outcome changes the accumulators.
type Effect int

const (
	// EffectAdd adds Weight to the targeted side(s).
	EffectAdd Effect = iota
	// EffectDampen subtracts Weight from the targeted side(s), floored at 0.
	EffectDampen
	// EffectZero resets the targeted side(s) to 0.
	EffectZero
	// EffectForceHold resolves the cycle to HOLD regardless of scores.
	EffectForceHold
	// EffectNote carries a reason without touching the accumulators.
	EffectNote
)

func (e Effect) String() string {
	switch e {
	case EffectAdd:
		return "add"
	case EffectDampen:
		return "dampen"
	case EffectZero:
		return "zero"
	case EffectForceHold:
		return "force_hold"
	case EffectNote:
		return "note"
	}
	return fmt.Sprintf("effect(%d)", int(e))
}

// Side selects the accumulator(s) an outcome targets.
type Side int

const (
	SideBuy Side = iota + 1
	SideSell
	SideBoth
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	case SideBoth:
		return "both"
	}
	return "none"
}

// RuleOutcome is the tagged result of one rule firing.
type RuleOutcome struct {
	Rule   RuleID
	Effect Effect
	Side   Side
	Weight int
	Reason string
}

// tally folds outcomes into buy/sell accumulators.
type tally struct {
	buy, sell int
	forceHold bool
	outcomes  []RuleOutcome
}

func (t *tally) apply(o RuleOutcome) {
	t.outcomes = append(t.outcomes, o)

	switch o.Effect {
	case EffectForceHold:
		t.forceHold = true
		return
	case EffectNote:
		return
	}

	if o.Side == SideBuy || o.Side == SideBoth {
		t.buy = adjust(t.buy, o)
	}
	if o.Side == SideSell || o.Side == SideBoth {
		t.sell = adjust(t.sell, o)
	}
}

func adjust(v int, o RuleOutcome) int {
	switch o.Effect {
	case EffectAdd:
		return v + o.Weight
	case EffectDampen:
		if v -= o.Weight; v < 0 {
			return 0
		}
		return v
	case EffectZero:
		return 0
	}
	return v
}

func (t *tally) reasons() []string {
	out := make([]string, 0, len(t.outcomes))
	for _, o := range t.outcomes {
		out = append(out, o.Reason)
	}
	return out
}

func add(rule RuleID, side Side, weight int, format string, args ...any) RuleOutcome {
	return RuleOutcome{Rule: rule, Effect: EffectAdd, Side: side, Weight: weight, Reason: fmt.Sprintf(format, args...)}
}
