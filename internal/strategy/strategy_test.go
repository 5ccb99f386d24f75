package strategy

import (
	"math"
	"strings"
	"testing"
	"time"

	"signalbot/config"
	"signalbot/internal/indicator"
	"signalbot/internal/model"
)

var (
	t0  = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	eth = model.Instrument{Name: "ETH", Pair: "eth_idr", Asset: "eth"}
)

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func flat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func scorerFor(mode config.Mode) *Scorer {
	cfg := config.Default()
	cfg.Mode = mode
	return NewScorer(cfg)
}

// baseInput is a quiet, slowly rising market with enough history and
// neutral pressure: no rule fires on it.
func baseInput() Input {
	prices := ramp(30, 100, 0.1)
	last := prices[len(prices)-1]
	return Input{
		Instrument: eth,
		Price:      last,
		Volume:     10,
		Prices:     prices,
		Volumes:    flat(30, 10),
		Snapshot:   indicator.Snapshot{Price: last, PrevPrice: prices[len(prices)-2], Points: len(prices)},
		Pressure:   model.NeutralPressure(),
		MinPoints:  20,
		Now:        t0,
	}
}

// bullish adds order-book and trade-tape pressure (+2 BUY).
func bullish(in Input) Input {
	in.Pressure.BookRatio = 1.5
	in.Pressure.BuyRatio, in.Pressure.SellRatio = 0.8, 0.2
	return in
}

func reasons(r Result) string {
	return strings.Join(r.Decision.Reasons, "; ")
}

func hasRule(r Result, id RuleID) bool {
	for _, o := range r.Outcomes {
		if o.Rule == id {
			return true
		}
	}
	return false
}

func TestScore_QuietMarketHolds(t *testing.T) {
	r := scorerFor(config.ModeScalping).Score(baseInput())
	if r.Decision.Action != model.Hold || r.Decision.Strength != 0 {
		t.Errorf("got %s/%d (%s)", r.Decision.Action, r.Decision.Strength, reasons(r))
	}
}

func TestScore_InsufficientData(t *testing.T) {
	in := bullish(baseInput())
	in.MinPoints = 100
	// a position deep in loss must not be evaluated either
	in.Position = &model.Position{Side: model.Long, EntryPrice: 200, EntryTime: t0.Add(-time.Hour)}

	r := scorerFor(config.ModeScalping).Score(in)
	if r.Decision.Action != model.Hold {
		t.Fatalf("action: got %s", r.Decision.Action)
	}
	if !strings.Contains(reasons(r), "insufficient data") || !hasRule(r, RuleInsufficientData) {
		t.Errorf("reasons: %s", reasons(r))
	}
	if len(r.Outcomes) != 1 {
		t.Errorf("no other rule may run, got %d outcomes", len(r.Outcomes))
	}
}

func TestScore_ExitTakesPrecedence(t *testing.T) {
	in := bullish(baseInput())
	in.Position = &model.Position{Side: model.Long, EntryPrice: 200, EntryTime: t0}

	r := scorerFor(config.ModeScalping).Score(in)
	if r.Decision.Action != model.Exit || r.Decision.Direction != model.Sell {
		t.Fatalf("got %s/%s", r.Decision.Action, r.Decision.Direction)
	}
	if !r.Exit.Fire || !strings.Contains(reasons(r), "stop loss") {
		t.Errorf("exit: %+v", r.Exit)
	}
}

func TestScore_BuySignal(t *testing.T) {
	in := bullish(baseInput())
	r := scorerFor(config.ModeScalping).Score(in)

	if r.Decision.Action != model.Buy || r.Decision.Strength != 2 {
		t.Fatalf("got %s/%d (%s)", r.Decision.Action, r.Decision.Strength, reasons(r))
	}
	if !hasRule(r, RuleOrderBook) || !hasRule(r, RuleTradeDominance) {
		t.Errorf("outcomes: %+v", r.Outcomes)
	}
	if want := BetterEntryPrice(in.Prices, in.Price, model.Buy); r.EntryPrice != want {
		t.Errorf("entry price: got %v want %v", r.EntryPrice, want)
	}
	if len(r.Decision.Market) == 0 {
		t.Error("market info missing")
	}
}

func TestScore_StandardNeedsMoreStrength(t *testing.T) {
	r := scorerFor(config.ModeStandard).Score(bullish(baseInput()))
	if r.Decision.Action != model.Hold || r.Decision.BuyStrength != 2 {
		t.Errorf("got %s buy=%d", r.Decision.Action, r.Decision.BuyStrength)
	}
}

func TestScore_ConflictAtMinStrengthHolds(t *testing.T) {
	in := baseInput()
	in.Pressure.BookRatio = 1.5                            // +1 BUY
	in.Pressure.BuyRatio, in.Pressure.SellRatio = 0.2, 0.8 // +1 SELL
	in.Snapshot.HasVolatility = true
	in.Snapshot.CV = 0.5 // +1 both

	r := scorerFor(config.ModeScalping).Score(in)
	if r.Decision.BuyStrength != 2 || r.Decision.SellStrength != 2 {
		t.Fatalf("strengths: buy=%d sell=%d", r.Decision.BuyStrength, r.Decision.SellStrength)
	}
	if r.Decision.Action != model.Hold || !hasRule(r, RuleConflict) {
		t.Errorf("got %s (%s)", r.Decision.Action, reasons(r))
	}
}

func TestScore_Cooldown(t *testing.T) {
	in := bullish(baseInput())
	in.Snapshot.HasVolatility = true
	in.Snapshot.CV = 0.5 // third BUY point for standard mode
	in.Stats = model.SignalStats{LastAction: model.Sell, LastSignalTime: t0}

	s := scorerFor(config.ModeStandard)

	in.Now = t0.Add(119 * time.Second)
	r := s.Score(in)
	if r.Decision.Action != model.Hold {
		t.Fatalf("before cooldown: got %s", r.Decision.Action)
	}
	if !strings.Contains(reasons(r), "cooldown active (1s remaining)") {
		t.Errorf("reasons: %s", reasons(r))
	}

	in.Now = t0.Add(120 * time.Second)
	if r := s.Score(in); r.Decision.Action != model.Buy {
		t.Errorf("at cooldown boundary: got %s (%s)", r.Decision.Action, reasons(r))
	}
}

func TestScore_FourthConsecutiveBlocked(t *testing.T) {
	s := scorerFor(config.ModeScalping)
	in := bullish(baseInput())

	var stats model.SignalStats
	want := []model.Action{model.Buy, model.Buy, model.Buy, model.Hold}
	for i, w := range want {
		in.Now = t0.Add(time.Duration(i) * time.Minute)
		in.Stats = stats
		r := s.Score(in)
		if r.Decision.Action != w {
			t.Fatalf("cycle %d: got %s want %s (%s)", i+1, r.Decision.Action, w, reasons(r))
		}
		ApplyStats(&stats, r.Decision.Action, in.Now)
	}
	if stats.ConsecutiveSame != 0 || stats.BuyCount != 3 || stats.HoldCount != 1 {
		t.Errorf("stats: %+v", stats)
	}
}

func TestScore_Filters(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Input)
		rule   RuleID
	}{
		{"low volume", func(in *Input) { in.Volume = 1 }, RuleVolumeFilter},
		{"volatility", func(in *Input) { in.Snapshot.Volatility = 0.03 }, RuleVolatilityFilter},
		{"high cv aborts", func(in *Input) {
			in.Snapshot.HasVolatility = true
			in.Snapshot.CV = 5
		}, RuleHighVolatility},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := bullish(baseInput())
			tt.mutate(&in)
			r := scorerFor(config.ModeScalping).Score(in)
			if r.Decision.Action != model.Hold || !hasRule(r, tt.rule) {
				t.Errorf("got %s (%s)", r.Decision.Action, reasons(r))
			}
		})
	}
}

func TestScore_HighCVSkipsLaterRules(t *testing.T) {
	in := bullish(baseInput())
	in.Snapshot.HasVolatility = true
	in.Snapshot.CV = 5

	r := scorerFor(config.ModeScalping).Score(in)
	if hasRule(r, RuleTradeDominance) {
		t.Error("trade dominance scored after high-volatility abort")
	}
	if r.Decision.BuyStrength != 0 || r.Decision.SellStrength != 0 {
		t.Errorf("strengths not zeroed: %+v", r.Decision)
	}
}

func TestScore_RSI(t *testing.T) {
	oversold := indicator.MultiRSI{RSI3: 20, RSI5: 28, RSI14: 33, Has3: true, Has5: true, Has14: true}
	deep := indicator.MultiRSI{RSI3: 10, RSI5: 20, RSI14: 25, Has3: true, Has5: true, Has14: true}

	tests := []struct {
		name string
		mode config.Mode
		rsi  indicator.MultiRSI
		rule RuleID
		buy  int
	}{
		{"scalping strict", config.ModeScalping, oversold, RuleRSI, 2},
		{"standard ignores rsi3", config.ModeStandard, oversold, "", 0},
		{"standard mild", config.ModeStandard, deep, RuleRSIMild, 1},
		{"scalping prefers strict", config.ModeScalping, deep, RuleRSI, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput()
			in.Snapshot.MultiRSI = tt.rsi
			r := scorerFor(tt.mode).Score(in)
			if r.Decision.BuyStrength != tt.buy {
				t.Errorf("buy strength: got %d want %d (%s)", r.Decision.BuyStrength, tt.buy, reasons(r))
			}
			if tt.rule != "" && !hasRule(r, tt.rule) {
				t.Errorf("rule %s missing", tt.rule)
			}
		})
	}
}

func TestScore_MovingAverages(t *testing.T) {
	in := baseInput()
	in.Snapshot.HasSMA = true
	in.Snapshot.SMA5, in.Snapshot.SMA10, in.Snapshot.SMA20 = 102.7, 102.5, 102
	in.Snapshot.TrendBullish = true
	in.Snapshot.PrevPrice = 102.4

	r := scorerFor(config.ModeScalping).Score(in)
	if !hasRule(r, RuleMACross) || r.Decision.BuyStrength != 2 {
		t.Errorf("strict cross: %s buy=%d", reasons(r), r.Decision.BuyStrength)
	}

	// no crossover this cycle: only the loose scalping rule applies
	in.Snapshot.PrevPrice = 102.8
	r = scorerFor(config.ModeScalping).Score(in)
	if hasRule(r, RuleMACross) || !hasRule(r, RuleMATrend) || r.Decision.BuyStrength != 1 {
		t.Errorf("loose trend: %s buy=%d", reasons(r), r.Decision.BuyStrength)
	}
	if r := scorerFor(config.ModeStandard).Score(in); r.Decision.BuyStrength != 0 {
		t.Errorf("standard mode scored loose trend: %s", reasons(r))
	}
}

func TestScore_Momentum(t *testing.T) {
	in := baseInput()
	in.Snapshot.HasMomentum = true
	in.Snapshot.ROC3, in.Snapshot.ROC5, in.Snapshot.Momentum10 = -1.0, -0.6, -3

	r := scorerFor(config.ModeScalping).Score(in)
	if !hasRule(r, RuleMomentum) || r.Decision.SellStrength != 2 {
		t.Errorf("got %s sell=%d", reasons(r), r.Decision.SellStrength)
	}
}

func TestScore_Benchmark(t *testing.T) {
	bench := &model.BenchmarkSnapshot{Symbol: "BTCUSDT", Asset: "btc", Bullish: true, Ready: true}

	in := baseInput()
	in.Pressure.BookRatio = 1.5
	in.Benchmark = bench
	r := scorerFor(config.ModeScalping).Score(in)
	if r.Decision.Action != model.Buy || !hasRule(r, RuleBenchmarkTrend) {
		t.Errorf("trend confirmation: %s (%s)", r.Decision.Action, reasons(r))
	}

	in.Instrument = model.Instrument{Pair: "btc_idr", Asset: "btc"}
	if r := scorerFor(config.ModeScalping).Score(in); hasRule(r, RuleBenchmarkTrend) {
		t.Error("benchmark asset scored against itself")
	}

	in.Instrument = eth
	notReady := *bench
	notReady.Ready = false
	in.Benchmark = &notReady
	if r := scorerFor(config.ModeScalping).Score(in); hasRule(r, RuleBenchmarkTrend) {
		t.Error("benchmark used before it was ready")
	}

	volatile := *bench
	volatile.Volatility = 0.05
	in.Benchmark = &volatile
	r = scorerFor(config.ModeScalping).Score(in)
	if r.Decision.BuyStrength != 1 || !hasRule(r, RuleBenchmarkVolatility) {
		t.Errorf("volatility dampening: buy=%d (%s)", r.Decision.BuyStrength, reasons(r))
	}
}

func TestScore_Divergence(t *testing.T) {
	in := bullish(baseInput())
	in.Snapshot.HasVolatility = true
	in.Snapshot.CV = 0.5
	in.Reference = &model.ReferenceQuote{Symbol: "ETHUSDT", Price: in.Price * 1.05}

	r := scorerFor(config.ModeStandard).Score(in)
	if r.Decision.Action != model.Hold || !hasRule(r, RuleDivergence) {
		t.Errorf("standard: got %s (%s)", r.Decision.Action, reasons(r))
	}

	r = scorerFor(config.ModeScalping).Score(in)
	if r.Decision.Action != model.Buy || r.Decision.BuyStrength != 2 || r.Decision.SellStrength != 0 {
		t.Errorf("scalping: got %s buy=%d sell=%d", r.Decision.Action, r.Decision.BuyStrength, r.Decision.SellStrength)
	}
}

func TestScore_EntryTimingRejects(t *testing.T) {
	in := bullish(baseInput())
	n := len(in.Prices)
	in.Prices[n-2] = in.Prices[n-1] + 1 // last three no longer rising

	r := scorerFor(config.ModeScalping).Score(in)
	if r.Decision.Action != model.Hold || !hasRule(r, RuleEntryTiming) {
		t.Errorf("got %s (%s)", r.Decision.Action, reasons(r))
	}
}

func TestCheckEntryTiming(t *testing.T) {
	rising := ramp(30, 100, 0.1)
	falling := ramp(30, 103, -0.1)

	tests := []struct {
		name   string
		prices []float64
		price  float64
		action model.Action
		ok     bool
	}{
		{"short window passes", []float64{3, 2, 1}, 1, model.Buy, true},
		{"buy rising", rising, rising[29], model.Buy, true},
		{"buy falling", falling, falling[29], model.Buy, false},
		{"sell falling", falling, falling[29], model.Sell, true},
		{"sell rising", rising, rising[29], model.Sell, false},
		{"buy extended", rising, 104, model.Buy, false},
		{"sell extended", falling, 99, model.Sell, false},
		{"hold ignored", falling, 1, model.Hold, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := CheckEntryTiming(tt.prices, tt.price, tt.action)
			if ok != tt.ok {
				t.Errorf("got %v (%s)", ok, reason)
			}
			if !ok && reason == "" {
				t.Error("rejection without reason")
			}
		})
	}
}

func TestBetterEntryPrice(t *testing.T) {
	prices := []float64{100, 98, 101, 99, 102}

	if got := BetterEntryPrice(prices, 103, model.Buy); math.Abs(got-98.098) > 1e-9 {
		t.Errorf("buy: got %v want 98.098", got)
	}
	if got := BetterEntryPrice(prices, 97, model.Buy); got != 97 {
		t.Errorf("buy below recent low: got %v", got)
	}
	if got := BetterEntryPrice(prices, 95, model.Sell); math.Abs(got-101.898) > 1e-9 {
		t.Errorf("sell: got %v want 101.898", got)
	}
	if got := BetterEntryPrice(prices[:4], 103, model.Buy); got != 103 {
		t.Errorf("short window: got %v", got)
	}
}

func TestApplyStats(t *testing.T) {
	var s model.SignalStats
	steps := []struct {
		action      model.Action
		consecutive int
	}{
		{model.Buy, 1},
		{model.Buy, 2},
		{model.Sell, 1},
		{model.Sell, 2},
		{model.Hold, 0},
		{model.Sell, 1},
		{model.Exit, 0},
	}
	for i, st := range steps {
		now := t0.Add(time.Duration(i) * time.Second)
		ApplyStats(&s, st.action, now)
		if s.ConsecutiveSame != st.consecutive {
			t.Fatalf("step %d (%s): consecutive %d want %d", i, st.action, s.ConsecutiveSame, st.consecutive)
		}
	}
	if s.BuyCount != 2 || s.SellCount != 3 || s.HoldCount != 1 || s.ExitCount != 1 || s.Total() != 7 {
		t.Errorf("counts: %+v", s)
	}
	// the last BUY/SELL was at step 5
	if !s.LastSignalTime.Equal(t0.Add(5 * time.Second)) {
		t.Errorf("last signal time: %v", s.LastSignalTime)
	}
}

func TestVolumeRatio(t *testing.T) {
	if got := VolumeRatio(5, nil); got != 1 {
		t.Errorf("empty: %v", got)
	}
	if got := VolumeRatio(5, flat(5, 0)); got != 1 {
		t.Errorf("zero mean: %v", got)
	}
	v := append(flat(19, 10), 30)
	if got := VolumeRatio(30, v); math.Abs(got-30.0/11.0) > 1e-12 {
		t.Errorf("ratio: %v", got)
	}
	// The current tick was not appended: history stays flat.
	if got := VolumeRatio(30, flat(25, 10)); got != 3 {
		t.Errorf("unappended ratio: %v", got)
	}
}

func TestScore_VolumeFilterUsesCurrentVolume(t *testing.T) {
	// Last stored sample is quiet but the live tick is not.
	in := bullish(baseInput())
	in.Volumes[len(in.Volumes)-1] = 1
	in.Volume = 10
	if r := scorerFor(config.ModeScalping).Score(in); hasRule(r, RuleVolumeFilter) {
		t.Errorf("filtered on stale history volume: %s", reasons(r))
	}

	// Live tick is quiet while the history is not.
	in = bullish(baseInput())
	in.Volume = 2
	if r := scorerFor(config.ModeScalping).Score(in); !hasRule(r, RuleVolumeFilter) {
		t.Errorf("low live volume not filtered: %s", reasons(r))
	}
}
