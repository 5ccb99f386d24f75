package engine

import (
	"context"
	"log/slog"
	"time"

	"signalbot/config"
	"signalbot/internal/indicator"
	"signalbot/internal/logger"
	"signalbot/internal/model"
	"signalbot/internal/portfolio"
	"signalbot/internal/strategy"
	"signalbot/internal/trace"
)

// control is a request served by a worker between cycles.
type control struct {
	tier  *config.Tier // switch tier when set
	reply chan InstrumentStatus
}

type worker struct {
	e    *Engine
	st   *InstrumentState
	ctrl chan control
	done chan struct{}
}

func newWorker(e *Engine, st *InstrumentState) *worker {
	return &worker{
		e:    e,
		st:   st,
		ctrl: make(chan control),
		done: make(chan struct{}),
	}
}

// run evaluates the instrument once per poll interval until ctx is done.
func (w *worker) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.e.cfg.PollInterval)
	defer ticker.Stop()

	w.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cycle(ctx)
		case c := <-w.ctrl:
			w.handle(c)
		}
	}
}

func (w *worker) handle(c control) {
	if c.tier != nil {
		w.st.History.SetTier(*c.tier, w.e.now())
		w.st.dirty = true
	}
	if c.reply != nil {
		c.reply <- w.status()
	}
}

// query sends c to the worker and waits for its status reply.
func (w *worker) query(ctx context.Context, c control) (InstrumentStatus, error) {
	c.reply = make(chan InstrumentStatus, 1)
	select {
	case w.ctrl <- c:
	case <-w.done:
		return InstrumentStatus{}, ErrNotRunning
	case <-ctx.Done():
		return InstrumentStatus{}, ctx.Err()
	}
	select {
	case s := <-c.reply:
		return s, nil
	case <-ctx.Done():
		return InstrumentStatus{}, ctx.Err()
	}
}

func (w *worker) status() InstrumentStatus { return w.st.Status() }

// cycle runs one evaluation: fetch, append, score, transition, dispatch.
func (w *worker) cycle(ctx context.Context) {
	e, st := w.e, w.st
	now := e.now()
	key := st.Instrument.Key()

	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(key, now))
	ctx, span := trace.StartSpan(ctx, "engine.cycle", key)
	defer span.End()
	start := time.Now()
	defer func() { e.metrics.CycleDuration.Observe(time.Since(start).Seconds()) }()

	log := e.log.With(logger.LogWithTrace(ctx)...).With("instrument", key)

	var tk model.Ticker
	err := e.fetch(ctx, "ticker", key, func(ctx context.Context) (err error) {
		tk, err = e.market.Ticker(ctx, st.Instrument.Pair)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warn("cycle skipped", "err", err)
		e.metrics.CyclesTotal.WithLabelValues(key, "skipped").Inc()
		return
	}

	pressure := w.pressure(ctx, log)
	ref := w.reference(ctx, log, now)

	sample := tk.Sample()
	if sample.TS.IsZero() {
		sample.TS = now
	}
	if st.History.Append(sample) {
		st.dirty = true
		w.flush(ctx, false)
	}

	prices := st.History.Prices()
	res := e.scorer.Score(strategy.Input{
		Instrument: st.Instrument,
		Price:      tk.Last,
		Volume:     tk.Volume,
		Prices:     prices,
		Volumes:    st.History.Volumes(),
		Snapshot:   indicator.Compute(prices),
		Pressure:   pressure,
		Benchmark:  e.Benchmark(),
		Reference:  ref,
		Position:   st.Book.Open(),
		Stats:      st.Stats,
		MinPoints:  st.History.Tier().MinPoints,
		Now:        now,
	})
	d := res.Decision

	strategy.ApplyStats(&st.Stats, d.Action, now)
	events := st.Book.Apply(d, tk.Last, res.EntryPrice, now)
	if len(events) == 0 && d.Action == model.Hold {
		events = append(events, w.holdEvent(d, tk.Last, now))
	}
	for _, ev := range events {
		e.metrics.TradeEvents.WithLabelValues(string(ev.Kind)).Inc()
		if ev.Kind == model.EventClose {
			e.risk.Record(ev)
			e.metrics.RealizedPnL.Observe(ev.PnL)
		}
		if ev.Kind != model.EventHold {
			log.Info("trade event", "kind", ev.Kind, "action", ev.Action, "side", ev.Side,
				"price", ev.Price, "pnl", ev.PnL, "reasons", ev.Reasons)
		}
		e.dispatcher.Dispatch(ev)
	}

	st.LastDecision = d
	st.LastPrice = tk.Last
	st.LastCycle = now

	log.Debug("decision", "action", d.Action, "strength", d.Strength,
		"buy", d.BuyStrength, "sell", d.SellStrength, "reasons", d.Reasons)
	e.metrics.DecisionsTotal.WithLabelValues(key, string(d.Action)).Inc()
	e.metrics.CyclesTotal.WithLabelValues(key, "ok").Inc()
	w.observe()
	e.health.SetLastCycleTime(now)
}

// pressure reads order book and trade tape. A failed read leaves its half
// of the pressure neutral.
func (w *worker) pressure(ctx context.Context, log *slog.Logger) model.MarketPressure {
	e, pair := w.e, w.st.Instrument.Pair
	key := w.st.Instrument.Key()

	var buyVol, sellVol float64
	if err := e.fetch(ctx, "depth", key, func(ctx context.Context) (err error) {
		buyVol, sellVol, err = e.market.OrderBookTop(ctx, pair, e.cfg.Fetch.OrderBookDepth)
		return err
	}); err != nil {
		log.Debug("order book unavailable", "err", err)
		buyVol, sellVol = 0, 0
	}

	var buys, sells int
	if err := e.fetch(ctx, "trades", key, func(ctx context.Context) (err error) {
		buys, sells, err = e.market.RecentTrades(ctx, pair, e.cfg.Fetch.TradesWindow)
		return err
	}); err != nil {
		log.Debug("trade tape unavailable", "err", err)
		buys, sells = 0, 0
	}

	return model.NewMarketPressure(buyVol, sellVol, buys, sells)
}

// reference returns the secondary market price converted to the local
// quote, or nil when the instrument has none configured or it is unavailable.
func (w *worker) reference(ctx context.Context, log *slog.Logger, now time.Time) *model.ReferenceQuote {
	e, inst := w.e, w.st.Instrument
	if e.bench == nil || inst.ReferenceSymbol == "" || inst.ReferenceRate <= 0 {
		return nil
	}

	var price float64
	if b := e.Benchmark(); b != nil && b.Symbol == inst.ReferenceSymbol {
		price = b.Price
	} else {
		err := e.fetch(ctx, "reference", inst.Key(), func(ctx context.Context) error {
			t, err := e.bench.Ticker(ctx, inst.ReferenceSymbol)
			price = t.Last
			return err
		})
		if err != nil {
			log.Debug("reference quote unavailable", "symbol", inst.ReferenceSymbol, "err", err)
			return nil
		}
	}
	if price <= 0 {
		return nil
	}
	return &model.ReferenceQuote{Symbol: inst.ReferenceSymbol, Price: price * inst.ReferenceRate}
}

// holdEvent describes a HOLD decision, including the open position if any.
func (w *worker) holdEvent(d model.SignalDecision, price float64, now time.Time) model.TradeEvent {
	ev := model.NewTradeEvent(w.st.Instrument, model.EventHold, model.Hold, price, now)
	ev.Reasons = d.Reasons
	ev.Market = d.Market
	if pos, ok := w.st.Book.Position(); ok {
		ev.Side = pos.Side
		ev.EntryPrice = pos.EntryPrice
		ev.StopLoss = pos.StopLoss
		ev.TakeProfit = pos.TakeProfit
		ev.PnL = pos.PnL(price)
	}
	return ev
}

// observe exports the instrument gauges.
func (w *worker) observe() {
	m, st := w.e.metrics, w.st
	key := st.Instrument.Key()
	m.HistoryPoints.WithLabelValues(key, "active").Set(float64(st.History.Len()))
	m.HistoryPoints.WithLabelValues(key, "archive").Set(float64(st.History.ArchiveLen()))

	var side float64
	switch st.Book.State() {
	case portfolio.Long:
		side = 1
	case portfolio.Short:
		side = -1
	}
	m.OpenPositions.WithLabelValues(key).Set(side)
}

// flush saves the window. The archive is rewritten only when it changed
// since the last save. It runs on a context detached from cancellation so
// an in-flight flush completes during shutdown.
func (w *worker) flush(ctx context.Context, final bool) {
	e, st := w.e, w.st
	if e.repo == nil || !st.dirty {
		return
	}
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()

	key := st.Instrument.Key()
	rev := st.History.ArchiveRevision()
	var err error
	if rev != st.savedArchiveRev {
		err = e.repo.Save(fctx, key, st.History.Samples(), st.History.Archive())
	} else {
		err = e.repo.SaveActive(fctx, key, st.History.Samples())
	}
	if err != nil {
		e.metrics.PersistErrors.Inc()
		e.log.Error("history flush failed", "instrument", key, "err", err)
		return
	}
	st.dirty = false
	st.savedArchiveRev = rev
	if final {
		e.log.Info("history flushed", "instrument", key, "points", st.History.Len(), "archived", st.History.ArchiveLen())
	}
}
