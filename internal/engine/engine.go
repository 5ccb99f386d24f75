// Package engine runs the evaluation loop: one worker goroutine per
// instrument owning that instrument's history, position and statistics, a
// benchmark poller, and a dispatcher that hands committed trade events to
// the sinks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"signalbot/config"
	"signalbot/internal/metrics"
	"signalbot/internal/model"
	"signalbot/internal/portfolio"
	"signalbot/internal/strategy"
	"signalbot/internal/trace"
)

const (
	// flushTimeout bounds one history flush, including the final one.
	flushTimeout = 30 * time.Second
	// drainTimeout bounds the dispatcher drain at shutdown.
	drainTimeout = 10 * time.Second
)

// ErrNotRunning is returned by queries sent to a stopped engine.
var ErrNotRunning = errors.New("engine: not running")

// Options are the collaborators of an Engine. Only Market is required.
type Options struct {
	Market     model.MarketSource
	Benchmark  model.BenchmarkSource   // nil disables benchmark and reference rules
	History    model.HistoryRepository // nil keeps history in memory only
	Dispatcher *Dispatcher
	Metrics    *metrics.Metrics
	Health     *metrics.HealthStatus
	Logger     *slog.Logger
	Now        func() time.Time
}

// Engine coordinates the instrument workers.
type Engine struct {
	cfg        config.Config
	market     model.MarketSource
	bench      model.BenchmarkSource
	repo       model.HistoryRepository
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
	health     *metrics.HealthStatus
	log        *slog.Logger
	now        func() time.Time

	scorer *strategy.Scorer
	risk   *portfolio.RiskTracker

	benchmark atomic.Pointer[model.BenchmarkSnapshot]
	running   atomic.Bool

	tierMu sync.RWMutex
	tier   string

	workers []*worker
}

// New builds an engine for every enabled instrument of cfg.
func New(cfg config.Config, opts Options) *Engine {
	e := &Engine{
		cfg:        cfg,
		market:     opts.Market,
		bench:      opts.Benchmark,
		repo:       opts.History,
		dispatcher: opts.Dispatcher,
		metrics:    opts.Metrics,
		health:     opts.Health,
		log:        opts.Logger,
		now:        opts.Now,
		scorer:     strategy.NewScorer(cfg),
		risk:       portfolio.NewRiskTracker(),
		tier:       cfg.ActiveTier,
	}
	if e.dispatcher == nil {
		e.dispatcher = NewDispatcher(cfg.Notify.BufferSize)
	}
	if e.metrics == nil {
		e.metrics = metrics.NewMetrics()
	}
	if e.health == nil {
		e.health = metrics.NewHealthStatus(3 * cfg.PollInterval)
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}

	limits := portfolio.LimitsFromConfig(cfg.Risk)
	for _, inst := range cfg.EnabledInstruments() {
		e.workers = append(e.workers, newWorker(e, NewInstrumentState(inst, cfg.Tier(), cfg.Archive, limits)))
	}
	e.health.SetInstruments(len(e.workers))
	return e
}

// Mode returns the active rule set.
func (e *Engine) Mode() config.Mode { return e.scorer.Mode() }

// Tier returns the name of the active data tier.
func (e *Engine) Tier() string {
	e.tierMu.RLock()
	defer e.tierMu.RUnlock()
	return e.tier
}

// Summary returns the realized P/L across instruments.
func (e *Engine) Summary() portfolio.PnLSummary { return e.risk.Summary() }

// Sinks returns the occupancy of the dispatcher queues.
func (e *Engine) Sinks() []ChannelStat { return e.dispatcher.ChannelStats() }

// Benchmark returns the latest benchmark snapshot, or nil when none is
// available or it has gone stale.
func (e *Engine) Benchmark() *model.BenchmarkSnapshot {
	b := e.benchmark.Load()
	if b == nil || e.now().Sub(b.UpdatedAt) > 3*e.cfg.PollInterval {
		return nil
	}
	return b
}

// Run hydrates history, starts the workers and blocks until ctx is done.
// It then joins the workers, flushes history, drains the dispatcher and logs
// a final statistics report.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine: already running")
	}
	defer e.running.Store(false)

	e.hydrate(ctx)
	e.dispatcher.Start(ctx)

	var wg sync.WaitGroup
	for _, w := range e.workers {
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			w.run(ctx)
		}(w)
	}
	if e.bench != nil && e.cfg.Benchmark.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.runBenchmark(ctx)
		}()
	}
	if e.cfg.StatsInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.runReporter(ctx)
		}()
	}

	e.log.Info("engine started", "instruments", len(e.workers), "mode", e.cfg.Mode, "tier", e.Tier(),
		"poll_interval", e.cfg.PollInterval.String())
	wg.Wait()

	// Workers have exited; state is no longer mutated.
	statuses := make([]InstrumentStatus, len(e.workers))
	for i, w := range e.workers {
		w.flush(ctx, true)
		statuses[i] = w.status()
	}
	e.report(statuses)

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	if err := e.dispatcher.Close(drainCtx); err != nil {
		e.log.Warn("dispatcher drain incomplete", "err", err)
	}
	e.log.Info("engine stopped")
	return nil
}

// hydrate loads persisted history into every worker. Failures leave the
// instrument with an empty window.
func (e *Engine) hydrate(ctx context.Context) {
	if e.repo == nil {
		return
	}
	now := e.now()
	for _, w := range e.workers {
		key := w.st.Instrument.Key()
		samples, archive, err := e.repo.Load(ctx, key)
		if err != nil {
			e.metrics.PersistErrors.Inc()
			e.log.Warn("history load failed", "instrument", key, "err", err)
			continue
		}
		rev := w.st.History.ArchiveRevision()
		w.st.History.Hydrate(samples, archive, now)
		w.st.savedArchiveRev = rev
		e.log.Info("history loaded", "instrument", key,
			"points", w.st.History.Len(), "archived", w.st.History.ArchiveLen())
	}
}

// Status returns a snapshot of every instrument, gathered from the workers.
func (e *Engine) Status(ctx context.Context) ([]InstrumentStatus, error) {
	if !e.running.Load() {
		return nil, ErrNotRunning
	}
	out := make([]InstrumentStatus, 0, len(e.workers))
	for _, w := range e.workers {
		s, err := w.query(ctx, control{})
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// SetTier switches every instrument to the named data tier.
func (e *Engine) SetTier(ctx context.Context, name string) error {
	tier, ok := e.cfg.Tiers[name]
	if !ok {
		return fmt.Errorf("engine: unknown tier %q", name)
	}
	if !e.running.Load() {
		return ErrNotRunning
	}
	for _, w := range e.workers {
		if _, err := w.query(ctx, control{tier: &tier}); err != nil {
			return err
		}
	}
	e.tierMu.Lock()
	e.tier = name
	e.tierMu.Unlock()
	e.log.Info("data tier switched", "tier", name, "max_points", tier.MaxPoints, "min_points", tier.MinPoints)
	return nil
}

// fetch times one market data read under its own span.
func (e *Engine) fetch(ctx context.Context, source, instrument string, fn func(ctx context.Context) error) error {
	ctx, span := trace.StartSpan(ctx, "fetch."+source, instrument)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	e.metrics.FetchDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err != nil {
		e.metrics.FetchErrors.WithLabelValues(source).Inc()
		span.RecordError(err)
	}
	return err
}
