package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"signalbot/config"
	"signalbot/internal/api"
	"signalbot/internal/breaker"
	"signalbot/internal/engine"
	"signalbot/internal/gateway"
	"signalbot/internal/logger"
	"signalbot/internal/marketdata/binance"
	"signalbot/internal/marketdata/indodax"
	"signalbot/internal/marketdata/rest"
	"signalbot/internal/metrics"
	"signalbot/internal/model"
	"signalbot/internal/notification"
	"signalbot/internal/store/jsonfile"
	redisstore "signalbot/internal/store/redis"
	sqlitestore "signalbot/internal/store/sqlite"
	"signalbot/internal/trace"
)

const service = "signalbot"

// startAlertTimeout bounds the start alert, which runs beside the engine.
var startAlertTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// ---- Load config ----
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.Init(service, logger.ParseLevel(cfg.Log.Level))
	log.Info("starting",
		"mode", cfg.Mode,
		"tier", cfg.ActiveTier,
		"instruments", len(cfg.EnabledInstruments()),
		"poll_interval", cfg.PollInterval,
	)

	if err := trace.Init(service, cfg.Log.Tracing); err != nil {
		return fmt.Errorf("trace init: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		trace.Shutdown(ctx)
	}()

	// ---- Setup context for graceful shutdown ----
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Setup metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus(3 * cfg.PollInterval)
	onBreaker := func(name string, from, to breaker.State) {
		prom.BreakerState.WithLabelValues(name).Set(float64(to))
		log.Warn("circuit breaker state change", "name", name, "from", from, "to", to)
	}

	// ---- Market data clients ----
	indodaxREST, err := newREST(cfg.Fetch, "indodax", cfg.Fetch.IndodaxURL, "", prom, onBreaker)
	if err != nil {
		return err
	}
	market := indodax.New(indodaxREST)

	var bench model.BenchmarkSource
	if cfg.Benchmark.Enabled || hasReference(cfg.EnabledInstruments()) {
		binanceREST, err := newREST(cfg.Fetch, "binance", cfg.Fetch.BinanceURL, cfg.Fetch.ProxyURL, prom, onBreaker)
		if err != nil {
			return err
		}
		bench = binance.New(binanceREST)
	}

	// ---- History repository ----
	if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	var (
		repo model.HistoryRepository
		dbs  []*sql.DB
	)
	switch cfg.Storage.Backend {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
			return fmt.Errorf("history dir: %w", err)
		}
		hs, err := sqlitestore.NewHistoryStore(cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		repo = hs
		dbs = append(dbs, hs.DB())
	default:
		js, err := jsonfile.New(cfg.Storage.Dir)
		if err != nil {
			return err
		}
		repo = js
	}
	defer repo.Close()
	log.Info("history repository ready", "backend", cfg.Storage.Backend)

	// ---- Sinks ----
	var sinks []model.EventSink

	notifier := notification.NewSink(buildNotifier(cfg.Notify, log), cfg.Notify.SendHold)
	sinks = append(sinks, notifier)

	var journal *sqlitestore.Journal
	if cfg.Storage.JournalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.JournalPath), 0o755); err != nil {
			return fmt.Errorf("journal dir: %w", err)
		}
		journal, err = sqlitestore.NewJournal(cfg.Storage.JournalPath)
		if err != nil {
			return err
		}
		defer journal.Close()
		sinks = append(sinks, journal)
		dbs = append(dbs, journal.DB())
		log.Info("trade journal ready", "path", cfg.Storage.JournalPath)
	}

	var rdb *goredis.Client
	if cfg.Redis.Enabled {
		cb := breaker.New("redis", cfg.Fetch.BreakerFailures, cfg.Fetch.BreakerReset)
		cb.OnStateChange = onBreaker
		pub, err := redisstore.New(redisstore.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			StreamMaxLen: cfg.Redis.StreamMaxLen,
		}, cb)
		if err != nil {
			log.Warn("redis init failed, continuing without redis", "err", err)
		} else {
			defer pub.Close()
			sinks = append(sinks, pub)
			rdb = pub.Client()
		}
	}
	health.RedisEnabled = cfg.Redis.Enabled

	hub := gateway.NewHub()
	sinks = append(sinks, hub)

	// ---- Dispatcher ----
	dispatcher := engine.NewDispatcher(cfg.Notify.BufferSize, sinks...)
	dispatcher.OnDrop = func(sink string) {
		prom.SinkDrops.WithLabelValues(sink).Inc()
		log.Warn("sink queue full, event dropped", "sink", sink)
	}
	dispatcher.OnError = func(sink string, err error) {
		prom.SinkErrors.WithLabelValues(sink).Inc()
		log.Error("sink publish failed", "sink", sink, "err", err)
	}

	// ---- Engine ----
	eng := engine.New(cfg, engine.Options{
		Market:     market,
		Benchmark:  bench,
		History:    repo,
		Dispatcher: dispatcher,
		Metrics:    prom,
		Health:     health,
		Logger:     log,
	})

	// ---- HTTP: metrics, health, API ----
	var srv *metrics.Server
	if cfg.HTTP.Enabled {
		router := api.Router{Engine: eng, Stream: hub}
		if journal != nil {
			router.Trades = journal
		}
		srv = metrics.NewServer(cfg.HTTP.Addr, prom, health, api.NewRouter(router))
		srv.Start()
	}

	// ---- Periodic liveness checks ----
	health.StartLivenessChecker(ctx, rdb, dbs, 10*time.Second)

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				prom.WSClients.Set(float64(hub.ClientCount()))
			}
		}
	}()

	go startAlert(ctx, notifier, cfg, log)

	// ---- Run until signalled ----
	err = eng.Run(ctx)
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if srv != nil {
		if err := srv.Stop(shutdownCtx); err != nil {
			log.Warn("http server stop", "err", err)
		}
	}
	hub.Close()

	if err := notifier.Notify(shutdownCtx, notification.Alert{
		Level:   notification.AlertInfo,
		Title:   "Signal bot stopped",
		Message: fmt.Sprintf("realized P/L %.2f%% over %d trades", eng.Summary().Realized*100, eng.Summary().TotalTrades),
	}); err != nil {
		log.Warn("stop alert failed", "err", err)
	}

	log.Info("stopped")
	return err
}

func newREST(fc config.Fetch, name, baseURL, proxy string, prom *metrics.Metrics, onBreaker func(string, breaker.State, breaker.State)) (*rest.Client, error) {
	c, err := rest.New(rest.Config{
		Name:            name,
		BaseURL:         baseURL,
		ProxyURL:        proxy,
		Timeout:         fc.Timeout,
		Retries:         fc.Retries,
		Backoff:         fc.Backoff,
		BreakerFailures: fc.BreakerFailures,
		BreakerReset:    fc.BreakerReset,
	})
	if err != nil {
		return nil, fmt.Errorf("%s client: %w", name, err)
	}
	c.Breaker().OnStateChange = onBreaker
	c.OnRequest = func(name string, d time.Duration, err error) {
		if err != nil {
			prom.UpstreamErrors.WithLabelValues(name).Inc()
		}
	}
	return c, nil
}

func buildNotifier(nc config.Notify, log *slog.Logger) notification.Notifier {
	var multi notification.Multi
	if nc.TelegramToken != "" && nc.TelegramChatID != "" {
		multi = append(multi, notification.NewTelegramNotifier(nc.TelegramToken, nc.TelegramChatID))
		log.Info("telegram notifications enabled")
	}
	if nc.WebhookURL != "" {
		multi = append(multi, notification.NewWebhookNotifier(nc.WebhookURL))
		log.Info("webhook notifications enabled", "url", nc.WebhookURL)
	}
	if len(multi) == 0 {
		log.Warn("no notification channel configured, alerts go to the log")
		return notification.NewLogNotifier()
	}
	return multi
}

func hasReference(insts []model.Instrument) bool {
	for _, inst := range insts {
		if inst.ReferenceSymbol != "" && inst.ReferenceRate > 0 {
			return true
		}
	}
	return false
}

func startAlert(ctx context.Context, n *notification.Sink, cfg config.Config, log *slog.Logger) {
	msg := fmt.Sprintf("mode %s, tier %s, polling every %s", cfg.Mode, cfg.ActiveTier, cfg.PollInterval)
	for _, inst := range cfg.EnabledInstruments() {
		msg += fmt.Sprintf("\n%s %s (%s)", inst.Emoji, inst.DisplayName, inst.Pair)
	}
	ctx, cancel := context.WithTimeout(ctx, startAlertTimeout)
	defer cancel()
	if err := n.Notify(ctx, notification.Alert{
		Level:   notification.AlertInfo,
		Title:   "Signal bot started",
		Message: msg,
	}); err != nil {
		log.Warn("start alert failed", "err", err)
	}
}
