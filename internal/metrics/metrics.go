package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "signalbot"

// Metrics holds all Prometheus metrics of the signal engine.
type Metrics struct {
	Registry *prometheus.Registry

	CyclesTotal    *prometheus.CounterVec // labels: instrument, outcome
	CycleDuration  prometheus.Histogram
	DecisionsTotal *prometheus.CounterVec // labels: instrument, action

	FetchErrors   *prometheus.CounterVec   // labels: source
	FetchDuration *prometheus.HistogramVec // labels: source

	// UpstreamErrors counts failed HTTP attempts, retries included.
	UpstreamErrors *prometheus.CounterVec // labels: upstream

	HistoryPoints *prometheus.GaugeVec // labels: instrument, set=active|archive
	OpenPositions *prometheus.GaugeVec // labels: instrument; 1=long, -1=short, 0=flat
	RealizedPnL   prometheus.Histogram

	TradeEvents *prometheus.CounterVec // labels: kind
	SinkErrors  *prometheus.CounterVec // labels: sink
	SinkDrops   *prometheus.CounterVec // labels: sink

	// Circuit breakers: 0=closed, 1=open, 2=half-open
	BreakerState *prometheus.GaugeVec // labels: name

	PersistErrors prometheus.Counter
	WSClients     prometheus.Gauge
}

// NewMetrics creates the metrics on a fresh registry, together with the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Evaluation cycles by outcome (ok, skipped, error)",
		}, []string{"instrument", "outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one instrument evaluation cycle",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Resolved decisions by action",
		}, []string{"instrument", "action"}),

		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Failed market data reads",
		}, []string{"source"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Latency of market data reads including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		UpstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Failed HTTP attempts per upstream, counting each retry",
		}, []string{"upstream"}),

		HistoryPoints: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_points",
			Help:      "Samples held in rolling history",
		}, []string{"instrument", "set"}),
		OpenPositions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_positions",
			Help:      "Current position per instrument (1 long, -1 short, 0 flat)",
		}, []string{"instrument"}),
		RealizedPnL: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "realized_pnl_ratio",
			Help:      "Realized P/L ratio of closed positions",
			Buckets:   []float64{-0.05, -0.02, -0.01, -0.005, 0, 0.005, 0.01, 0.02, 0.05},
		}),

		TradeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trade_events_total",
			Help:      "Trade events emitted by kind",
		}, []string{"kind"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Event sink delivery failures",
		}, []string{"sink"}),
		SinkDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_drops_total",
			Help:      "Events dropped because a sink buffer was full",
		}, []string{"sink"}),

		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),

		PersistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "History flush failures",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected WebSocket clients",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.CyclesTotal,
		m.CycleDuration,
		m.DecisionsTotal,
		m.FetchErrors,
		m.FetchDuration,
		m.UpstreamErrors,
		m.HistoryPoints,
		m.OpenPositions,
		m.RealizedPnL,
		m.TradeEvents,
		m.SinkErrors,
		m.SinkDrops,
		m.BreakerState,
		m.PersistErrors,
		m.WSClients,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisEnabled   bool
	RedisConnected bool
	RedisLatencyMs float64

	SQLiteEnabled   bool
	SQLiteOK        bool
	SQLiteLatencyMs float64

	LastCycleTime time.Time
	Instruments   int
	LastCheckAt   time.Time
	StartedAt     time.Time

	// A last cycle older than StaleAfter marks the engine unhealthy.
	StaleAfter time.Duration

	now func() time.Time
}

// NewHealthStatus returns a health status that goes stale after staleAfter
// without a completed cycle.
func NewHealthStatus(staleAfter time.Duration) *HealthStatus {
	return &HealthStatus{
		StartedAt:  time.Now(),
		StaleAfter: staleAfter,
		now:        time.Now,
	}
}

// SetLastCycleTime records a completed evaluation cycle.
func (h *HealthStatus) SetLastCycleTime(t time.Time) {
	h.mu.Lock()
	h.LastCycleTime = t
	h.mu.Unlock()
}

// SetInstruments records how many instrument workers are running.
func (h *HealthStatus) SetInstruments(n int) {
	h.mu.Lock()
	h.Instruments = n
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// CheckSQLite pings every database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, dbs ...*sql.DB) {
	start := time.Now()
	var errs []error
	for _, db := range dbs {
		errs = append(errs, db.PingContext(ctx))
	}
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteEnabled = true
	h.SQLiteOK = errors.Join(errs...) == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// StartLivenessChecker runs dependency probes immediately and then every
// interval until ctx is done. A nil rdb or empty dbs skips that probe.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, dbs []*sql.DB, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if len(dbs) > 0 {
			h.CheckSQLite(probeCtx, dbs...)
		}
	}
	go func() {
		probe()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}

// HealthReport is the /healthz response body.
type HealthReport struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	Instruments     int     `json:"instruments"`
	LastCycleTime   string  `json:"last_cycle_time"`
	CycleAge        string  `json:"cycle_age"`
	RedisEnabled    bool    `json:"redis_enabled"`
	RedisConnected  bool    `json:"redis_connected"`
	RedisLatencyMs  float64 `json:"redis_latency_ms"`
	SQLiteEnabled   bool    `json:"sqlite_enabled"`
	SQLiteOK        bool    `json:"sqlite_ok"`
	SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
	LastCheckAt     string  `json:"last_check_at"`
}

// Report computes the overall status: unhealthy when cycles are stale or
// SQLite is failing, degraded when Redis is down, healthy otherwise.
func (h *HealthStatus) Report() (HealthReport, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now()
	status, code := "healthy", http.StatusOK
	if h.RedisEnabled && !h.RedisConnected {
		status = "degraded"
	}
	stale := h.LastCycleTime.IsZero() && now.Sub(h.StartedAt) > h.StaleAfter ||
		!h.LastCycleTime.IsZero() && now.Sub(h.LastCycleTime) > h.StaleAfter
	if stale || h.SQLiteEnabled && !h.SQLiteOK {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	r := HealthReport{
		Status:          status,
		Uptime:          now.Sub(h.StartedAt).Round(time.Second).String(),
		Instruments:     h.Instruments,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteEnabled:   h.SQLiteEnabled,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
	}
	if !h.LastCycleTime.IsZero() {
		r.LastCycleTime = h.LastCycleTime.Format(time.RFC3339)
		r.CycleAge = now.Sub(h.LastCycleTime).Round(time.Millisecond).String()
	}
	if !h.LastCheckAt.IsZero() {
		r.LastCheckAt = h.LastCheckAt.Format(time.RFC3339)
	}
	return r, code
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report, code := h.Report()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(report)
}

// Server runs an HTTP server exposing /metrics, /healthz and the API.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates the HTTP server. api may be nil.
func NewServer(addr string, m *Metrics, health *HealthStatus, api http.Handler) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)
	if api != nil {
		mux.Handle("/", api)
	}

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("http server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
