// Package api provides the HTTP handlers of the signal engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"signalbot/config"
	"signalbot/internal/engine"
	"signalbot/internal/portfolio"
	"signalbot/internal/store/sqlite"
)

// Engine is the part of the engine the API reads and controls.
type Engine interface {
	Mode() config.Mode
	Tier() string
	Status(ctx context.Context) ([]engine.InstrumentStatus, error)
	SetTier(ctx context.Context, name string) error
	Summary() portfolio.PnLSummary
	Sinks() []engine.ChannelStat
}

// TradeStore lists journaled trades, newest first.
type TradeStore interface {
	GetTrades(ctx context.Context, instrument string, limit int) ([]sqlite.TradeRecord, error)
}

// Stream serves the live event WebSocket and its replay buffer.
type Stream interface {
	http.Handler
	ClientCount() int
	Replay(channel string, fromSeq, toSeq int64) [][]byte
}

const (
	defaultTradeLimit = 50
	maxTradeLimit     = 1000
	queryTimeout      = 5 * time.Second
)

// Router holds the API collaborators. Trades and Stream may be nil.
type Router struct {
	Engine Engine
	Trades TradeStore
	Stream Stream
}

// NewRouter sets up the /api/v1 routes.
func NewRouter(r Router) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/api/v1/status", r.status)
	mux.HandleFunc("/api/v1/trades", r.trades)
	mux.HandleFunc("/api/v1/tier", r.tier)
	if r.Stream != nil {
		mux.Handle("/api/v1/stream", r.Stream)
		mux.HandleFunc("/api/v1/missed", r.missed)
	}
	return mux
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

type statusResponse struct {
	Mode        config.Mode               `json:"mode"`
	Tier        string                    `json:"tier"`
	Instruments []engine.InstrumentStatus `json:"instruments"`
	PnL         portfolio.PnLSummary      `json:"pnl"`
	Sinks       []engine.ChannelStat      `json:"sinks"`
	WSClients   int                       `json:"ws_clients"`
}

func (r Router) status(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	ctx, cancel := context.WithTimeout(req.Context(), queryTimeout)
	defer cancel()

	statuses, err := r.Engine.Status(ctx)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, engine.ErrNotRunning) {
			code = http.StatusServiceUnavailable
		}
		writeError(w, code, err.Error())
		return
	}
	resp := statusResponse{
		Mode:        r.Engine.Mode(),
		Tier:        r.Engine.Tier(),
		Instruments: statuses,
		PnL:         r.Engine.Summary(),
		Sinks:       r.Engine.Sinks(),
	}
	if r.Stream != nil {
		resp.WSClients = r.Stream.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (r Router) trades(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	if r.Trades == nil {
		writeError(w, http.StatusNotFound, "trade journal disabled")
		return
	}
	limit := defaultTradeLimit
	if raw := req.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxTradeLimit)
	}

	trades, err := r.Trades.GetTrades(req.Context(), req.URL.Query().Get("instrument"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if trades == nil {
		trades = []sqlite.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, trades)
}

func (r Router) tier(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"tier": r.Engine.Tier()})
		return
	case http.MethodPost:
	case http.MethodOptions:
		SetCORS(w)
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		writeError(w, http.StatusMethodNotAllowed, "GET or POST only")
		return
	}

	name := req.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	ctx, cancel := context.WithTimeout(req.Context(), queryTimeout)
	defer cancel()
	if err := r.Engine.SetTier(ctx, name); err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, engine.ErrNotRunning) {
			code = http.StatusServiceUnavailable
		}
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"tier": name})
}

// missed returns buffered stream envelopes for gap backfill:
// GET /api/v1/missed?channel=pub:trade:btc_idr&from=10&to=20
func (r Router) missed(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	channel := q.Get("channel")
	from, err1 := strconv.ParseInt(q.Get("from"), 10, 64)
	to, err2 := strconv.ParseInt(q.Get("to"), 10, 64)
	if channel == "" || err1 != nil || err2 != nil || from > to {
		writeError(w, http.StatusBadRequest, "channel, from and to are required")
		return
	}

	envelopes := r.Stream.Replay(channel, from, to)
	out := make([]json.RawMessage, len(envelopes))
	for i, e := range envelopes {
		out[i] = e
	}
	writeJSON(w, http.StatusOK, out)
}
