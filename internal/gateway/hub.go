// Package gateway streams trade events to WebSocket clients.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"signalbot/internal/model"

	"github.com/gorilla/websocket"
)

// ChannelPrefix is prepended to the instrument key to form a stream channel.
// It matches the Redis pub/sub channel naming.
const ChannelPrefix = "pub:trade:"

// replayCapacity is the number of envelopes kept per channel for backfill.
const replayCapacity = 500

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Channel returns the stream channel of an instrument key.
func Channel(pair string) string {
	return ChannelPrefix + pair
}

// Hub tracks connected clients and fans every trade event out to them.
// It implements model.EventSink.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	// Per-channel monotonic sequence numbers for gap detection
	channelSeqs map[string]int64
	replayBufs  map[string]*ReplayBuffer

	now func() time.Time
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		now:         time.Now,
	}
}

// Name implements model.EventSink.
func (h *Hub) Name() string { return "websocket" }

// Publish implements model.EventSink. Slow clients miss messages rather
// than block the caller.
func (h *Hub) Publish(_ context.Context, ev model.TradeEvent) error {
	h.Broadcast(Channel(ev.Instrument.Key()), ev.JSON())
	return nil
}

// Broadcast wraps data in an envelope and sends it to every client
// subscribed to channel.
func (h *Hub) Broadcast(channel string, data []byte) {
	now := h.now().UTC()

	h.mu.Lock()
	h.channelSeqs[channel]++
	channelSeq := h.channelSeqs[channel]
	h.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	h.seq++
	seq := h.seq
	rb, ok := h.replayBufs[channel]
	if !ok {
		rb = NewReplayBuffer(replayCapacity)
		h.replayBufs[channel] = rb
	}
	h.mu.Unlock()

	buf := envelope(channel, data, now, seq, channelSeq)
	rb.Push(channelSeq, buf)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.matchesChannel(channel) {
			continue
		}
		select {
		case client.send <- buf:
		default:
		}
	}
}

// envelope builds {"type":"trade","channel":...,"data":...,"ts":...,"seq":...,"channel_seq":...}
// without a reflection pass over data, which is already JSON.
func envelope(channel string, data []byte, ts time.Time, seq, channelSeq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"type":"trade","channel":`...)
	buf = strconv.AppendQuote(buf, channel)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = ts.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}

// ServeHTTP upgrades the request to a WebSocket and registers the client.
// Optional query parameters: last_ts (RFC3339Nano, skip older initial state)
// and pairs (comma-separated instrument keys to subscribe to).
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}
	var pairs []string
	if raw := r.URL.Query().Get("pairs"); raw != "" {
		pairs = strings.Split(raw, ",")
	}
	h.register(conn, r.URL.Query().Get("last_ts"), pairs)
}

func (h *Hub) register(conn *websocket.Conn, lastTS string, pairs []string) {
	client := newClient(h, conn)
	client.subscribe(pairs)
	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	slog.Info("ws client connected", "clients", count)

	client.sendInitialState(lastTS)
	go client.writePump()
	go client.readPump()
}

// RemoveClient unregisters a client and closes its send queue.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Latest returns the most recent event payload per channel.
func (h *Hub) Latest() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// Replay returns buffered envelopes for channel with channel_seq in
// [fromSeq, toSeq], oldest first.
func (h *Hub) Replay(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, ok := h.replayBufs[channel]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
