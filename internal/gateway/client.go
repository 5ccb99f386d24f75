package gateway

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Subscribed instrument keys. Empty means every instrument.
	subMu sync.RWMutex
	pairs map[string]bool
}

// clientMsg is a control message sent by a peer.
//
//	{"type":"SUBSCRIBE","pairs":["btc_idr"]}
//	{"type":"UNSUBSCRIBE","pairs":["btc_idr"]}
//	{"type":"RESUME","channel":"pub:trade:btc_idr","from_seq":12}
//	{"ping":1700000000000}
type clientMsg struct {
	Type    string   `json:"type"`
	Pairs   []string `json:"pairs"`
	Channel string   `json:"channel"`
	FromSeq int64    `json:"from_seq"`
	Ping    int64    `json:"ping"`
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		hub:   h,
		pairs: make(map[string]bool),
	}
}

func (c *Client) subscribe(pairs []string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, p := range pairs {
		if p = strings.TrimSpace(p); p != "" {
			c.pairs[p] = true
		}
	}
}

func (c *Client) unsubscribe(pairs []string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, p := range pairs {
		delete(c.pairs, strings.TrimSpace(p))
	}
}

// matchesChannel reports whether the client wants messages on channel.
func (c *Client) matchesChannel(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if len(c.pairs) == 0 {
		return true
	}
	return c.pairs[strings.TrimPrefix(channel, ChannelPrefix)]
}

// sendInitialState queues the latest event of every matching channel newer
// than lastTS. It runs before the pumps start, so the queue cannot be closed.
func (c *Client) sendInitialState(lastTS string) {
	var cutoff time.Time
	if lastTS != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, lastTS); err == nil {
			cutoff = parsed
		}
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	for channel, entry := range c.hub.latest {
		if !cutoff.IsZero() && !entry.TS.After(cutoff) {
			continue
		}
		if !c.matchesChannel(channel) {
			continue
		}
		msg, _ := json.Marshal(map[string]any{
			"type":        "trade",
			"channel":     channel,
			"data":        entry.Data,
			"ts":          entry.TS.Format(time.RFC3339Nano),
			"channel_seq": entry.Seq,
			"initial":     true,
		})
		select {
		case c.send <- msg:
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		slog.Info("ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMsg
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}

		switch msg.Type {
		case "SUBSCRIBE":
			c.subscribe(msg.Pairs)
		case "UNSUBSCRIBE":
			c.unsubscribe(msg.Pairs)
		case "RESUME":
			c.resume(msg.Channel, msg.FromSeq)
		default:
			if msg.Ping > 0 {
				pong, _ := json.Marshal(map[string]any{
					"type":      "pong",
					"ping":      msg.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				c.enqueue(pong)
			}
		}
	}
}

// resume replays buffered envelopes on channel from fromSeq onward.
func (c *Client) resume(channel string, fromSeq int64) {
	for _, msg := range c.hub.Replay(channel, fromSeq, 1<<62) {
		c.enqueue(msg)
	}
}

// enqueue drops msg when the queue is full or already closed.
func (c *Client) enqueue(msg []byte) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}
