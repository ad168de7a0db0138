// Package gateway is the HTTP and WebSocket edge of the portfolio engine.
// REST routes drive the service; the hub pushes refreshed holdings to
// connected dashboard clients after every mutation.
package gateway

import (
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"portfolio-systemv1/internal/metrics"
)

// Hub manages WebSocket clients and fans broadcast messages out to them.
// It remembers the latest envelope per channel so a reconnecting client
// gets current state immediately.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	m *metrics.Metrics
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates a new Hub. m may be nil.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		latest:  make(map[string]latestEntry),
		m:       m,
	}
}

// Broadcast sends data on a channel to every connected client.
// Envelope JSON is hand-crafted; data must already be valid JSON.
func (h *Hub) Broadcast(channel string, data []byte) {
	now := time.Now().UTC()

	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.latest[channel] = latestEntry{Data: data, TS: now, Seq: seq}
	h.mu.Unlock()

	buf := make([]byte, 0, len(channel)+len(data)+80)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')

	if h.m != nil {
		h.m.WSBroadcasts.Inc()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- buf:
		default:
			// Slow client: drop the message rather than block the hub.
		}
	}
}

// HandleConn registers an upgraded connection and starts its pumps.
func (h *Hub) HandleConn(conn *websocket.Conn) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client] = true
	n := len(h.clients)
	h.mu.Unlock()
	if h.m != nil {
		h.m.WSClients.Set(float64(n))
	}
	log.Printf("[gateway] ws client connected (%d total)", n)

	go client.writePump()
	go client.readPump()
	client.sendInitialState()
}

// RemoveClient unregisters a client and closes its send channel.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	n := len(h.clients)
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		n = len(h.clients)
	}
	h.mu.Unlock()
	if h.m != nil {
		h.m.WSClients.Set(float64(n))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
