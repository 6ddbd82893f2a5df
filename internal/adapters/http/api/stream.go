package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/okian/hackcast/internal/domain/types"
	"github.com/okian/hackcast/pkg/logger"
	"github.com/okian/hackcast/pkg/metrics"
)

const (
	defaultWriteWait    = 10 * time.Second
	defaultPingInterval = 30 * time.Second
	defaultSendBuffer   = 16
	maxInboundMessage   = 512
)

// message is one frame pushed to stream clients.
type message struct {
	Type string `json:"type"`
	types.Frame
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithPingInterval sets how often idle connections are pinged.
func WithPingInterval(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// WithSendBuffer sets the per-client frame buffer. A client that falls
// further behind is disconnected.
func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithHubLogger sets a custom logger for the hub.
func WithHubLogger(l logger.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans broadcast snapshots out to WebSocket clients. Every open
// connection counts as one viewer.
type Hub struct {
	source       Broadcast
	onCount      func(int)
	upgrader     websocket.Upgrader
	writeWait    time.Duration
	pingInterval time.Duration
	sendBuffer   int
	log          logger.Logger

	mu      sync.Mutex
	clients map[string]*client
	closed  bool
}

// NewHub creates a hub reading from source. onCount is called with the new
// client count after every connect and disconnect.
func NewHub(source Broadcast, onCount func(int), opts ...HubOption) *Hub {
	h := &Hub{
		source:  source,
		onCount: onCount,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		writeWait:    defaultWriteWait,
		pingInterval: defaultPingInterval,
		sendBuffer:   defaultSendBuffer,
		log:          logger.Get().Named("stream"),
		clients:      make(map[string]*client),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run forwards frames until ctx ends or the source closes, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	updates, cancel := h.source.Subscribe()
	defer cancel()
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-updates:
			if !ok {
				return
			}
			data, err := encode(f)
			if err != nil {
				h.log.Error(ctx, "encode frame", logger.Error(err))
				continue
			}
			h.fanOut(data)
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleWebSocket handles GET /ws upgrades.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}

	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, h.sendBuffer)}
	if initial, err := encode(h.source.Frame()); err == nil {
		c.send <- initial
	}
	if !h.register(c) {
		_ = conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// encode never re-reads the source: a frame that waited in a buffer is sent
// exactly as it was taken.
func encode(f types.Frame) ([]byte, error) {
	return json.Marshal(message{Type: "state", Frame: f})
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	h.countChangedLocked()
	h.log.Debug(context.Background(), "stream client connected", logger.String("client_id", c.id))
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if cur, ok := h.clients[c.id]; !ok || cur != c {
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	h.countChangedLocked()
	h.log.Debug(context.Background(), "stream client disconnected", logger.String("client_id", c.id))
}

func (h *Hub) countChangedLocked() {
	n := len(h.clients)
	metrics.UpdateWebSocketClients(n)
	if h.onCount != nil {
		h.onCount(n)
	}
}

func (h *Hub) fanOut(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn(context.Background(), "dropping slow stream client", logger.String("client_id", c.id))
			h.removeLocked(c)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, c := range h.clients {
		h.removeLocked(c)
	}
}

// readPump discards inbound messages; it only exists to notice disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxInboundMessage)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
