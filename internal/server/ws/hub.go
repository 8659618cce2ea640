// Package ws fans committed views out to browser websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/colinkwatch/internal/domain"
	"github.com/alanyoungcy/colinkwatch/internal/metrics"
	"github.com/alanyoungcy/colinkwatch/internal/server/handler"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 16
)

// ViewSource is what the hub reads from: the current view plus a
// subscription to every later commit.
type ViewSource interface {
	handler.ViewReader
	Subscribe() (<-chan domain.View, func())
}

// frame is the envelope written to clients.
type frame struct {
	Type    string        `json:"type"`
	Payload handler.State `json:"payload"`
}

// client represents a single WebSocket connection.
type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub manages connected WebSocket clients and broadcasts every committed view
// to all of them.
type Hub struct {
	source   ViewSource
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *metrics.Recorder

	register   chan *client
	unregister chan *client

	mu      sync.RWMutex
	clients map[*client]struct{}
	running bool
	done    chan struct{}
}

// NewHub creates a hub reading from source.
func NewHub(source ViewSource, logger *slog.Logger, rec *metrics.Recorder) *Hub {
	return &Hub{
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger:     logger.With(slog.String("component", "ws_hub")),
		metrics:    rec,
		register:   make(chan *client),
		unregister: make(chan *client),
		clients:    make(map[*client]struct{}),
		done:       make(chan struct{}),
	}
}

// Run is the hub's event loop. It exits when ctx is cancelled or the view
// source closes, disconnecting every client. Run must be called at most once.
func (h *Hub) Run(ctx context.Context) error {
	views, cancel := h.source.Subscribe()
	defer cancel()

	h.mu.Lock()
	h.running = true
	h.mu.Unlock()
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case c := <-h.register:
			// Sent from the loop so it always precedes broadcast frames.
			if data, err := h.encode(h.source.View()); err == nil {
				c.send <- data
			}
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.HubClients(n)
			h.logger.Info("ws: client connected",
				slog.String("client_id", c.id),
				slog.Int("total_clients", n),
			)

		case c := <-h.unregister:
			h.remove(c)

		case v, ok := <-views:
			if !ok {
				return nil
			}
			h.broadcast(v)
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub, which sends it the current state first.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		http.Error(w, "hub not running", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(v domain.View) {
	data, err := h.encode(v)
	if err != nil {
		h.logger.Warn("ws: encode view failed", slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("ws: dropping slow client", slog.String("client_id", c.id))
		h.remove(c)
	}
}

func (h *Hub) encode(v domain.View) ([]byte, error) {
	return json.Marshal(frame{Type: "view", Payload: handler.NewState(v)})
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.metrics.HubClients(n)
		h.logger.Info("ws: client disconnected",
			slog.String("client_id", c.id),
			slog.Int("total_clients", n),
		)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	h.running = false
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()
	close(h.done)
	h.metrics.HubClients(0)
}

// readPump drains client frames so control messages are processed. Clients
// are not expected to send data.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("client_id", c.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

// writePump writes queued frames and keepalive pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
