package colink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/colinkwatch/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	handshakeTimeout = 15 * time.Second
)

// WSDialer opens live-channel connections to the backend websocket.
type WSDialer struct {
	wsURL string
}

var _ domain.LiveDialer = (*WSDialer)(nil)

// NewWSDialer creates a dialer for the given endpoint, e.g.
// "ws://localhost:8000/ws".
func NewWSDialer(wsURL string) *WSDialer {
	return &WSDialer{wsURL: wsURL}
}

// Dial connects and starts the keep-alive loop. The returned connection
// yields normalized messages.
func (d *WSDialer) Dial(ctx context.Context) (domain.LiveConn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, d.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("colink/ws: connect: %w", err)
	}

	c := &WSConn{
		conn: conn,
		done: make(chan struct{}),
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.pingLoop()
	return c, nil
}

// WSConn is one live-channel connection.
type WSConn struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

var _ domain.LiveConn = (*WSConn)(nil)

// Next blocks for the next frame. Decode failures are returned wrapped in
// domain.ErrMalformed or domain.ErrUnknownMessage and leave the connection
// usable; any other error means the connection is gone.
func (c *WSConn) Next() (domain.PushMessage, error) {
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		select {
		case <-c.done:
			return domain.PushMessage{}, fmt.Errorf("colink/ws: %w", domain.ErrClosed)
		default:
		}
		return domain.PushMessage{}, fmt.Errorf("colink/ws: read: %w: %w", domain.ErrWSDisconnect, err)
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	msg, err := ParseMessage(raw)
	if err != nil {
		return domain.PushMessage{}, fmt.Errorf("colink/ws: decode: %w", err)
	}
	return msg, nil
}

// Close sends a close frame and tears the connection down. It is safe to
// call more than once.
func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		c.writeMu.Unlock()

		err = c.conn.Close()
	})
	return err
}

// pingLoop sends periodic ping messages to keep the connection alive.
func (c *WSConn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
