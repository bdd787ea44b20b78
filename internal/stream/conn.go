package stream

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Nancy-30/LTrail/internal/model"
)

const (
	// writeWait bounds a single write to the peer.
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong before assuming the peer
	// is gone. pingPeriod must be shorter.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ErrSendBufferFull is returned by Conn.Send when the outbound buffer is
// full. The registry treats it as a prune signal.
var ErrSendBufferFull = errors.New("stream: send buffer full")

// ErrConnClosed is returned by Conn.Send after Close.
var ErrConnClosed = errors.New("stream: connection closed")

// Conn adapts a WebSocket connection to the Subscriber interface. Events
// pass through a buffered channel to a single writer goroutine, which
// keeps delivery ordered and never blocks the broadcaster.
type Conn struct {
	id     string
	ws     *websocket.Conn
	logger *slog.Logger

	send      chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

// NewConn wraps ws. The caller must invoke Run to start the write pump.
func NewConn(ws *websocket.Conn, bufferSize int, logger *slog.Logger) *Conn {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Conn{
		id:     uuid.NewString(),
		ws:     ws,
		logger: logger,
		send:   make(chan []byte, bufferSize),
		closed: make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Send queues an event for delivery. It never blocks: a full buffer or a
// closed connection reports an error so the registry can prune.
func (c *Conn) Send(event model.StreamEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.closed:
		return ErrConnClosed
	default:
		return ErrSendBufferFull
	}
}

// Close tears the connection down. Safe to call multiple times and from
// any goroutine.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.ws.Close()
	})
}

// Run drives the write pump until the connection closes. It sends queued
// events and periodic pings, and closes the connection on any write
// failure. Call from its own goroutine.
func (c *Conn) Run() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.closed:
			return
		case payload := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("stream: write failed", "subscriber_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadLoop consumes inbound frames until the peer disconnects, invoking
// onMessage for each text payload. It installs the pong handler that
// keeps the read deadline advancing.
func (c *Conn) ReadLoop(onMessage func(data string)) {
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("stream: read failed", "subscriber_id", c.id, "error", err)
			}
			return
		}
		onMessage(string(payload))
	}
}
