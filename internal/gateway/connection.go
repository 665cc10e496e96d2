package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gracefellowship/fellowship/internal/metrics"
	"github.com/gracefellowship/fellowship/internal/models"
	"golang.org/x/time/rate"
)

const (
	heartbeatInterval = 30 * time.Second
	heartbeatTimeout  = 10 * time.Second
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	maxMessageSize    = 4096
	sendBufferSize    = 256

	// Inbound frame budget per connection. Typing updates arrive at most a
	// few times per second from a well-behaved client.
	inboundRate  = 10
	inboundBurst = 20
)

// Connection represents a single WebSocket client connection.
type Connection struct {
	UserID      int64
	SessionID   string
	Role        models.Role
	DisplayName string

	Conn     *websocket.Conn
	Send     chan []byte
	manager  *Manager
	sequence atomic.Int64
	limiter  *rate.Limiter

	closeOnce sync.Once
	done      chan struct{}

	lastHeartbeat atomic.Int64 // unix millis of last heartbeat from client
}

func newConnection(conn *websocket.Conn, manager *Manager) *Connection {
	c := &Connection{
		Conn:    conn,
		Send:    make(chan []byte, sendBufferSize),
		manager: manager,
		limiter: rate.NewLimiter(rate.Limit(inboundRate), inboundBurst),
		done:    make(chan struct{}),
	}
	c.lastHeartbeat.Store(time.Now().UnixMilli())
	return c
}

// NextSequence increments and returns the next sequence number.
func (c *Connection) NextSequence() int64 {
	return c.sequence.Add(1)
}

// SendPayload marshals and queues a payload to be sent. It never blocks: a
// client that cannot keep up loses frames rather than stalling broadcasts.
func (c *Connection) SendPayload(p GatewayPayload) {
	data, err := json.Marshal(p)
	if err != nil {
		slog.Error("marshal error", "userID", c.UserID, "error", err)
		return
	}
	select {
	case c.Send <- data:
	default:
		metrics.DroppedFrames.WithLabelValues("send_buffer_full").Inc()
		slog.Warn("send buffer full, dropping message", "userID", c.UserID, "sessionID", c.SessionID)
	}
}

// SendEvent sends a dispatch event with a sequence number.
func (c *Connection) SendEvent(name string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		slog.Error("marshal event error", "event", name, "error", err)
		return
	}
	seq := c.NextSequence()
	c.SendPayload(GatewayPayload{
		Op:       OpDispatch,
		Data:     raw,
		Sequence: &seq,
		Event:    &name,
	})
}

func (c *Connection) sendError(code, message string) {
	c.SendEvent(EventError, ErrorData{Code: code, Message: message})
}

// Close terminates the connection.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.Conn != nil {
			_ = c.Conn.Close()
		}
	})
}

// readPump reads messages from the WebSocket and handles them.
func (c *Connection) readPump() {
	defer func() {
		c.manager.unregister(c)
		c.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("read error", "userID", c.UserID, "error", err)
			}
			return
		}
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handleMessage(message)
	}
}

// writePump writes messages from the Send channel to the WebSocket and
// enforces the heartbeat deadline.
func (c *Connection) writePump() {
	heartbeatTicker := time.NewTicker(heartbeatInterval)
	defer func() {
		heartbeatTicker.Stop()
		c.Close()
	}()

	for {
		select {
		case message := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-heartbeatTicker.C:
			lastBeat := c.lastHeartbeat.Load()
			if time.Since(time.UnixMilli(lastBeat)) > heartbeatInterval+heartbeatTimeout {
				slog.Warn("heartbeat timeout", "userID", c.UserID, "sessionID", c.SessionID)
				return
			}
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// handleMessage processes an incoming gateway payload from the client.
func (c *Connection) handleMessage(data []byte) {
	var payload GatewayPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		slog.Error("invalid payload", "userID", c.UserID, "error", err)
		return
	}

	if payload.Op == OpHeartbeat {
		c.lastHeartbeat.Store(time.Now().UnixMilli())
		c.SendPayload(GatewayPayload{Op: OpHeartbeatAck})
		return
	}

	if !c.limiter.Allow() {
		metrics.DroppedFrames.WithLabelValues("rate_limited").Inc()
		return
	}

	if payload.Op == OpIdentify {
		c.manager.handleIdentify(c, payload.Data)
		return
	}
	if c.SessionID == "" {
		c.sendError("NOT_IDENTIFIED", "identify before sending other operations")
		return
	}

	switch payload.Op {
	case OpSubscribe:
		c.manager.handleSubscribe(c, payload.Data)
	case OpUnsubscribe:
		c.manager.handleUnsubscribe(c, payload.Data)
	case OpPresenceJoin:
		c.manager.handlePresenceJoin(c, payload.Data)
	case OpPresenceTrack:
		c.manager.handlePresenceTrack(c, payload.Data)
	case OpPresenceLeave:
		c.manager.handlePresenceLeave(c, payload.Data)
	default:
		c.sendError("UNKNOWN_OP", "unsupported op")
	}
}
