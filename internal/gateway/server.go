package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const drainPoll = 50 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Web and native apps connect from several origins; the session is
	// established by IDENTIFY, never by cookies.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWebSocket handles GET /gateway. The connection is greeted with
// HELLO and must IDENTIFY before anything else.
func (m *Manager) HandleWebSocket(c echo.Context) error {
	if m.draining.Load() {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "gateway is shutting down")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("gateway upgrade failed", "remote", c.RealIP(), "error", err)
		return nil
	}

	conn := newConnection(ws, m)
	conn.SendPayload(GatewayPayload{
		Op:   OpHello,
		Data: mustMarshal(HelloData{HeartbeatInterval: int(heartbeatInterval.Milliseconds())}),
	})

	go conn.writePump()
	go conn.readPump()
	return nil
}

// Shutdown stops accepting connections and asks every identified client to
// RECONNECT, which sends it to another instance or back here after restart.
// Connections still open when ctx ends are closed.
func (m *Manager) Shutdown(ctx context.Context) {
	m.draining.Store(true)

	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.sessions))
	for _, c := range m.sessions {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	slog.Info("draining gateway", "connections", len(conns))
	for _, c := range conns {
		c.SendPayload(GatewayPayload{Op: OpReconnect})
	}

	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
	for {
		m.mu.RLock()
		left := len(m.sessions)
		m.mu.RUnlock()
		if left == 0 {
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			slog.Warn("closing connections that did not drain", "connections", left)
			for _, c := range conns {
				c.Close()
			}
			return
		}
	}
}
