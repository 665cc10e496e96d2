package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gracefellowship/fellowship/internal/auth"
	"github.com/gracefellowship/fellowship/internal/database"
	"github.com/gracefellowship/fellowship/internal/metrics"
	"github.com/gracefellowship/fellowship/internal/models"
	"github.com/gracefellowship/fellowship/internal/permissions"
)

const offlineGrace = 10 * time.Second

// OnlineTracker mirrors whether a user has any live connection.
type OnlineTracker interface {
	SetOnline(ctx context.Context, userID int64) error
	SetOffline(ctx context.Context, userID int64) error
}

// Manager manages all active WebSocket connections, topic subscriptions and
// presence channels.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Connection            // sessionID → connection
	byUser   map[int64]map[string]*Connection  // userID → sessionID → connection
	topics   map[string]map[string]*Connection // topic → sessionID → connection

	presence *presenceRegistry

	tokens *auth.TokenService
	users  database.UserRepository
	online OnlineTracker

	draining atomic.Bool
}

// NewManager creates a new gateway Manager.
func NewManager(tokens *auth.TokenService, users database.UserRepository, online OnlineTracker) *Manager {
	return &Manager{
		sessions: make(map[string]*Connection),
		byUser:   make(map[int64]map[string]*Connection),
		topics:   make(map[string]map[string]*Connection),
		presence: newPresenceRegistry(),
		tokens:   tokens,
		users:    users,
		online:   online,
	}
}

// register adds an identified connection. A user may hold any number of
// concurrent sessions (several tabs or devices).
func (m *Manager) register(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[c.SessionID] = c
	if m.byUser[c.UserID] == nil {
		m.byUser[c.UserID] = make(map[string]*Connection)
	}
	m.byUser[c.UserID][c.SessionID] = c
	metrics.GatewayConnections.Inc()
}

// unregister removes a connection, drops its subscriptions and presence
// metas, and tells the remaining channel members.
func (m *Manager) unregister(c *Connection) {
	if c.SessionID == "" {
		return
	}

	m.mu.Lock()
	if _, ok := m.sessions[c.SessionID]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, c.SessionID)
	for topic, subs := range m.topics {
		delete(subs, c.SessionID)
		if len(subs) == 0 {
			delete(m.topics, topic)
		}
	}
	lastSession := false
	if conns := m.byUser[c.UserID]; conns != nil {
		delete(conns, c.SessionID)
		if len(conns) == 0 {
			delete(m.byUser, c.UserID)
			lastSession = true
		}
	}
	m.mu.Unlock()
	metrics.GatewayConnections.Dec()

	for _, channel := range m.presence.leaveAll(c.SessionID) {
		m.broadcastPresence(channel)
	}

	if lastSession {
		go m.clearOnlineWithGrace(c.UserID)
	}
}

// clearOnlineWithGrace waits before marking offline, allowing reconnection.
func (m *Manager) clearOnlineWithGrace(userID int64) {
	time.Sleep(offlineGrace)

	m.mu.RLock()
	_, reconnected := m.byUser[userID]
	m.mu.RUnlock()
	if reconnected || m.online == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.online.SetOffline(ctx, userID); err != nil {
		slog.Error("failed to clear online status", "userID", userID, "error", err)
	}
}

// Publish sends a CHANGE dispatch to the subscribers of each topic.
func (m *Manager) Publish(change Change, topics ...string) {
	for _, topic := range topics {
		m.mu.RLock()
		subs := m.topics[topic]
		conns := make([]*Connection, 0, len(subs))
		for _, c := range subs {
			conns = append(conns, c)
		}
		m.mu.RUnlock()

		ev := change
		ev.Topic = topic
		for _, c := range conns {
			c.SendEvent(EventChange, ev)
		}
	}
	metrics.ChangesPublished.WithLabelValues(change.Table, string(change.Type)).Inc()
}

// SubscriberCount returns the number of connections subscribed to topic.
func (m *Manager) SubscriberCount(topic string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.topics[topic])
}

// handleIdentify processes an IDENTIFY payload from a client.
func (m *Manager) handleIdentify(c *Connection, data json.RawMessage) {
	if c.SessionID != "" {
		c.sendError("ALREADY_IDENTIFIED", "connection is already identified")
		return
	}

	var identify IdentifyData
	if err := json.Unmarshal(data, &identify); err != nil {
		slog.Error("invalid identify data", "error", err)
		c.Close()
		return
	}

	claims, err := m.tokens.ValidateAccessToken(identify.Token)
	if err != nil {
		slog.Warn("invalid token in identify", "error", err)
		c.Close()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	user, err := m.users.GetByID(ctx, claims.UserID)
	if err != nil || user == nil {
		slog.Error("failed to load user on identify", "userID", claims.UserID, "error", err)
		c.Close()
		return
	}

	c.UserID = user.ID
	c.Role = user.Role
	c.DisplayName = user.DisplayName
	c.SessionID = uuid.NewString()
	m.register(c)

	if m.online != nil {
		if err := m.online.SetOnline(ctx, c.UserID); err != nil {
			slog.Error("failed to set online status", "userID", c.UserID, "error", err)
		}
	}

	c.SendEvent(EventReady, ReadyData{
		SessionID:   c.SessionID,
		UserID:      c.UserID,
		DisplayName: c.DisplayName,
		Role:        c.Role,
	})
}

// handleSubscribe adds the connection to a topic after validating it.
func (m *Manager) handleSubscribe(c *Connection, data json.RawMessage) {
	var sub SubscribeData
	if err := json.Unmarshal(data, &sub); err != nil {
		c.sendError("INVALID_PAYLOAD", "invalid subscribe payload")
		return
	}
	topic, err := ParseTopic(sub.Topic)
	if err != nil {
		c.sendError("INVALID_TOPIC", err.Error())
		return
	}
	if !permissions.ForRole(c.Role).Has(topic.RequiredPermission()) {
		c.sendError("FORBIDDEN", "missing permission for topic "+topic.String())
		return
	}

	name := topic.String()
	m.mu.Lock()
	if _, ok := m.sessions[c.SessionID]; !ok {
		m.mu.Unlock()
		return
	}
	if m.topics[name] == nil {
		m.topics[name] = make(map[string]*Connection)
	}
	m.topics[name][c.SessionID] = c
	m.mu.Unlock()

	c.SendEvent(EventSubscribed, SubscribeData{Topic: name})
}

func (m *Manager) handleUnsubscribe(c *Connection, data json.RawMessage) {
	var sub SubscribeData
	if err := json.Unmarshal(data, &sub); err != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.topics[sub.Topic]; ok {
		delete(subs, c.SessionID)
		if len(subs) == 0 {
			delete(m.topics, sub.Topic)
		}
	}
}

func (m *Manager) handlePresenceJoin(c *Connection, data json.RawMessage) {
	var join PresenceJoinData
	if err := json.Unmarshal(data, &join); err != nil {
		c.sendError("INVALID_PAYLOAD", "invalid presence join payload")
		return
	}
	if _, err := ParseRoomChannel(join.Channel); err != nil {
		c.sendError("INVALID_CHANNEL", err.Error())
		return
	}

	m.presence.join(join.Channel, models.PresenceMeta{
		Ref:         c.SessionID,
		UserID:      c.UserID,
		DisplayName: c.DisplayName,
		OnlineAt:    time.Now().UTC(),
	})
	m.broadcastPresence(join.Channel)
}

// handlePresenceTrack applies a last-write-wins update to this connection's
// meta. Unchanged values are not re-broadcast.
func (m *Manager) handlePresenceTrack(c *Connection, data json.RawMessage) {
	var track PresenceTrackData
	if err := json.Unmarshal(data, &track); err != nil {
		c.sendError("INVALID_PAYLOAD", "invalid presence track payload")
		return
	}

	joined, changed := m.presence.track(track.Channel, c.SessionID, track.Payload.IsTyping)
	if !joined {
		c.sendError("NOT_JOINED", "join the presence channel before tracking")
		return
	}
	if changed {
		m.broadcastPresence(track.Channel)
	}
}

func (m *Manager) handlePresenceLeave(c *Connection, data json.RawMessage) {
	var leave PresenceJoinData
	if err := json.Unmarshal(data, &leave); err != nil {
		return
	}
	if m.presence.leave(leave.Channel, c.SessionID) {
		m.broadcastPresence(leave.Channel)
	}
}

// broadcastPresence sends the full channel state to every member. Clients
// rebuild their view from each snapshot, so no diffs are needed.
func (m *Manager) broadcastPresence(channel string) {
	state, refs := m.presence.snapshot(channel)
	payload := PresenceSyncData{Channel: channel, State: state}

	m.mu.RLock()
	conns := make([]*Connection, 0, len(refs))
	for _, ref := range refs {
		if c, ok := m.sessions[ref]; ok {
			conns = append(conns, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range conns {
		c.SendEvent(EventPresenceSync, payload)
	}
	metrics.PresenceSyncs.Inc()
}
