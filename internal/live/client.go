// Package live is the client side of the realtime gateway: a connection
// with topic subscriptions and presence channels, plus the local stores
// and view helpers the apps render from.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gracefellowship/fellowship/internal/gateway"
	"github.com/gracefellowship/fellowship/internal/models"
)

const writeWait = 10 * time.Second

var (
	ErrClosed    = errors.New("live: client closed")
	ErrReconnect = errors.New("live: server asked to reconnect")
)

// ServerError is an ERROR dispatch from the gateway.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string { return e.Code + ": " + e.Message }

// Client is one authenticated gateway connection. All callbacks run on the
// client's read goroutine, in the order the server sent the frames.
type Client struct {
	conn    *websocket.Conn
	ready   gateway.ReadyData
	writeMu sync.Mutex

	mu       sync.Mutex
	subs     map[string][]*Subscription
	pending  map[string]*pendingSub
	presence map[string]*PresenceChannel
	closed   bool
	err      error

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the gateway at url (ws:// or wss://) and identifies with
// an access token. It returns once the server has sent READY.
func Dial(ctx context.Context, url, token string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing gateway: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}

	c := &Client{
		conn:     conn,
		subs:     make(map[string][]*Subscription),
		pending:  make(map[string]*pendingSub),
		presence: make(map[string]*PresenceChannel),
		done:     make(chan struct{}),
	}

	interval, err := c.handshake(token)
	if err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetReadDeadline(time.Time{})

	go c.readLoop()
	go c.heartbeat(interval)
	return c, nil
}

func (c *Client) handshake(token string) (time.Duration, error) {
	var hello gateway.GatewayPayload
	if err := c.conn.ReadJSON(&hello); err != nil {
		return 0, fmt.Errorf("reading hello: %w", err)
	}
	if hello.Op != gateway.OpHello {
		return 0, fmt.Errorf("expected hello, got op %d", hello.Op)
	}
	var hd gateway.HelloData
	if err := json.Unmarshal(hello.Data, &hd); err != nil || hd.HeartbeatInterval <= 0 {
		return 0, fmt.Errorf("invalid hello payload")
	}

	if err := c.send(gateway.OpIdentify, gateway.IdentifyData{Token: token}); err != nil {
		return 0, err
	}

	for {
		var p gateway.GatewayPayload
		if err := c.conn.ReadJSON(&p); err != nil {
			// The server closes the socket on a bad token.
			return 0, fmt.Errorf("identify rejected: %w", err)
		}
		if p.Op != gateway.OpDispatch || p.Event == nil {
			continue
		}
		switch *p.Event {
		case gateway.EventReady:
			if err := json.Unmarshal(p.Data, &c.ready); err != nil {
				return 0, fmt.Errorf("decoding ready: %w", err)
			}
			return time.Duration(hd.HeartbeatInterval) * time.Millisecond, nil
		case gateway.EventError:
			var e gateway.ErrorData
			_ = json.Unmarshal(p.Data, &e)
			return 0, &ServerError{Code: e.Code, Message: e.Message}
		}
	}
}

// Ready returns the session details from the READY dispatch.
func (c *Client) Ready() gateway.ReadyData { return c.ready }

// Done is closed when the connection ends, by Close or by failure.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err reports why the connection ended. It is nil after Close and before
// the connection ends.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close ends the connection. Frames still in flight are ignored.
func (c *Client) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Client) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.err = cause
		c.mu.Unlock()

		c.failPending(ErrClosed)
		if cause != nil {
			slog.Warn("gateway connection lost", "error", cause)
		} else {
			c.writeMu.Lock()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			c.writeMu.Unlock()
		}
		c.conn.Close()
		close(c.done)
	})
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) send(op int, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(gateway.GatewayPayload{Op: op, Data: raw}); err != nil {
		return fmt.Errorf("writing op %d: %w", op, err)
	}
	return nil
}

func (c *Client) heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.send(gateway.OpHeartbeat, nil); err != nil {
				c.shutdown(err)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) readLoop() {
	for {
		var p gateway.GatewayPayload
		if err := c.conn.ReadJSON(&p); err != nil {
			if c.isClosed() {
				return
			}
			c.shutdown(err)
			return
		}
		if c.isClosed() {
			return
		}

		switch p.Op {
		case gateway.OpReconnect:
			c.shutdown(ErrReconnect)
			return
		case gateway.OpDispatch:
			if p.Event != nil {
				c.dispatch(*p.Event, p.Data)
			}
		}
	}
}

func (c *Client) dispatch(event string, data json.RawMessage) {
	switch event {
	case gateway.EventChange:
		var change gateway.RawChange
		if err := json.Unmarshal(data, &change); err != nil {
			slog.Warn("undecodable change", "error", err)
			return
		}
		c.mu.Lock()
		subs := append([]*Subscription(nil), c.subs[change.Topic]...)
		c.mu.Unlock()
		for _, s := range subs {
			s.deliver(change)
		}

	case gateway.EventSubscribed:
		var sd gateway.SubscribeData
		if err := json.Unmarshal(data, &sd); err != nil {
			return
		}
		c.resolvePending(sd.Topic)

	case gateway.EventPresenceSync:
		var ps gateway.PresenceSyncData
		if err := json.Unmarshal(data, &ps); err != nil {
			slog.Warn("undecodable presence sync", "error", err)
			return
		}
		c.mu.Lock()
		p := c.presence[ps.Channel]
		c.mu.Unlock()
		if p != nil {
			p.sync(ps.State)
		}

	case gateway.EventError:
		var e gateway.ErrorData
		_ = json.Unmarshal(data, &e)
		serr := &ServerError{Code: e.Code, Message: e.Message}
		switch e.Code {
		case "INVALID_TOPIC", "FORBIDDEN":
			// Subscription errors carry no topic; they answer the
			// outstanding SUBSCRIBE requests.
			c.failPending(serr)
		default:
			slog.Warn("gateway error", "code", e.Code, "message", e.Message)
		}
	}
}

// pendingSub is a SUBSCRIBE awaiting the server's answer. Every local
// subscriber of the topic waits on the same result.
type pendingSub struct {
	done chan struct{}
	err  error
}

func (c *Client) resolvePending(topic string) {
	c.mu.Lock()
	p, ok := c.pending[topic]
	delete(c.pending, topic)
	c.mu.Unlock()
	if ok {
		close(p.done)
	}
}

// failTopic answers a pending SUBSCRIBE with err and drops every local
// subscriber of the topic, since none of them has a server subscription.
func (c *Client) failTopic(topic string, err error) {
	c.mu.Lock()
	p, ok := c.pending[topic]
	delete(c.pending, topic)
	subs := c.subs[topic]
	delete(c.subs, topic)
	c.mu.Unlock()

	for _, s := range subs {
		s.closed.Store(true)
	}
	if ok {
		p.err = err
		close(p.done)
	}
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	topics := make([]string, 0, len(c.pending))
	for topic := range c.pending {
		topics = append(topics, topic)
	}
	c.mu.Unlock()
	for _, topic := range topics {
		c.failTopic(topic, err)
	}
}

// Subscription receives the CHANGE events of one topic until Close.
type Subscription struct {
	client  *Client
	topic   string
	handler func(gateway.RawChange)
	closed  atomic.Bool
}

// Topic returns the canonical topic name.
func (s *Subscription) Topic() string { return s.topic }

func (s *Subscription) deliver(change gateway.RawChange) {
	if s.closed.Load() {
		return
	}
	s.handler(change)
}

// Close stops delivery. The topic is unsubscribed on the server when its
// last local subscription closes.
func (s *Subscription) Close() {
	if s.closed.Swap(true) {
		return
	}
	c := s.client
	c.mu.Lock()
	subs := c.subs[s.topic]
	for i, other := range subs {
		if other == s {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	last := len(subs) == 0
	if last {
		delete(c.subs, s.topic)
		delete(c.pending, s.topic)
	} else {
		c.subs[s.topic] = subs
	}
	closed := c.closed
	c.mu.Unlock()

	if last && !closed {
		if err := c.send(gateway.OpUnsubscribe, gateway.SubscribeData{Topic: s.topic}); err != nil {
			slog.Debug("unsubscribe failed", "topic", s.topic, "error", err)
		}
	}
}

// Subscribe registers handler for topic and waits for the server to confirm
// the subscription. Concurrent calls for one topic share a single request
// and its outcome. Handlers run on the read goroutine and must not block.
func (c *Client) Subscribe(ctx context.Context, topic string, handler func(gateway.RawChange)) (*Subscription, error) {
	t, err := gateway.ParseTopic(topic)
	if err != nil {
		return nil, err
	}
	name := t.String()
	sub := &Subscription{client: c, topic: name, handler: handler}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	p, inFlight := c.pending[name]
	first := !inFlight && len(c.subs[name]) == 0
	c.subs[name] = append(c.subs[name], sub)
	if first {
		p = &pendingSub{done: make(chan struct{})}
		c.pending[name] = p
	}
	c.mu.Unlock()

	if p == nil {
		// Already confirmed by the server.
		return sub, nil
	}
	if first {
		if err := c.send(gateway.OpSubscribe, gateway.SubscribeData{Topic: name}); err != nil {
			c.failTopic(name, err)
			return nil, err
		}
	}

	select {
	case <-p.done:
		if p.err != nil {
			return nil, p.err
		}
		return sub, nil
	case <-ctx.Done():
		sub.Close()
		return nil, ctx.Err()
	}
}

// PresenceChannel is this connection's membership in one presence channel.
type PresenceChannel struct {
	client *Client
	name   string

	mu     sync.Mutex
	state  models.PresenceState
	onSync func(models.PresenceState)
	left   bool
}

// JoinPresence joins a room presence channel ("room:<id>").
func (c *Client) JoinPresence(channel string) (*PresenceChannel, error) {
	if _, err := gateway.ParseRoomChannel(channel); err != nil {
		return nil, err
	}
	p := &PresenceChannel{client: c, name: channel, state: models.PresenceState{}}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.presence[channel] = p
	c.mu.Unlock()

	if err := c.send(gateway.OpPresenceJoin, gateway.PresenceJoinData{Channel: channel}); err != nil {
		c.mu.Lock()
		delete(c.presence, channel)
		c.mu.Unlock()
		return nil, err
	}
	return p, nil
}

// OnSync sets the callback run with every full state snapshot.
func (p *PresenceChannel) OnSync(fn func(models.PresenceState)) {
	p.mu.Lock()
	p.onSync = fn
	p.mu.Unlock()
}

// State returns the last snapshot received.
func (p *PresenceChannel) State() models.PresenceState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *PresenceChannel) sync(state models.PresenceState) {
	p.mu.Lock()
	if p.left {
		p.mu.Unlock()
		return
	}
	p.state = state
	fn := p.onSync
	p.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

// Track publishes this connection's typing flag.
func (p *PresenceChannel) Track(isTyping bool) error {
	p.mu.Lock()
	left := p.left
	p.mu.Unlock()
	if left {
		return ErrClosed
	}
	return p.client.send(gateway.OpPresenceTrack, gateway.PresenceTrackData{
		Channel: p.name,
		Payload: gateway.TrackPayload{IsTyping: isTyping},
	})
}

// Leave removes this connection from the channel. Safe to call twice.
func (p *PresenceChannel) Leave() error {
	p.mu.Lock()
	if p.left {
		p.mu.Unlock()
		return nil
	}
	p.left = true
	p.mu.Unlock()

	c := p.client
	c.mu.Lock()
	if c.presence[p.name] == p {
		delete(c.presence, p.name)
	}
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil
	}
	return c.send(gateway.OpPresenceLeave, gateway.PresenceJoinData{Channel: p.name})
}
