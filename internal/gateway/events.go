package gateway

import (
	"encoding/json"

	"github.com/gracefellowship/fellowship/internal/models"
)

// Op codes for gateway payloads.
const (
	OpDispatch      = 0
	OpHeartbeat     = 1
	OpIdentify      = 2
	OpSubscribe     = 3
	OpPresenceJoin  = 4
	OpUnsubscribe   = 5
	OpReconnect     = 7
	OpPresenceTrack = 8
	OpPresenceLeave = 9
	OpHello         = 10
	OpHeartbeatAck  = 11
)

// Event names for DISPATCH payloads.
const (
	EventReady        = "READY"
	EventSubscribed   = "SUBSCRIBED"
	EventChange       = "CHANGE"
	EventPresenceSync = "PRESENCE_SYNC"
	EventError        = "ERROR"
)

// GatewayPayload is the envelope for all gateway messages.
type GatewayPayload struct {
	Op       int             `json:"op"`
	Data     json.RawMessage `json:"d,omitempty"`
	Sequence *int64          `json:"s,omitempty"`
	Event    *string         `json:"t,omitempty"`
}

// IdentifyData is sent by the client in an Op 2 IDENTIFY.
type IdentifyData struct {
	Token string `json:"token"`
}

// HelloData is sent by the server after WebSocket connect.
type HelloData struct {
	HeartbeatInterval int `json:"heartbeat_interval"`
}

// ReadyData is sent by the server after successful IDENTIFY.
type ReadyData struct {
	SessionID   string      `json:"session_id"`
	UserID      int64       `json:"user_id,string"`
	DisplayName string      `json:"display_name"`
	Role        models.Role `json:"role"`
}

// SubscribeData is sent with Op 3 SUBSCRIBE and Op 5 UNSUBSCRIBE, and echoed
// back in a SUBSCRIBED dispatch.
type SubscribeData struct {
	Topic string `json:"topic"`
}

// PresenceJoinData is sent with Op 4 PRESENCE_JOIN and Op 9 PRESENCE_LEAVE.
type PresenceJoinData struct {
	Channel string `json:"channel"`
}

// PresenceTrackData is sent with Op 8 PRESENCE_TRACK.
type PresenceTrackData struct {
	Channel string       `json:"channel"`
	Payload TrackPayload `json:"payload"`
}

type TrackPayload struct {
	IsTyping bool `json:"is_typing"`
}

// PresenceSyncData carries the complete state of one presence channel.
type PresenceSyncData struct {
	Channel string               `json:"channel"`
	State   models.PresenceState `json:"state"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ChangeType is the kind of row change carried by a CHANGE dispatch.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
)

// Change is a row-level change event. Old is nil for inserts.
type Change struct {
	Topic string     `json:"topic"`
	Table string     `json:"table"`
	Type  ChangeType `json:"type"`
	Old   any        `json:"old,omitempty"`
	New   any        `json:"new"`
}

// RawChange is Change as received by a client, before the row is decoded.
type RawChange struct {
	Topic string          `json:"topic"`
	Table string          `json:"table"`
	Type  ChangeType      `json:"type"`
	Old   json.RawMessage `json:"old,omitempty"`
	New   json.RawMessage `json:"new"`
}

// Event is a dispatch event ready to broadcast.
type Event struct {
	Name string
	Data any
}

// mustMarshal is for payload types that always encode.
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("gateway: " + err.Error())
	}
	return data
}
