package models

import "time"

// PresenceMeta is what one connection contributes to a presence channel.
// A user with two open tabs has two metas under the same key.
type PresenceMeta struct {
	Ref         string    `json:"ref"`
	UserID      int64     `json:"user_id,string"`
	DisplayName string    `json:"display_name"`
	IsTyping    bool      `json:"is_typing"`
	OnlineAt    time.Time `json:"online_at"`
}

// PresenceState maps a user key (decimal user id) to that user's metas.
type PresenceState map[string][]PresenceMeta

// Typing reports whether any of the user's connections is flagged typing.
func (s PresenceState) Typing(key string) bool {
	for _, m := range s[key] {
		if m.IsTyping {
			return true
		}
	}
	return false
}
