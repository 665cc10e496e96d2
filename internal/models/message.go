package models

import "time"

type Message struct {
	ID        int64      `json:"id,string"`
	RoomID    int64      `json:"room_id,string"`
	AuthorID  int64      `json:"author_id,string"`
	Content   string     `json:"content"`
	ReplyToID *int64     `json:"reply_to_id,string,omitempty"`
	Deleted   bool       `json:"deleted"`
	DeletedBy *int64     `json:"deleted_by,string,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type MessageWithAuthor struct {
	Message
	AuthorUsername    string `json:"author_username"`
	AuthorDisplayName string `json:"author_display_name"`
}

// MessageState is the tagged lifecycle of a message: Active, or Deleted by someone.
type MessageState struct {
	Deleted bool
	By      int64
}

func (m Message) State() MessageState {
	if !m.Deleted {
		return MessageState{}
	}
	var by int64
	if m.DeletedBy != nil {
		by = *m.DeletedBy
	}
	return MessageState{Deleted: true, By: by}
}

// Redacted returns a copy that is safe to hand to any reader: once a message
// is deleted its content never leaves the server.
func (m MessageWithAuthor) Redacted() MessageWithAuthor {
	if m.Deleted {
		m.Content = ""
	}
	return m
}

type Room struct {
	ID        int64     `json:"id,string"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
