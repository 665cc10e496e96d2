package live

import (
	"cmp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gracefellowship/fellowship/internal/gateway"
	"github.com/gracefellowship/fellowship/internal/models"
	"github.com/gracefellowship/fellowship/internal/permissions"
)

const (
	DeletedPlaceholder     = "message deleted"
	UnavailablePlaceholder = "original message unavailable"

	replyPreviewRunes = 60
)

// RenderedLine is one chat line ready for display. Text never holds the
// content of a deleted message.
type RenderedLine struct {
	ID        int64
	Author    string
	Text      string
	Deleted   bool
	IsReply   bool
	ReplyTo   string
	CreatedAt time.Time
}

// Viewer is the signed-in user as far as UI decisions go.
type Viewer struct {
	ID   int64
	Role models.Role
}

// MessageFeed is the local, oldest-first view of one room's messages.
type MessageFeed struct {
	table *Table[models.MessageWithAuthor]
}

func NewMessageFeed() *MessageFeed {
	t := NewTable(
		func(m models.MessageWithAuthor) int64 { return m.ID },
		func(a, b models.MessageWithAuthor) int { return cmp.Compare(a.ID, b.ID) },
	).WithMerge(mergeMessage)
	return &MessageFeed{table: t}
}

// mergeMessage keeps deletion sticky: a late copy of a message from before
// its deletion must not bring the text back.
func mergeMessage(old, incoming models.MessageWithAuthor) models.MessageWithAuthor {
	if old.Deleted && !incoming.Deleted {
		return old
	}
	return incoming
}

func scrub(m models.MessageWithAuthor) models.MessageWithAuthor {
	if m.Deleted {
		m.Content = ""
	}
	return m
}

// Hydrate merges the initial fetch.
func (f *MessageFeed) Hydrate(msgs []models.MessageWithAuthor) {
	rows := make([]models.MessageWithAuthor, len(msgs))
	for i, m := range msgs {
		rows[i] = scrub(m)
	}
	f.table.Hydrate(rows)
}

// Apply merges one CHANGE event from the room's messages topic.
func (f *MessageFeed) Apply(change gateway.RawChange) error {
	if change.Table != gateway.TableMessages {
		return nil
	}
	row, _, _, err := f.table.Apply(change)
	if err != nil {
		return err
	}
	if row.Deleted && row.Content != "" {
		f.table.Upsert(scrub(row))
	}
	return nil
}

// Message returns a stored message by id.
func (f *MessageFeed) Message(id int64) (models.MessageWithAuthor, bool) {
	return f.table.Get(id)
}

func (f *MessageFeed) Len() int { return f.table.Len() }

// Render produces the display lines, oldest first.
func (f *MessageFeed) Render() []RenderedLine {
	msgs := f.table.Rows()
	lines := make([]RenderedLine, 0, len(msgs))
	for _, m := range msgs {
		line := RenderedLine{
			ID:        m.ID,
			Author:    authorName(m),
			Deleted:   m.Deleted,
			CreatedAt: m.CreatedAt,
		}
		if m.Deleted {
			line.Text = DeletedPlaceholder
		} else {
			line.Text = m.Content
		}
		if m.ReplyToID != nil {
			line.IsReply = true
			line.ReplyTo = f.replyPreview(*m.ReplyToID)
		}
		lines = append(lines, line)
	}
	return lines
}

func (f *MessageFeed) replyPreview(parentID int64) string {
	parent, ok := f.table.Get(parentID)
	if !ok {
		return UnavailablePlaceholder
	}
	if parent.Deleted {
		return DeletedPlaceholder
	}
	return authorName(parent) + ": " + truncate(parent.Content, replyPreviewRunes)
}

func authorName(m models.MessageWithAuthor) string {
	if m.AuthorDisplayName != "" {
		return m.AuthorDisplayName
	}
	return m.AuthorUsername
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

// CanDelete reports whether the delete action should be offered. The server
// makes the real decision.
func CanDelete(v Viewer, m models.MessageWithAuthor) bool {
	if m.Deleted {
		return false
	}
	return permissions.CanDeleteMessage(v.ID, v.Role, m.AuthorID)
}
