package service

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gracefellowship/fellowship/internal/database"
	"github.com/gracefellowship/fellowship/internal/gateway"
	"github.com/gracefellowship/fellowship/internal/models"
	"github.com/gracefellowship/fellowship/internal/permissions"
	"github.com/gracefellowship/fellowship/internal/snowflake"
)

const (
	maxMessageRunes  = 2000
	maxRoomNameRunes = 64
	DefaultPageSize  = 100
	MaxPageSize      = 100
)

// MessageService handles chat rooms and their messages.
type MessageService struct {
	rooms     database.RoomRepository
	messages  database.MessageRepository
	ids       *snowflake.Node
	publisher gateway.Publisher
	perms     *PermissionChecker
	blocked   map[string]struct{}
}

// NewMessageService creates a MessageService. blockedWords are matched
// case-insensitively against whole words of outgoing messages.
func NewMessageService(
	rooms database.RoomRepository,
	messages database.MessageRepository,
	ids *snowflake.Node,
	publisher gateway.Publisher,
	perms *PermissionChecker,
	blockedWords []string,
) *MessageService {
	blocked := make(map[string]struct{}, len(blockedWords))
	for _, w := range blockedWords {
		blocked[strings.ToLower(w)] = struct{}{}
	}
	return &MessageService{
		rooms:     rooms,
		messages:  messages,
		ids:       ids,
		publisher: publisher,
		perms:     perms,
		blocked:   blocked,
	}
}

// ListRooms returns every chat room.
func (s *MessageService) ListRooms(ctx context.Context) ([]models.Room, error) {
	rooms, err := s.rooms.List(ctx)
	if err != nil {
		return nil, internalError()
	}
	if rooms == nil {
		rooms = []models.Room{}
	}
	return rooms, nil
}

// CreateRoom adds a chat room.
func (s *MessageService) CreateRoom(ctx context.Context, userID int64, name string) (*models.Room, error) {
	if _, err := s.perms.Require(ctx, userID, permissions.PermManageRooms); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxRoomNameRunes {
		return nil, BadRequest("INVALID_NAME", "room name must be 1-64 characters")
	}

	room := &models.Room{ID: s.ids.Next(), Name: name, CreatedAt: time.Now()}
	if err := s.rooms.Create(ctx, room); err != nil {
		slog.Error("creating room", "name", name, "error", err)
		return nil, internalError()
	}
	return room, nil
}

func (s *MessageService) requireRoom(ctx context.Context, roomID int64) error {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return internalError()
	}
	if room == nil {
		return NotFound("NOT_FOUND", "room not found")
	}
	return nil
}

// SendMessage posts a message, optionally as a reply to another message in
// the same room. Replies to deleted messages are allowed.
func (s *MessageService) SendMessage(ctx context.Context, roomID, userID int64, content string, replyTo *int64) (*models.MessageWithAuthor, error) {
	if _, err := s.perms.Require(ctx, userID, permissions.PermSendMessages); err != nil {
		return nil, err
	}
	if err := s.requireRoom(ctx, roomID); err != nil {
		return nil, err
	}

	content = strings.TrimSpace(content)
	if content == "" || utf8.RuneCountInString(content) > maxMessageRunes {
		return nil, BadRequest("INVALID_CONTENT", "message content must be 1-2000 characters")
	}
	if s.containsBlockedWord(content) {
		return nil, BadRequest("BLOCKED_CONTENT", "message contains language that is not allowed")
	}

	if replyTo != nil {
		parent, err := s.messages.GetByID(ctx, *replyTo)
		if err != nil {
			return nil, internalError()
		}
		if parent == nil || parent.RoomID != roomID {
			return nil, BadRequest("INVALID_REPLY", "reply target must be a message in this room")
		}
	}

	msg := &models.Message{
		ID:        s.ids.Next(),
		RoomID:    roomID,
		AuthorID:  userID,
		Content:   content,
		ReplyToID: replyTo,
		CreatedAt: time.Now(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		slog.Error("creating message", "roomID", roomID, "error", err)
		return nil, internalError()
	}

	full, err := s.messages.GetByID(ctx, msg.ID)
	if err != nil || full == nil {
		return nil, internalError()
	}

	s.publisher.Publish(gateway.Change{
		Table: gateway.TableMessages,
		Type:  gateway.ChangeInsert,
		New:   full.Redacted(),
	}, gateway.MessagesTopic(roomID))

	return full, nil
}

// ListMessages returns up to limit messages before the cursor, oldest-first.
// Deleted messages are included with their content removed.
func (s *MessageService) ListMessages(ctx context.Context, roomID int64, before *int64, limit int) ([]models.MessageWithAuthor, error) {
	if err := s.requireRoom(ctx, roomID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxPageSize {
		limit = DefaultPageSize
	}

	messages, err := s.messages.GetRecent(ctx, roomID, before, limit)
	if err != nil {
		return nil, internalError()
	}
	out := make([]models.MessageWithAuthor, len(messages))
	for i, m := range messages {
		out[i] = m.Redacted()
	}
	return out, nil
}

// GetMessage returns a single message by ID.
func (s *MessageService) GetMessage(ctx context.Context, roomID, msgID int64) (*models.MessageWithAuthor, error) {
	msg, err := s.messages.GetByID(ctx, msgID)
	if err != nil {
		return nil, internalError()
	}
	if msg == nil || msg.RoomID != roomID {
		return nil, NotFound("NOT_FOUND", "message not found")
	}
	redacted := msg.Redacted()
	return &redacted, nil
}

// DeleteMessage soft-deletes a message. Authors may delete their own
// messages; moderators may delete anyone's. Deleting an already deleted
// message succeeds without another change event.
func (s *MessageService) DeleteMessage(ctx context.Context, roomID, msgID, userID int64) (*models.MessageWithAuthor, error) {
	actor, err := s.perms.Actor(ctx, userID)
	if err != nil {
		return nil, err
	}

	msg, err := s.messages.GetByID(ctx, msgID)
	if err != nil {
		return nil, internalError()
	}
	if msg == nil || msg.RoomID != roomID {
		return nil, NotFound("NOT_FOUND", "message not found")
	}
	if !permissions.CanDeleteMessage(actor.ID, actor.Role, msg.AuthorID) {
		return nil, Forbidden("FORBIDDEN", "you can only delete your own messages")
	}
	if msg.Deleted {
		redacted := msg.Redacted()
		return &redacted, nil
	}

	changed, err := s.messages.SoftDelete(ctx, msgID, actor.ID, time.Now())
	if err != nil {
		slog.Error("soft deleting message", "messageID", msgID, "error", err)
		return nil, internalError()
	}

	updated, err := s.messages.GetByID(ctx, msgID)
	if err != nil || updated == nil {
		return nil, internalError()
	}
	redacted := updated.Redacted()

	if changed {
		old := *msg
		old.Content = ""
		s.publisher.Publish(gateway.Change{
			Table: gateway.TableMessages,
			Type:  gateway.ChangeUpdate,
			Old:   old,
			New:   redacted,
		}, gateway.MessagesTopic(roomID))
	}
	return &redacted, nil
}

func (s *MessageService) containsBlockedWord(content string) bool {
	if len(s.blocked) == 0 {
		return false
	}
	words := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		if _, ok := s.blocked[w]; ok {
			return true
		}
	}
	return false
}
