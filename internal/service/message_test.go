package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gracefellowship/fellowship/internal/gateway"
	"github.com/gracefellowship/fellowship/internal/models"
)

const (
	roomID   int64 = 10
	memberID int64 = 1
	otherID  int64 = 2
	leaderID int64 = 3
)

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected *ServiceError with code %s, got %v", code, err)
	}
	if se.Code != code {
		t.Fatalf("code = %s, want %s", se.Code, code)
	}
}

type messageFixture struct {
	svc       *MessageService
	messages  *memMessageRepo
	publisher *recordingPublisher
}

func newMessageFixture(t *testing.T, blocked ...string) *messageFixture {
	t.Helper()
	users := usersWithRoles(map[int64]models.Role{
		memberID: models.RoleMember,
		otherID:  models.RoleMember,
		leaderID: models.RoleLeader,
	})
	rooms := &mockRoomRepo{rooms: map[int64]*models.Room{roomID: {ID: roomID, Name: "general"}}}
	messages := newMemMessageRepo()
	pub := &recordingPublisher{}
	svc := NewMessageService(rooms, messages, testIDs(t), pub, NewPermissionChecker(users), blocked)
	return &messageFixture{svc: svc, messages: messages, publisher: pub}
}

func TestSendMessage_PublishesInsert(t *testing.T) {
	f := newMessageFixture(t)

	msg, err := f.svc.SendMessage(context.Background(), roomID, memberID, "  hello church  ", nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.Content != "hello church" {
		t.Errorf("content should be trimmed, got %q", msg.Content)
	}

	events := f.publisher.all()
	if len(events) != 1 {
		t.Fatalf("published %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Change.Type != gateway.ChangeInsert || ev.Topics[0] != gateway.MessagesTopic(roomID) {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestSendMessage_Validation(t *testing.T) {
	f := newMessageFixture(t, "darn")
	ctx := context.Background()

	_, err := f.svc.SendMessage(ctx, roomID, memberID, "   ", nil)
	assertCode(t, err, "INVALID_CONTENT")

	_, err = f.svc.SendMessage(ctx, roomID, memberID, strings.Repeat("é", 2001), nil)
	assertCode(t, err, "INVALID_CONTENT")

	if _, err := f.svc.SendMessage(ctx, roomID, memberID, strings.Repeat("é", 2000), nil); err != nil {
		t.Errorf("2000 runes should be accepted: %v", err)
	}

	_, err = f.svc.SendMessage(ctx, roomID, memberID, "Oh DARN it", nil)
	assertCode(t, err, "BLOCKED_CONTENT")

	if _, err := f.svc.SendMessage(ctx, roomID, memberID, "darning socks", nil); err != nil {
		t.Errorf("blocked words match whole words only: %v", err)
	}

	_, err = f.svc.SendMessage(ctx, 999, memberID, "hi", nil)
	assertCode(t, err, "NOT_FOUND")
}

func TestSendMessage_ReplyMustBeInRoom(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	_, err := f.svc.SendMessage(ctx, roomID, memberID, "reply", int64Ptr(12345))
	assertCode(t, err, "INVALID_REPLY")

	_ = f.messages.Create(ctx, &models.Message{ID: 500, RoomID: 77, AuthorID: otherID, Content: "elsewhere"})
	_, err = f.svc.SendMessage(ctx, roomID, memberID, "reply", int64Ptr(500))
	assertCode(t, err, "INVALID_REPLY")
}

func TestSendMessage_ReplyToDeletedParentAllowed(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	parent, _ := f.svc.SendMessage(ctx, roomID, otherID, "parent", nil)
	if _, err := f.svc.DeleteMessage(ctx, roomID, parent.ID, otherID); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}

	reply, err := f.svc.SendMessage(ctx, roomID, memberID, "answer", &parent.ID)
	if err != nil {
		t.Fatalf("reply to deleted parent: %v", err)
	}
	if reply.ReplyToID == nil || *reply.ReplyToID != parent.ID {
		t.Error("reply should reference its parent")
	}
}

func TestDeleteMessage_Authorization(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	msg, _ := f.svc.SendMessage(ctx, roomID, memberID, "mine", nil)

	_, err := f.svc.DeleteMessage(ctx, roomID, msg.ID, otherID)
	assertCode(t, err, "FORBIDDEN")

	deleted, err := f.svc.DeleteMessage(ctx, roomID, msg.ID, leaderID)
	if err != nil {
		t.Fatalf("moderator delete: %v", err)
	}
	if !deleted.Deleted || deleted.Content != "" {
		t.Errorf("deleted message must come back redacted: %+v", deleted.Message)
	}
	if deleted.DeletedBy == nil || *deleted.DeletedBy != leaderID {
		t.Error("deleted_by should record the moderator")
	}
}

func TestDeleteMessage_IdempotentAndRedactedEvent(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	msg, _ := f.svc.SendMessage(ctx, roomID, memberID, "secret words", nil)
	if _, err := f.svc.DeleteMessage(ctx, roomID, msg.ID, memberID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if _, err := f.svc.DeleteMessage(ctx, roomID, msg.ID, memberID); err != nil {
		t.Fatalf("second delete should succeed: %v", err)
	}

	events := f.publisher.all()
	if len(events) != 2 {
		t.Fatalf("events = %d, want insert + one update", len(events))
	}
	update := events[1].Change
	if update.Type != gateway.ChangeUpdate {
		t.Fatalf("type = %s", update.Type)
	}
	old := update.Old.(models.MessageWithAuthor)
	updated := update.New.(models.MessageWithAuthor)
	if old.Content != "" || updated.Content != "" {
		t.Error("deleted content leaked into the change event")
	}
	if !updated.Deleted {
		t.Error("new row should be marked deleted")
	}
}

func TestDeleteMessage_WrongRoom(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()
	msg, _ := f.svc.SendMessage(ctx, roomID, memberID, "x", nil)

	_, err := f.svc.DeleteMessage(ctx, 999, msg.ID, memberID)
	assertCode(t, err, "NOT_FOUND")
}

func TestListMessages_OldestFirstRedacted(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	var ids []int64
	for _, text := range []string{"a", "b", "c"} {
		m, _ := f.svc.SendMessage(ctx, roomID, memberID, text, nil)
		ids = append(ids, m.ID)
	}
	_, _ = f.svc.DeleteMessage(ctx, roomID, ids[1], memberID)

	got, err := f.svc.ListMessages(ctx, roomID, nil, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(got) != 3 || got[0].ID != ids[0] || got[2].ID != ids[2] {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[1].Content != "" || !got[1].Deleted {
		t.Error("deleted message content must be blank in listings")
	}

	limited, _ := f.svc.ListMessages(ctx, roomID, nil, 2)
	if len(limited) != 2 || limited[0].ID != ids[1] {
		t.Errorf("limit should keep the newest: %+v", limited)
	}
}

func TestCreateRoom_RequiresPermission(t *testing.T) {
	f := newMessageFixture(t)
	_, err := f.svc.CreateRoom(context.Background(), leaderID, "prayer")
	assertCode(t, err, "MISSING_PERMISSIONS")
}
