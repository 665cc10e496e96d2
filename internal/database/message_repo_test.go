package database

import (
	"context"
	"testing"

	"github.com/gracefellowship/fellowship/internal/models"
)

func createTestMessage(t *testing.T, repo MessageRepository, roomID, authorID int64, content string, replyTo *int64) *models.Message {
	t.Helper()
	msg := &models.Message{
		ID:        nextID(),
		RoomID:    roomID,
		AuthorID:  authorID,
		Content:   content,
		ReplyToID: replyTo,
		CreatedAt: now(),
	}
	if err := repo.Create(context.Background(), msg); err != nil {
		t.Fatalf("creating message: %v", err)
	}
	return msg
}

func TestMessageRepo_GetRecent_OldestFirst(t *testing.T) {
	pool := testPool(t)
	repo := NewMessageRepository(pool)
	ctx := context.Background()

	author := createTestUser(t, pool, models.RoleMember)
	room := createTestRoom(t, pool)

	var ids []int64
	for _, text := range []string{"one", "two", "three"} {
		ids = append(ids, createTestMessage(t, repo, room.ID, author.ID, text, nil).ID)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM messages WHERE room_id = $1`, room.ID)
	})

	got, err := repo.GetRecent(ctx, room.ID, nil, 2)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != ids[1] || got[1].ID != ids[2] {
		t.Errorf("order = [%d %d], want the two newest oldest-first [%d %d]", got[0].ID, got[1].ID, ids[1], ids[2])
	}
	if got[0].AuthorUsername != author.Username {
		t.Errorf("AuthorUsername = %q", got[0].AuthorUsername)
	}

	older, err := repo.GetRecent(ctx, room.ID, &ids[1], 10)
	if err != nil {
		t.Fatalf("GetRecent before: %v", err)
	}
	if len(older) != 1 || older[0].ID != ids[0] {
		t.Errorf("before page = %+v", older)
	}
}

func TestMessageRepo_SoftDelete(t *testing.T) {
	pool := testPool(t)
	repo := NewMessageRepository(pool)
	ctx := context.Background()

	author := createTestUser(t, pool, models.RoleMember)
	mod := createTestUser(t, pool, models.RoleLeader)
	room := createTestRoom(t, pool)
	parent := createTestMessage(t, repo, room.ID, author.ID, "parent", nil)
	reply := createTestMessage(t, repo, room.ID, mod.ID, "reply", &parent.ID)
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM messages WHERE id = ANY($1)`, []int64{reply.ID, parent.ID})
	})

	ok, err := repo.SoftDelete(ctx, parent.ID, mod.ID, now())
	if err != nil || !ok {
		t.Fatalf("SoftDelete = %v, %v", ok, err)
	}

	again, err := repo.SoftDelete(ctx, parent.ID, mod.ID, now())
	if err != nil {
		t.Fatalf("second SoftDelete: %v", err)
	}
	if again {
		t.Error("deleting a deleted message should report no change")
	}

	got, _ := repo.GetByID(ctx, parent.ID)
	if !got.Deleted || got.DeletedBy == nil || *got.DeletedBy != mod.ID || got.DeletedAt == nil {
		t.Errorf("soft delete not recorded: %+v", got.Message)
	}

	child, _ := repo.GetByID(ctx, reply.ID)
	if child.ReplyToID == nil || *child.ReplyToID != parent.ID {
		t.Error("reply should keep pointing at its deleted parent")
	}
}
