package database

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gracefellowship/fellowship/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// testPool returns a pgxpool.Pool connected to the test database.
// It skips the test if DATABASE_URL is not set.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	pool, err := NewPostgresPool(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connecting to test database: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return pool
}

// testIDCounter provides unique IDs across all tests in the package.
// Starts well above zero to avoid conflicts with any existing data.
var testIDCounter int64 = 100000

func nextID() int64 {
	return atomic.AddInt64(&testIDCounter, 1)
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// cleanup deletes a row by id when the test ends.
func cleanup(t *testing.T, pool *pgxpool.Pool, table string, id int64) {
	t.Helper()
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), fmt.Sprintf("DELETE FROM %s WHERE id = $1", table), id)
	})
}

func createTestUser(t *testing.T, pool *pgxpool.Pool, role models.Role) *models.User {
	t.Helper()
	id := nextID()
	u := &models.User{
		ID:           id,
		Username:     fmt.Sprintf("user_%d", id),
		DisplayName:  fmt.Sprintf("User %d", id),
		Role:         role,
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=4$abc$def",
		CreatedAt:    now(),
	}
	if err := NewUserRepository(pool).Create(context.Background(), u); err != nil {
		t.Fatalf("creating test user: %v", err)
	}
	cleanup(t, pool, "users", u.ID)
	return u
}

func createTestRoom(t *testing.T, pool *pgxpool.Pool) *models.Room {
	t.Helper()
	id := nextID()
	room := &models.Room{ID: id, Name: fmt.Sprintf("room-%d", id), CreatedAt: now()}
	if err := NewRoomRepository(pool).Create(context.Background(), room); err != nil {
		t.Fatalf("creating test room: %v", err)
	}
	cleanup(t, pool, "rooms", room.ID)
	return room
}

func createTestCampaign(t *testing.T, pool *pgxpool.Pool, target int64) *models.Campaign {
	t.Helper()
	c := &models.Campaign{
		ID:           nextID(),
		Title:        "Roof repair",
		TargetAmount: target,
		Active:       true,
		CreatedAt:    now(),
	}
	if err := NewCampaignRepository(pool).Create(context.Background(), c); err != nil {
		t.Fatalf("creating test campaign: %v", err)
	}
	cleanup(t, pool, "campaigns", c.ID)
	return c
}
