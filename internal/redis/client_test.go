package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("creating client: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestRefreshToken_ConsumeOnce(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	if err := c.StoreRefreshToken(ctx, "tok", 42, time.Hour); err != nil {
		t.Fatalf("StoreRefreshToken: %v", err)
	}

	id, err := c.ConsumeRefreshToken(ctx, "tok")
	if err != nil {
		t.Fatalf("ConsumeRefreshToken: %v", err)
	}
	if id != 42 {
		t.Errorf("user id = %d, want 42", id)
	}
	if _, err := c.ConsumeRefreshToken(ctx, "tok"); err == nil {
		t.Error("second consume should fail")
	}
}

func TestRefreshToken_Expires(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	_ = c.StoreRefreshToken(ctx, "tok", 1, time.Minute)
	mr.FastForward(2 * time.Minute)

	if _, err := c.ConsumeRefreshToken(ctx, "tok"); err == nil {
		t.Error("expired token should not be found")
	}
}

func TestRevokeRefreshToken_OwnerOnly(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	_ = c.StoreRefreshToken(ctx, "tok", 42, time.Hour)

	revoked, err := c.RevokeRefreshToken(ctx, "tok", 7)
	if err != nil {
		t.Fatalf("RevokeRefreshToken: %v", err)
	}
	if revoked {
		t.Fatal("another user must not revoke the token")
	}

	if revoked, _ = c.RevokeRefreshToken(ctx, "tok", 42); !revoked {
		t.Fatal("owner should revoke the token")
	}
	if _, err := c.ConsumeRefreshToken(ctx, "tok"); err == nil {
		t.Error("revoked token should be gone")
	}
	if revoked, _ = c.RevokeRefreshToken(ctx, "tok", 42); revoked {
		t.Error("second revoke should report false")
	}
}

func TestCheckRateLimit_Window(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		allowed, count, ttl, err := c.CheckRateLimit(ctx, "rl:test", 2, time.Minute)
		if err != nil {
			t.Fatalf("CheckRateLimit: %v", err)
		}
		if count != int64(i) {
			t.Errorf("count = %d, want %d", count, i)
		}
		if ttl <= 0 || ttl > time.Minute.Milliseconds() {
			t.Errorf("ttl = %d, want within window", ttl)
		}
		if want := i <= 2; allowed != want {
			t.Errorf("request %d allowed = %v, want %v", i, allowed, want)
		}
	}

	mr.FastForward(time.Minute + time.Second)
	allowed, count, _, _ := c.CheckRateLimit(ctx, "rl:test", 2, time.Minute)
	if !allowed || count != 1 {
		t.Errorf("after window: allowed=%v count=%d, want fresh window", allowed, count)
	}
}

func TestOnlineStatus(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	if online, _ := c.IsOnline(ctx, 9); online {
		t.Fatal("user should start offline")
	}
	_ = c.SetOnline(ctx, 9)
	if online, _ := c.IsOnline(ctx, 9); !online {
		t.Fatal("user should be online")
	}
	_ = c.SetOffline(ctx, 9)
	if online, _ := c.IsOnline(ctx, 9); online {
		t.Fatal("user should be offline again")
	}
}
