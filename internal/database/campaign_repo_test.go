package database

import (
	"context"
	"testing"
	"time"
)

func TestCampaignRepo_UpdateNeverTouchesAmount(t *testing.T) {
	pool := testPool(t)
	repo := NewCampaignRepository(pool)
	ctx := context.Background()

	c := createTestCampaign(t, pool, 10000)
	_, _ = pool.Exec(ctx, `UPDATE campaigns SET current_amount = 700 WHERE id = $1`, c.ID)

	c.Title = "New roof"
	c.CurrentAmount = 0
	if err := repo.Update(ctx, c); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if c.CurrentAmount != 700 {
		t.Errorf("returned CurrentAmount = %d, want 700", c.CurrentAmount)
	}

	got, _ := repo.GetByID(ctx, c.ID)
	if got.Title != "New roof" {
		t.Errorf("Title = %q", got.Title)
	}
	if got.CurrentAmount != 700 {
		t.Errorf("CurrentAmount = %d, want 700", got.CurrentAmount)
	}
}

func TestCampaignRepo_CloseExpired(t *testing.T) {
	pool := testPool(t)
	repo := NewCampaignRepository(pool)
	ctx := context.Background()

	expired := createTestCampaign(t, pool, 10000)
	past := now().Add(-time.Hour)
	expired.EndDate = &past
	_ = repo.Update(ctx, expired)

	open := createTestCampaign(t, pool, 10000)
	future := now().Add(time.Hour)
	open.EndDate = &future
	_ = repo.Update(ctx, open)

	changes, err := repo.CloseExpired(ctx, now())
	if err != nil {
		t.Fatalf("CloseExpired: %v", err)
	}
	var closedOurs bool
	for _, ch := range changes {
		if ch.New.ID == open.ID {
			t.Error("campaign with a future end date was closed")
		}
		if ch.New.ID == expired.ID {
			closedOurs = true
			if !ch.Old.Active || ch.New.Active {
				t.Errorf("change = %+v", ch)
			}
		}
	}
	if !closedOurs {
		t.Error("expired campaign was not closed")
	}
}
