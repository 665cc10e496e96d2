package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// CampaignCloser deactivates campaigns whose end date has passed.
type CampaignCloser interface {
	CloseExpired(ctx context.Context, now time.Time) (int, error)
}

// CloseExpiredCampaigns returns a job that closes campaigns past their end
// date. Subscribers see each one flip to inactive through the gateway.
func CloseExpiredCampaigns(c CampaignCloser) RunFunc {
	return func(ctx context.Context, now time.Time) error {
		ctx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		n, err := c.CloseExpired(ctx, now)
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Info("closed expired campaigns", "count", n)
		}
		return nil
	}
}
