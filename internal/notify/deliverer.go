package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gracefellowship/fellowship/internal/metrics"
	"github.com/gracefellowship/fellowship/internal/models"
)

// UserLookup resolves the device token of a user.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// Deliverer turns jobs into pushes.
type Deliverer struct {
	users  UserLookup
	pusher Pusher
}

func NewDeliverer(users UserLookup, pusher Pusher) *Deliverer {
	return &Deliverer{users: users, pusher: pusher}
}

// Deliver pushes one job. Users without a device token are skipped.
func (d *Deliverer) Deliver(ctx context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		metrics.NotificationsSent.WithLabelValues("invalid").Inc()
		return err
	}

	p := Push{Title: job.Title, Body: job.Body, Data: job.Data}
	switch job.Kind {
	case KindTopic:
		p.Topic = job.Topic
	case KindUser:
		user, err := d.users.GetByID(ctx, job.UserID)
		if err != nil {
			metrics.NotificationsSent.WithLabelValues("failed").Inc()
			return fmt.Errorf("loading user %d: %w", job.UserID, err)
		}
		if user == nil || user.DeviceToken == nil || *user.DeviceToken == "" {
			metrics.NotificationsSent.WithLabelValues("skipped").Inc()
			slog.Debug("push skipped, no device token", "userID", job.UserID)
			return nil
		}
		p.Token = *user.DeviceToken
	}

	if err := d.pusher.Send(ctx, p); err != nil {
		metrics.NotificationsSent.WithLabelValues("failed").Inc()
		return err
	}
	metrics.NotificationsSent.WithLabelValues("sent").Inc()
	return nil
}
