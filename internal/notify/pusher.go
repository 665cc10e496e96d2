package notify

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// Push is a single outgoing notification. Exactly one of Token and Topic is set.
type Push struct {
	Token string
	Topic string
	Title string
	Body  string
	Data  map[string]string
}

type Pusher interface {
	Send(ctx context.Context, p Push) error
}

// FCMPusher sends through Firebase Cloud Messaging.
type FCMPusher struct {
	client *messaging.Client
}

// NewFCMPusher initializes a Firebase app from a service account file.
func NewFCMPusher(ctx context.Context, credentialsPath string) (*FCMPusher, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("initializing firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing FCM client: %w", err)
	}
	return &FCMPusher{client: client}, nil
}

func (f *FCMPusher) Send(ctx context.Context, p Push) error {
	msg := &messaging.Message{
		Notification: &messaging.Notification{
			Title: p.Title,
			Body:  p.Body,
		},
		Data:  p.Data,
		Token: p.Token,
		Topic: p.Topic,
	}
	id, err := f.client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	slog.Debug("push sent", "messageID", id, "topic", p.Topic)
	return nil
}

// LogPusher stands in for FCM when no credentials are configured.
type LogPusher struct{}

func (LogPusher) Send(_ context.Context, p Push) error {
	slog.Info("push (not sent, FCM disabled)", "topic", p.Topic, "hasToken", p.Token != "", "title", p.Title)
	return nil
}
