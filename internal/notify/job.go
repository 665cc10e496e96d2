// Package notify delivers push notifications. Jobs are queued by services,
// optionally through RabbitMQ, and pushed through Firebase Cloud Messaging.
package notify

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// KindUser targets the device token of a single user.
	KindUser Kind = "user"
	// KindTopic targets every device subscribed to an FCM topic.
	KindTopic Kind = "topic"
)

// TopicAnnouncements is the FCM topic every app install subscribes to.
const TopicAnnouncements = "announcements"

type Job struct {
	Kind   Kind              `json:"kind"`
	UserID int64             `json:"user_id,string,omitempty"`
	Topic  string            `json:"topic,omitempty"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// ToUser builds a job for one user's device.
func ToUser(userID int64, title, body string, data map[string]string) Job {
	return Job{Kind: KindUser, UserID: userID, Title: title, Body: body, Data: data}
}

// ToTopic builds a job for an FCM topic.
func ToTopic(topic, title, body string, data map[string]string) Job {
	return Job{Kind: KindTopic, Topic: topic, Title: title, Body: body, Data: data}
}

var ErrInvalidJob = errors.New("notify: invalid job")

func (j Job) Validate() error {
	switch j.Kind {
	case KindUser:
		if j.UserID <= 0 {
			return fmt.Errorf("%w: user job without user id", ErrInvalidJob)
		}
	case KindTopic:
		if j.Topic == "" {
			return fmt.Errorf("%w: topic job without topic", ErrInvalidJob)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidJob, j.Kind)
	}
	if j.Title == "" {
		return fmt.Errorf("%w: missing title", ErrInvalidJob)
	}
	return nil
}
