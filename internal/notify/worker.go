package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const deliverTimeout = 10 * time.Second

// Worker consumes queued jobs and pushes them.
type Worker struct {
	ch        *amqp.Channel
	deliverer *Deliverer
}

// Run consumes until ctx is cancelled or the broker closes the channel.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.ch.Consume(QueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("starting consumer: %w", err)
	}
	slog.Info("notification worker started", "queue", QueueName)

	for {
		select {
		case <-ctx.Done():
			_ = w.ch.Close()
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("notification queue closed by broker")
			}
			if w.handle(ctx, d.Body) {
				_ = d.Ack(false)
			} else {
				_ = d.Nack(false, false)
			}
		}
	}
}

// handle delivers one message body and reports whether it should be acked.
// Malformed jobs are rejected without requeue. Push failures are logged and
// acked: the queue is not a retry mechanism.
func (w *Worker) handle(ctx context.Context, body []byte) bool {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		slog.Warn("dropping malformed notification job", "error", err)
		return false
	}
	if err := job.Validate(); err != nil {
		slog.Warn("dropping invalid notification job", "error", err)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()
	if err := w.deliverer.Deliver(ctx, job); err != nil {
		slog.Error("push delivery failed", "kind", job.Kind, "userID", job.UserID, "topic", job.Topic, "error", err)
	}
	return true
}
