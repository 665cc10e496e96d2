package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueName is the durable RabbitMQ queue holding push jobs.
const QueueName = "fellowship.notifications"

// Enqueuer accepts jobs for later delivery.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// InlineQueue delivers on the caller's goroutine. It is used when no broker
// is configured.
type InlineQueue struct {
	deliverer *Deliverer
}

func NewInlineQueue(d *Deliverer) *InlineQueue {
	return &InlineQueue{deliverer: d}
}

func (q *InlineQueue) Enqueue(ctx context.Context, job Job) error {
	return q.deliverer.Deliver(ctx, job)
}

// AMQPQueue publishes jobs to RabbitMQ.
type AMQPQueue struct {
	conn *amqp.Connection

	mu sync.Mutex
	ch *amqp.Channel
}

// DialAMQP connects to the broker and declares the job queue.
func DialAMQP(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dialing amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening amqp channel: %w", err)
	}
	if err := declareQueue(ch); err != nil {
		conn.Close()
		return nil, err
	}
	return &AMQPQueue{conn: conn, ch: ch}, nil
}

func declareQueue(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring queue %s: %w", QueueName, err)
	}
	return nil
}

func (q *AMQPQueue) Enqueue(ctx context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ch.PublishWithContext(ctx, "", QueueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// NewWorker opens a consuming channel on the same connection.
func (q *AMQPQueue) NewWorker(d *Deliverer, prefetch int) (*Worker, error) {
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("opening consumer channel: %w", err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("setting prefetch: %w", err)
	}
	return &Worker{ch: ch, deliverer: d}, nil
}

func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	_ = q.ch.Close()
	return q.conn.Close()
}
