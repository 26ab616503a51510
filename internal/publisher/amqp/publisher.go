// Package amqp publishes crawl results to a RabbitMQ queue.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/streadway/amqp"

	"github.com/JakeFAU/search-indexer/internal/indexer"
	"github.com/JakeFAU/search-indexer/internal/telemetry"
)

// Channel is the subset of *amqp.Channel used by the publisher.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Config names the destination queue.
type Config struct {
	URL     string
	Queue   string
	Durable bool
}

// Publisher sends persistent JSON messages through the default exchange.
type Publisher struct {
	ch    Channel
	conn  *amqp.Connection
	queue string
}

// Dial connects to the broker and declares the queue.
func Dial(cfg Config) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp url is required")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	p, err := New(ch, cfg)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// New declares cfg.Queue on ch and returns a publisher for it.
func New(ch Channel, cfg Config) (*Publisher, error) {
	if ch == nil {
		return nil, errors.New("amqp channel is required")
	}
	if cfg.Queue == "" {
		return nil, errors.New("amqp queue is required")
	}
	if _, err := ch.QueueDeclare(cfg.Queue, cfg.Durable, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}
	return &Publisher{ch: ch, queue: cfg.Queue}, nil
}

// Publish implements indexer.Publisher.
func (p *Publisher) Publish(ctx context.Context, msg indexer.Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publish canceled: %w", err)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	headers := amqp.Table{}
	for k, v := range telemetry.Inject(ctx, nil) {
		headers[k] = v
	}
	err = p.ch.Publish("", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.queue, err)
	}
	return nil
}

// Close closes the channel and, when owned, the connection.
func (p *Publisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}
	if err != nil {
		return fmt.Errorf("close amqp publisher: %w", err)
	}
	return nil
}
