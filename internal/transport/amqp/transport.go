// Package amqp consumes crawl results from a RabbitMQ queue.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/JakeFAU/search-indexer/internal/indexer"
)

// Channel is the subset of *amqp.Channel used by the transport.
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	Close() error
}

// Config captures the queue settings.
type Config struct {
	URL         string
	Queue       string
	ConsumerTag string
	Durable     bool
	// Prefetch limits unacknowledged deliveries per stream. Zero leaves the
	// broker default.
	Prefetch int
	// RequeueOnReject asks the broker to redeliver nacked messages.
	RequeueOnReject bool
}

// Transport consumes deliveries over one AMQP channel.
type Transport struct {
	ch      Channel
	conn    *amqp.Connection
	cfg     Config
	logger  *zap.Logger
	streams atomic.Int64

	declareOnce sync.Once
	declareErr  error
}

// Dial connects to the broker and opens a channel.
func Dial(cfg Config, logger *zap.Logger) (*Transport, error) {
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
	t, err := New(ch, cfg, logger)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	t.conn = conn
	return t, nil
}

// New builds a Transport over an already open channel.
func New(ch Channel, cfg Config, logger *zap.Logger) (*Transport, error) {
	if ch == nil {
		return nil, errors.New("amqp channel is required")
	}
	if cfg.Queue == "" {
		return nil, errors.New("amqp queue is required")
	}
	if cfg.ConsumerTag == "" {
		cfg.ConsumerTag = "indexer_consumer"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{ch: ch, cfg: cfg, logger: logger}, nil
}

func (t *Transport) declare() error {
	t.declareOnce.Do(func() {
		if _, err := t.ch.QueueDeclare(t.cfg.Queue, t.cfg.Durable, false, false, false, nil); err != nil {
			t.declareErr = fmt.Errorf("declare queue %s: %w", t.cfg.Queue, err)
			return
		}
		if t.cfg.Prefetch > 0 {
			if err := t.ch.Qos(t.cfg.Prefetch, 0, false); err != nil {
				t.declareErr = fmt.Errorf("set prefetch: %w", err)
			}
		}
	})
	return t.declareErr
}

// Deliveries implements indexer.Transport. Each call registers a new consumer
// on the channel; tags after the first get a numeric suffix.
func (t *Transport) Deliveries(ctx context.Context) (<-chan indexer.Delivery, error) {
	if err := t.declare(); err != nil {
		return nil, err
	}
	tag := t.cfg.ConsumerTag
	if n := t.streams.Add(1); n > 1 {
		tag = tag + "-" + strconv.FormatInt(n, 10)
	}
	msgs, err := t.ch.Consume(t.cfg.Queue, tag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", t.cfg.Queue, err)
	}
	t.logger.Info("amqp consumer registered", zap.String("queue", t.cfg.Queue), zap.String("consumer_tag", tag))

	out := make(chan indexer.Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				if err := t.ch.Cancel(tag, false); err != nil {
					t.logger.Warn("cancel amqp consumer", zap.String("consumer_tag", tag), zap.Error(err))
				}
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- t.toDelivery(tag, d):
				case <-ctx.Done():
					if err := d.Nack(false, true); err != nil {
						t.logger.Warn("return undelivered message", zap.Error(err))
					}
				}
			}
		}
	}()
	return out, nil
}

func (t *Transport) toDelivery(tag string, d amqp.Delivery) indexer.Delivery {
	id := d.MessageId
	if id == "" {
		id = tag + "/" + strconv.FormatUint(d.DeliveryTag, 10)
	}
	requeue := t.cfg.RequeueOnReject
	return indexer.Delivery{
		ID:         id,
		Body:       d.Body,
		Attributes: headerAttributes(d.Headers),
		Ack: func(context.Context) error {
			return d.Ack(false)
		},
		Nack: func(context.Context) error {
			return d.Nack(false, requeue)
		},
	}
}

func headerAttributes(h amqp.Table) map[string]string {
	if len(h) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(h))
	for k, v := range h {
		if s, ok := v.(string); ok {
			attrs[k] = s
		}
	}
	return attrs
}

// Close closes the channel and, when owned, the connection.
func (t *Transport) Close() error {
	err := t.ch.Close()
	if t.conn != nil {
		err = errors.Join(err, t.conn.Close())
	}
	if err != nil {
		return fmt.Errorf("close amqp transport: %w", err)
	}
	return nil
}
