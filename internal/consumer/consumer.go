// Package consumer implements the delivery loop: it pulls raw payloads from a
// transport, validates and stores them, and settles each delivery with exactly
// one ack or nack.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/search-indexer/internal/indexer"
	"github.com/JakeFAU/search-indexer/internal/metrics"
	"github.com/JakeFAU/search-indexer/internal/telemetry"
)

// Config controls Consumer behavior.
type Config struct {
	// Name labels the consumer in logs.
	Name string
	// Stats receives outcome counts. A private Stats is used when nil.
	Stats *Stats
	// IDs fills delivery IDs that the transport left empty.
	IDs indexer.IDGenerator
}

// Outcome reports how one delivery was settled.
type Outcome struct {
	// Accepted is true when the message was stored and acked.
	Accepted bool
	// Err is the processing error that caused a rejection.
	Err error
	// SettleErr is set when the ack or nack itself failed.
	SettleErr error
}

// Consumer processes the deliveries of one transport stream sequentially.
type Consumer struct {
	transport indexer.Transport
	validator *indexer.SchemaValidator
	processor *indexer.Processor
	cfg       Config
	stats     *Stats
	tracer    trace.Tracer
	logger    *zap.Logger
}

// New constructs a Consumer reading from transport and storing into sink.
func New(transport indexer.Transport, sink indexer.Sink, cfg Config, logger *zap.Logger) (*Consumer, error) {
	if transport == nil {
		return nil, errors.New("consumer: transport is required")
	}
	if sink == nil {
		return nil, errors.New("consumer: sink is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "consumer"
	}
	validator, err := indexer.NewSchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("consumer: build validator: %w", err)
	}
	stats := cfg.Stats
	if stats == nil {
		stats = &Stats{}
	}
	metrics.Init()
	logger = logger.With(zap.String("consumer", cfg.Name))
	return &Consumer{
		transport: transport,
		validator: validator,
		processor: indexer.NewProcessor(sink, logger),
		cfg:       cfg,
		stats:     stats,
		tracer:    telemetry.Tracer(),
		logger:    logger,
	}, nil
}

// Stats returns the counters this consumer writes to.
func (c *Consumer) Stats() *Stats {
	return c.stats
}

// Run blocks, handling deliveries one at a time until the transport stream
// ends. Canceling ctx stops the transport, which closes the stream.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.transport.Deliveries(ctx)
	if err != nil {
		return fmt.Errorf("%w: open delivery stream: %w", indexer.ErrTransport, err)
	}
	metrics.IncActiveConsumers()
	defer metrics.DecActiveConsumers()
	c.logger.Info("consumer started")

	for d := range deliveries {
		if d.Err != nil {
			c.stats.transportErrors.Add(1)
			metrics.ObserveTransportError()
			c.logger.Error("delivery retrieval failed", zap.Error(d.Err))
			continue
		}
		c.HandleDelivery(ctx, d)
	}

	c.logger.Info("delivery stream closed")
	return nil
}

// HandleDelivery runs one delivery through the pipeline and settles it.
func (c *Consumer) HandleDelivery(ctx context.Context, d indexer.Delivery) Outcome {
	id := c.deliveryID(d)
	ctx = telemetry.Extract(ctx, d.Attributes)
	ctx, span := c.tracer.Start(ctx, "indexer.delivery", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("delivery.id", id),
		attribute.Int("delivery.size", len(d.Body)),
	)

	log := c.logger.With(zap.String("delivery_id", id))
	log.Debug("delivery received", zap.String("stage", "received"))

	err := c.process(ctx, d.Body, log)
	settleCtx := context.WithoutCancel(ctx)
	out := Outcome{Accepted: err == nil, Err: err}

	if err == nil {
		c.stats.accepted.Add(1)
		metrics.ObserveDelivery(true, "none")
		if ackErr := settle(settleCtx, d.Ack); ackErr != nil {
			out.SettleErr = fmt.Errorf("%w: ack: %w", indexer.ErrAcknowledge, ackErr)
			c.stats.ackFailures.Add(1)
			metrics.ObserveAckFailure("ack")
			log.Error("failed to acknowledge delivery", zap.Error(out.SettleErr))
		} else {
			log.Debug("delivery acknowledged", zap.String("stage", "acknowledged"))
		}
		span.SetStatus(codes.Ok, "")
		return out
	}

	reason := indexer.Classify(err)
	c.stats.recordRejection(reason)
	metrics.ObserveDelivery(false, reason)
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	log.Warn("delivery rejected", zap.String("stage", "rejected"), zap.String("reason", reason), zap.Error(err))

	if nackErr := settle(settleCtx, d.Nack); nackErr != nil {
		out.SettleErr = fmt.Errorf("%w: nack: %w", indexer.ErrAcknowledge, nackErr)
		c.stats.nackFailures.Add(1)
		metrics.ObserveAckFailure("nack")
		log.Error("failed to negatively acknowledge delivery", zap.Error(out.SettleErr))
	} else {
		log.Debug("delivery negatively acknowledged", zap.String("stage", "nacked"))
	}
	return out
}

func (c *Consumer) process(ctx context.Context, body []byte, log *zap.Logger) error {
	value, err := indexer.ParsePayload(body)
	if err != nil {
		return err
	}
	if err := c.validator.Validate(value); err != nil {
		return err
	}
	log.Debug("schema check passed", zap.String("stage", "schema_checked"))

	msg, err := indexer.DecodeMessage(value)
	if err != nil {
		return err
	}
	log.Debug("message deserialized", zap.String("stage", "deserialized"), zap.String("url", msg.URL))

	start := time.Now()
	err = c.processor.Process(ctx, msg)
	if err == nil || errors.Is(err, indexer.ErrStorage) {
		metrics.ObserveStore(err == nil, time.Since(start))
	}
	if err != nil {
		return err
	}
	log.Debug("message stored", zap.String("stage", "stored"), zap.String("url", msg.URL))
	return nil
}

func (c *Consumer) deliveryID(d indexer.Delivery) string {
	if d.ID != "" || c.cfg.IDs == nil {
		return d.ID
	}
	id, err := c.cfg.IDs.NewID()
	if err != nil {
		c.logger.Warn("generate delivery id", zap.Error(err))
		return ""
	}
	return id
}

func settle(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("no settlement handler")
	}
	return fn(ctx)
}
