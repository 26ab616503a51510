// Package sqs consumes crawl results from an Amazon SQS queue.
package sqs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/JakeFAU/search-indexer/internal/indexer"
)

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// Config controls polling.
type Config struct {
	QueueURL          string
	WaitTimeSeconds   int32
	MaxMessages       int32
	VisibilityTimeout int32
	// NackVisibilitySeconds is the visibility applied to rejected messages;
	// zero makes them visible again immediately.
	NackVisibilitySeconds int32
	// ErrorBackoff is the pause after a failed receive.
	ErrorBackoff time.Duration
}

// DefaultConfig mirrors the usual long-polling setup.
var DefaultConfig = Config{
	WaitTimeSeconds:   20,
	MaxMessages:       1,
	VisibilityTimeout: 30,
	ErrorBackoff:      250 * time.Millisecond,
}

func (c *Config) validate() error {
	if c.QueueURL == "" {
		return errors.New("queue url is required")
	}
	if c.WaitTimeSeconds < 0 || c.WaitTimeSeconds > 20 {
		return errors.New("wait time seconds must be between 0 and 20")
	}
	if c.MaxMessages < 1 || c.MaxMessages > 10 {
		return errors.New("max messages must be between 1 and 10")
	}
	if c.VisibilityTimeout < 0 || c.NackVisibilitySeconds < 0 {
		return errors.New("visibility timeouts must be non-negative")
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = DefaultConfig.ErrorBackoff
	}
	return nil
}

// Transport long-polls one queue.
type Transport struct {
	client sqsAPI
	cfg    Config
	logger *zap.Logger
}

// New builds a Transport over client.
func New(client sqsAPI, cfg Config, logger *zap.Logger) (*Transport, error) {
	if client == nil {
		return nil, errors.New("sqs client is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{client: client, cfg: cfg, logger: logger}, nil
}

// Deliveries implements indexer.Transport. Receive failures are surfaced as
// deliveries with Err set and polling continues after a short pause.
func (t *Transport) Deliveries(ctx context.Context) (<-chan indexer.Delivery, error) {
	out := make(chan indexer.Delivery)
	go func() {
		defer close(out)
		for {
			if ctx.Err() != nil {
				return
			}
			reqCtx, cancel := context.WithTimeout(ctx, time.Duration(t.cfg.WaitTimeSeconds+5)*time.Second)
			resp, err := t.client.ReceiveMessage(reqCtx, &sqs.ReceiveMessageInput{
				QueueUrl:              aws.String(t.cfg.QueueURL),
				MaxNumberOfMessages:   t.cfg.MaxMessages,
				WaitTimeSeconds:       t.cfg.WaitTimeSeconds,
				VisibilityTimeout:     t.cfg.VisibilityTimeout,
				MessageAttributeNames: []string{"All"},
			})
			cancel()

			if err != nil {
				if ctx.Err() != nil {
					return
				}
				select {
				case out <- indexer.Delivery{Err: fmt.Errorf("%w: receive message: %w", indexer.ErrTransport, err)}:
				case <-ctx.Done():
					return
				}
				select {
				case <-time.After(t.cfg.ErrorBackoff):
					continue
				case <-ctx.Done():
					return
				}
			}

			for i := range resp.Messages {
				select {
				case out <- t.toDelivery(resp.Messages[i]):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (t *Transport) toDelivery(m sqstypes.Message) indexer.Delivery {
	handle := m.ReceiptHandle
	return indexer.Delivery{
		ID:         aws.ToString(m.MessageId),
		Body:       []byte(aws.ToString(m.Body)),
		Attributes: messageAttributes(m.MessageAttributes),
		Ack: func(ctx context.Context) error {
			_, err := t.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(t.cfg.QueueURL),
				ReceiptHandle: handle,
			})
			if err != nil {
				return fmt.Errorf("delete message: %w", err)
			}
			return nil
		},
		Nack: func(ctx context.Context) error {
			_, err := t.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
				QueueUrl:          aws.String(t.cfg.QueueURL),
				ReceiptHandle:     handle,
				VisibilityTimeout: t.cfg.NackVisibilitySeconds,
			})
			if err != nil {
				return fmt.Errorf("change message visibility: %w", err)
			}
			return nil
		},
	}
}

func messageAttributes(in map[string]sqstypes.MessageAttributeValue) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if v.StringValue != nil {
			out[k] = *v.StringValue
		}
	}
	return out
}
