// Package pubsub consumes crawl results from a Google Cloud Pub/Sub
// subscription.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/search-indexer/internal/indexer"
)

// errAlreadySettled is returned when a delivery is acked or nacked twice.
var errAlreadySettled = errors.New("pubsub message already settled")

// Transport bridges a subscription's callback API into a delivery stream.
type Transport struct {
	sub    *pubsub.Subscription
	logger *zap.Logger
}

// New returns a transport reading subscriptionID. Flow control is limited to
// one outstanding message so the stream is handled strictly in order.
func New(client *pubsub.Client, subscriptionID string, logger *zap.Logger) (*Transport, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	if subscriptionID == "" {
		return nil, errors.New("pubsub subscription is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sub := client.Subscription(subscriptionID)
	sub.ReceiveSettings.MaxOutstandingMessages = 1
	sub.ReceiveSettings.NumGoroutines = 1
	return &Transport{sub: sub, logger: logger}, nil
}

// Deliveries implements indexer.Transport. The stream closes when Receive
// returns; a Receive failure is reported as a final Delivery with Err set.
func (t *Transport) Deliveries(ctx context.Context) (<-chan indexer.Delivery, error) {
	out := make(chan indexer.Delivery)
	go func() {
		defer close(out)
		err := t.sub.Receive(ctx, func(cbCtx context.Context, m *pubsub.Message) {
			d, settled := toDelivery(m)
			select {
			case out <- d:
			case <-cbCtx.Done():
				m.Nack()
				return
			}
			// The consumer settles every delivery it takes.
			<-settled
		})
		if err != nil && ctx.Err() == nil {
			t.logger.Error("pubsub receive stopped", zap.String("subscription", t.sub.ID()), zap.Error(err))
			select {
			case out <- indexer.Delivery{Err: fmt.Errorf("%w: receive: %w", indexer.ErrTransport, err)}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

func toDelivery(m *pubsub.Message) (indexer.Delivery, <-chan struct{}) {
	settled := make(chan struct{})
	var once sync.Once
	settle := func(ack bool) func(context.Context) error {
		return func(context.Context) error {
			err := errAlreadySettled
			once.Do(func() {
				if ack {
					m.Ack()
				} else {
					m.Nack()
				}
				close(settled)
				err = nil
			})
			return err
		}
	}
	return indexer.Delivery{
		ID:         m.ID,
		Body:       m.Data,
		Attributes: m.Attributes,
		Ack:        settle(true),
		Nack:       settle(false),
	}, settled
}
