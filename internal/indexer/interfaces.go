package indexer

import (
	"context"
	"time"
)

// Sink persists one validated, normalized message.
type Sink interface {
	Store(ctx context.Context, msg Message) error
}

// Transport yields the delivery stream for one consumer instance. The channel
// is closed when the underlying stream ends or ctx is canceled.
type Transport interface {
	Deliveries(ctx context.Context) (<-chan Delivery, error)
}

// Publisher sends crawl results to the queue consumed by the indexer.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Hasher computes digests used as document identifiers.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces delivery IDs when a transport has none.
type IDGenerator interface {
	NewID() (string, error)
}
