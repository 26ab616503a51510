// Package memory provides an in-process transport for local development and
// tests. It records how every delivery was settled.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/JakeFAU/search-indexer/internal/indexer"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport closed")

// ErrAlreadySettled is returned when a delivery is acked or nacked twice.
var ErrAlreadySettled = errors.New("delivery already settled")

type entry struct {
	id    string
	body  []byte
	attrs map[string]string
	err   error
}

// Settlement is the fate of one delivery.
type Settlement struct {
	ID    string
	Acked bool
}

// Transport is a bounded in-memory queue. Several Deliveries streams compete
// for the same entries.
type Transport struct {
	ch        chan entry
	done      chan struct{}
	closeOnce sync.Once
	seq       atomic.Uint64

	mu      sync.Mutex
	settled []Settlement
	ackErr  error
	nackErr error
}

// New constructs a transport with the provided capacity.
func New(capacity int) *Transport {
	return &Transport{
		ch:   make(chan entry, capacity),
		done: make(chan struct{}),
	}
}

// Send enqueues a raw payload and returns its delivery ID.
func (t *Transport) Send(ctx context.Context, body []byte, attrs map[string]string) (string, error) {
	id := "mem-" + strconv.FormatUint(t.seq.Add(1), 10)
	return id, t.push(ctx, entry{id: id, body: append([]byte(nil), body...), attrs: attrs})
}

// SendError enqueues a retrieval failure, surfaced as a Delivery with Err set.
func (t *Transport) SendError(ctx context.Context, err error) error {
	return t.push(ctx, entry{err: err})
}

// push blocks while the queue is full. Close wakes it with ErrClosed.
func (t *Transport) push(ctx context.Context, e entry) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("send canceled: %w", ctx.Err())
	case <-t.done:
		return ErrClosed
	case t.ch <- e:
		return nil
	}
}

// FailSettlements makes subsequent acks and nacks return the given errors.
func (t *Transport) FailSettlements(ackErr, nackErr error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ackErr = ackErr
	t.nackErr = nackErr
}

// Deliveries implements indexer.Transport. The stream closes once the
// transport is closed and drained, or when ctx ends.
func (t *Transport) Deliveries(ctx context.Context) (<-chan indexer.Delivery, error) {
	out := make(chan indexer.Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.done:
				t.drain(ctx, out)
				return
			case e := <-t.ch:
				if !t.forward(ctx, out, e) {
					return
				}
			}
		}
	}()
	return out, nil
}

// drain forwards whatever is still buffered after Close.
func (t *Transport) drain(ctx context.Context, out chan<- indexer.Delivery) {
	for {
		select {
		case e := <-t.ch:
			if !t.forward(ctx, out, e) {
				return
			}
		default:
			return
		}
	}
}

func (t *Transport) forward(ctx context.Context, out chan<- indexer.Delivery, e entry) bool {
	select {
	case out <- t.delivery(e):
		return true
	case <-ctx.Done():
		return false
	}
}

func (t *Transport) delivery(e entry) indexer.Delivery {
	if e.err != nil {
		return indexer.Delivery{Err: fmt.Errorf("%w: %w", indexer.ErrTransport, e.err)}
	}
	var once atomic.Bool
	settle := func(acked bool) func(context.Context) error {
		return func(context.Context) error {
			if !once.CompareAndSwap(false, true) {
				return fmt.Errorf("%w: %s", ErrAlreadySettled, e.id)
			}
			t.mu.Lock()
			defer t.mu.Unlock()
			if acked && t.ackErr != nil {
				return t.ackErr
			}
			if !acked && t.nackErr != nil {
				return t.nackErr
			}
			t.settled = append(t.settled, Settlement{ID: e.id, Acked: acked})
			return nil
		}
	}
	return indexer.Delivery{
		ID:         e.id,
		Body:       e.body,
		Attributes: e.attrs,
		Ack:        settle(true),
		Nack:       settle(false),
	}
}

// Settlements returns every successful ack or nack in order.
func (t *Transport) Settlements() []Settlement {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Settlement, len(t.settled))
	copy(out, t.settled)
	return out
}

// Acked returns the IDs of acked deliveries.
func (t *Transport) Acked() []string {
	return t.filter(true)
}

// Nacked returns the IDs of nacked deliveries.
func (t *Transport) Nacked() []string {
	return t.filter(false)
}

func (t *Transport) filter(acked bool) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []string
	for _, s := range t.settled {
		if s.Acked == acked {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// Close stops accepting sends and releases senders blocked on a full queue.
// Deliveries streams end after draining. Close is safe to call more than once.
func (t *Transport) Close() {
	t.closeOnce.Do(func() { close(t.done) })
}
