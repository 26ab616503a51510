// Package memory keeps stored documents in-memory for tests and local runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/search-indexer/internal/indexer"
	"github.com/JakeFAU/search-indexer/internal/storage"
)

// Sink collects documents in arrival order. It is safe for concurrent use.
type Sink struct {
	mu      sync.RWMutex
	builder *storage.Builder
	docs    []storage.Document
	err     error
}

// New creates an in-memory sink. A nil builder uses the defaults.
func New(builder *storage.Builder) *Sink {
	if builder == nil {
		builder = storage.NewBuilder(nil, nil)
	}
	return &Sink{builder: builder}
}

// Store appends msg. Every accepted message is kept, including redeliveries.
func (s *Sink) Store(ctx context.Context, msg indexer.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := s.builder.Build(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.docs = append(s.docs, doc)
	return nil
}

// FailWith makes subsequent Store calls return err. Pass nil to recover.
func (s *Sink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Documents returns a copy of the stored documents.
func (s *Sink) Documents() []storage.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.Document, len(s.docs))
	copy(out, s.docs)
	return out
}

// Messages returns the stored messages in arrival order.
func (s *Sink) Messages() []indexer.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]indexer.Message, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, d.Message)
	}
	return out
}

// Len returns the number of stored documents.
func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
