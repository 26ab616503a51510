package storage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/JakeFAU/search-indexer/internal/indexer"
)

// MockSink is a mock implementation of indexer.Sink for testing.
type MockSink struct {
	mock.Mock
}

// Store is the mock implementation of the Store method.
func (m *MockSink) Store(ctx context.Context, msg indexer.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0) //nolint:wrapcheck
}
