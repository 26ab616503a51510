package consumer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/search-indexer/internal/indexer"
	memsink "github.com/JakeFAU/search-indexer/internal/storage/memory"
	memtransport "github.com/JakeFAU/search-indexer/internal/transport/memory"
)

func TestGroupRunsAllConsumersOverSharedQueue(t *testing.T) {
	t.Parallel()

	tr := memtransport.New(32)
	sink := memsink.New(nil)
	for i := 0; i < 20; i++ {
		body := fmt.Sprintf(`{"url":"https://example.com/%d","text":"T","metadata":{"title":"t","timestamp":"ts","status_code":200}}`, i)
		_, err := tr.Send(context.Background(), []byte(body), nil)
		require.NoError(t, err)
	}
	tr.Close()

	stats := &Stats{}
	var consumers []*Consumer
	for i := 0; i < 3; i++ {
		c, err := New(tr, sink, Config{Name: fmt.Sprintf("c%d", i), Stats: stats}, zap.NewNop())
		require.NoError(t, err)
		consumers = append(consumers, c)
	}
	g := NewGroup(consumers...)
	assert.Equal(t, 3, g.Len())

	done := make(chan error, 1)
	go func() { done <- g.Run(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("group did not finish")
	}

	assert.Equal(t, 20, sink.Len())
	assert.Len(t, tr.Acked(), 20)
	assert.Equal(t, uint64(20), stats.Snapshot().Accepted)
}

func TestGroupJoinsSetupErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("dial failed")
	c1, err := New(failingTransport{err: boom}, memsink.New(nil), Config{}, nil)
	require.NoError(t, err)
	tr := memtransport.New(1)
	tr.Close()
	c2, err := New(tr, memsink.New(nil), Config{}, nil)
	require.NoError(t, err)

	err = NewGroup(c1, c2).Run(context.Background())
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, err, indexer.ErrTransport)
}
