package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/search-indexer/internal/indexer"
	memsink "github.com/JakeFAU/search-indexer/internal/storage/memory"
	memtransport "github.com/JakeFAU/search-indexer/internal/transport/memory"
)

const validBody = `{"url":"https://example.com","text":"Hello TEST","metadata":{"title":"Example","timestamp":"2025-11-05T00:00:00Z","status_code":200}}`

type failingTransport struct{ err error }

func (f failingTransport) Deliveries(context.Context) (<-chan indexer.Delivery, error) {
	return nil, f.err
}

type sequentialIDs struct{ n int }

func (s *sequentialIDs) NewID() (string, error) {
	s.n++
	return "gen-" + string(rune('0'+s.n)), nil
}

func newConsumer(t *testing.T, tr indexer.Transport, sink indexer.Sink) *Consumer {
	t.Helper()
	c, err := New(tr, sink, Config{Name: t.Name()}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func runToEnd(t *testing.T, c *Consumer) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after stream end")
	}
}

func TestNewValidatesArguments(t *testing.T) {
	t.Parallel()

	_, err := New(nil, memsink.New(nil), Config{}, nil)
	require.Error(t, err)
	_, err = New(memtransport.New(1), nil, Config{}, nil)
	require.Error(t, err)
}

func TestConsumer_ValidMessageIsStoredAndAcked(t *testing.T) {
	t.Parallel()

	tr := memtransport.New(1)
	sink := memsink.New(nil)
	id, err := tr.Send(context.Background(), []byte(validBody), nil)
	require.NoError(t, err)
	tr.Close()

	c := newConsumer(t, tr, sink)
	runToEnd(t, c)

	msgs := sink.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello test", msgs[0].Text)
	assert.Equal(t, "https://example.com", msgs[0].URL)
	assert.Equal(t, uint16(200), msgs[0].Metadata.StatusCode)
	assert.Equal(t, []string{id}, tr.Acked())
	assert.Empty(t, tr.Nacked())
	assert.Equal(t, uint64(1), c.Stats().Snapshot().Accepted)
}

func TestConsumer_RejectedDeliveriesAreNacked(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		body   []byte
		reason string
	}{
		{"invalid status", []byte(`{"url":"https://example.com","text":"Hello","metadata":{"title":"x","timestamp":"ts","status_code":404}}`), "invalid"},
		{"empty text", []byte(`{"url":"https://example.com","text":"","metadata":{"title":"x","timestamp":"ts","status_code":200}}`), "invalid"},
		{"malformed json", []byte(`{"url": "oops"`), "parse"},
		{"schema violation", []byte(`{"url":"u","text":"t","metadata":{"timestamp":"ts","status_code":200}}`), "invalid"},
		{"invalid utf8", []byte{0xff, 0xfe, 0xfd}, "decode"},
		{"status out of range", []byte(`{"url":"u","text":"t","metadata":{"title":"x","timestamp":"ts","status_code":-5}}`), "parse"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			tr := memtransport.New(1)
			sink := memsink.New(nil)
			id, err := tr.Send(context.Background(), tc.body, nil)
			require.NoError(t, err)
			tr.Close()

			ch, err := tr.Deliveries(context.Background())
			require.NoError(t, err)
			c := newConsumer(t, tr, sink)

			out := c.HandleDelivery(context.Background(), <-ch)
			assert.False(t, out.Accepted)
			assert.Equal(t, tc.reason, indexer.Classify(out.Err))
			assert.NoError(t, out.SettleErr)
			assert.Zero(t, sink.Len())
			assert.Equal(t, []string{id}, tr.Nacked())
			assert.Empty(t, tr.Acked())
		})
	}
}

func TestConsumer_StorageFailureIsNacked(t *testing.T) {
	t.Parallel()

	tr := memtransport.New(1)
	sink := memsink.New(nil)
	boom := errors.New("db down")
	sink.FailWith(boom)
	id, err := tr.Send(context.Background(), []byte(validBody), nil)
	require.NoError(t, err)
	tr.Close()

	ch, err := tr.Deliveries(context.Background())
	require.NoError(t, err)
	out := newConsumer(t, tr, sink).HandleDelivery(context.Background(), <-ch)

	require.ErrorIs(t, out.Err, indexer.ErrStorage)
	require.ErrorIs(t, out.Err, boom)
	assert.Equal(t, []string{id}, tr.Nacked())
}

func TestConsumer_SameURLAndTimestampAreBothStored(t *testing.T) {
	t.Parallel()

	tr := memtransport.New(2)
	sink := memsink.New(nil)
	var ids []string
	for _, text := range []string{"First", "Second"} {
		body := `{"url":"https://example.com","text":"` + text + `","metadata":{"title":"Example","timestamp":"2025-11-05T00:00:00Z","status_code":200}}`
		id, err := tr.Send(context.Background(), []byte(body), nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	tr.Close()

	c := newConsumer(t, tr, sink)
	runToEnd(t, c)

	assert.Equal(t, ids, tr.Acked())
	assert.Empty(t, tr.Nacked())
	msgs := sink.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)
	assert.Equal(t, uint64(2), c.Stats().Snapshot().Accepted)
}

func TestConsumer_RejectionLogsOneWarning(t *testing.T) {
	t.Parallel()

	tr := memtransport.New(1)
	body := `{"url":"https://example.com","text":"gone","metadata":{"title":"x","timestamp":"2025-11-05T00:00:00Z","status_code":404}}`
	_, err := tr.Send(context.Background(), []byte(body), nil)
	require.NoError(t, err)
	tr.Close()

	core, logs := observer.New(zapcore.InfoLevel)
	c, err := New(tr, memsink.New(nil), Config{Name: t.Name()}, zap.New(core))
	require.NoError(t, err)
	runToEnd(t, c)

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "delivery rejected", warnings[0].Message)
	assert.Equal(t, "invalid", warnings[0].ContextMap()["reason"])
	assert.Len(t, tr.Nacked(), 1)
}

func TestConsumer_AckFailureIsReportedNotRetried(t *testing.T) {
	t.Parallel()

	tr := memtransport.New(2)
	sink := memsink.New(nil)
	_, err := tr.Send(context.Background(), []byte(validBody), nil)
	require.NoError(t, err)
	_, err = tr.Send(context.Background(), []byte(`nope`), nil)
	require.NoError(t, err)
	tr.Close()
	tr.FailSettlements(errors.New("channel closed"), errors.New("channel closed"))

	c := newConsumer(t, tr, sink)
	runToEnd(t, c)

	snap := c.Stats().Snapshot()
	assert.Equal(t, uint64(1), snap.Accepted)
	assert.Equal(t, uint64(1), snap.AckFailures)
	assert.Equal(t, uint64(1), snap.NackFailures)
	assert.Equal(t, uint64(1), snap.ParseErrors)
	assert.Equal(t, 1, sink.Len())
}

func TestConsumer_AckFailureOutcome(t *testing.T) {
	t.Parallel()

	c := newConsumer(t, memtransport.New(1), memsink.New(nil))
	out := c.HandleDelivery(context.Background(), indexer.Delivery{
		ID:   "d1",
		Body: []byte(validBody),
		Ack:  func(context.Context) error { return errors.New("gone") },
		Nack: func(context.Context) error { t.Fatal("nack must not be called"); return nil },
	})
	assert.True(t, out.Accepted)
	require.ErrorIs(t, out.SettleErr, indexer.ErrAcknowledge)
}

func TestConsumer_TransportErrorsDoNotStopTheLoop(t *testing.T) {
	t.Parallel()

	tr := memtransport.New(3)
	sink := memsink.New(nil)
	require.NoError(t, tr.SendError(context.Background(), errors.New("connection reset")))
	_, err := tr.Send(context.Background(), []byte(validBody), nil)
	require.NoError(t, err)
	tr.Close()

	c := newConsumer(t, tr, sink)
	runToEnd(t, c)

	snap := c.Stats().Snapshot()
	assert.Equal(t, uint64(1), snap.TransportErrors)
	assert.Equal(t, uint64(1), snap.Accepted)
	assert.Len(t, tr.Acked(), 1)
}

func TestConsumer_ExactlyOneSettlementPerDeliveryInOrder(t *testing.T) {
	t.Parallel()

	tr := memtransport.New(8)
	sink := memsink.New(nil)
	bodies := []string{
		validBody,
		`{"url":"https://b","text":"B","metadata":{"title":"b","timestamp":"2","status_code":201}}`,
		`garbage`,
		`{"url":"https://c","text":"C","metadata":{"title":"c","timestamp":"3","status_code":204}}`,
		`{"url":"https://d","text":"D","metadata":{"title":"d","timestamp":"4","status_code":203}}`,
	}
	var ids []string
	for _, b := range bodies {
		id, err := tr.Send(context.Background(), []byte(b), nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	tr.Close()

	c := newConsumer(t, tr, sink)
	runToEnd(t, c)

	settled := tr.Settlements()
	require.Len(t, settled, len(ids))
	for i, s := range settled {
		assert.Equal(t, ids[i], s.ID)
	}
	assert.Equal(t, []bool{true, true, false, false, true}, []bool{
		settled[0].Acked, settled[1].Acked, settled[2].Acked, settled[3].Acked, settled[4].Acked,
	})
	assert.Equal(t, 3, sink.Len())
	assert.Equal(t, uint64(2), c.Stats().Snapshot().Rejected)
}

func TestConsumer_RunReturnsSetupError(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	c := newConsumer(t, failingTransport{err: boom}, memsink.New(nil))
	err := c.Run(context.Background())
	require.ErrorIs(t, err, indexer.ErrTransport)
	require.ErrorIs(t, err, boom)
}

func TestConsumer_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	c := newConsumer(t, memtransport.New(1), memsink.New(nil))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after cancel")
	}
}

func TestConsumer_MissingSettlementHandler(t *testing.T) {
	t.Parallel()

	c := newConsumer(t, memtransport.New(1), memsink.New(nil))
	out := c.HandleDelivery(context.Background(), indexer.Delivery{ID: "x", Body: []byte(validBody)})
	assert.True(t, out.Accepted)
	require.ErrorIs(t, out.SettleErr, indexer.ErrAcknowledge)
}

func TestConsumer_GeneratesMissingIDs(t *testing.T) {
	t.Parallel()

	ids := &sequentialIDs{}
	c, err := New(memtransport.New(1), memsink.New(nil), Config{IDs: ids}, nil)
	require.NoError(t, err)

	c.HandleDelivery(context.Background(), indexer.Delivery{
		Body: []byte(validBody),
		Ack:  func(context.Context) error { return nil },
	})
	assert.Equal(t, 1, ids.n)

	c.HandleDelivery(context.Background(), indexer.Delivery{
		ID:   "has-id",
		Body: []byte(validBody),
		Ack:  func(context.Context) error { return nil },
	})
	assert.Equal(t, 1, ids.n)
}

func TestConsumer_SharedStats(t *testing.T) {
	t.Parallel()

	stats := &Stats{}
	c, err := New(memtransport.New(1), memsink.New(nil), Config{Stats: stats}, nil)
	require.NoError(t, err)
	assert.Same(t, stats, c.Stats())
}
