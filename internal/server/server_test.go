package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/search-indexer/internal/api"
)

type runFunc func(ctx context.Context) error

func (f runFunc) Run(ctx context.Context) error { return f(ctx) }

func TestRunReturnsWhenWorkFinishes(t *testing.T) {
	apiServer := api.NewServer(nil, nil, zap.NewNop())
	var readyDuringWork bool
	r := New("127.0.0.1:0", apiServer, runFunc(func(context.Context) error {
		readyDuringWork = true
		return nil
	}), zap.NewNop())

	require.NoError(t, r.Run(context.Background()))
	require.True(t, readyDuringWork)
}

func TestRunPropagatesWorkError(t *testing.T) {
	boom := errors.New("transport setup failed")
	r := New("127.0.0.1:0", api.NewServer(nil, nil, nil), runFunc(func(context.Context) error {
		return boom
	}), nil)

	require.ErrorIs(t, r.Run(context.Background()), boom)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	r := New("127.0.0.1:0", api.NewServer(nil, nil, nil), runFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), nil)

	require.NoError(t, r.Run(ctx))
}

func TestRunListenError(t *testing.T) {
	r := New("bad-address", api.NewServer(nil, nil, nil), runFunc(func(context.Context) error { return nil }), nil)
	require.Error(t, r.Run(context.Background()))
}
