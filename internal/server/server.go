// Package server runs the consumer group next to the ops HTTP server and
// handles graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/search-indexer/internal/api"
)

const shutdownTimeout = 10 * time.Second

// Runnable is a blocking unit of work that stops when ctx ends.
type Runnable interface {
	Run(ctx context.Context) error
}

// Runner owns the process lifecycle of the consume command.
type Runner struct {
	addr   string
	api    *api.Server
	work   Runnable
	logger *zap.Logger
}

// New returns a Runner serving apiServer on addr while work runs.
func New(addr string, apiServer *api.Server, work Runnable, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{addr: addr, api: apiServer, work: work, logger: logger}
}

// Run blocks until work returns or a termination signal arrives, then shuts
// the HTTP server down. The error of work is returned.
func (r *Runner) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", r.addr, err)
	}
	srv := &http.Server{
		Handler:           r.api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		r.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	r.api.SetReady(true)
	r.logger.Info("consumers started")
	workErr := r.work.Run(ctx)
	r.api.SetReady(false)
	r.logger.Info("shutdown initiated", zap.Error(workErr))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("server shutdown error", zap.Error(err))
	}

	if workErr != nil && (ctx.Err() == nil || !errors.Is(workErr, ctx.Err())) {
		return workErr
	}
	return nil
}
