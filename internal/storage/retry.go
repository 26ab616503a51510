package storage

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/search-indexer/internal/indexer"
)

// RetryPolicy retries an operation using exponential backoff.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    bool
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Do runs fn until it succeeds, returns a permanent error, the attempts are
// exhausted or ctx ends.
func (r RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	attempts := r.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	base := r.BaseDelay
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	maxDelay := r.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	if maxDelay < base {
		maxDelay = base
	}

	var last error
	delay := base
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		last = fn(ctx)
		if last == nil || IsPermanent(last) {
			return last
		}
		if i == attempts-1 {
			break
		}

		d := delay
		if r.Jitter {
			d = time.Duration(float64(d) * (0.8 + rand.Float64()*0.4)) //nolint:gosec // jitter only
		}
		if d > maxDelay {
			d = maxDelay
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return last
}

// Retrying wraps a sink and retries failed stores.
type Retrying struct {
	next   indexer.Sink
	policy RetryPolicy
	logger *zap.Logger
}

// NewRetrying decorates next with policy.
func NewRetrying(next indexer.Sink, policy RetryPolicy, logger *zap.Logger) *Retrying {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrying{next: next, policy: policy, logger: logger}
}

// Store implements indexer.Sink.
func (r *Retrying) Store(ctx context.Context, msg indexer.Message) error {
	attempt := 0
	return r.policy.Do(ctx, func(ctx context.Context) error {
		attempt++
		err := r.next.Store(ctx, msg)
		if err != nil {
			r.logger.Warn("store attempt failed",
				zap.String("url", msg.URL),
				zap.Int("attempt", attempt),
				zap.Bool("permanent", IsPermanent(err)),
				zap.Error(err),
			)
		}
		return err
	})
}
