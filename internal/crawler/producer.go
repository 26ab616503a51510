package crawler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/search-indexer/internal/indexer"
	"github.com/JakeFAU/search-indexer/internal/metrics"
)

// Fetcher crawls a single URL.
type Fetcher interface {
	Crawl(ctx context.Context, rawURL string) (indexer.Message, error)
}

// Waiter throttles requests per host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Summary counts the outcome of a producer run.
type Summary struct {
	Published int
	Failed    int
}

// Producer crawls targets and hands each result to a publisher.
type Producer struct {
	fetcher   Fetcher
	publisher indexer.Publisher
	limiter   Waiter
	logger    *zap.Logger
}

// NewProducer wires a fetcher to a publisher. limiter may be nil.
func NewProducer(fetcher Fetcher, publisher indexer.Publisher, limiter Waiter, logger *zap.Logger) (*Producer, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Producer{fetcher: fetcher, publisher: publisher, limiter: limiter, logger: logger}, nil
}

// Run crawls the targets in order. Per-target failures are logged and counted;
// the returned error joins them. Run stops early when ctx is canceled.
func (p *Producer) Run(ctx context.Context, targets []string) (Summary, error) {
	var (
		summary Summary
		errs    []error
	)
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx, target); err != nil {
				errs = append(errs, err)
				break
			}
		}
		msg, err := p.fetcher.Crawl(ctx, target)
		if err != nil {
			summary.Failed++
			errs = append(errs, fmt.Errorf("crawl %s: %w", target, err))
			p.logger.Warn("crawl failed", zap.String("url", target), zap.Error(err))
			continue
		}
		if err := p.publisher.Publish(ctx, msg); err != nil {
			summary.Failed++
			metrics.ObservePublish("error")
			errs = append(errs, fmt.Errorf("publish %s: %w", msg.URL, err))
			p.logger.Error("publish failed", zap.String("url", msg.URL), zap.Error(err))
			continue
		}
		summary.Published++
		metrics.ObservePublish("ok")
		p.logger.Info("crawl result published", zap.String("url", msg.URL))
	}
	return summary, errors.Join(errs...)
}
