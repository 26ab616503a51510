package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/search-indexer/internal/clock/system"
	"github.com/JakeFAU/search-indexer/internal/indexer"
	"github.com/JakeFAU/search-indexer/internal/metrics"
)

var (
	// ErrUnexpectedStatus is returned when a page answers with anything but 200.
	ErrUnexpectedStatus = errors.New("unexpected status code")
	// ErrBlocked is returned for targets whose host is on the blocklist.
	ErrBlocked = errors.New("host is blocked")
)

const (
	defaultUserAgent = "search-indexer-crawler/1.0"
	defaultTimeout   = 5 * time.Second
)

// Config controls how pages are fetched.
type Config struct {
	UserAgent      string
	Timeout        time.Duration
	BlockedDomains []string
	// RespectRobots makes the collector honor robots.txt.
	RespectRobots bool
}

// Crawler fetches one page at a time and builds crawl-result messages.
type Crawler struct {
	cfg       Config
	blocklist *hostBlocklist
	clock     indexer.Clock
	logger    *zap.Logger
}

// New returns a Crawler. A nil clock uses the system clock and a nil logger
// discards output.
func New(cfg Config, clock indexer.Clock, logger *zap.Logger) *Crawler {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Crawler{
		cfg:       cfg,
		blocklist: newHostBlocklist(cfg.BlockedDomains),
		clock:     clock,
		logger:    logger,
	}
}

// Crawl fetches rawURL and returns the crawl result for it. The timestamp is
// taken after the body has been read.
func (c *Crawler) Crawl(ctx context.Context, rawURL string) (indexer.Message, error) {
	target, err := CanonicalURL(rawURL)
	if err != nil {
		return indexer.Message{}, err
	}
	u, err := url.Parse(target)
	if err != nil {
		return indexer.Message{}, fmt.Errorf("parse url: %w", err)
	}
	if c.blocklist.Blocked(u.Hostname()) {
		metrics.ObserveCrawl(target, "blocked")
		return indexer.Message{}, fmt.Errorf("%w: %s", ErrBlocked, u.Hostname())
	}
	if err := ctx.Err(); err != nil {
		return indexer.Message{}, fmt.Errorf("crawl %s: %w", target, err)
	}

	var (
		status int
		body   []byte
	)
	collector := c.newCollector()
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	collector.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	visitErr := collector.Visit(target)
	if status != 0 && status != http.StatusOK {
		metrics.ObserveCrawl(target, strconv.Itoa(status))
		return indexer.Message{}, fmt.Errorf("%w %d for %s", ErrUnexpectedStatus, status, target)
	}
	if visitErr != nil {
		metrics.ObserveCrawl(target, "error")
		return indexer.Message{}, fmt.Errorf("fetch %s: %w", target, visitErr)
	}
	if err := ctx.Err(); err != nil {
		return indexer.Message{}, fmt.Errorf("crawl %s: %w", target, err)
	}

	page := Extract(bytes.NewReader(body))
	msg := indexer.Message{
		URL:  target,
		Text: page.Text,
		Metadata: indexer.Metadata{
			Title:       page.Title,
			Description: page.Description,
			Timestamp:   c.clock.Now().UTC().Format(time.RFC3339),
			StatusCode:  http.StatusOK,
		},
	}
	metrics.ObserveCrawl(target, "ok")
	c.logger.Debug("page crawled",
		zap.String("url", target),
		zap.String("title", page.Title),
		zap.Int("text_len", len(page.Text)),
	)
	return msg, nil
}

func (c *Crawler) newCollector() *colly.Collector {
	collector := colly.NewCollector(
		colly.UserAgent(c.cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(c.cfg.Timeout)
	collector.IgnoreRobotsTxt = !c.cfg.RespectRobots
	return collector
}
