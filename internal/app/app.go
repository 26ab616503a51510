// Package app builds the long-lived services of the indexer from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	gcsclient "cloud.google.com/go/storage"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/search-indexer/internal/clock/system"
	"github.com/JakeFAU/search-indexer/internal/config"
	"github.com/JakeFAU/search-indexer/internal/consumer"
	"github.com/JakeFAU/search-indexer/internal/crawler"
	"github.com/JakeFAU/search-indexer/internal/hash/sha256"
	"github.com/JakeFAU/search-indexer/internal/id/uuid"
	"github.com/JakeFAU/search-indexer/internal/indexer"
	"github.com/JakeFAU/search-indexer/internal/policy/ratelimit"
	amqppub "github.com/JakeFAU/search-indexer/internal/publisher/amqp"
	mempub "github.com/JakeFAU/search-indexer/internal/publisher/memory"
	pubsubpub "github.com/JakeFAU/search-indexer/internal/publisher/pubsub"
	"github.com/JakeFAU/search-indexer/internal/storage"
	"github.com/JakeFAU/search-indexer/internal/storage/elasticsearch"
	"github.com/JakeFAU/search-indexer/internal/storage/gcs"
	"github.com/JakeFAU/search-indexer/internal/storage/local"
	memsink "github.com/JakeFAU/search-indexer/internal/storage/memory"
	"github.com/JakeFAU/search-indexer/internal/storage/postgres"
	s3sink "github.com/JakeFAU/search-indexer/internal/storage/s3"
	"github.com/JakeFAU/search-indexer/internal/storage/sqlite"
	"github.com/JakeFAU/search-indexer/internal/telemetry"
	amqptransport "github.com/JakeFAU/search-indexer/internal/transport/amqp"
	memtransport "github.com/JakeFAU/search-indexer/internal/transport/memory"
	pubsubtransport "github.com/JakeFAU/search-indexer/internal/transport/pubsub"
	sqstransport "github.com/JakeFAU/search-indexer/internal/transport/sqs"
)

// memoryCapacity bounds the in-process queue used by the memory transport.
const memoryCapacity = 1024

// App holds the shared services for one process. It is not safe to build
// services concurrently.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	stats  *consumer.Stats

	pubsubClient *pubsub.Client
	memTransport *memtransport.Transport
	memPublisher *mempub.Publisher
	tracer       *sdktrace.TracerProvider

	mu      sync.Mutex
	closers []func() error
}

// New returns an App for cfg. Nothing is connected until a service is requested.
func New(cfg config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		cfg:    cfg,
		logger: logger,
		stats:  &consumer.Stats{},
	}
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Stats returns the counters shared by every consumer built by the App.
func (a *App) Stats() *consumer.Stats {
	return a.stats
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

func (a *App) onClose(fn func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, fn)
}

// Close releases every connection opened by the App, newest first.
func (a *App) Close() error {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InitTracing installs the global tracer provider when tracing is enabled.
func (a *App) InitTracing(ctx context.Context) error {
	if !a.cfg.Tracing.Enabled || a.tracer != nil {
		return nil
	}
	tp, err := telemetry.InitTracerProvider(ctx, a.cfg.Tracing.ServiceName)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.tracer = tp
	a.onClose(func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tp.Shutdown(shutdownCtx)
	})
	return nil
}

// MemoryTransport returns the in-process transport, creating it on first use.
func (a *App) MemoryTransport() *memtransport.Transport {
	if a.memTransport == nil {
		a.memTransport = memtransport.New(memoryCapacity)
		a.onClose(func() error {
			a.memTransport.Close()
			return nil
		})
	}
	return a.memTransport
}

// MemoryPublisher returns the in-process publisher, creating it on first use.
func (a *App) MemoryPublisher() *mempub.Publisher {
	if a.memPublisher == nil {
		a.memPublisher = mempub.New()
	}
	return a.memPublisher
}

func (a *App) pubsub(ctx context.Context) (*pubsub.Client, error) {
	if a.pubsubClient != nil {
		return a.pubsubClient, nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.Transport.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	a.pubsubClient = client
	a.onClose(client.Close)
	return client, nil
}

// Transports returns one transport per consumer instance. Pub/Sub needs a
// subscription handle per receiver; the other kinds share a single transport
// and open one stream per Deliveries call.
func (a *App) Transports(ctx context.Context, n int) ([]indexer.Transport, error) {
	tc := a.cfg.Transport
	switch tc.Kind {
	case config.TransportMemory:
		return repeat(a.MemoryTransport(), n), nil
	case config.TransportAMQP:
		a.logger.Info("connecting to amqp", zap.String("queue", tc.AMQP.Queue))
		t, err := amqptransport.Dial(amqptransport.Config{
			URL:             tc.AMQP.URL,
			Queue:           tc.AMQP.Queue,
			ConsumerTag:     tc.AMQP.ConsumerTag,
			Durable:         tc.AMQP.Durable,
			Prefetch:        tc.AMQP.Prefetch,
			RequeueOnReject: tc.AMQP.RequeueOnReject,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init amqp transport: %w", err)
		}
		a.onClose(t.Close)
		return repeat(t, n), nil
	case config.TransportPubSub:
		client, err := a.pubsub(ctx)
		if err != nil {
			return nil, err
		}
		a.logger.Info("using pubsub subscription", zap.String("subscription", tc.PubSub.Subscription))
		out := make([]indexer.Transport, 0, n)
		for range n {
			t, err := pubsubtransport.New(client, tc.PubSub.Subscription, a.logger)
			if err != nil {
				return nil, fmt.Errorf("init pubsub transport: %w", err)
			}
			out = append(out, t)
		}
		return out, nil
	case config.TransportSQS:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(tc.SQS.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		sqsCfg := sqstransport.DefaultConfig
		sqsCfg.QueueURL = tc.SQS.QueueURL
		sqsCfg.WaitTimeSeconds = tc.SQS.WaitTimeSeconds
		sqsCfg.MaxMessages = tc.SQS.MaxMessages
		sqsCfg.VisibilityTimeout = tc.SQS.VisibilityTimeout
		sqsCfg.NackVisibilitySeconds = tc.SQS.NackVisibilitySeconds
		a.logger.Info("using sqs queue", zap.String("queue_url", tc.SQS.QueueURL))
		t, err := sqstransport.New(awssqs.NewFromConfig(awsCfg), sqsCfg, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init sqs transport: %w", err)
		}
		return repeat(t, n), nil
	default:
		return nil, fmt.Errorf("unknown transport kind: %s", tc.Kind)
	}
}

func repeat(t indexer.Transport, n int) []indexer.Transport {
	out := make([]indexer.Transport, n)
	for i := range out {
		out[i] = t
	}
	return out
}

// Sink builds the configured storage backend, wrapped with the retry policy.
func (a *App) Sink(ctx context.Context) (indexer.Sink, error) {
	base, err := a.baseSink(ctx)
	if err != nil {
		return nil, err
	}
	policy := storage.RetryPolicy{
		Attempts:  a.cfg.Storage.Retry.Attempts,
		BaseDelay: a.cfg.RetryBaseDelay(),
		MaxDelay:  a.cfg.RetryMaxDelay(),
		Jitter:    a.cfg.Storage.Retry.Jitter,
	}
	if policy.Attempts <= 1 {
		return base, nil
	}
	return storage.NewRetrying(base, policy, a.logger), nil
}

func (a *App) baseSink(ctx context.Context) (indexer.Sink, error) {
	sc := a.cfg.Storage
	builder := storage.NewBuilder(sha256.New(), system.New())
	a.logger.Info("initializing storage", zap.String("kind", sc.Kind))

	switch sc.Kind {
	case config.StorageMemory:
		return memsink.New(builder), nil
	case config.StorageLocal:
		sink, err := local.New(local.Config{BaseDir: sc.LocalDir, Prefix: sc.Prefix}, builder)
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		return sink, nil
	case config.StorageGCS:
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.onClose(client.Close)
		sink, err := gcs.New(client, gcs.Config{Bucket: sc.Bucket, Prefix: sc.Prefix}, builder)
		if err != nil {
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		return sink, nil
	case config.StorageS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(sc.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		sink, err := s3sink.New(awss3.NewFromConfig(awsCfg), s3sink.Config{Bucket: sc.Bucket, Prefix: sc.Prefix}, builder)
		if err != nil {
			return nil, fmt.Errorf("init s3 storage: %w", err)
		}
		return sink, nil
	case config.StoragePostgres:
		pg := sc.Postgres
		store, err := postgres.NewDocumentStore(ctx, postgres.Config{
			DSN:             pg.DSN,
			Table:           pg.Table,
			MaxConns:        pg.MaxConns,
			MinConns:        pg.MinConns,
			MaxConnLifetime: time.Duration(pg.MaxConnLifetimeMinutes) * time.Minute,
			CreateTable:     pg.CreateTable,
		}, builder)
		if err != nil {
			return nil, fmt.Errorf("init postgres storage: %w", err)
		}
		a.onClose(func() error {
			store.Close()
			return nil
		})
		return store, nil
	case config.StorageElasticsearch:
		esCfg := elasticsearch.Config{
			URL:           sc.Elasticsearch.URL,
			APIKey:        sc.Elasticsearch.APIKey,
			Index:         sc.Elasticsearch.Index,
			SkipTLSVerify: sc.Elasticsearch.SkipTLSVerify,
			Refresh:       sc.Elasticsearch.Refresh,
		}
		client, err := elasticsearch.NewClient(esCfg)
		if err != nil {
			return nil, fmt.Errorf("create elasticsearch client: %w", err)
		}
		sink, err := elasticsearch.New(client, esCfg, builder)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch storage: %w", err)
		}
		return sink, nil
	case config.StorageSQLite:
		sink, err := sqlite.Open(ctx, sc.SQLitePath, builder)
		if err != nil {
			return nil, fmt.Errorf("init sqlite storage: %w", err)
		}
		a.onClose(sink.Close)
		return sink, nil
	default:
		return nil, fmt.Errorf("unknown storage kind: %s", sc.Kind)
	}
}

// ConsumerGroup builds the configured number of consumers over one sink.
func (a *App) ConsumerGroup(ctx context.Context) (*consumer.Group, error) {
	n := a.cfg.Consumer.Instances
	if n <= 0 {
		n = 1
	}
	sink, err := a.Sink(ctx)
	if err != nil {
		return nil, err
	}
	transports, err := a.Transports(ctx, n)
	if err != nil {
		return nil, err
	}
	consumers := make([]*consumer.Consumer, 0, n)
	for i, t := range transports {
		c, err := consumer.New(t, sink, consumer.Config{
			Name:  fmt.Sprintf("%s-%d", a.cfg.Consumer.Name, i),
			Stats: a.stats,
			IDs:   uuid.New(),
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("build consumer %d: %w", i, err)
		}
		consumers = append(consumers, c)
	}
	return consumer.NewGroup(consumers...), nil
}

// Publisher builds the configured crawl-result publisher.
func (a *App) Publisher(ctx context.Context) (indexer.Publisher, error) {
	switch a.cfg.Publisher.Kind {
	case config.PublisherMemory:
		return a.MemoryPublisher(), nil
	case config.PublisherAMQP:
		amqpCfg := a.cfg.Transport.AMQP
		pub, err := amqppub.Dial(amqppub.Config{URL: amqpCfg.URL, Queue: amqpCfg.Queue, Durable: amqpCfg.Durable})
		if err != nil {
			return nil, fmt.Errorf("init amqp publisher: %w", err)
		}
		a.onClose(pub.Close)
		return pub, nil
	case config.PublisherPubSub:
		client, err := a.pubsub(ctx)
		if err != nil {
			return nil, err
		}
		pub, err := pubsubpub.New(client, a.cfg.Transport.PubSub.Topic)
		if err != nil {
			return nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.onClose(func() error {
			pub.Stop()
			return nil
		})
		return pub, nil
	default:
		return nil, fmt.Errorf("unknown publisher kind: %s", a.cfg.Publisher.Kind)
	}
}

// Crawler builds the page crawler.
func (a *App) Crawler() *crawler.Crawler {
	return crawler.New(crawler.Config{
		UserAgent:      a.cfg.Crawler.UserAgent,
		Timeout:        a.cfg.CrawlTimeout(),
		BlockedDomains: a.cfg.Crawler.BlockedDomains,
		RespectRobots:  a.cfg.Crawler.RespectRobots,
	}, system.New(), a.logger)
}

// Producer wires the crawler to the configured publisher.
func (a *App) Producer(ctx context.Context) (*crawler.Producer, error) {
	pub, err := a.Publisher(ctx)
	if err != nil {
		return nil, err
	}
	limiter := ratelimit.New(ratelimit.Config{
		RPS:   a.cfg.Crawler.RatePerHost,
		Burst: a.cfg.Crawler.BurstPerHost,
	})
	return crawler.NewProducer(a.Crawler(), pub, limiter, a.logger)
}
