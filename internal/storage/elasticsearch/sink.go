// Package elasticsearch indexes documents into an Elasticsearch index.
package elasticsearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"

	"github.com/JakeFAU/search-indexer/internal/indexer"
	"github.com/JakeFAU/search-indexer/internal/storage"
)

// Config holds connection settings.
type Config struct {
	URL           string
	APIKey        string
	Index         string
	SkipTLSVerify bool
	// Refresh is passed as the refresh parameter of each index request
	// ("true", "false" or "wait_for"); empty leaves the server default.
	Refresh string
}

// NewClient creates an Elasticsearch client.
func NewClient(cfg Config) (*elasticsearch.Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("elasticsearch url is required")
	}
	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		APIKey:    cfg.APIKey,
	}
	if cfg.SkipTLSVerify {
		esConfig.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // local development only
		}
	}
	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return client, nil
}

// Sink writes one document per message, keyed by document ID.
type Sink struct {
	client  *elasticsearch.Client
	index   string
	refresh string
	builder *storage.Builder
}

// New creates a sink writing to cfg.Index.
func New(client *elasticsearch.Client, cfg Config, builder *storage.Builder) (*Sink, error) {
	if client == nil {
		return nil, errors.New("elasticsearch client is required")
	}
	if cfg.Index == "" {
		cfg.Index = "documents"
	}
	if builder == nil {
		builder = storage.NewBuilder(nil, nil)
	}
	return &Sink{client: client, index: cfg.Index, refresh: cfg.Refresh, builder: builder}, nil
}

// Ping checks that the cluster is reachable.
func (s *Sink) Ping(ctx context.Context) error {
	res, err := s.client.Info(s.client.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("connect to elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch info: %s", res.Status())
	}
	return nil
}

// Store implements indexer.Sink. Client errors other than 429 are marked
// permanent so a retrying decorator gives up on them.
func (s *Sink) Store(ctx context.Context, msg indexer.Message) error {
	doc, err := s.builder.Build(msg)
	if err != nil {
		return err
	}
	data, err := doc.Encode()
	if err != nil {
		return err
	}

	opts := []func(*esapi.IndexRequest){
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(doc.ID),
	}
	if s.refresh != "" {
		opts = append(opts, s.client.Index.WithRefresh(s.refresh))
	}
	res, err := s.client.Index(s.index, bytes.NewReader(data), opts...)
	if err != nil {
		return fmt.Errorf("index request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		err := fmt.Errorf("index document %s: %s: %s", doc.ID, res.Status(), bytes.TrimSpace(body))
		if res.StatusCode >= 400 && res.StatusCode < 500 && res.StatusCode != http.StatusTooManyRequests {
			return storage.Permanent(err)
		}
		return err
	}
	return nil
}
