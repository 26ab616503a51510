// Package gcs provides a sink backed by Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/search-indexer/internal/indexer"
	gostorage "github.com/JakeFAU/search-indexer/internal/storage"
)

// Config captures the parameters required to write to GCS.
type Config struct {
	Bucket string
	Prefix string
}

type uploader interface {
	Upload(ctx context.Context, bucket, key, contentType string, data []byte) error
}

type clientUploader struct {
	client *storage.Client
}

func (u clientUploader) Upload(ctx context.Context, bucket, key, contentType string, data []byte) error {
	writer := u.client.Bucket(bucket).Object(key).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// Sink writes one object per document to a configured GCS bucket.
type Sink struct {
	uploader uploader
	cfg      Config
	builder  *gostorage.Builder
}

// New creates a GCS-backed sink.
func New(client *storage.Client, cfg Config, builder *gostorage.Builder) (*Sink, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	return newSink(clientUploader{client: client}, cfg, builder)
}

func newSink(u uploader, cfg Config, builder *gostorage.Builder) (*Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if builder == nil {
		builder = gostorage.NewBuilder(nil, nil)
	}
	return &Sink{uploader: u, cfg: cfg, builder: builder}, nil
}

// Store implements indexer.Sink.
func (s *Sink) Store(ctx context.Context, msg indexer.Message) error {
	doc, err := s.builder.Build(msg)
	if err != nil {
		return err
	}
	data, err := doc.Encode()
	if err != nil {
		return err
	}
	key := gostorage.ObjectKey(s.cfg.Prefix, doc)
	if err := s.uploader.Upload(ctx, s.cfg.Bucket, key, gostorage.ContentType, data); err != nil {
		return fmt.Errorf("upload gs://%s/%s: %w", s.cfg.Bucket, key, err)
	}
	return nil
}
