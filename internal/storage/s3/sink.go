// Package s3 writes documents to an Amazon S3 bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/JakeFAU/search-indexer/internal/indexer"
	"github.com/JakeFAU/search-indexer/internal/storage"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config names the target bucket.
type Config struct {
	Bucket string
	Prefix string
}

// Sink puts one object per document.
type Sink struct {
	client  s3API
	bucket  string
	prefix  string
	builder *storage.Builder
}

// New creates an S3-backed sink.
func New(client s3API, cfg Config, builder *storage.Builder) (*Sink, error) {
	if client == nil {
		return nil, errors.New("s3 client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("bucket is required")
	}
	if builder == nil {
		builder = storage.NewBuilder(nil, nil)
	}
	return &Sink{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		builder: builder,
	}, nil
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

	key := storage.ObjectKey(s.prefix, doc)
	contentType := storage.ContentType
	length := int64(len(data))
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &key,
		Body:          bytes.NewReader(data),
		ContentLength: &length,
		ContentType:   &contentType,
	})
	if err != nil {
		return fmt.Errorf("put s3 object key=%q: %w", key, err)
	}
	return nil
}
