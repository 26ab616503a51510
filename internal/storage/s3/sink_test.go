package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/search-indexer/internal/indexer"
)

type fakeS3API struct {
	mu       sync.Mutex
	putCalls int
	lastIn   *s3.PutObjectInput
	lastBody []byte
	putErr   error
}

func (f *fakeS3API) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls++
	f.lastIn = in
	if f.putErr != nil {
		return nil, f.putErr
	}
	if in.Body != nil {
		b, _ := io.ReadAll(in.Body)
		f.lastBody = b
	}
	return &s3.PutObjectOutput{}, nil
}

func sample() indexer.Message {
	return indexer.Message{
		URL:      "https://example.com",
		Text:     "hello",
		Metadata: indexer.Metadata{Title: "t", Timestamp: "2025-11-05T00:00:00Z", StatusCode: 200},
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"}, nil)
	require.Error(t, err)
	_, err = New(&fakeS3API{}, Config{Bucket: "  "}, nil)
	require.Error(t, err)
}

func TestStorePutsObject(t *testing.T) {
	t.Parallel()

	f := &fakeS3API{}
	sink, err := New(f, Config{Bucket: "bkt", Prefix: "/pfx/"}, nil)
	require.NoError(t, err)
	require.NoError(t, sink.Store(context.Background(), sample()))

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Equal(t, 1, f.putCalls)
	assert.Equal(t, "bkt", aws.ToString(f.lastIn.Bucket))
	assert.True(t, strings.HasPrefix(aws.ToString(f.lastIn.Key), "pfx/"))
	assert.Equal(t, "application/json", aws.ToString(f.lastIn.ContentType))
	assert.Equal(t, int64(len(f.lastBody)), aws.ToInt64(f.lastIn.ContentLength))
	assert.Contains(t, string(f.lastBody), `"text":"hello"`)
}

func TestStoreWrapsError(t *testing.T) {
	t.Parallel()

	boom := errors.New("slow down")
	sink, err := New(&fakeS3API{putErr: boom}, Config{Bucket: "bkt"}, nil)
	require.NoError(t, err)
	require.ErrorIs(t, sink.Store(context.Background(), sample()), boom)
}
