package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/search-indexer/internal/indexer"
)

func message(url string) indexer.Message {
	return indexer.Message{
		URL:      url,
		Text:     "hello world",
		Metadata: indexer.Metadata{Title: "t", Timestamp: "2025-11-05T00:00:00Z", StatusCode: 203},
	}
}

func TestSinkStoresAndDeduplicates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sink, err := Open(ctx, filepath.Join(t.TempDir(), "docs.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })

	require.NoError(t, sink.Store(ctx, message("https://a")))
	require.NoError(t, sink.Store(ctx, message("https://b")))
	require.NoError(t, sink.Store(ctx, message("https://a")))

	n, err := sink.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var body string
	var status int
	require.NoError(t, sink.db.QueryRowContext(ctx,
		`SELECT body, status_code FROM documents WHERE url = ?`, "https://b").Scan(&body, &status))
	assert.Equal(t, "hello world", body)
	assert.Equal(t, 203, status)
}

func TestSinkKeepsDistinctMessagesForSameCrawl(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sink, err := Open(ctx, filepath.Join(t.TempDir(), "docs.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })

	first := message("https://a")
	second := message("https://a")
	second.Text = "changed body"
	require.NoError(t, sink.Store(ctx, first))
	require.NoError(t, sink.Store(ctx, second))

	n, err := sink.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOpenReusesExistingDatabase(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "docs.db")
	first, err := Open(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, first.Store(ctx, message("https://a")))
	require.NoError(t, first.Close())

	second, err := Open(ctx, path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })
	n, err := second.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "", nil)
	require.Error(t, err)
}
