package cmd

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/search-indexer/internal/app"
	"github.com/JakeFAU/search-indexer/internal/config"
)

// captureApp swaps the app factory and returns a pointer to the built App.
func captureApp(t *testing.T, prepare func(*app.App)) **app.App {
	t.Helper()
	var built *app.App
	orig := newApp
	newApp = func(cfg config.Config, _ *zap.Logger) *app.App {
		built = app.New(cfg, zap.NewNop())
		if prepare != nil {
			prepare(built)
		}
		return built
	}
	t.Cleanup(func() { newApp = orig })
	return &built
}

func memoryEnv(t *testing.T) {
	t.Helper()
	t.Setenv("INDEXER_TRANSPORT_KIND", "memory")
	t.Setenv("INDEXER_STORAGE_KIND", "memory")
	t.Setenv("INDEXER_PUBLISHER_KIND", "memory")
	t.Setenv("INDEXER_LOGGING_DEVELOPMENT", "false")
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestCrawlCommandPublishesToMemory(t *testing.T) {
	memoryEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Hi</title></head><body>Some TEXT</body></html>`))
	}))
	defer srv.Close()

	built := captureApp(t, nil)
	root := newRootCmd()
	root.SetArgs([]string{"crawl", srv.URL + "/a", srv.URL + "/b"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	require.NotNil(t, *built)
	msgs := (*built).MemoryPublisher().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "some text", msgs[0].Text)
	assert.Equal(t, "Hi", msgs[0].Metadata.Title)
}

func TestCrawlCommandFailsWhenNothingPublished(t *testing.T) {
	memoryEnv(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	captureApp(t, nil)
	root := newRootCmd()
	root.SetArgs([]string{"crawl", srv.URL})
	require.Error(t, root.ExecuteContext(context.Background()))
}

func TestConsumeCommandDrainsMemoryTransport(t *testing.T) {
	memoryEnv(t)
	t.Setenv("INDEXER_SERVER_PORT", strconv.Itoa(freePort(t)))

	body := `{"url":"https://example.com","text":"Hello","metadata":{"title":"t","timestamp":"2025-11-05T00:00:00Z","status_code":200}}`
	built := captureApp(t, func(a *app.App) {
		mt := a.MemoryTransport()
		_, err := mt.Send(context.Background(), []byte(body), nil)
		require.NoError(t, err)
		_, err = mt.Send(context.Background(), []byte("not json"), nil)
		require.NoError(t, err)
		mt.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	root := newRootCmd()
	root.SetArgs([]string{"consume"})
	require.NoError(t, root.ExecuteContext(ctx))

	snap := (*built).Stats().Snapshot()
	assert.EqualValues(t, 1, snap.Accepted)
	assert.EqualValues(t, 1, snap.ParseErrors)
}

func TestRootRejectsBadConfig(t *testing.T) {
	t.Setenv("INDEXER_TRANSPORT_KIND", "carrier-pigeon")
	captureApp(t, nil)
	root := newRootCmd()
	root.SetArgs([]string{"consume"})
	require.Error(t, root.ExecuteContext(context.Background()))
}
