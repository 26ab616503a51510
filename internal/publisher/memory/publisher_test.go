package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/JakeFAU/search-indexer/internal/indexer"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	if err := pub.Publish(context.Background(), indexer.Message{URL: "https://a"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := pub.Publish(context.Background(), indexer.Message{URL: "https://b"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	msgs := pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].URL != "https://a" || msgs[1].URL != "https://b" {
		t.Fatalf("messages not recorded in order: %+v", msgs)
	}

	msgs[0].URL = "modified"
	if pub.Messages()[0].URL == "modified" {
		t.Fatal("Messages() must return a copy")
	}
}

func TestPublisherFailures(t *testing.T) {
	t.Parallel()

	pub := New()
	boom := errors.New("boom")
	pub.FailWith(boom)
	if err := pub.Publish(context.Background(), indexer.Message{}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New().Publish(ctx, indexer.Message{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
