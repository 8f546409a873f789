package memory

import (
	"context"
	"testing"

	"github.com/econradar/autodiscovery/internal/discovery"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "discovery.outcome", discovery.Outcome{Key: "indec-ipc"})
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := pub.Publish(context.Background(), "discovery.outcome", discovery.Outcome{Key: "bcra-rem"})
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	msgs := pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	outcome, ok := msgs[0].Payload.(discovery.Outcome)
	if !ok || outcome.Key != "indec-ipc" {
		t.Fatalf("payload not recorded correctly: %+v", msgs[0])
	}

	msgs[0].Topic = "modified"
	if pub.Messages()[0].Topic == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
}
