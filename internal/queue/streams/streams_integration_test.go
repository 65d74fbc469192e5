//go:build integration

package streams_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/mohammad-safakhou/docchat/internal/queue/streams"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T, ctx context.Context) *redis.Client {
	t.Helper()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("redis container: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(ctx) })
	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := c.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPublishReadAckReclaim(t *testing.T) {
	ctx := context.Background()
	client := startRedis(t, ctx)
	const stream = "document.ingest"

	pub := streams.NewPublisher(client)
	crashed := streams.NewConsumer(client, stream, "workers", "crashed")
	if err := crashed.EnsureGroup(ctx); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	if err := crashed.EnsureGroup(ctx); err != nil {
		t.Fatalf("ensure group twice: %v", err)
	}

	if _, err := pub.Publish(ctx, stream, streams.Envelope{
		EventType: "document.ingest",
		Data:      json.RawMessage(`{"document_id":"d1","text":"hello"}`),
	}, streams.WithMaxLenApprox(100)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := client.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: map[string]interface{}{"junk": "1"}}).Err(); err != nil {
		t.Fatalf("xadd junk: %v", err)
	}

	msgs, err := crashed.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Envelope.EventID == "" {
		t.Fatalf("expected the one well-formed entry, got %+v", msgs)
	}

	// never acked by "crashed"; another consumer takes it over
	time.Sleep(20 * time.Millisecond)
	survivor := streams.NewConsumer(client, stream, "workers", "survivor")
	claimed, err := survivor.Reclaim(ctx, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != msgs[0].ID {
		t.Fatalf("expected to reclaim %s got %+v", msgs[0].ID, claimed)
	}
	if err := survivor.Ack(ctx, claimed[0].ID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	pending, err := client.XPending(ctx, stream, "workers").Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("expected nothing pending got %d", pending.Count)
	}
}
