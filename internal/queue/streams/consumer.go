package streams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Consumer reads envelopes from one stream through a consumer group.
type Consumer struct {
	client *redis.Client
	stream string
	group  string
	name   string
	block  time.Duration
	count  int64
	logger *log.Logger
}

func NewConsumer(client *redis.Client, stream, group, name string) *Consumer {
	return &Consumer{
		client: client,
		stream: stream,
		group:  group,
		name:   name,
		block:  5 * time.Second,
		count:  16,
		logger: log.New(log.Writer(), "[STREAMS] ", log.LstdFlags),
	}
}

// EnsureGroup creates the consumer group, and the stream with it, if it does not exist.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	if c.stream == "" || c.group == "" {
		return fmt.Errorf("stream and group must be provided")
	}
	if err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err(); err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return fmt.Errorf("xgroup create: %w", err)
	}
	return nil
}

// Message is a consumed stream entry.
type Message struct {
	ID       string
	Envelope Envelope
}

// Read blocks for new entries delivered to this consumer. A timeout with nothing
// to deliver returns no messages and no error.
func (c *Consumer) Read(ctx context.Context) ([]Message, error) {
	if c.group == "" || c.name == "" {
		return nil, fmt.Errorf("consumer group and name must be configured")
	}
	res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.stream, ">"},
		Count:    c.count,
		Block:    c.block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}

	var out []Message
	for _, st := range res {
		out = append(out, c.decodeAll(ctx, st.Messages)...)
	}
	return out, nil
}

// Ack acknowledges processing of the provided message IDs.
func (c *Consumer) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.client.XAck(ctx, c.stream, c.group, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// Reclaim takes over entries another consumer read but never acknowledged
// within minIdle, typically because it crashed mid-job.
func (c *Consumer) Reclaim(ctx context.Context, minIdle time.Duration) ([]Message, error) {
	var out []Message
	start := "0-0"
	for {
		msgs, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.stream,
			Group:    c.group,
			Consumer: c.name,
			MinIdle:  minIdle,
			Start:    start,
			Count:    c.count,
		}).Result()
		if err != nil {
			return out, fmt.Errorf("xautoclaim: %w", err)
		}
		out = append(out, c.decodeAll(ctx, msgs)...)
		if next == "" || next == "0-0" {
			return out, nil
		}
		start = next
	}
}

// decodeAll drops and acknowledges entries that cannot be decoded; redelivering them would never succeed.
func (c *Consumer) decodeAll(ctx context.Context, msgs []redis.XMessage) []Message {
	out := make([]Message, 0, len(msgs))
	for _, msg := range msgs {
		env, err := decodeValues(msg.Values)
		if err != nil {
			c.logger.Printf("warn: dropping malformed entry %s on %s: %v", msg.ID, c.stream, err)
			_ = c.client.XAck(ctx, c.stream, c.group, msg.ID).Err()
			continue
		}
		out = append(out, Message{ID: msg.ID, Envelope: env})
	}
	return out
}

func decodeValues(values map[string]interface{}) (Envelope, error) {
	raw, ok := values["envelope"]
	if !ok {
		return Envelope{}, fmt.Errorf("missing envelope field")
	}
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return Envelope{}, err
		}
		data = b
	}
	return UnmarshalEnvelope(data)
}
