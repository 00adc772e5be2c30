package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// StreamChannelName is the preference key of the Redis stream channel.
const StreamChannelName = "stream"

// envelope is the record appended to the stream.
type envelope struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Message
}

// StreamChannel appends messages to a Redis stream for downstream senders (SMS, push) to consume.
type StreamChannel struct {
	rdb    *redis.Client
	stream string
}

// NewStreamChannel returns a channel appending to the named stream.
func NewStreamChannel(rdb *redis.Client, stream string) *StreamChannel {
	return &StreamChannel{rdb: rdb, stream: stream}
}

// Name returns StreamChannelName.
func (c *StreamChannel) Name() string { return StreamChannelName }

// Send appends msg to the stream as a JSON envelope with a fresh id.
func (c *StreamChannel) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Message:   msg,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: c.stream,
		Values: map[string]interface{}{"notification": payload},
	}
	if err := c.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}
