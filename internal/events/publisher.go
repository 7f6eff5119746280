// Package events publishes job lifecycle transitions.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mojiQAQ/petsphoto/internal/domain"
)

// Publisher delivers job events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event domain.JobEvent) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, domain.JobEvent) error { return nil }

// DefaultMaxLen bounds the stream length (approximate trimming).
const DefaultMaxLen = 10000

// RedisPublisher appends events to a Redis stream with XADD.
type RedisPublisher struct {
	client  redis.UniversalClient
	stream  string
	maxLen  int64
	timeout time.Duration
}

func NewRedisPublisher(client redis.UniversalClient, stream string) *RedisPublisher {
	return &RedisPublisher{client: client, stream: stream, maxLen: DefaultMaxLen, timeout: 2 * time.Second}
}

// Publish writes the event fields plus the JSON payload.
func (p *RedisPublisher) Publish(ctx context.Context, event domain.JobEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	_, err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"job_id":  event.JobID,
			"user_id": event.UserID,
			"status":  string(event.Status),
			"payload": string(payload),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

var (
	_ Publisher = Nop{}
	_ Publisher = (*RedisPublisher)(nil)
)
