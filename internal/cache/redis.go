// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LobbyEventRecord is the envelope pushed onto the event queue for
// out-of-process consumers (audit, analytics, the renderer refresher).
type LobbyEventRecord struct {
	EventID   string                 `json:"event_id"`
	EventType string                 `json:"event_type"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp int64                  `json:"timestamp"`
}

// Publisher pushes lobby lifecycle events onto a Redis list. It implements
// lobby.EventPublisher; the core treats every push as best-effort.
type Publisher struct {
	rdb   *redis.Client
	queue string
}

// Connect initializes the Redis client and verifies it with a short ping.
func Connect(addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// NewPublisher wraps a connected client and a queue (list) name.
func NewPublisher(rdb *redis.Client, queue string) *Publisher {
	return &Publisher{rdb: rdb, queue: queue}
}

// Publish serializes the event and RPushes it onto the queue. This does not
// block the calling logic beyond a quick network send.
func (p *Publisher) Publish(ctx context.Context, event string, payload map[string]interface{}) error {
	record := LobbyEventRecord{
		EventID:   uuid.NewString(),
		EventType: event,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal LobbyEventRecord: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queue, err)
	}
	return nil
}
