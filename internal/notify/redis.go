// README: Redis pub/sub notifier; presentation collaborators subscribe to refresh timelines.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "convoy:events"

type RedisPublisher struct {
	redis   *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{redis: client, channel: channel}
}

func (p *RedisPublisher) Notify(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	pipe := p.redis.Pipeline()
	pipe.Publish(ctx, p.channel, payload)
	pipe.Publish(ctx, tourChannel(p.channel, e.TourID), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", e.Kind, err)
	}
	return nil
}

func tourChannel(base string, tourID int64) string {
	return fmt.Sprintf("%s:tour:%d", base, tourID)
}
