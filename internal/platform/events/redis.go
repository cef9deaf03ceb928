package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const DefaultChannel = "medikore:queue-events"

// RedisPublisher sends events to a Redis pub/sub channel so that every
// instance can relay them to its own websocket clients.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisPublisher(client redis.UniversalClient, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Relay copies events from a Redis channel into a local Broadcaster.
type Relay struct {
	sub    *redis.PubSub
	dst    Broadcaster
	logger zerolog.Logger
}

// NewRelay subscribes to channel and returns once Redis has confirmed the
// subscription.
func NewRelay(ctx context.Context, client redis.UniversalClient, channel string, dst Broadcaster, logger zerolog.Logger) (*Relay, error) {
	if channel == "" {
		channel = DefaultChannel
	}
	sub := client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	return &Relay{
		sub:    sub,
		dst:    dst,
		logger: logger.With().Str("component", "events.relay").Str("channel", channel).Logger(),
	}, nil
}

// Run forwards messages until ctx is done or the subscription is closed.
func (r *Relay) Run(ctx context.Context) error {
	ch := r.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				r.logger.Warn().Err(err).Msg("dropping malformed event")
				continue
			}
			r.dst.Broadcast(e.Topic, e)
		}
	}
}

func (r *Relay) Close() error {
	return r.sub.Close()
}
