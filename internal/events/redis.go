package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "storefront:events:"

type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	PSubscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RedisBus publishes through Redis pub/sub so subscribers on every replica see the
// event. Received events are relayed into a LocalBus that serves Subscribe.
type RedisBus struct {
	client redisClient
	local  *LocalBus
	logger *zap.Logger
}

// NewRedisBus wraps client. Call Run to start relaying.
func NewRedisBus(client redisClient, logger *zap.Logger) *RedisBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBus{client: client, local: NewLocalBus(), logger: logger.Named("events")}
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("events: parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Publish sends evt on the topic channel. When Redis is unreachable the event is
// still delivered to local subscribers.
func (b *RedisBus) Publish(ctx context.Context, evt Event) error {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("events: encode: %w", err)
	}
	if err := b.client.Publish(ctx, channelPrefix+evt.Topic, payload).Err(); err != nil {
		_ = b.local.Publish(ctx, evt)
		return fmt.Errorf("events: redis publish: %w", err)
	}
	return nil
}

// Subscribe registers a local subscriber.
func (b *RedisBus) Subscribe(topic string) *Subscription {
	return b.local.Subscribe(topic)
}

// Run relays Redis messages into the local bus until ctx is done.
func (b *RedisBus) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()
	b.relay(ctx, pubsub.Channel())
	b.local.Close()
	return ctx.Err()
}

func (b *RedisBus) relay(ctx context.Context, messages <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.logger.Warn("events: dropping malformed message", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if evt.Topic == "" {
				evt.Topic = strings.TrimPrefix(msg.Channel, channelPrefix)
			}
			_ = b.local.Publish(ctx, evt)
		}
	}
}
