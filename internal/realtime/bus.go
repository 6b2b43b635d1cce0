package realtime

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "realtime:"

// Bus fans events out across instances over Redis pub/sub. Publish only
// writes to Redis; every instance, the publisher included, delivers to its
// local hub from Run.
type Bus struct {
	client *redis.Client
	hub    *Hub
	logger *zap.Logger
}

// NewBus creates a Bus delivering into hub.
func NewBus(client *redis.Client, hub *Hub, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{client: client, hub: hub, logger: logger}
}

// Publish implements Publisher.
func (b *Bus) Publish(ctx context.Context, topic, event string, payload any) error {
	msg, err := encode(event, payload)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelPrefix+topic, msg).Err()
}

// Run relays Redis messages to the local hub until ctx is done.
func (b *Bus) Run(ctx context.Context) error {
	sub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	b.logger.Info("realtime bus subscribed", zap.String("pattern", channelPrefix+"*"))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			b.hub.Deliver(strings.TrimPrefix(m.Channel, channelPrefix), []byte(m.Payload))
		}
	}
}

var (
	_ Publisher = (*Bus)(nil)
	_ Publisher = (*Hub)(nil)
	_ Publisher = NopPublisher{}
)
