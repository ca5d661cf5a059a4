package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/beaconbio/beacon/internal/app/model"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const liveCountKeyPrefix = "clicks:live:"

// LiveCountKey is the Redis key holding the live counter for a link.
func LiveCountKey(linkID string) string {
	return liveCountKeyPrefix + linkID
}

// LiveCounter is the slice of the Redis client the consumer writes through.
type LiveCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// LiveCountReader is the slice of the Redis client the dashboard read path
// needs.
type LiveCountReader interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

// LiveCounts reads the live counters for the given links. Links with no
// counter yet report zero.
func LiveCounts(ctx context.Context, rdb LiveCountReader, linkIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(linkIDs))
	if len(linkIDs) == 0 {
		return counts, nil
	}

	keys := make([]string, len(linkIDs))
	for i, id := range linkIDs {
		keys[i] = LiveCountKey(id)
	}

	values, err := rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("live counts: %w", err)
	}

	for i, value := range values {
		counts[linkIDs[i]] = 0
		if raw, ok := value.(string); ok {
			var n int64
			if _, err := fmt.Sscan(raw, &n); err == nil {
				counts[linkIDs[i]] = n
			}
		}
	}
	return counts, nil
}

// pullSubscription is the part of *nats.Subscription the consume loop uses.
type pullSubscription interface {
	Fetch(batch int, opts ...nats.PullOpt) ([]*nats.Msg, error)
}

// ClickConsumer consumes tracked click events from NATS JetStream and
// maintains the per-link live counters in Redis that dashboards poll.
type ClickConsumer struct {
	js      nats.JetStreamContext
	counter LiveCounter
	logger  *zap.Logger
}

// NewClickConsumer creates a new click event consumer.
func NewClickConsumer(js nats.JetStreamContext, counter LiveCounter, logger *zap.Logger) *ClickConsumer {
	return &ClickConsumer{js: js, counter: counter, logger: logger}
}

// Start ensures the stream and durable consumer exist and begins consuming.
// The consume loop runs until ctx is canceled.
func (c *ClickConsumer) Start(ctx context.Context) error {
	_, err := c.js.StreamInfo(model.ClickStreamName)
	if err != nil {
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:     model.ClickStreamName,
			Subjects: []string{model.ClickStreamSubject},
			MaxBytes: model.ClickStreamMaxBytes,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	_, err = c.js.ConsumerInfo(model.ClickStreamName, model.ClickConsumerName)
	if err != nil {
		_, err = c.js.AddConsumer(model.ClickStreamName, &nats.ConsumerConfig{
			Durable:   model.ClickConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		})
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.ClickStreamSubject, model.ClickConsumerName)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go c.consume(ctx, sub)
	return nil
}

func (c *ClickConsumer) consume(ctx context.Context, sub pullSubscription) {
	for {
		if ctx.Err() != nil {
			return
		}

		msgs, err := sub.Fetch(10, nats.MaxWait(5*time.Second))
		if err != nil && !errors.Is(err, nats.ErrTimeout) {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("failed to fetch messages", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			if err := c.process(ctx, msg.Data); err != nil {
				c.logger.Error("failed to process click event", zap.Error(err))
				msg.Nak()
				continue
			}
			msg.Ack()
		}
	}
}

// process applies one tracked click to the live counters. Bot clicks are
// stored but never shown live.
func (c *ClickConsumer) process(ctx context.Context, data []byte) error {
	var event model.ClickEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("decode click event: %w", err)
	}

	if event.IsBot {
		return nil
	}

	if err := c.counter.Incr(ctx, LiveCountKey(event.LinkID)).Err(); err != nil {
		return fmt.Errorf("bump live counter for link %s: %w", event.LinkID, err)
	}

	c.logger.Debug("live counter bumped",
		zap.String("id", event.ID),
		zap.String("link_id", event.LinkID),
		zap.Time("clicked_at", event.ClickedAt),
	)
	return nil
}
