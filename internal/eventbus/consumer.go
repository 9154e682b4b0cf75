package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fanztrust.orchestrator/internal/domain/entities"
	"fanztrust.orchestrator/pkg/logger"
)

// Consumer drains one event-family stream through a consumer group,
// delivering each envelope at least once: an entry is XACKed only after the
// handler returns nil, so a crash between delivery and ack redelivers.
type Consumer struct {
	redis    *redis.Client
	stream   string
	group    string
	consumer string
	block    time.Duration
}

// NewConsumer builds a Consumer for one stream. The group is created
// idempotently on Start.
func NewConsumer(redisClient *redis.Client, stream, group, consumer string) *Consumer {
	return &Consumer{
		redis:    redisClient,
		stream:   stream,
		group:    group,
		consumer: consumer,
		block:    2 * time.Second,
	}
}

// Start loops until ctx is cancelled, handing each decoded envelope to
// handle. A handler error leaves the entry pending for redelivery.
func (c *Consumer) Start(ctx context.Context, handle func(ctx context.Context, ev entities.CanonicalEvent) error) error {
	err := c.redis.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumer,
			Streams:  []string{c.stream, ">"},
			Count:    32,
			Block:    c.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			logger.WithContext(ctx).Warn("event consumer read failed",
				zap.String("stream", c.stream), zap.Error(err))
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				raw, ok := msg.Values["envelope"].(string)
				if !ok {
					// Malformed entry; ack so it does not wedge the group.
					c.redis.XAck(ctx, c.stream, c.group, msg.ID)
					continue
				}
				var ev entities.CanonicalEvent
				if err := json.Unmarshal([]byte(raw), &ev); err != nil {
					c.redis.XAck(ctx, c.stream, c.group, msg.ID)
					continue
				}
				if err := handle(ctx, ev); err != nil {
					logger.WithContext(ctx).Warn("event handler failed, leaving pending",
						zap.String("event_id", ev.EventID), zap.Error(err))
					continue
				}
				c.redis.XAck(ctx, c.stream, c.group, msg.ID)
			}
		}
	}
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}
