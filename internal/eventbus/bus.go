// Package eventbus fans canonical domain events out to in-process
// subscribers and to an out-of-process Redis Stream per event family.
// In-process delivery is synchronous and ordered within one
// logical action; out-of-process delivery is at-least-once via XADD into a
// stream consumers read with consumer groups.
package eventbus

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fanztrust.orchestrator/internal/clockwork"
	"fanztrust.orchestrator/internal/domain/entities"
	"fanztrust.orchestrator/internal/metrics"
	"fanztrust.orchestrator/pkg/logger"
)

const schemaVersion = 1

// Subscriber receives in-process events. Handlers run synchronously on the
// publisher's goroutine, so within one logical action subscribers observe
// events in emission order.
type Subscriber func(ctx context.Context, ev entities.CanonicalEvent)

// Bus is the two-sink event bus (C10).
type Bus struct {
	mu          sync.RWMutex
	subscribers map[entities.EventType][]Subscriber
	all         []Subscriber

	redis     *redis.Client
	streamCap int64
	highWater int64
	clock     clockwork.Clock
	source    string
}

// New builds a Bus. redis may be nil, in which case only the in-process
// sink is active (tests, cmd/reconcile).
func New(redisClient *redis.Client, clock clockwork.Clock, source string) *Bus {
	return &Bus{
		subscribers: make(map[entities.EventType][]Subscriber),
		redis:       redisClient,
		streamCap:   100_000,
		highWater:   50_000,
		clock:       clock,
		source:      source,
	}
}

// Subscribe registers an in-process handler for one event type.
func (b *Bus) Subscribe(t entities.EventType, s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[t] = append(b.subscribers[t], s)
}

// SubscribeAll registers an in-process handler for every event type.
func (b *Bus) SubscribeAll(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, s)
}

// StreamFor maps an event type to its out-of-process stream, one stream per
// event family: "events:payment", "events:refund", etc.
func StreamFor(t entities.EventType) string {
	family := string(t)
	if i := strings.IndexByte(family, '.'); i > 0 {
		family = family[:i]
	}
	return "events:" + family
}

// Publish emits one canonical event to both sinks. The in-process fan-out
// always runs; the out-of-process publish is best-effort at the call site
// and relies on the stream's at-least-once consumer semantics downstream.
// Returns the event as published so callers can log the event id.
func (b *Bus) Publish(ctx context.Context, t entities.EventType, subject string, data interface{}) (entities.CanonicalEvent, error) {
	ev := entities.CanonicalEvent{
		EventID:       uuid.NewString(),
		EventType:     t,
		OccurredAt:    b.clock.Now().UTC(),
		Subject:       subject,
		Data:          data,
		Source:        b.source,
		SchemaVersion: schemaVersion,
	}

	b.mu.RLock()
	subs := append([]Subscriber(nil), b.all...)
	subs = append(subs, b.subscribers[t]...)
	b.mu.RUnlock()

	for _, s := range subs {
		s(ctx, ev)
	}

	if b.redis == nil {
		return ev, nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return ev, err
	}
	err = b.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamFor(t),
		MaxLen: b.streamCap,
		Approx: true,
		Values: map[string]interface{}{"envelope": payload},
	}).Err()
	if err != nil {
		logger.WithContext(ctx).Error("outbound event publish failed",
			zap.String("event_type", string(t)), zap.String("event_id", ev.EventID), zap.Error(err))
		return ev, err
	}
	return ev, nil
}

// OutboundDepth reports the length of one family's outbound stream, used by
// the orchestrator's backpressure check.
func (b *Bus) OutboundDepth(ctx context.Context, t entities.EventType) int64 {
	if b.redis == nil {
		return 0
	}
	n, err := b.redis.XLen(ctx, StreamFor(t)).Result()
	if err != nil {
		return 0
	}
	metrics.EventOutboundDepth.WithLabelValues(StreamFor(t)).Set(float64(n))
	return n
}

// Overloaded reports whether any outbound stream has crossed the high-water
// mark. Checked on the payment fast path only for non-urgent requests.
func (b *Bus) Overloaded(ctx context.Context) bool {
	if b.redis == nil {
		return false
	}
	for _, t := range []entities.EventType{entities.EventPaymentCaptured, entities.EventPayoutSent, entities.EventRefundProcessed} {
		if b.OutboundDepth(ctx, t) > b.highWater {
			return true
		}
	}
	return false
}

// SetHighWater overrides the outbound buffer high-water mark.
func (b *Bus) SetHighWater(n int64) { b.highWater = n }
