// Package idempotency deduplicates inbound requests and processor events.
// It is backed by Redis in production (SETNX for reservation, GET for
// replay), and by miniredis in tests.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fanztrust.orchestrator/internal/clockwork"
	"fanztrust.orchestrator/internal/domain/entities"
	"fanztrust.orchestrator/pkg/logger"
)

// Reservation is the outcome of Reserve.
type Reservation struct {
	State    entities.ReservationState
	Response []byte // populated when State == ReservationCommitted
}

// Store reserves and commits idempotency keys scoped by (scope, key).
type Store struct {
	client *redis.Client
	clock  clockwork.Clock
}

// New wraps an existing redis client (redisx.GetClient() in production).
func New(client *redis.Client, clock clockwork.Clock) *Store {
	return &Store{client: client, clock: clock}
}

type record struct {
	State       entities.ReservationState `json:"state"`
	FirstSeenAt time.Time                 `json:"firstSeenAt"`
	Response    json.RawMessage           `json:"response,omitempty"`
}

func redisKey(scope entities.IdempotencyScope, key string) string {
	return "idem:" + string(scope) + ":" + key
}

// Reserve attempts to claim (scope, key) for ttl. It returns ReservationFresh
// if the caller now holds the reservation, ReservationInFlight if another
// worker holds it (caller must back off with jitter), or
// ReservationCommitted with the stored response if a prior call already
// finished.
func (s *Store) Reserve(ctx context.Context, scope entities.IdempotencyScope, key string, ttl time.Duration) (Reservation, error) {
	rk := redisKey(scope, key)
	rec := record{State: entities.ReservationInFlight, FirstSeenAt: s.clock.Now()}
	payload, err := json.Marshal(rec)
	if err != nil {
		return Reservation{}, err
	}

	ok, err := s.client.SetNX(ctx, rk, payload, ttl).Result()
	if err != nil {
		return Reservation{}, err
	}
	if ok {
		logger.WithContext(ctx).Debug("idempotency key reserved", zap.String("scope", string(scope)), zap.String("key", key))
		return Reservation{State: entities.ReservationFresh}, nil
	}

	raw, err := s.client.Get(ctx, rk).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Lost the race between SETNX failing and the key expiring; treat
			// as fresh since nothing is actually held now.
			return s.Reserve(ctx, scope, key, ttl)
		}
		return Reservation{}, err
	}
	var existing record
	if err := json.Unmarshal([]byte(raw), &existing); err != nil {
		return Reservation{}, err
	}
	if existing.State == entities.ReservationCommitted {
		return Reservation{State: entities.ReservationCommitted, Response: existing.Response}, nil
	}
	return Reservation{State: entities.ReservationInFlight}, nil
}

// Commit finalizes a previously reserved key with its response envelope,
// retained for the lifetime of ttl so replays return a byte-identical
// response.
func (s *Store) Commit(ctx context.Context, scope entities.IdempotencyScope, key string, response []byte, ttl time.Duration) error {
	rk := redisKey(scope, key)
	rec := record{State: entities.ReservationCommitted, FirstSeenAt: s.clock.Now(), Response: response}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, rk, payload, ttl).Err()
}

// Release drops a reservation without committing, used when the reserved
// action fails before producing a response so a retry can proceed fresh.
func (s *Store) Release(ctx context.Context, scope entities.IdempotencyScope, key string) error {
	return s.client.Del(ctx, redisKey(scope, key)).Err()
}
