package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"fanztrust.orchestrator/internal/clockwork"
	"fanztrust.orchestrator/internal/domain/entities"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("skip: miniredis unavailable in this environment: %v", err)
	}
	t.Cleanup(srv.Close)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	return New(client, clockwork.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestReserveFreshThenInFlight(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r1, err := s.Reserve(ctx, entities.ScopeInboundRequest, "req-1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, entities.ReservationFresh, r1.State)

	r2, err := s.Reserve(ctx, entities.ScopeInboundRequest, "req-1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, entities.ReservationInFlight, r2.State)
}

func TestCommitThenReplayReturnsSameResponse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Reserve(ctx, entities.ScopeInboundRequest, "req-2", time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.Commit(ctx, entities.ScopeInboundRequest, "req-2", []byte(`{"ok":true}`), time.Hour))

	r, err := s.Reserve(ctx, entities.ScopeInboundRequest, "req-2", time.Minute)
	require.NoError(t, err)
	require.Equal(t, entities.ReservationCommitted, r.State)
	require.JSONEq(t, `{"ok":true}`, string(r.Response))
}

func TestReleaseAllowsFreshReservation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Reserve(ctx, entities.ScopeProcessorEvent, "ev-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, entities.ScopeProcessorEvent, "ev-1"))

	r, err := s.Reserve(ctx, entities.ScopeProcessorEvent, "ev-1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, entities.ReservationFresh, r.State)
}

func TestScopesAreIndependent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Reserve(ctx, entities.ScopeInboundRequest, "same-key", time.Minute)
	require.NoError(t, err)

	r, err := s.Reserve(ctx, entities.ScopeProcessorEvent, "same-key", time.Minute)
	require.NoError(t, err)
	require.Equal(t, entities.ReservationFresh, r.State)
}
