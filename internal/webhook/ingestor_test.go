package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanztrust.orchestrator/internal/clockwork"
	"fanztrust.orchestrator/internal/config"
	"fanztrust.orchestrator/internal/domain/entities"
	"fanztrust.orchestrator/internal/idempotency"
	"fanztrust.orchestrator/internal/processor"
	"fanztrust.orchestrator/pkg/logger"
)

func init() {
	logger.Init("development")
}

const testSecret = "whsec-test"

// verifyOnlyAdapter implements just enough of processor.Adapter for
// ingestion tests: real signature verification, no outbound calls.
type verifyOnlyAdapter struct {
	name string
}

func (a verifyOnlyAdapter) Name() string { return a.name }

func (a verifyOnlyAdapter) Authorize(context.Context, processor.AuthorizeRequest) (processor.AuthorizeResult, error) {
	return processor.AuthorizeResult{}, nil
}
func (a verifyOnlyAdapter) Capture(context.Context, processor.CaptureRequest) (processor.CaptureResult, error) {
	return processor.CaptureResult{}, nil
}
func (a verifyOnlyAdapter) Refund(context.Context, processor.RefundRequest) (processor.RefundResult, error) {
	return processor.RefundResult{}, nil
}
func (a verifyOnlyAdapter) Void(context.Context, processor.VoidRequest) error { return nil }
func (a verifyOnlyAdapter) PayoutSend(context.Context, processor.PayoutSendRequest) (processor.PayoutSendResult, error) {
	return processor.PayoutSendResult{}, nil
}
func (a verifyOnlyAdapter) WebhookVerify(sig, ts string, body []byte, tolerance time.Duration, now time.Time) error {
	return processor.VerifySignature([]byte(testSecret), sig, ts, body, tolerance, now)
}
func (a verifyOnlyAdapter) SettlementFetch(context.Context, time.Time, time.Time) ([]entities.SettlementLine, error) {
	return nil, nil
}

type countingApplier struct {
	mu     sync.Mutex
	events []entities.CanonicalWebhookEvent
	err    error
}

func (c *countingApplier) ApplyWebhookEvent(_ context.Context, ev entities.CanonicalWebhookEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *countingApplier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

type testRig struct {
	ingestor *Ingestor
	applier  *countingApplier
	clock    *clockwork.FakeClock
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clock := clockwork.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	registry := processor.NewRegistry(config.CircuitConfig{ErrorRatio: 0.5, MinRequests: 10, Window: 30 * time.Second}, clock,
		verifyOnlyAdapter{name: "ccbill"})

	applier := &countingApplier{}
	ingestor := NewIngestor(registry, idempotency.New(redisClient, clock), applier, nil,
		config.WebhookConfig{ToleranceSeconds: 300}, clock)
	return &testRig{ingestor: ingestor, applier: applier, clock: clock}
}

func (r *testRig) signedWebhook(t *testing.T, payload map[string]interface{}) entities.InboundWebhook {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	ts := r.clock.Now().Unix()
	return entities.InboundWebhook{
		Processor:       "ccbill",
		RawBody:         body,
		SignatureHeader: processor.SignPayload([]byte(testSecret), ts, body),
		TimestampHeader: strconv.FormatInt(ts, 10),
		ContentType:     "application/json",
	}
}

func capturePayload(eventID string) map[string]interface{} {
	return map[string]interface{}{
		"event_id":     eventID,
		"event_type":   "capture_ok",
		"tx_ref":       "11111111-2222-3333-4444-555555555555",
		"amount_minor": 1000,
		"currency":     "USD",
		"timestamp":    1748779200,
	}
}

func TestIngestAcceptsValidWebhook(t *testing.T) {
	rig := newTestRig(t)
	status := rig.ingestor.Ingest(context.Background(), rig.signedWebhook(t, capturePayload("evt-1")))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, rig.applier.count())
}

func TestIngestDuplicateDeliveryHasNoSecondEffect(t *testing.T) {
	rig := newTestRig(t)
	hook := rig.signedWebhook(t, capturePayload("evt-dup"))

	require.Equal(t, http.StatusOK, rig.ingestor.Ingest(context.Background(), hook))
	require.Equal(t, http.StatusOK, rig.ingestor.Ingest(context.Background(), hook))

	assert.Equal(t, 1, rig.applier.count(), "second delivery must be a pure ack")
}

func TestIngestRejectsBadSignature(t *testing.T) {
	rig := newTestRig(t)
	hook := rig.signedWebhook(t, capturePayload("evt-sig"))
	hook.SignatureHeader = "sha256=deadbeef"

	status := rig.ingestor.Ingest(context.Background(), hook)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Zero(t, rig.applier.count())
}

func TestIngestRejectsStaleTimestamp(t *testing.T) {
	rig := newTestRig(t)
	body, err := json.Marshal(capturePayload("evt-stale"))
	require.NoError(t, err)
	staleTS := rig.clock.Now().Add(-10 * time.Minute).Unix()
	hook := entities.InboundWebhook{
		Processor:       "ccbill",
		RawBody:         body,
		SignatureHeader: processor.SignPayload([]byte(testSecret), staleTS, body),
		TimestampHeader: strconv.FormatInt(staleTS, 10),
		ContentType:     "application/json",
	}

	status := rig.ingestor.Ingest(context.Background(), hook)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestIngestRejectsMalformedBody(t *testing.T) {
	rig := newTestRig(t)
	body := []byte(`{"not json`)
	ts := rig.clock.Now().Unix()
	hook := entities.InboundWebhook{
		Processor:       "ccbill",
		RawBody:         body,
		SignatureHeader: processor.SignPayload([]byte(testSecret), ts, body),
		TimestampHeader: strconv.FormatInt(ts, 10),
		ContentType:     "application/json",
	}
	assert.Equal(t, http.StatusBadRequest, rig.ingestor.Ingest(context.Background(), hook))
}

func TestIngestRejectsUnknownProcessor(t *testing.T) {
	rig := newTestRig(t)
	hook := rig.signedWebhook(t, capturePayload("evt-unknown"))
	hook.Processor = "stripe"
	assert.Equal(t, http.StatusBadRequest, rig.ingestor.Ingest(context.Background(), hook))
}

func TestIngestReleasesDedupOnDownstreamFailure(t *testing.T) {
	rig := newTestRig(t)
	rig.applier.err = context.DeadlineExceeded

	hook := rig.signedWebhook(t, capturePayload("evt-retry"))
	require.Equal(t, http.StatusServiceUnavailable, rig.ingestor.Ingest(context.Background(), hook))

	// Once downstream recovers, the redelivery succeeds.
	rig.applier.err = nil
	require.Equal(t, http.StatusOK, rig.ingestor.Ingest(context.Background(), hook))
	assert.Equal(t, 1, rig.applier.count())
}
