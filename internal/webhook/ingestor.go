// Package webhook verifies, dedups and translates processor webhooks into
// canonical events for the orchestrator. Signature verification is
// HMAC-SHA256 over timestamp || "\n" || raw_body with a constant-time
// compare; every verified event is deduped under the processor-event scope
// before any side effect.
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"fanztrust.orchestrator/internal/clockwork"
	"fanztrust.orchestrator/internal/config"
	"fanztrust.orchestrator/internal/domain/entities"
	"fanztrust.orchestrator/internal/idempotency"
	"fanztrust.orchestrator/internal/metrics"
	"fanztrust.orchestrator/internal/processor"
	"fanztrust.orchestrator/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Applier is the orchestrator surface the ingestor hands canonical events
// to. Narrow on purpose: the ingestor writes only TransactionEvents and
// enqueues orchestrator actions.
type Applier interface {
	ApplyWebhookEvent(ctx context.Context, ev entities.CanonicalWebhookEvent) error
}

// SettlementNotifier receives settlement_ready events; the Settlement
// Engine implements it.
type SettlementNotifier interface {
	OnSettlementReady(ctx context.Context, processorName, batchRef string, windowStart, windowEnd time.Time) error
}

// Ingestor is the webhook ingestion pipeline (C7).
type Ingestor struct {
	adapters   *processor.Registry
	idem       *idempotency.Store
	applier    Applier
	settlement SettlementNotifier
	tolerance  time.Duration
	clock      clockwork.Clock
}

// NewIngestor wires an Ingestor.
func NewIngestor(adapters *processor.Registry, idem *idempotency.Store, applier Applier, settlement SettlementNotifier, cfg config.WebhookConfig, clock clockwork.Clock) *Ingestor {
	return &Ingestor{
		adapters:   adapters,
		idem:       idem,
		applier:    applier,
		settlement: settlement,
		tolerance:  time.Duration(cfg.ToleranceSeconds) * time.Second,
		clock:      clock,
	}
}

// wirePayload is the processor sandbox webhook body.
type wirePayload struct {
	EventID     string `json:"event_id"`
	EventType   string `json:"event_type"`
	TxRef       string `json:"tx_ref"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	Timestamp   int64  `json:"timestamp"`
	BatchRef    string `json:"batch_ref,omitempty"`
	WindowStart int64  `json:"window_start,omitempty"`
	WindowEnd   int64  `json:"window_end,omitempty"`
}

// eventAliases maps processor-specific event-type spellings onto the
// canonical set. Types already canonical pass through untouched.
var eventAliases = map[string]entities.WebhookEventType{
	"auth.success":       entities.WebhookAuthOK,
	"auth.declined":      entities.WebhookAuthDeclined,
	"capture.success":    entities.WebhookCaptureOK,
	"refund.success":     entities.WebhookRefundOK,
	"dispute.chargeback": entities.WebhookChargebackReceived,
	"settlement.ready":   entities.WebhookSettlementReady,
	"payout.completed":   entities.WebhookPayoutCompleted,
	"payout.failed":      entities.WebhookPayoutFailed,
}

func canonicalType(s string) (entities.WebhookEventType, bool) {
	if t, ok := eventAliases[s]; ok {
		return t, true
	}
	switch t := entities.WebhookEventType(s); t {
	case entities.WebhookAuthOK, entities.WebhookAuthDeclined, entities.WebhookCaptureOK,
		entities.WebhookRefundOK, entities.WebhookChargebackReceived, entities.WebhookSettlementReady,
		entities.WebhookPayoutCompleted, entities.WebhookPayoutFailed:
		return t, true
	}
	return "", false
}

// Ingest runs the full pipeline and returns the HTTP status the handler
// should answer with: 200 accepted (including duplicates), 401 signature or
// timestamp failure, 400 malformed, 503 downstream unavailable. Verification failures never leak details.
func (i *Ingestor) Ingest(ctx context.Context, in entities.InboundWebhook) int {
	adapter := i.adapters.Get(in.Processor)
	if adapter == nil {
		metrics.WebhooksTotal.WithLabelValues(in.Processor, "unknown_processor").Inc()
		return http.StatusBadRequest
	}
	if len(in.RawBody) == 0 || len(in.RawBody) > maxBodyBytes {
		metrics.WebhooksTotal.WithLabelValues(in.Processor, "bad_size").Inc()
		return http.StatusBadRequest
	}
	if in.ContentType != "" && !strings.HasPrefix(in.ContentType, "application/json") {
		metrics.WebhooksTotal.WithLabelValues(in.Processor, "bad_content_type").Inc()
		return http.StatusBadRequest
	}

	if err := adapter.WebhookVerify(in.SignatureHeader, in.TimestampHeader, in.RawBody, i.tolerance, i.clock.Now()); err != nil {
		logger.WithContext(ctx).Warn("webhook verification failed",
			zap.String("processor", in.Processor))
		metrics.WebhooksTotal.WithLabelValues(in.Processor, "verify_failed").Inc()
		return http.StatusUnauthorized
	}

	var payload wirePayload
	if err := json.Unmarshal(in.RawBody, &payload); err != nil || payload.EventID == "" {
		metrics.WebhooksTotal.WithLabelValues(in.Processor, "malformed").Inc()
		return http.StatusBadRequest
	}
	evType, ok := canonicalType(payload.EventType)
	if !ok {
		metrics.WebhooksTotal.WithLabelValues(in.Processor, "unknown_type").Inc()
		return http.StatusBadRequest
	}

	// Dedup before any side effect.
	dedupKey := in.Processor + ":" + payload.EventID
	res, err := i.idem.Reserve(ctx, entities.ScopeProcessorEvent, dedupKey, 7*24*time.Hour)
	if err != nil {
		return http.StatusServiceUnavailable
	}
	switch res.State {
	case entities.ReservationCommitted, entities.ReservationInFlight:
		metrics.WebhooksTotal.WithLabelValues(in.Processor, "duplicate").Inc()
		return http.StatusOK
	}

	status := i.dispatch(ctx, in.Processor, evType, payload, in.RawBody)
	if status != http.StatusOK {
		// Not committed: a redelivery may succeed once downstream recovers.
		_ = i.idem.Release(ctx, entities.ScopeProcessorEvent, dedupKey)
		return status
	}
	if err := i.idem.Commit(ctx, entities.ScopeProcessorEvent, dedupKey, []byte(`{"accepted":true}`), 7*24*time.Hour); err != nil {
		logger.WithContext(ctx).Error("webhook dedup commit failed", zap.Error(err))
	}
	metrics.WebhooksTotal.WithLabelValues(in.Processor, "accepted").Inc()
	return http.StatusOK
}

func (i *Ingestor) dispatch(ctx context.Context, processorName string, evType entities.WebhookEventType, payload wirePayload, raw []byte) int {
	if evType == entities.WebhookSettlementReady {
		if i.settlement == nil {
			return http.StatusServiceUnavailable
		}
		err := i.settlement.OnSettlementReady(ctx, processorName, payload.BatchRef,
			time.Unix(payload.WindowStart, 0).UTC(), time.Unix(payload.WindowEnd, 0).UTC())
		if err != nil {
			logger.WithContext(ctx).Error("settlement notification failed", zap.Error(err))
			return http.StatusServiceUnavailable
		}
		return http.StatusOK
	}

	ev := entities.CanonicalWebhookEvent{
		Processor:          processorName,
		ExternalEventID:    payload.EventID,
		Type:               evType,
		TransactionRef:     payload.TxRef,
		Amount:             entities.NewMoney(payload.AmountMinor, payload.Currency),
		ProcessorTimestamp: time.Unix(payload.Timestamp, 0).UTC(),
		Raw:                raw,
	}
	if err := i.applier.ApplyWebhookEvent(ctx, ev); err != nil {
		logger.WithContext(ctx).Error("webhook apply failed",
			zap.String("processor", processorName),
			zap.String("event_id", payload.EventID),
			zap.Error(err))
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
