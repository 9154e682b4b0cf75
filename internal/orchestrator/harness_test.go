package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"fanztrust.orchestrator/internal/approval"
	"fanztrust.orchestrator/internal/clockwork"
	"fanztrust.orchestrator/internal/config"
	"fanztrust.orchestrator/internal/domain/entities"
	"fanztrust.orchestrator/internal/eventbus"
	"fanztrust.orchestrator/internal/idempotency"
	"fanztrust.orchestrator/internal/infrastructure/cache"
	"fanztrust.orchestrator/internal/ledger"
	"fanztrust.orchestrator/internal/processor"
	"fanztrust.orchestrator/internal/router"
	"fanztrust.orchestrator/internal/trust"
)

// stubCollector returns a fixed sub-score, making the trust decision
// deterministic per test.
type stubCollector struct {
	name  string
	score int
}

func (s stubCollector) Name() string { return s.name }
func (s stubCollector) Collect(context.Context, entities.VerificationRequest) entities.SignalResult {
	return entities.SignalResult{Name: s.name, Score: s.score, Present: true}
}

// fakeAdapter is a scriptable processor.Adapter.
type fakeAdapter struct {
	name string

	mu           sync.Mutex
	authErrs     []error // consumed one per Authorize call; nil = success
	captureErrs  []error
	refundErrs   []error
	payoutErrs   []error
	authCalls    int
	captureCalls int
	refundCalls  int
	voidCalls    int
	payoutCalls  int
	lines        []entities.SettlementLine
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) next(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (f *fakeAdapter) Authorize(_ context.Context, req processor.AuthorizeRequest) (processor.AuthorizeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCalls++
	if err := f.next(&f.authErrs); err != nil {
		return processor.AuthorizeResult{}, err
	}
	return processor.AuthorizeResult{ProcessorAuthRef: f.name + "-auth-" + req.Attempt.TransactionID}, nil
}

func (f *fakeAdapter) Capture(_ context.Context, req processor.CaptureRequest) (processor.CaptureResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captureCalls++
	if err := f.next(&f.captureErrs); err != nil {
		return processor.CaptureResult{}, err
	}
	return processor.CaptureResult{ProcessorCaptureRef: f.name + "-cap-" + req.Attempt.TransactionID}, nil
}

func (f *fakeAdapter) Refund(_ context.Context, req processor.RefundRequest) (processor.RefundResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refundCalls++
	if err := f.next(&f.refundErrs); err != nil {
		return processor.RefundResult{}, err
	}
	return processor.RefundResult{ProcessorRefundRef: f.name + "-ref-" + req.Attempt.TransactionID}, nil
}

func (f *fakeAdapter) Void(context.Context, processor.VoidRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voidCalls++
	return nil
}

func (f *fakeAdapter) PayoutSend(_ context.Context, req processor.PayoutSendRequest) (processor.PayoutSendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payoutCalls++
	if err := f.next(&f.payoutErrs); err != nil {
		return processor.PayoutSendResult{}, err
	}
	return processor.PayoutSendResult{ProcessorPayoutRef: f.name + "-payout-" + req.Attempt.TransactionID}, nil
}

func (f *fakeAdapter) WebhookVerify(string, string, []byte, time.Duration, time.Time) error {
	return nil
}

func (f *fakeAdapter) SettlementFetch(context.Context, time.Time, time.Time) ([]entities.SettlementLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lines, nil
}

// harness wires a full orchestrator over in-memory fakes, a miniredis
// idempotency store and a fixed clock.
type harness struct {
	orch       *Orchestrator
	cfg        *config.Config
	clock      *clockwork.FakeClock
	txRepo     *memTxRepo
	eventRepo  *memTxEventRepo
	refunds    *memRefundRepo
	disputes   *memDisputeRepo
	payouts    *memPayoutRepo
	batches    *memBatchRepo
	ledgerRepo *memLedgerRepo
	approvals  *memApprovalRepo
	queue      *approval.Queue
	bus        *eventbus.Bus
	ccbill     *fakeAdapter
	segpay     *fakeAdapter
	coingate   *fakeAdapter

	events   []entities.CanonicalEvent
	eventsMu sync.Mutex
}

func newHarness(t *testing.T, trustScore int) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := config.Load()
	clock := clockwork.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	h := &harness{
		cfg:        cfg,
		clock:      clock,
		txRepo:     newMemTxRepo(),
		eventRepo:  newMemTxEventRepo(),
		refunds:    newMemRefundRepo(),
		disputes:   newMemDisputeRepo(),
		payouts:    newMemPayoutRepo(),
		batches:    newMemBatchRepo(),
		ledgerRepo: newMemLedgerRepo(),
		approvals:  newMemApprovalRepo(),
		ccbill:     &fakeAdapter{name: "ccbill"},
		segpay:     &fakeAdapter{name: "segpay"},
		coingate:   &fakeAdapter{name: "coingate"},
	}

	bus := eventbus.New(nil, clock, "test")
	bus.SubscribeAll(func(_ context.Context, ev entities.CanonicalEvent) {
		h.eventsMu.Lock()
		defer h.eventsMu.Unlock()
		h.events = append(h.events, ev)
	})
	h.bus = bus

	trustEngine := trust.NewEngine(
		[]trust.Collector{
			stubCollector{"device", trustScore},
			stubCollector{"network", trustScore},
			stubCollector{"payment", trustScore},
			stubCollector{"behavioral", trustScore},
			stubCollector{"platform", trustScore},
		},
		trust.Weights{Device: 0.2, Network: 0.2, Payment: 0.25, Behavioral: 0.2, Platform: 0.15},
		cfg.Trust, newMemTrustScoreRepo(), clock,
	)

	accounts := map[string]*entities.MerchantAccount{
		"M1": {MID: "M1", Processor: "ccbill", Currency: "USD", Descriptor: "FANZ*M1"},
		"M2": {MID: "M2", Processor: "segpay", Currency: "USD", Descriptor: "FANZ*M2"},
	}
	rules := []*entities.RoutingRule{
		{
			ID:       "r1",
			Priority: 10,
			Active:   true,
			Target:   entities.RoutingTarget{PrimaryMID: "M1", FallbackMIDs: []string{"M2"}},
		},
	}
	rt := router.New(
		cache.NewSnapshot(rules),
		cache.NewSnapshot(accounts),
		nil,
		cfg.Routing,
	)

	registry := processor.NewRegistry(cfg.Circuit, clock, h.ccbill, h.segpay, h.coingate)

	h.queue = approval.NewQueue(h.approvals, clock, bus)

	h.orch = New(Deps{
		Config:      *cfg,
		TxRepo:      h.txRepo,
		TxEventRepo: h.eventRepo,
		RefundRepo:  h.refunds,
		DisputeRepo: h.disputes,
		PayoutRepo:  h.payouts,
		BatchRepo:   h.batches,
		Ledger:      ledger.New(h.ledgerRepo, clock),
		Idempotency: idempotency.New(redisClient, clock),
		Trust:       trustEngine,
		Router:      rt,
		Adapters:    registry,
		ResolveMID:  func(mid string) *entities.MerchantAccount { return accounts[mid] },
		Bus:         bus,
		Approvals:   h.queue,
		Clock:       clock,
	})
	return h
}

func (h *harness) eventsOfType(t entities.EventType) []entities.CanonicalEvent {
	h.eventsMu.Lock()
	defer h.eventsMu.Unlock()
	var out []entities.CanonicalEvent
	for _, ev := range h.events {
		if ev.EventType == t {
			out = append(out, ev)
		}
	}
	return out
}

func usd(minor int64) entities.Money { return entities.NewMoney(minor, "USD") }

func cardInput(idemKey string) entities.CreatePaymentInput {
	return entities.CreatePaymentInput{
		IdempotencyKey: idemKey,
		FanID:          "F1",
		CreatorID:      "C1",
		Platform:       "P1",
		Amount:         usd(1000),
		Method: entities.PaymentMethod{
			Variant: entities.MethodCard,
			Card:    &entities.CardMethod{Token: "tok_1", Last4: "4242", BIN: "411111", AVSMatch: true, CVVMatch: true},
		},
		DeviceFingerprint: "fp-1",
		IP:                "203.0.113.7",
		Email:             "fan@example.com",
		Urgent:            true,
	}
}
