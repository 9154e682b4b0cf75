package processor

import (
	"context"
	"errors"
	"time"

	domainerrors "fanztrust.orchestrator/internal/domain/errors"

	"fanztrust.orchestrator/internal/clockwork"
	"fanztrust.orchestrator/internal/config"
	"fanztrust.orchestrator/internal/domain/entities"
	"fanztrust.orchestrator/internal/metrics"
)

// Registry holds one guarded adapter per processor. Each adapter gets its
// own circuit breaker.
type Registry struct {
	adapters map[string]*Guarded
}

// NewRegistry wraps each adapter with its breaker.
func NewRegistry(cfg config.CircuitConfig, clock clockwork.Clock, adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]*Guarded, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = &Guarded{
			inner:   a,
			breaker: NewCircuitBreaker(cfg, clock),
			clock:   clock,
		}
	}
	return r
}

// Get returns the guarded adapter for processor, or nil if unregistered.
func (r *Registry) Get(processor string) *Guarded {
	return r.adapters[processor]
}

// Names lists registered processors, for startup logging and metrics.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		out = append(out, n)
	}
	return out
}

// Guarded decorates an Adapter with its circuit breaker and latency/error
// metrics. Breaker rejection surfaces as transient so the orchestrator's
// fallback chain moves on to the next MID.
type Guarded struct {
	inner   Adapter
	breaker *CircuitBreaker
	clock   clockwork.Clock
}

func (g *Guarded) Name() string { return g.inner.Name() }

// Breaker exposes the breaker state for the metrics gauge.
func (g *Guarded) Breaker() *CircuitBreaker { return g.breaker }

func (g *Guarded) call(op string, fn func() error) error {
	if !g.breaker.Allow() {
		metrics.ProcessorCalls.WithLabelValues(g.Name(), op, "circuit_open").Inc()
		return ErrCircuitOpen
	}
	start := g.clock.Now()
	err := fn()
	metrics.ProcessorLatency.WithLabelValues(g.Name(), op).Observe(g.clock.Since(start).Seconds())

	// Declines are business outcomes, not processor health failures; only
	// transport-level trouble counts against the breaker.
	healthFailure := false
	if err != nil {
		var ce *domainerrors.CoreError
		if errors.As(err, &ce) {
			switch ce.Code {
			case domainerrors.CodeTransient, domainerrors.CodeTimeout, domainerrors.CodeUnknown, domainerrors.CodeRateLimited:
				healthFailure = true
			}
		} else {
			healthFailure = true
		}
		metrics.ProcessorCalls.WithLabelValues(g.Name(), op, "error").Inc()
	} else {
		metrics.ProcessorCalls.WithLabelValues(g.Name(), op, "ok").Inc()
	}
	g.breaker.Record(!healthFailure)
	metrics.BreakerState.WithLabelValues(g.Name()).Set(breakerGauge(g.breaker.State()))
	return err
}

func (g *Guarded) Authorize(ctx context.Context, req AuthorizeRequest) (AuthorizeResult, error) {
	var out AuthorizeResult
	err := g.call("authorize", func() error {
		var e error
		out, e = g.inner.Authorize(ctx, req)
		return e
	})
	return out, err
}

func (g *Guarded) Capture(ctx context.Context, req CaptureRequest) (CaptureResult, error) {
	var out CaptureResult
	err := g.call("capture", func() error {
		var e error
		out, e = g.inner.Capture(ctx, req)
		return e
	})
	return out, err
}

func (g *Guarded) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	var out RefundResult
	err := g.call("refund", func() error {
		var e error
		out, e = g.inner.Refund(ctx, req)
		return e
	})
	return out, err
}

func (g *Guarded) Void(ctx context.Context, req VoidRequest) error {
	return g.call("void", func() error { return g.inner.Void(ctx, req) })
}

func (g *Guarded) PayoutSend(ctx context.Context, req PayoutSendRequest) (PayoutSendResult, error) {
	var out PayoutSendResult
	err := g.call("payout_send", func() error {
		var e error
		out, e = g.inner.PayoutSend(ctx, req)
		return e
	})
	return out, err
}

func (g *Guarded) WebhookVerify(signatureHeader, timestampHeader string, rawBody []byte, tolerance time.Duration, now time.Time) error {
	return g.inner.WebhookVerify(signatureHeader, timestampHeader, rawBody, tolerance, now)
}

func (g *Guarded) SettlementFetch(ctx context.Context, windowStart, windowEnd time.Time) ([]entities.SettlementLine, error) {
	var out []entities.SettlementLine
	err := g.call("settlement_fetch", func() error {
		var e error
		out, e = g.inner.SettlementFetch(ctx, windowStart, windowEnd)
		return e
	})
	return out, err
}

func breakerGauge(s BreakerState) float64 {
	switch s {
	case StateClosed:
		return 0
	case StateHalfOpen:
		return 1
	default:
		return 2
	}
}
