package trust

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fanztrust.orchestrator/internal/clockwork"
	"fanztrust.orchestrator/internal/config"
	"fanztrust.orchestrator/internal/domain/entities"
	"fanztrust.orchestrator/internal/domain/repositories"
	"fanztrust.orchestrator/pkg/logger"
)

const modelVersion = "fanztrust-v1"

// Weights is the model-parameter weighting of each collector's sub-score
// Config-driven; NewEngine normalizes to sum to 1.0 if it doesn't.
type Weights struct {
	Device     float64
	Network    float64
	Payment    float64
	Behavioral float64
	Platform   float64
}

func (w Weights) normalized() map[string]float64 {
	m := map[string]float64{
		"device":     w.Device,
		"network":    w.Network,
		"payment":    w.Payment,
		"behavioral": w.Behavioral,
		"platform":   w.Platform,
	}
	var total float64
	for _, v := range m {
		total += v
	}
	if total <= 0 {
		return map[string]float64{"device": 0.2, "network": 0.2, "payment": 0.25, "behavioral": 0.2, "platform": 0.15}
	}
	for k, v := range m {
		m[k] = v / total
	}
	return m
}

// Engine computes a TrustScore from independent collector signals and
// applies the config-driven decision policy. The decision is
// advisory: the Orchestrator combines it with routing and policy.
type Engine struct {
	collectors []Collector
	weights    map[string]float64
	thresholds config.TrustConfig
	repo       repositories.TrustScoreRepository
	clock      clockwork.Clock
}

// NewEngine builds an Engine. weights need not sum to 1.0; they are
// normalized.
func NewEngine(collectors []Collector, weights Weights, thresholds config.TrustConfig, repo repositories.TrustScoreRepository, clock clockwork.Clock) *Engine {
	return &Engine{
		collectors: collectors,
		weights:    weights.normalized(),
		thresholds: thresholds,
		repo:       repo,
		clock:      clock,
	}
}

// Decide runs every collector concurrently, combines sub-scores, persists
// the TrustScore (signals snapshot included) and only then returns, so
// every decision leaves an audit row even when the caller dies.
func (e *Engine) Decide(ctx context.Context, transactionID string, req entities.VerificationRequest) (*entities.TrustScore, error) {
	start := e.clock.Now()

	results := make([]entities.SignalResult, len(e.collectors))
	var wg sync.WaitGroup
	for i, c := range e.collectors {
		wg.Add(1)
		go func(i int, c Collector) {
			defer wg.Done()
			results[i] = c.Collect(ctx, req)
		}(i, c)
	}
	wg.Wait()

	var weightedSum, weightUsed float64
	var present int
	var reasonCodes []string
	for _, r := range results {
		if !r.Present {
			continue
		}
		present++
		w := e.weights[r.Name]
		weightedSum += w * float64(r.Score)
		weightUsed += w
		reasonCodes = append(reasonCodes, r.ReasonCodes...)
	}

	score := 0
	if weightUsed > 0 {
		score = int(weightedSum / weightUsed)
	}
	confidence := float64(present) / float64(len(e.collectors))

	decision := e.decide(score, req)

	ts := &entities.TrustScore{
		ID:               uuid.NewString(),
		TransactionID:    transactionID,
		Score:            score,
		Confidence:       confidence,
		ModelVersion:     modelVersion,
		Decision:         decision,
		ReasonCodes:      reasonCodes,
		Signals:          results,
		Explanation:      explain(decision, score, reasonCodes),
		ProcessingTimeMS: e.clock.Since(start).Milliseconds(),
		CreatedAt:        e.clock.Now(),
	}

	if err := e.repo.Create(ctx, ts); err != nil {
		logger.WithContext(ctx).Error("failed to persist trust score", zap.Error(err), zap.String("transaction_id", transactionID))
		return nil, err
	}

	return ts, nil
}

// decide applies the configured decision thresholds. Amount thresholds
// are minor-unit integers.
func (e *Engine) decide(score int, req entities.VerificationRequest) entities.TrustDecision {
	s := float64(score)
	amount := req.Amount.MinorUnits

	if req.IsRefundContext {
		if s >= e.thresholds.RefundAllowThreshold {
			return entities.DecisionRefundAuto
		}
		return entities.DecisionRefundReview
	}

	if s >= e.thresholds.AutoAllowThreshold && amount < e.thresholds.AutoApproveLimit {
		return entities.DecisionAllow
	}
	if s < e.thresholds.BlockThreshold {
		return entities.DecisionBlock
	}
	// block_threshold <= score < auto_allow_threshold, or allow-eligible
	// score but amount at/above auto_approve_limit: challenge, escalating to
	// block above block_limit and staying a mandatory challenge above
	// manual_review_limit.
	if amount >= e.thresholds.BlockLimit {
		return entities.DecisionBlock
	}
	return entities.DecisionChallenge
}

func explain(decision entities.TrustDecision, score int, reasons []string) string {
	base := string(decision) + " at score " + strconv.Itoa(score)
	if len(reasons) == 0 {
		return base
	}
	return base + ": " + strings.Join(reasons, ", ")
}
