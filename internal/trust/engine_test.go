package trust

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanztrust.orchestrator/internal/clockwork"
	"fanztrust.orchestrator/internal/config"
	"fanztrust.orchestrator/internal/domain/entities"
	domainerrors "fanztrust.orchestrator/internal/domain/errors"
	"fanztrust.orchestrator/pkg/logger"
)

func init() {
	logger.Init("development")
}

type fixedCollector struct {
	name    string
	score   int
	present bool
	reasons []string
}

func (c fixedCollector) Name() string { return c.name }
func (c fixedCollector) Collect(context.Context, entities.VerificationRequest) entities.SignalResult {
	return entities.SignalResult{Name: c.name, Score: c.score, Present: c.present, ReasonCodes: c.reasons}
}

type memScoreRepo struct {
	mu   sync.Mutex
	rows []*entities.TrustScore
}

func (r *memScoreRepo) Create(_ context.Context, s *entities.TrustScore) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *memScoreRepo) GetByTransaction(_ context.Context, txID string) (*entities.TrustScore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.rows) - 1; i >= 0; i-- {
		if r.rows[i].TransactionID == txID {
			cp := *r.rows[i]
			return &cp, nil
		}
	}
	return nil, domainerrors.ErrNotFound
}

func trustConfig() config.TrustConfig {
	return config.TrustConfig{
		AutoAllowThreshold:   70,
		BlockThreshold:       30,
		AutoApproveLimit:     20_000,
		ManualReviewLimit:    100_000,
		BlockLimit:           500_000,
		RefundAllowThreshold: 60,
	}
}

func allPresent(score int) []Collector {
	return []Collector{
		fixedCollector{name: "device", score: score, present: true},
		fixedCollector{name: "network", score: score, present: true},
		fixedCollector{name: "payment", score: score, present: true},
		fixedCollector{name: "behavioral", score: score, present: true},
		fixedCollector{name: "platform", score: score, present: true},
	}
}

func defaultWeights() Weights {
	return Weights{Device: 0.2, Network: 0.2, Payment: 0.25, Behavioral: 0.2, Platform: 0.15}
}

func request(amountMinor int64) entities.VerificationRequest {
	return entities.VerificationRequest{
		FanID:     "F1",
		CreatorID: "C1",
		Platform:  "P1",
		Amount:    entities.NewMoney(amountMinor, "USD"),
	}
}

func TestDecideAllowAboveThresholdUnderLimit(t *testing.T) {
	repo := &memScoreRepo{}
	e := NewEngine(allPresent(85), defaultWeights(), trustConfig(), repo, clockwork.NewFake(time.Now()))

	score, err := e.Decide(context.Background(), "t1", request(1000))
	require.NoError(t, err)
	assert.Equal(t, 85, score.Score)
	assert.Equal(t, entities.DecisionAllow, score.Decision)
	assert.Equal(t, 1.0, score.Confidence)

	// Persisted before return, signals snapshot included.
	stored, err := repo.GetByTransaction(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, stored.Signals, 5)
}

func TestDecideChallengeInMidBand(t *testing.T) {
	e := NewEngine(allPresent(50), defaultWeights(), trustConfig(), &memScoreRepo{}, clockwork.NewFake(time.Now()))
	score, err := e.Decide(context.Background(), "t2", request(1000))
	require.NoError(t, err)
	assert.Equal(t, entities.DecisionChallenge, score.Decision)
}

func TestDecideBlockBelowThreshold(t *testing.T) {
	e := NewEngine(allPresent(20), defaultWeights(), trustConfig(), &memScoreRepo{}, clockwork.NewFake(time.Now()))
	score, err := e.Decide(context.Background(), "t3", request(1000))
	require.NoError(t, err)
	assert.Equal(t, entities.DecisionBlock, score.Decision)
}

func TestDecideHighScoreLargeAmountChallenges(t *testing.T) {
	// Allow-eligible score but at/above auto_approve_limit falls back to
	// challenge.
	e := NewEngine(allPresent(90), defaultWeights(), trustConfig(), &memScoreRepo{}, clockwork.NewFake(time.Now()))
	score, err := e.Decide(context.Background(), "t4", request(25_000))
	require.NoError(t, err)
	assert.Equal(t, entities.DecisionChallenge, score.Decision)
}

func TestDecideChallengeUpgradesToBlockAboveBlockLimit(t *testing.T) {
	e := NewEngine(allPresent(50), defaultWeights(), trustConfig(), &memScoreRepo{}, clockwork.NewFake(time.Now()))
	score, err := e.Decide(context.Background(), "t5", request(600_000))
	require.NoError(t, err)
	assert.Equal(t, entities.DecisionBlock, score.Decision)
}

func TestDecideRefundContext(t *testing.T) {
	e := NewEngine(allPresent(70), defaultWeights(), trustConfig(), &memScoreRepo{}, clockwork.NewFake(time.Now()))

	req := request(1000)
	req.IsRefundContext = true
	score, err := e.Decide(context.Background(), "t6", req)
	require.NoError(t, err)
	assert.Equal(t, entities.DecisionRefundAuto, score.Decision)

	low := NewEngine(allPresent(40), defaultWeights(), trustConfig(), &memScoreRepo{}, clockwork.NewFake(time.Now()))
	score, err = low.Decide(context.Background(), "t7", req)
	require.NoError(t, err)
	assert.Equal(t, entities.DecisionRefundReview, score.Decision)
}

func TestDecideDeterministicGivenSameSignals(t *testing.T) {
	cfg := trustConfig()
	clock := clockwork.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	first := NewEngine(allPresent(64), defaultWeights(), cfg, &memScoreRepo{}, clock)
	second := NewEngine(allPresent(64), defaultWeights(), cfg, &memScoreRepo{}, clock)

	a, err := first.Decide(context.Background(), "t8", request(1000))
	require.NoError(t, err)
	b, err := second.Decide(context.Background(), "t8", request(1000))
	require.NoError(t, err)

	assert.Equal(t, a.Score, b.Score)
	assert.Equal(t, a.Decision, b.Decision)
	assert.Equal(t, a.ModelVersion, b.ModelVersion)
}

func TestConfidenceDropsWithMissingSignals(t *testing.T) {
	collectors := []Collector{
		fixedCollector{name: "device", score: 80, present: true},
		fixedCollector{name: "network", present: false},
		fixedCollector{name: "payment", score: 80, present: true},
		fixedCollector{name: "behavioral", present: false},
		fixedCollector{name: "platform", score: 80, present: true},
	}
	e := NewEngine(collectors, defaultWeights(), trustConfig(), &memScoreRepo{}, clockwork.NewFake(time.Now()))
	score, err := e.Decide(context.Background(), "t9", request(1000))
	require.NoError(t, err)
	assert.InDelta(t, 0.6, score.Confidence, 0.001)
	assert.Equal(t, 80, score.Score, "absent signals renormalize, not dilute")
}

func TestWeightsNormalization(t *testing.T) {
	w := Weights{Device: 2, Network: 2, Payment: 2, Behavioral: 2, Platform: 2}
	m := w.normalized()
	var total float64
	for _, v := range m {
		total += v
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}
