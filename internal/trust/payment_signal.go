package trust

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"fanztrust.orchestrator/internal/domain/entities"
)

// BINLookup resolves a card BIN to issuer metadata. A real deployment backs
// this with a BIN database; tests supply a StaticBINLookup.
type BINLookup interface {
	Lookup(bin string) (countryHighRisk, prepaid bool, issuerType string)
}

// StaticBINLookup classifies against fixed prefix sets.
type StaticBINLookup struct {
	HighRiskCountryPrefixes []string
	PrepaidPrefixes         []string
}

func (s StaticBINLookup) Lookup(bin string) (countryHighRisk, prepaid bool, issuerType string) {
	for _, p := range s.HighRiskCountryPrefixes {
		if hasPrefix(bin, p) {
			countryHighRisk = true
		}
	}
	for _, p := range s.PrepaidPrefixes {
		if hasPrefix(bin, p) {
			prepaid = true
		}
	}
	return countryHighRisk, prepaid, "unknown"
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// PaymentCollector scores AVS/CVV match, BIN country risk and prepaid flag
// for card methods (the issuer type from the BIN lookup does not affect the
// score); validates wire-format shape for crypto
// methods. It never connects to a wallet or a chain: that is
// explicitly out of scope, and the domain entity has already normalized the
// on-chain reference to a plain address/txid pair by the time this signal
// runs.
type PaymentCollector struct {
	bins BINLookup
}

func NewPaymentCollector(bins BINLookup) *PaymentCollector {
	if bins == nil {
		bins = StaticBINLookup{}
	}
	return &PaymentCollector{bins: bins}
}

func (c *PaymentCollector) Name() string { return "payment" }

func (c *PaymentCollector) Collect(_ context.Context, req entities.VerificationRequest) entities.SignalResult {
	switch req.Method.Variant {
	case entities.MethodCard:
		return c.collectCard(req)
	case entities.MethodCrypto:
		return c.collectCrypto(req)
	default:
		return entities.SignalResult{Name: c.Name(), Score: 75, Present: true}
	}
}

func (c *PaymentCollector) collectCard(req entities.VerificationRequest) entities.SignalResult {
	card := req.Method.Card
	if card == nil {
		return entities.SignalResult{Name: c.Name(), Present: false}
	}

	score := 70
	var reasons []string

	if card.AVSMatch {
		score += 10
	} else {
		score -= 15
		reasons = append(reasons, "avs_mismatch")
	}
	if card.CVVMatch {
		score += 10
	} else {
		score -= 20
		reasons = append(reasons, "cvv_mismatch")
	}

	countryRisk, prepaid, _ := c.bins.Lookup(card.BIN)
	if countryRisk {
		score -= 15
		reasons = append(reasons, "bin_country_risk_high")
	}
	if prepaid {
		score -= 10
		reasons = append(reasons, "prepaid_card")
	}

	return entities.SignalResult{Name: c.Name(), Score: clamp(score), ReasonCodes: reasons, Present: true}
}

func (c *PaymentCollector) collectCrypto(req entities.VerificationRequest) entities.SignalResult {
	crypto := req.Method.Crypto
	if crypto == nil {
		return entities.SignalResult{Name: c.Name(), Present: false}
	}

	score := 70
	var reasons []string

	if !common.IsHexAddress(crypto.Address) {
		score -= 40
		reasons = append(reasons, "malformed_address")
	}
	if crypto.TxID != "" {
		if common.HexToHash(crypto.TxID) == (common.Hash{}) {
			score -= 20
			reasons = append(reasons, "malformed_txid")
		}
	} else {
		reasons = append(reasons, "txid_pending")
	}

	return entities.SignalResult{Name: c.Name(), Score: clamp(score), ReasonCodes: reasons, Present: true}
}
