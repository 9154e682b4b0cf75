package processor

import (
	"context"
	"fmt"
	"time"

	"fanztrust.orchestrator/internal/clockwork"
	"fanztrust.orchestrator/internal/domain/entities"
	domainerrors "fanztrust.orchestrator/internal/domain/errors"
)

var coingateErrorTable = map[string]domainerrors.Code{
	"underpaid":         domainerrors.CodeRetriableDecline,
	"expired_invoice":   domainerrors.CodeHardDecline,
	"invalid_address":   domainerrors.CodeInvalidRequest,
	"suspicious_source": domainerrors.CodeFraud,
	"already_submitted": domainerrors.CodeDuplicate,
	"unauthorized":      domainerrors.CodeAuthenticationFailed,
	"throttled":         domainerrors.CodeRateLimited,
	"node_unavailable":  domainerrors.CodeTransient,
}

// CoinGateAdapter speaks the crypto on-ramp sandbox. Authorization is
// invoice creation; capture confirms the on-chain deposit reached enough
// confirmations. The adapter never touches a wallet or a chain itself.
type CoinGateAdapter struct {
	client *httpClient
	creds  Credentials
}

func NewCoinGate(baseURL string, creds Credentials, timeout time.Duration, clock clockwork.Clock) *CoinGateAdapter {
	return &CoinGateAdapter{
		client: newHTTPClient("coingate", baseURL, creds, timeout, clock),
		creds:  creds,
	}
}

func (a *CoinGateAdapter) Name() string { return "coingate" }

func (a *CoinGateAdapter) Authorize(ctx context.Context, req AuthorizeRequest) (AuthorizeResult, error) {
	body := map[string]interface{}{
		"order_id": attemptRef(req.Attempt),
		"mid":      req.MID,
		"amount":   req.Amount.MinorUnits,
		"currency": req.Amount.Currency,
		"payer":    req.FanID,
		"source":   cardToken(req.Method),
	}
	var out struct {
		InvoiceID string   `json:"invoice_id"`
		RiskFlags []string `json:"risk_flags"`
	}
	if err := a.client.postJSON(ctx, "/v2/invoices", req.MID, attemptRef(req.Attempt), body, &out, coingateErrorTable); err != nil {
		return AuthorizeResult{}, err
	}
	return AuthorizeResult{ProcessorAuthRef: out.InvoiceID, RiskFlags: out.RiskFlags}, nil
}

func (a *CoinGateAdapter) Capture(ctx context.Context, req CaptureRequest) (CaptureResult, error) {
	body := map[string]interface{}{
		"order_id":   attemptRef(req.Attempt),
		"mid":        req.MID,
		"invoice_id": req.ProcessorAuthRef,
	}
	var out struct {
		ConfirmationID string `json:"confirmation_id"`
		Fee            int64  `json:"fee_minor"`
	}
	if err := a.client.postJSON(ctx, "/v2/invoices/confirm", req.MID, attemptRef(req.Attempt), body, &out, coingateErrorTable); err != nil {
		return CaptureResult{}, err
	}
	return CaptureResult{ProcessorCaptureRef: out.ConfirmationID, FeeMinorUnits: out.Fee}, nil
}

func (a *CoinGateAdapter) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	body := map[string]interface{}{
		"order_id":        attemptRef(req.Attempt),
		"mid":             req.MID,
		"confirmation_id": req.ProcessorCaptureRef,
		"amount":          req.Amount.MinorUnits,
		"currency":        req.Amount.Currency,
	}
	var out struct {
		RefundID string `json:"refund_id"`
	}
	if err := a.client.postJSON(ctx, "/v2/refunds", req.MID, attemptRef(req.Attempt), body, &out, coingateErrorTable); err != nil {
		return RefundResult{}, err
	}
	return RefundResult{ProcessorRefundRef: out.RefundID}, nil
}

func (a *CoinGateAdapter) Void(ctx context.Context, req VoidRequest) error {
	body := map[string]interface{}{
		"order_id":   attemptRef(req.Attempt),
		"mid":        req.MID,
		"invoice_id": req.ProcessorAuthRef,
	}
	return a.client.postJSON(ctx, "/v2/invoices/cancel", req.MID, attemptRef(req.Attempt), body, nil, coingateErrorTable)
}

func (a *CoinGateAdapter) PayoutSend(ctx context.Context, req PayoutSendRequest) (PayoutSendResult, error) {
	body := map[string]interface{}{
		"order_id": attemptRef(req.Attempt),
		"rail":     req.Rail,
		"amount":   req.Amount.MinorUnits,
		"currency": req.Amount.Currency,
		"address":  req.Dest,
	}
	var out struct {
		WithdrawalID string `json:"withdrawal_id"`
	}
	if err := a.client.postJSON(ctx, "/v2/withdrawals", "", attemptRef(req.Attempt), body, &out, coingateErrorTable); err != nil {
		return PayoutSendResult{}, err
	}
	return PayoutSendResult{ProcessorPayoutRef: out.WithdrawalID}, nil
}

func (a *CoinGateAdapter) WebhookVerify(signatureHeader, timestampHeader string, rawBody []byte, tolerance time.Duration, now time.Time) error {
	return VerifySignature([]byte(a.creds.WebhookSecret), signatureHeader, timestampHeader, rawBody, tolerance, now)
}

func (a *CoinGateAdapter) SettlementFetch(ctx context.Context, windowStart, windowEnd time.Time) ([]entities.SettlementLine, error) {
	var out struct {
		Entries []struct {
			ConfirmationID string `json:"confirmation_id"`
			Amount         int64  `json:"amount_minor"`
			Currency       string `json:"currency"`
			Fee            int64  `json:"fee_minor"`
			ConfirmedAt    int64  `json:"confirmed_at"`
		} `json:"entries"`
	}
	path := fmt.Sprintf("/v2/settlements?from=%d&to=%d", windowStart.Unix(), windowEnd.Unix())
	if err := a.client.getJSON(ctx, path, "", &out); err != nil {
		return nil, err
	}
	lines := make([]entities.SettlementLine, 0, len(out.Entries))
	for _, e := range out.Entries {
		lines = append(lines, entities.SettlementLine{
			ProcessorTxRef: e.ConfirmationID,
			Amount:         entities.NewMoney(e.Amount, e.Currency),
			Fee:            entities.NewMoney(e.Fee, e.Currency),
			CapturedAt:     time.Unix(e.ConfirmedAt, 0).UTC(),
		})
	}
	return lines, nil
}
