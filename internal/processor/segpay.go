package processor

import (
	"context"
	"fmt"
	"time"

	"fanztrust.orchestrator/internal/clockwork"
	"fanztrust.orchestrator/internal/domain/entities"
	domainerrors "fanztrust.orchestrator/internal/domain/errors"
)

// SegPay uses numeric decline codes on the wire.
var segpayErrorTable = map[string]domainerrors.Code{
	"05":  domainerrors.CodeRetriableDecline, // do not honor
	"51":  domainerrors.CodeRetriableDecline, // insufficient funds
	"54":  domainerrors.CodeHardDecline,      // expired card
	"14":  domainerrors.CodeHardDecline,      // invalid card number
	"59":  domainerrors.CodeFraud,            // suspected fraud
	"94":  domainerrors.CodeDuplicate,        // duplicate transmission
	"12":  domainerrors.CodeInvalidRequest,   // invalid transaction
	"96":  domainerrors.CodeTransient,        // system malfunction
	"91":  domainerrors.CodeTransient,        // issuer unavailable
	"401": domainerrors.CodeAuthenticationFailed,
	"429": domainerrors.CodeRateLimited,
}

// SegPayAdapter speaks the SegPay card-processing sandbox. Same call flow
// as CCBill, with its own endpoint paths, JSON field names and numeric code
// table.
type SegPayAdapter struct {
	client *httpClient
	creds  Credentials
}

func NewSegPay(baseURL string, creds Credentials, timeout time.Duration, clock clockwork.Clock) *SegPayAdapter {
	return &SegPayAdapter{
		client: newHTTPClient("segpay", baseURL, creds, timeout, clock),
		creds:  creds,
	}
}

func (a *SegPayAdapter) Name() string { return "segpay" }

func (a *SegPayAdapter) Authorize(ctx context.Context, req AuthorizeRequest) (AuthorizeResult, error) {
	body := map[string]interface{}{
		"merchant_ref": attemptRef(req.Attempt),
		"mid":          req.MID,
		"amount":       req.Amount.MinorUnits,
		"currency":     req.Amount.Currency,
		"descriptor":   req.Descriptor,
		"consumer_id":  req.FanID,
		"instrument":   cardToken(req.Method),
	}
	var out struct {
		AuthID    string   `json:"auth_id"`
		RiskFlags []string `json:"risk_flags"`
	}
	if err := a.client.postJSON(ctx, "/api/auth", req.MID, attemptRef(req.Attempt), body, &out, segpayErrorTable); err != nil {
		return AuthorizeResult{}, err
	}
	return AuthorizeResult{ProcessorAuthRef: out.AuthID, RiskFlags: out.RiskFlags}, nil
}

func (a *SegPayAdapter) Capture(ctx context.Context, req CaptureRequest) (CaptureResult, error) {
	body := map[string]interface{}{
		"merchant_ref": attemptRef(req.Attempt),
		"mid":          req.MID,
		"auth_id":      req.ProcessorAuthRef,
		"amount":       req.Amount.MinorUnits,
		"currency":     req.Amount.Currency,
	}
	var out struct {
		SettleID string `json:"settle_id"`
		Fee      int64  `json:"fee_minor"`
	}
	if err := a.client.postJSON(ctx, "/api/settle", req.MID, attemptRef(req.Attempt), body, &out, segpayErrorTable); err != nil {
		return CaptureResult{}, err
	}
	return CaptureResult{ProcessorCaptureRef: out.SettleID, FeeMinorUnits: out.Fee}, nil
}

func (a *SegPayAdapter) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	body := map[string]interface{}{
		"merchant_ref": attemptRef(req.Attempt),
		"mid":          req.MID,
		"settle_id":    req.ProcessorCaptureRef,
		"amount":       req.Amount.MinorUnits,
		"currency":     req.Amount.Currency,
	}
	var out struct {
		CreditID string `json:"credit_id"`
	}
	if err := a.client.postJSON(ctx, "/api/credit", req.MID, attemptRef(req.Attempt), body, &out, segpayErrorTable); err != nil {
		return RefundResult{}, err
	}
	return RefundResult{ProcessorRefundRef: out.CreditID}, nil
}

func (a *SegPayAdapter) Void(ctx context.Context, req VoidRequest) error {
	body := map[string]interface{}{
		"merchant_ref": attemptRef(req.Attempt),
		"mid":          req.MID,
		"auth_id":      req.ProcessorAuthRef,
	}
	return a.client.postJSON(ctx, "/api/void", req.MID, attemptRef(req.Attempt), body, nil, segpayErrorTable)
}

func (a *SegPayAdapter) PayoutSend(ctx context.Context, req PayoutSendRequest) (PayoutSendResult, error) {
	body := map[string]interface{}{
		"merchant_ref": attemptRef(req.Attempt),
		"rail":         req.Rail,
		"amount":       req.Amount.MinorUnits,
		"currency":     req.Amount.Currency,
		"beneficiary":  req.Dest,
	}
	var out struct {
		DisbursementID string `json:"disbursement_id"`
	}
	if err := a.client.postJSON(ctx, "/api/disburse", "", attemptRef(req.Attempt), body, &out, segpayErrorTable); err != nil {
		return PayoutSendResult{}, err
	}
	return PayoutSendResult{ProcessorPayoutRef: out.DisbursementID}, nil
}

func (a *SegPayAdapter) WebhookVerify(signatureHeader, timestampHeader string, rawBody []byte, tolerance time.Duration, now time.Time) error {
	return VerifySignature([]byte(a.creds.WebhookSecret), signatureHeader, timestampHeader, rawBody, tolerance, now)
}

func (a *SegPayAdapter) SettlementFetch(ctx context.Context, windowStart, windowEnd time.Time) ([]entities.SettlementLine, error) {
	var out struct {
		Rows []struct {
			SettleID   string `json:"settle_id"`
			Amount     int64  `json:"amount_minor"`
			Currency   string `json:"currency"`
			Fee        int64  `json:"fee_minor"`
			CapturedAt int64  `json:"captured_at"`
		} `json:"rows"`
	}
	path := fmt.Sprintf("/api/settlement-report?from=%d&to=%d", windowStart.Unix(), windowEnd.Unix())
	if err := a.client.getJSON(ctx, path, "", &out); err != nil {
		return nil, err
	}
	lines := make([]entities.SettlementLine, 0, len(out.Rows))
	for _, r := range out.Rows {
		lines = append(lines, entities.SettlementLine{
			ProcessorTxRef: r.SettleID,
			Amount:         entities.NewMoney(r.Amount, r.Currency),
			Fee:            entities.NewMoney(r.Fee, r.Currency),
			CapturedAt:     time.Unix(r.CapturedAt, 0).UTC(),
		})
	}
	return lines, nil
}
