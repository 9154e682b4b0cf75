package processor

import (
	"context"
	"fmt"
	"time"

	"fanztrust.orchestrator/internal/clockwork"
	"fanztrust.orchestrator/internal/domain/entities"
	domainerrors "fanztrust.orchestrator/internal/domain/errors"
)

// ccbillErrorTable maps CCBill wire codes to the canonical taxonomy.
var ccbillErrorTable = map[string]domainerrors.Code{
	"DECLINE_INSUFFICIENT":  domainerrors.CodeRetriableDecline,
	"DECLINE_DO_NOT_HONOR":  domainerrors.CodeRetriableDecline,
	"DECLINE_EXPIRED_CARD":  domainerrors.CodeHardDecline,
	"DECLINE_INVALID_CARD":  domainerrors.CodeHardDecline,
	"FRAUD_SUSPECTED":       domainerrors.CodeFraud,
	"DUPLICATE_TRANSACTION": domainerrors.CodeDuplicate,
	"INVALID_REQUEST":       domainerrors.CodeInvalidRequest,
	"AUTH_FAILED":           domainerrors.CodeAuthenticationFailed,
	"RATE_LIMITED":          domainerrors.CodeRateLimited,
	"GATEWAY_TIMEOUT":       domainerrors.CodeTransient,
	"SERVICE_UNAVAILABLE":   domainerrors.CodeTransient,
}

// CCBillAdapter speaks the CCBill card-processing sandbox.
type CCBillAdapter struct {
	client *httpClient
	creds  Credentials
}

// NewCCBill builds a CCBillAdapter.
func NewCCBill(baseURL string, creds Credentials, timeout time.Duration, clock clockwork.Clock) *CCBillAdapter {
	return &CCBillAdapter{
		client: newHTTPClient("ccbill", baseURL, creds, timeout, clock),
		creds:  creds,
	}
}

func (a *CCBillAdapter) Name() string { return "ccbill" }

func attemptRef(ref AttemptRef) string {
	return fmt.Sprintf("%s:%d", ref.TransactionID, ref.Attempt)
}

func (a *CCBillAdapter) Authorize(ctx context.Context, req AuthorizeRequest) (AuthorizeResult, error) {
	body := map[string]interface{}{
		"reference":  attemptRef(req.Attempt),
		"mid":        req.MID,
		"amount":     req.Amount.MinorUnits,
		"currency":   req.Amount.Currency,
		"descriptor": req.Descriptor,
		"customer":   req.FanID,
		"card_token": cardToken(req.Method),
	}
	var out struct {
		AuthRef   string   `json:"auth_ref"`
		RiskFlags []string `json:"risk_flags"`
	}
	if err := a.client.postJSON(ctx, "/v1/authorize", req.MID, attemptRef(req.Attempt), body, &out, ccbillErrorTable); err != nil {
		return AuthorizeResult{}, err
	}
	return AuthorizeResult{ProcessorAuthRef: out.AuthRef, RiskFlags: out.RiskFlags}, nil
}

func (a *CCBillAdapter) Capture(ctx context.Context, req CaptureRequest) (CaptureResult, error) {
	body := map[string]interface{}{
		"reference": attemptRef(req.Attempt),
		"mid":       req.MID,
		"auth_ref":  req.ProcessorAuthRef,
		"amount":    req.Amount.MinorUnits,
		"currency":  req.Amount.Currency,
	}
	var out struct {
		CaptureRef string `json:"capture_ref"`
		Fee        int64  `json:"fee_minor"`
	}
	if err := a.client.postJSON(ctx, "/v1/capture", req.MID, attemptRef(req.Attempt), body, &out, ccbillErrorTable); err != nil {
		return CaptureResult{}, err
	}
	return CaptureResult{ProcessorCaptureRef: out.CaptureRef, FeeMinorUnits: out.Fee}, nil
}

func (a *CCBillAdapter) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	body := map[string]interface{}{
		"reference":   attemptRef(req.Attempt),
		"mid":         req.MID,
		"capture_ref": req.ProcessorCaptureRef,
		"amount":      req.Amount.MinorUnits,
		"currency":    req.Amount.Currency,
	}
	var out struct {
		RefundRef string `json:"refund_ref"`
	}
	if err := a.client.postJSON(ctx, "/v1/refund", req.MID, attemptRef(req.Attempt), body, &out, ccbillErrorTable); err != nil {
		return RefundResult{}, err
	}
	return RefundResult{ProcessorRefundRef: out.RefundRef}, nil
}

func (a *CCBillAdapter) Void(ctx context.Context, req VoidRequest) error {
	body := map[string]interface{}{
		"reference": attemptRef(req.Attempt),
		"mid":       req.MID,
		"auth_ref":  req.ProcessorAuthRef,
	}
	return a.client.postJSON(ctx, "/v1/void", req.MID, attemptRef(req.Attempt), body, nil, ccbillErrorTable)
}

func (a *CCBillAdapter) PayoutSend(ctx context.Context, req PayoutSendRequest) (PayoutSendResult, error) {
	body := map[string]interface{}{
		"reference": attemptRef(req.Attempt),
		"rail":      req.Rail,
		"amount":    req.Amount.MinorUnits,
		"currency":  req.Amount.Currency,
		"dest":      req.Dest,
	}
	var out struct {
		PayoutRef string `json:"payout_ref"`
	}
	if err := a.client.postJSON(ctx, "/v1/payouts", "", attemptRef(req.Attempt), body, &out, ccbillErrorTable); err != nil {
		return PayoutSendResult{}, err
	}
	return PayoutSendResult{ProcessorPayoutRef: out.PayoutRef}, nil
}

func (a *CCBillAdapter) WebhookVerify(signatureHeader, timestampHeader string, rawBody []byte, tolerance time.Duration, now time.Time) error {
	return VerifySignature([]byte(a.creds.WebhookSecret), signatureHeader, timestampHeader, rawBody, tolerance, now)
}

func (a *CCBillAdapter) SettlementFetch(ctx context.Context, windowStart, windowEnd time.Time) ([]entities.SettlementLine, error) {
	var out struct {
		Lines []struct {
			TxRef      string `json:"tx_ref"`
			Amount     int64  `json:"amount_minor"`
			Currency   string `json:"currency"`
			Fee        int64  `json:"fee_minor"`
			CapturedAt int64  `json:"captured_at"`
		} `json:"lines"`
	}
	path := fmt.Sprintf("/v1/settlements?from=%d&to=%d", windowStart.Unix(), windowEnd.Unix())
	if err := a.client.getJSON(ctx, path, "", &out); err != nil {
		return nil, err
	}
	lines := make([]entities.SettlementLine, 0, len(out.Lines))
	for _, l := range out.Lines {
		lines = append(lines, entities.SettlementLine{
			ProcessorTxRef: l.TxRef,
			Amount:         entities.NewMoney(l.Amount, l.Currency),
			Fee:            entities.NewMoney(l.Fee, l.Currency),
			CapturedAt:     time.Unix(l.CapturedAt, 0).UTC(),
		})
	}
	return lines, nil
}

// cardToken extracts the processor-visible token from a tagged payment
// method; non-card methods pass through their opaque handle.
func cardToken(m entities.PaymentMethod) string {
	switch m.Variant {
	case entities.MethodCard:
		if m.Card != nil {
			return m.Card.Token
		}
	case entities.MethodWallet, entities.MethodApplePay, entities.MethodGooglePay:
		if m.Wallet != nil {
			return m.Wallet.Token
		}
	case entities.MethodBank:
		if m.Bank != nil {
			return m.Bank.AccountToken
		}
	case entities.MethodCrypto:
		if m.Crypto != nil {
			return m.Crypto.Address
		}
	}
	return ""
}
