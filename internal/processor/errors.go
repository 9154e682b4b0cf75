package processor

import (
	"context"
	"errors"
	"net/http"

	domainerrors "fanztrust.orchestrator/internal/domain/errors"
)

// wireError is the JSON error envelope the processor sandboxes return.
type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// classify maps one processor's wire code to the canonical taxonomy.
// Each adapter owns its table; codes not in the table fall through to
// unknown, which the orchestrator treats as transient with a reduced retry
// budget.
func classify(table map[string]domainerrors.Code, we wireError) error {
	code, ok := table[we.Code]
	if !ok {
		code = domainerrors.CodeUnknown
	}
	return domainerrors.New(code, we.Message, nil).WithHint("processor code " + we.Code)
}

// classifyHTTP maps transport-level failures that never produced a wire
// envelope.
func classifyHTTP(status int, err error) error {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domainerrors.New(domainerrors.CodeTimeout, "processor call timed out", err)
		}
		return domainerrors.New(domainerrors.CodeTransient, "processor unreachable", err)
	}
	switch {
	case status == http.StatusTooManyRequests:
		return domainerrors.New(domainerrors.CodeRateLimited, "processor rate limited", nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domainerrors.New(domainerrors.CodeAuthenticationFailed, "processor rejected credentials", nil)
	case status == http.StatusConflict:
		return domainerrors.New(domainerrors.CodeDuplicate, "processor saw this reference before", nil)
	case status >= 500:
		return domainerrors.New(domainerrors.CodeTransient, "processor server error", nil)
	case status >= 400:
		return domainerrors.New(domainerrors.CodeInvalidRequest, "processor rejected request", nil)
	default:
		return domainerrors.New(domainerrors.CodeUnknown, "unexpected processor response", nil)
	}
}
