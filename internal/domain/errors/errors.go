// Package errors defines the canonical error taxonomy the orchestrator,
// processor adapters and webhook ingestor classify every failure into: a
// set of sentinel errors plus a typed wrapper carrying a taxonomy code, a
// hint and a retry-after duration.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Code is a canonical taxonomy code. Every processor/adapter error and every
// orchestrator-surfaced error collapses to exactly one of these.
type Code string

const (
	CodeTransient            Code = "transient"
	CodeRetriableDecline     Code = "retriable_decline"
	CodeHardDecline          Code = "hard_decline"
	CodeFraud                Code = "fraud"
	CodeDuplicate            Code = "duplicate"
	CodeInvalidRequest       Code = "invalid_request"
	CodeAuthenticationFailed Code = "authentication_failed"
	CodeRateLimited          Code = "rate_limited"
	CodeTimeout              Code = "timeout"
	CodeUnknown              Code = "unknown"

	// Codes that are not part of the processor-error taxonomy but share the
	// same propagation machinery.
	CodeLedgerConflict    Code = "ledger_conflict"
	CodeServiceOverloaded Code = "service_overloaded"
	CodeNotFound          Code = "not_found"
	CodeConflict          Code = "conflict"
)

// Sentinel errors for errors.Is comparisons deep in the call stack.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrAlreadyExists     = errors.New("resource already exists")
	ErrLedgerConflict    = errors.New("ledger conflict")
	ErrServiceOverloaded = errors.New("service overloaded")
	ErrInFlight          = errors.New("idempotency key in flight")
	ErrVersionConflict   = errors.New("optimistic concurrency conflict")
)

// CoreError is the typed error every orchestration boundary returns.
type CoreError struct {
	Code       Code
	Message    string
	Hint       string
	RetryAfter time.Duration
	Err        error
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CoreError) Unwrap() error { return e.Err }

// New builds a CoreError.
func New(code Code, message string, err error) *CoreError {
	return &CoreError{Code: code, Message: message, Err: err}
}

// WithHint attaches an operator-facing hint.
func (e *CoreError) WithHint(hint string) *CoreError {
	e.Hint = hint
	return e
}

// WithRetryAfter attaches a cooperative backoff hint.
func (e *CoreError) WithRetryAfter(d time.Duration) *CoreError {
	e.RetryAfter = d
	return e
}

// Retriable reports whether the caller should retry the same request.
func (e *CoreError) Retriable() bool {
	switch e.Code {
	case CodeTransient, CodeRateLimited, CodeUnknown:
		return true
	default:
		return false
	}
}

// Envelope is the JSON shape returned to external callers.
type Envelope struct {
	Success       bool   `json:"success"`
	Error         Code   `json:"error"`
	Hint          string `json:"hint,omitempty"`
	RetryAfterMs  int64  `json:"retry_after_ms,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ToEnvelope renders a CoreError into the external API shape.
func ToEnvelope(err error, correlationID string) Envelope {
	var ce *CoreError
	if errors.As(err, &ce) {
		return Envelope{
			Success:       false,
			Error:         ce.Code,
			Hint:          ce.Hint,
			RetryAfterMs:  ce.RetryAfter.Milliseconds(),
			CorrelationID: correlationID,
		}
	}
	return Envelope{Success: false, Error: CodeUnknown, CorrelationID: correlationID}
}
