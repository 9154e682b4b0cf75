package processor

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	domainerrors "fanztrust.orchestrator/internal/domain/errors"
)

// VerifySignature checks an HMAC-SHA256 webhook signature over
// timestamp || "\n" || raw_body against a per-processor secret.
// The signature header carries "sha256=<hex>". Comparison is constant-time;
// a timestamp outside the tolerance window rejects before any crypto.
func VerifySignature(secret []byte, signatureHeader, timestampHeader string, rawBody []byte, tolerance time.Duration, now time.Time) error {
	ts, err := strconv.ParseInt(strings.TrimSpace(timestampHeader), 10, 64)
	if err != nil {
		return domainerrors.New(domainerrors.CodeAuthenticationFailed, "webhook timestamp malformed", nil)
	}
	age := now.Unix() - ts
	if age < 0 {
		age = -age
	}
	if time.Duration(age)*time.Second > tolerance {
		return domainerrors.New(domainerrors.CodeAuthenticationFailed, "webhook timestamp outside tolerance", nil)
	}

	sig := strings.TrimSpace(signatureHeader)
	sig = strings.TrimPrefix(sig, "sha256=")
	provided, err := hex.DecodeString(sig)
	if err != nil {
		return domainerrors.New(domainerrors.CodeAuthenticationFailed, "webhook signature malformed", nil)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("\n"))
	mac.Write(rawBody)
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(provided, expected) != 1 {
		return domainerrors.New(domainerrors.CodeAuthenticationFailed, "webhook signature mismatch", nil)
	}
	return nil
}

// SignPayload produces the header value a processor would send, used by
// tests and the reconcile CLI's replay mode.
func SignPayload(secret []byte, timestamp int64, rawBody []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("\n"))
	mac.Write(rawBody)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
