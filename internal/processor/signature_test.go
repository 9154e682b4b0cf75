package processor

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignatureRoundTrip(t *testing.T) {
	secret := []byte("whsec-123")
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"event_id":"e1"}`)
	ts := now.Unix()

	header := SignPayload(secret, ts, body)
	err := VerifySignature(secret, header, strconv.FormatInt(ts, 10), body, 5*time.Minute, now)
	assert.NoError(t, err)
}

func TestVerifySignatureRejectsTamperedBody(t *testing.T) {
	secret := []byte("whsec-123")
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ts := now.Unix()
	header := SignPayload(secret, ts, []byte(`{"amount":1000}`))

	err := VerifySignature(secret, header, strconv.FormatInt(ts, 10), []byte(`{"amount":9000}`), 5*time.Minute, now)
	require.Error(t, err)
}

func TestVerifySignatureRejectsWrongSecret(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ts := now.Unix()
	body := []byte(`{}`)
	header := SignPayload([]byte("secret-a"), ts, body)

	err := VerifySignature([]byte("secret-b"), header, strconv.FormatInt(ts, 10), body, 5*time.Minute, now)
	require.Error(t, err)
}

func TestVerifySignatureRejectsOutsideTolerance(t *testing.T) {
	secret := []byte("whsec-123")
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for _, skew := range []time.Duration{-6 * time.Minute, 6 * time.Minute} {
		ts := now.Add(skew).Unix()
		body := []byte(`{}`)
		header := SignPayload(secret, ts, body)
		err := VerifySignature(secret, header, strconv.FormatInt(ts, 10), body, 5*time.Minute, now)
		assert.Error(t, err, "skew %v must be rejected", skew)
	}
}

func TestVerifySignatureRejectsMalformedInputs(t *testing.T) {
	secret := []byte("whsec-123")
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{}`)

	assert.Error(t, VerifySignature(secret, "sha256=zz", strconv.FormatInt(now.Unix(), 10), body, 5*time.Minute, now))
	assert.Error(t, VerifySignature(secret, SignPayload(secret, now.Unix(), body), "not-a-number", body, 5*time.Minute, now))
}
