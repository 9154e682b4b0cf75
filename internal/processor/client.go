package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"fanztrust.orchestrator/internal/clockwork"
	domainerrors "fanztrust.orchestrator/internal/domain/errors"
	"fanztrust.orchestrator/pkg/jwt"
)

// Credentials configure one adapter's outbound authentication and webhook
// verification.
type Credentials struct {
	APISecret     string
	WebhookSecret string
}

// httpClient is the shared outbound transport every concrete adapter wraps:
// one pooled http.Client per processor, a
// per-call timeout, and a freshly minted bearer token per request.
type httpClient struct {
	base      string
	http      *http.Client
	minter    *jwt.Minter
	clock     clockwork.Clock
	processor string
}

func newHTTPClient(processorName, baseURL string, creds Credentials, timeout time.Duration, clock clockwork.Clock) *httpClient {
	return &httpClient{
		base:      baseURL,
		http:      &http.Client{Timeout: timeout},
		minter:    jwt.NewMinter(creds.APISecret, 2*time.Minute, "fanztrust-orchestrator"),
		clock:     clock,
		processor: processorName,
	}
}

// postJSON issues one POST and decodes the response into out on 2xx, or
// returns a taxonomy-classified error otherwise. idemRef travels as an
// Idempotency-Key header so the processor can dedup replays.
func (c *httpClient) postJSON(ctx context.Context, path, mid, idemRef string, body interface{}, out interface{}, table map[string]domainerrors.Code) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	token, err := c.minter.Mint(c.processor, mid, c.clock.Now())
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Idempotency-Key", idemRef)

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyHTTP(0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return classifyHTTP(0, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		return json.Unmarshal(raw, out)
	}

	var we wireError
	if err := json.Unmarshal(raw, &we); err == nil && we.Code != "" {
		return classify(table, we)
	}
	return classifyHTTP(resp.StatusCode, nil)
}

// getJSON issues one GET with the same auth treatment.
func (c *httpClient) getJSON(ctx context.Context, path, mid string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	token, err := c.minter.Mint(c.processor, mid, c.clock.Now())
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyHTTP(0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return classifyHTTP(0, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return json.Unmarshal(raw, out)
	}
	return classifyHTTP(resp.StatusCode, nil)
}
