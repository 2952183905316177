// Package oracle provides transports for the external risk intelligence
// oracle: a plain JSON endpoint, an OpenAI-compatible chat model, a
// circuit-breaking guard and an always-failing stand-in.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/risk"
)

const (
	defaultTimeout = 30 * time.Second
	maxReplyBytes  = 1 << 20
)

// ErrDisabled is returned by Unavailable.
var ErrDisabled = risk.ErrOracleDisabled

// Unavailable is an oracle that always fails. Every verdict then comes from
// the rule-based fallback.
type Unavailable struct{}

func (Unavailable) Enrich(context.Context, *risk.EnrichmentRequest) (*risk.EnrichmentReply, error) {
	return nil, ErrDisabled
}

// HTTPOracle posts the enrichment request as JSON and decodes the reply.
type HTTPOracle struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPOracle creates an oracle that POSTs to url. apiKey is sent as a
// bearer token when non-empty.
func NewHTTPOracle(url, apiKey string, timeout time.Duration) *HTTPOracle {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPOracle{
		url:        url,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (o *HTTPOracle) Enrich(ctx context.Context, req *risk.EnrichmentRequest) (*risk.EnrichmentReply, error) {
	body, err := postJSON(ctx, o.httpClient, o.url, o.apiKey, req)
	if err != nil {
		return nil, err
	}
	var reply risk.EnrichmentReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("%w: decode reply: %v", risk.ErrInvalidReply, err)
	}
	return &reply, nil
}

// apiError is the error body shape returned by most JSON APIs.
type apiError struct {
	Error   any    `json:"error"`
	Message string `json:"message"`
}

// postJSON sends body and returns the raw response body. Non-2xx responses
// are errors.
func postJSON(ctx context.Context, client *http.Client, url, apiKey string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("oracle error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("oracle error (%d): %s", resp.StatusCode, truncate(string(respBody), 200))
	}
	return respBody, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
