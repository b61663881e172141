package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// apiResponse is a decoded HTTP API reply plus the bits the orchestrator
// cares about on failure.
type apiResponse struct {
	status     int
	body       []byte
	retryAfter time.Duration
}

// postJSON sends a JSON POST and reads the full body. A non-nil error means
// the request never completed (network or encode failure); HTTP-level
// failures come back through apiResponse.status.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload any) (*apiResponse, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &apiResponse{
		status:     resp.StatusCode,
		body:       body,
		retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}, nil
}

// classifyHTTP turns a non-2xx apiResponse into a ProviderError.
func classifyHTTP(provider string, r *apiResponse) *ProviderError {
	msg := string(r.body)
	if len(msg) > 300 {
		msg = msg[:300]
	}
	perr := Classify(provider, kindFromStatus(r.status), fmt.Errorf("http %d: %s", r.status, msg))
	if perr.Kind == FailureRateLimited {
		perr.RetryAfter = r.retryAfter
	}
	return perr
}
