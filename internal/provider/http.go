package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultTimeout is the conservative per-call deadline applied when the
// caller's context carries no earlier deadline (spec.md §5: "implementations
// should apply a conservative per-call deadline and surface a timeout as
// UpstreamError").
const defaultTimeout = 30 * time.Second

// postJSON marshals payload, POSTs it with headers, and returns the raw
// response body alongside the HTTP status. Non-2xx responses are not
// treated as transport errors here — the status is returned for the
// dialect-specific call site to gate on, since what a non-2xx body looks
// like (provider-shaped JSON, or an upstream proxy's plain-text page)
// varies by dialect and deployment.
func postJSON(ctx context.Context, url string, headers map[string]string, payload any) ([]byte, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal request: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return data, resp.StatusCode, nil
}
