// Package client talks to the remote collaborators of the till: the order
// service and the payment gateway.
//
// Every call carries the tenant and bearer token headers and is bounded by
// the configured request timeout. Failures are returned as *Error.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds every remote call when Config.Timeout is zero.
const DefaultTimeout = 20 * time.Second

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 1 << 20

// Config holds connection settings shared by all clients.
type Config struct {
	BaseURL  string
	TenantID string
	Token    string
	Timeout  time.Duration

	// HTTPClient overrides the default client (for testing).
	// Its Timeout is left as provided.
	HTTPClient *http.Client
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Fields is a decoded JSON object from a remote response.
type Fields map[string]any

// String returns the first key present with a string value.
func (f Fields) String(keys ...string) string {
	for _, k := range keys {
		if s, ok := f[k].(string); ok {
			return s
		}
	}
	return ""
}

// requester performs JSON requests against one base URL.
type requester struct {
	base     string
	tenantID string
	token    string
	http     *http.Client
}

func newRequester(cfg Config) requester {
	return requester{
		base:     strings.TrimRight(cfg.BaseURL, "/"),
		tenantID: cfg.TenantID,
		token:    cfg.Token,
		http:     cfg.httpClient(),
	}
}

// do sends body (if non-nil) as JSON and decodes a JSON object response.
func (r requester) do(ctx context.Context, op, method, path string, body any) (Fields, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Code: ErrCodeDecode, Op: op, Message: "encode request body", Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.base+path, reader)
	if err != nil {
		return nil, &Error{Code: ErrCodeNetwork, Op: op, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Tenant-ID", r.tenantID)
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, &Error{Code: ErrCodeNetwork, Op: op, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{Code: ErrCodeNetwork, Op: op, Message: "read response body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Code:       ErrCodeStatus,
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw, resp.Status),
		}
	}

	fields := Fields{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &Error{Code: ErrCodeDecode, Op: op, Message: "response is not a JSON object", Err: err}
	}
	return fields, nil
}

// errorMessage extracts a readable reason from an error response body.
func errorMessage(raw []byte, fallback string) string {
	var body Fields
	if err := json.Unmarshal(raw, &body); err == nil {
		if msg := body.String("error", "message", "detail"); msg != "" {
			return msg
		}
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return fallback
	}
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}
