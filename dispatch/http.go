package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const maxResponseBytes = 8 << 20

// HTTPTransport posts JSON to {endpoint}/{action}.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport uses client, or a client with timeout when client is nil.
func NewHTTPTransport(client *http.Client, timeout time.Duration) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPTransport{client: client}
}

// Invoke implements Transport.
func (t *HTTPTransport) Invoke(ctx context.Context, req Request) (*Response, error) {
	target, err := url.JoinPath(req.Endpoint, req.Action)
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(HeaderVersion, req.Version)
	httpReq.Header.Set(HeaderChannel, req.Channel)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// Probe implements Transport with GET {endpoint}/health.
func (t *HTTPTransport) Probe(ctx context.Context, endpoint string) error {
	target, err := url.JoinPath(endpoint, HealthAction)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}
