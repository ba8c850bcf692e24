package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// HTTP defaults for hosted engines.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultKeepAlive      = 30 * time.Second
	defaultIdleTimeout    = 90 * time.Second
)

// newHTTPClient returns a client with an overall timeout. Speech requests
// are small and infrequent so the idle pool is kept small.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   defaultConnectTimeout,
				KeepAlive: defaultKeepAlive,
			}).DialContext,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     defaultIdleTimeout,
			TLSHandshakeTimeout: defaultConnectTimeout,
		},
	}
}

// hosted is the request plumbing shared by the HTTP engines.
type hosted struct {
	provider string
	client   *http.Client
	logger   *slog.Logger
	retries  int
	delay    time.Duration
	header   http.Header

	// apiError decodes a non-200 response.
	apiError func(resp *http.Response) *APIError
}

func newHosted(provider string, cfg *Config, header http.Header, apiError func(*http.Response) *APIError) *hosted {
	return &hosted{
		provider: provider,
		client:   newHTTPClient(cfg.Timeout),
		logger:   cfg.Logger.With("component", "tts."+provider),
		retries:  cfg.MaxRetries,
		delay:    cfg.RetryDelay,
		header:   header,
		apiError: apiError,
	}
}

// post sends body and returns the 200 response; the caller closes its body.
// Transport errors, 429 and 5xx are retried with a linear backoff.
func (h *hosted) post(ctx context.Context, url, accept string, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= h.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(h.delay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, WrapError(h.provider, fmt.Errorf("create request: %w", err))
		}
		h.setHeaders(req)
		req.Header.Set("Content-Type", "application/json")
		if accept != "" {
			req.Header.Set("Accept", accept)
		}

		resp, err := h.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = WrapError(h.provider, err)
			h.logger.Warn("request failed", "attempt", attempt+1, "error", err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}
		apiErr := h.apiError(resp)
		resp.Body.Close()
		if !apiErr.IsRetryable() {
			return nil, apiErr
		}
		lastErr = apiErr
		h.logger.Warn("retrying request", "attempt", attempt+1, "status", resp.StatusCode)
	}

	return nil, lastErr
}

// check issues a GET and expects 200.
func (h *hosted) check(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return WrapError(h.provider, err)
	}
	h.setHeaders(req)

	resp, err := h.client.Do(req)
	if err != nil {
		return WrapError(h.provider, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return h.apiError(resp)
	}
	return nil
}

func (h *hosted) setHeaders(req *http.Request) {
	for k, v := range h.header {
		req.Header[k] = v
	}
}

func (h *hosted) close() {
	h.client.CloseIdleConnections()
}

// readBody drains a successful response.
func (h *hosted) readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(h.provider, fmt.Errorf("read response: %w", err))
	}
	return data, nil
}
