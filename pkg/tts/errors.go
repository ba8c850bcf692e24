package tts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrNoAPIKey is returned when a hosted engine has no API key.
	ErrNoAPIKey = errors.New("tts: API key required")

	// ErrNoVoiceID is returned when an engine needs a voice (or model) and
	// none was configured.
	ErrNoVoiceID = errors.New("tts: voice ID required")

	// ErrEmptyText is returned for blank input. It is never retried.
	ErrEmptyText = errors.New("tts: text is empty")

	// ErrEngineNotFound is returned when a local synthesizer binary is missing.
	ErrEngineNotFound = errors.New("tts: engine not found")

	// ErrUnknownEngine is returned by New for unsupported engine names.
	ErrUnknownEngine = errors.New("tts: unknown engine")

	// ErrProviderUnavailable is returned for a chain with no engines.
	ErrProviderUnavailable = errors.New("tts: no providers available")
)

// APIError is a non-200 response from a hosted engine.
type APIError struct {
	Provider   string
	StatusCode int
	Code       string // provider error code, if any
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tts [%s]: HTTP %d (%s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("tts [%s]: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRateLimited reports HTTP 429.
func (e *APIError) IsRateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }

// IsUnauthorized reports HTTP 401.
func (e *APIError) IsUnauthorized() bool { return e.StatusCode == http.StatusUnauthorized }

// IsServerError reports HTTP 5xx.
func (e *APIError) IsServerError() bool { return e.StatusCode >= 500 && e.StatusCode < 600 }

// IsRetryable reports whether the same request may succeed later.
func (e *APIError) IsRetryable() bool { return e.IsRateLimited() || e.IsServerError() }

// decodeAPIError unmarshals resp's body into target and takes the message
// and code from fields. When that yields no message the raw body text, or
// the status text for an empty body, is used instead.
func decodeAPIError(provider string, resp *http.Response, target any, fields func() (msg, code string)) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(raw)),
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	if json.Unmarshal(raw, target) == nil {
		if msg, code := fields(); msg != "" {
			apiErr.Message, apiErr.Code = msg, code
		}
	}
	return apiErr
}

// ProviderError attributes an error to one engine.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("tts [%s]: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError attributes err to provider. A nil err stays nil.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}
