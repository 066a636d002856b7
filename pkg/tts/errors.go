package tts

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNoAPIKey            = errors.New("tts: API key required")
	ErrNoVoiceID           = errors.New("tts: voice ID required")
	ErrEmptyText           = errors.New("tts: empty text")
	ErrNoAudio             = errors.New("tts: no audio returned")
	ErrProviderUnavailable = errors.New("tts: no providers available")
)

// APIError is a non-200 answer from a speech backend.
type APIError struct {
	StatusCode int
	Message    string
	Code       string // backend error code, when it sends one
	Provider   string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("tts [%s]: %d %s", e.Provider, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// IsUnauthorized reports a rejected key. Retrying cannot help, and the
// operator has to fix the configuration.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsRetryable reports throttling and server failures.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ProviderError tags an error with the backend that produced it.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("tts [%s]: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// WrapError tags err with provider. A nil err stays nil, and an error that
// already names a backend is returned as is.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	var ae *APIError
	if errors.As(err, &pe) || errors.As(err, &ae) {
		return err
	}
	return &ProviderError{Provider: provider, Err: err}
}

// ChainError collects one error per backend that failed an announcement.
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("tts chain: %d backends failed: %s", len(e.Errors), strings.Join(parts, "; "))
}

// Unwrap exposes every backend error to errors.Is and errors.As.
func (e *ChainError) Unwrap() []error { return e.Errors }
