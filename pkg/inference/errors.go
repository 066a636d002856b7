package inference

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNoAPIKey            = errors.New("inference: API key required")
	ErrNoModel             = errors.New("inference: model required")
	ErrEmptyImage          = errors.New("inference: empty image")
	ErrMalformedResponse   = errors.New("inference: malformed response")
	ErrProviderUnavailable = errors.New("inference: provider unavailable")
)

// APIError is a non-2xx answer from the hosted model.
type APIError struct {
	StatusCode int
	Message    string
	Provider   string
	Model      string
}

func (e *APIError) Error() string {
	where := e.Provider
	if e.Model != "" {
		where += " " + e.Model
	}
	return fmt.Sprintf("inference [%s]: HTTP %d: %s", where, e.StatusCode, e.Message)
}

func (e *APIError) IsRateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }

func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsNotFound reports an unknown or retired model version.
func (e *APIError) IsNotFound() bool { return e.StatusCode == http.StatusNotFound }

func (e *APIError) IsServerError() bool { return e.StatusCode >= 500 && e.StatusCode < 600 }

// Permanent reports errors that the same request will keep hitting: a bad
// key or a missing model. Frames sent afterwards are wasted.
func (e *APIError) Permanent() bool { return e.IsUnauthorized() || e.IsNotFound() }

// IsPermanent reports whether err wraps a permanent APIError.
func IsPermanent(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Permanent()
}

// ProviderError tags an error with the classifier that produced it.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("inference [%s]: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// WrapError tags err with provider. nil stays nil.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}

// ChainError holds the error of every classifier tried for one frame.
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	if len(e.Errors) == 1 {
		return "inference chain: " + e.Errors[0].Error()
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("inference chain: %d classifiers failed: %s", len(e.Errors), strings.Join(msgs, "; "))
}

func (e *ChainError) Unwrap() []error { return e.Errors }
