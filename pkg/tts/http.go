package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/teslashibe/go-billsense/internal/httpc"
)

// httpClientFor returns the configured client or a fresh shared-default one.
func httpClientFor(cfg *Config) *http.Client {
	if cfg.HTTPClient != nil {
		return cfg.HTTPClient
	}
	return httpc.NewClient(cfg.Timeout)
}

// restBackend is the HTTP plumbing shared by the JSON-over-REST backends.
type restBackend struct {
	name   string
	config *Config
	client *http.Client
	logger *slog.Logger

	// authorize sets credentials on every request.
	authorize func(*http.Request)

	// errorDetail pulls the message and code out of an error body. ok is
	// false when the body is not in the backend's error shape.
	errorDetail func(body []byte) (message, code string, ok bool)
}

func newRestBackend(name string, cfg *Config) restBackend {
	return restBackend{
		name:   name,
		config: cfg,
		client: httpClientFor(cfg),
		logger: cfg.Logger.With("component", "tts."+name),
	}
}

// fetchAudio posts payload as JSON to url and returns the audio body.
// Transport errors, 429 and 5xx are retried up to MaxRetries times.
func (b *restBackend) fetchAudio(ctx context.Context, url string, payload any, accept string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(b.name, fmt.Errorf("marshal payload: %w", err))
	}

	var lastErr error
	for attempt := 0; attempt <= b.config.MaxRetries; attempt++ {
		if attempt > 0 {
			b.logger.Warn("retrying speech request", "attempt", attempt, "error", lastErr)
			t := time.NewTimer(b.config.RetryDelay * time.Duration(attempt))
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, WrapError(b.name, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		b.authorize(req)

		audio, err := b.roundTrip(req)
		if err == nil {
			return audio, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.IsRetryable() {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (b *restBackend) roundTrip(req *http.Request) ([]byte, error) {
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, WrapError(b.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, b.apiError(resp)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(b.name, fmt.Errorf("read response: %w", err))
	}
	if len(audio) == 0 {
		return nil, WrapError(b.name, ErrNoAudio)
	}
	return audio, nil
}

// probe GETs url with credentials and expects a 200.
func (b *restBackend) probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return WrapError(b.name, err)
	}
	b.authorize(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return WrapError(b.name, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return b.apiError(resp)
	}
	return nil
}

func (b *restBackend) apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    string(bytes.TrimSpace(body)),
		Provider:   b.name,
	}
	if b.errorDetail != nil {
		if msg, code, ok := b.errorDetail(body); ok {
			apiErr.Message, apiErr.Code = msg, code
		}
	}
	return apiErr
}

func (b *restBackend) logSynthesis(text string, audio []byte, start time.Time) int64 {
	latency := time.Since(start).Milliseconds()
	b.logger.Debug("synthesized announcement",
		"text", text,
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", b.config.VoiceID,
	)
	return latency
}

// Name implements Named.
func (b *restBackend) Name() string { return b.name }

// Close releases idle connections.
func (b *restBackend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}

// VoiceID returns the configured voice.
func (b *restBackend) VoiceID() string { return b.config.VoiceID }
