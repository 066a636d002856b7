package inference

import (
	"log/slog"
	"net/http"
	"time"
)

// DefaultBaseURL is the hosted serverless inference endpoint.
const DefaultBaseURL = "https://serverless.roboflow.com"

// Config holds classifier configuration.
type Config struct {
	// Connection
	BaseURL string // API base URL
	APIKey  string // API key, sent as the api_key query parameter

	// Model is the "project/version" identifier of the hosted model.
	Model string

	// Confidence is the server-side floor sent with each request (0-1).
	// Zero leaves it to the model default; the engine filters again anyway.
	Confidence float64

	// Timeout bounds a whole request when no HTTPClient is supplied.
	Timeout time.Duration

	// HTTPClient overrides the transport.
	HTTPClient *http.Client

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring classifiers.
type Option func(*Config)

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithModel sets the hosted model identifier.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithConfidence sets the server-side confidence floor.
func WithConfidence(v float64) Option {
	return func(c *Config) { c.Confidence = v }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) { c.HTTPClient = hc }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns defaults for the hosted endpoint.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: DefaultBaseURL,
		Timeout: 30 * time.Second,
		Logger:  slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	if c.Model == "" {
		return ErrNoModel
	}
	return nil
}
