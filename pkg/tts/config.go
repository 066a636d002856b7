package tts

import (
	"log/slog"
	"net/http"
	"time"
)

// Announcement defaults. Slightly slower than normal speech helps listeners
// catch the denomination on the first pass.
const (
	DefaultLanguage = "es-MX"
	DefaultSpeed    = 0.95
)

// Config is shared by every backend. Fields a backend does not understand
// are ignored.
type Config struct {
	APIKey  string
	BaseURL string

	VoiceID  string
	ModelID  string
	Language string  // BCP-47, e.g. "es-MX"
	Speed    float64 // 1.0 is normal rate

	// ElevenLabs only.
	VoiceSettings VoiceSettings
	OutputFormat  Encoding

	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Option configures a backend.
type Option func(*Config)

func WithAPIKey(key string) Option          { return func(c *Config) { c.APIKey = key } }
func WithBaseURL(url string) Option         { return func(c *Config) { c.BaseURL = url } }
func WithVoice(voiceID string) Option       { return func(c *Config) { c.VoiceID = voiceID } }
func WithModel(modelID string) Option       { return func(c *Config) { c.ModelID = modelID } }
func WithLanguage(lang string) Option       { return func(c *Config) { c.Language = lang } }
func WithSpeed(speed float64) Option        { return func(c *Config) { c.Speed = speed } }
func WithTimeout(d time.Duration) Option    { return func(c *Config) { c.Timeout = d } }
func WithHTTPClient(hc *http.Client) Option { return func(c *Config) { c.HTTPClient = hc } }
func WithLogger(l *slog.Logger) Option      { return func(c *Config) { c.Logger = l } }

// WithOutputFormat picks the ElevenLabs output encoding.
func WithOutputFormat(format Encoding) Option {
	return func(c *Config) { c.OutputFormat = format }
}

// WithVoiceSettings tunes ElevenLabs stability and similarity.
func WithVoiceSettings(settings VoiceSettings) Option {
	return func(c *Config) { c.VoiceSettings = settings }
}

// WithRetry retries 429, 5xx and transport failures maxRetries times,
// waiting delay, 2*delay and so on between attempts.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// DefaultConfig has retries off: by the time a retry answers, the bill may
// already be out of view and the announcement would be stale.
func DefaultConfig() *Config {
	return &Config{
		Language:      DefaultLanguage,
		Speed:         DefaultSpeed,
		OutputFormat:  EncodingMP3,
		VoiceSettings: DefaultVoiceSettings(),
		Timeout:       10 * time.Second,
		RetryDelay:    100 * time.Millisecond,
		Logger:        slog.Default(),
	}
}

// Apply runs opts in order.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate requires an API key.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}

// ValidateWithVoice also requires a voice, for backends with no built-in default.
func (c *Config) ValidateWithVoice() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.VoiceID == "" {
		return ErrNoVoiceID
	}
	return nil
}
