package session

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-billsense/internal/timeutil"
	"github.com/teslashibe/go-billsense/pkg/announce"
	"github.com/teslashibe/go-billsense/pkg/camera"
	"github.com/teslashibe/go-billsense/pkg/detect"
)

// Session defaults
const (
	DefaultWarmupDelay        = time.Second
	DefaultFlipDelay          = 300 * time.Millisecond
	DefaultStartAnnounceDelay = 800 * time.Millisecond
	DefaultDecodeErrorLimit   = 5
)

// Config holds session settings.
type Config struct {
	Engine detect.EngineConfig

	// Facing opened by the first Start.
	Facing camera.Facing

	// WarmupDelay is the wait between opening the camera and the first tick.
	WarmupDelay time.Duration

	// FlipDelay is the pause between stopping and restarting on Flip.
	FlipDelay time.Duration

	// StartAnnounceDelay postpones "camera on" so a flip announcement
	// has time to play.
	StartAnnounceDelay time.Duration

	// DecodeErrorLimit consecutive frame failures are reported as a
	// camera problem in the status.
	DecodeErrorLimit int

	// JPEGQuality is used when the source hands over raw pixels.
	JPEGQuality int

	Phrases  announce.Phrasebook
	Clock    timeutil.Clock
	Logger   *slog.Logger
	Observer func(Status)
}

// Option configures a session.
type Option func(*Config)

// WithEngineConfig sets the detection parameters.
func WithEngineConfig(cfg detect.EngineConfig) Option {
	return func(c *Config) { c.Engine = cfg }
}

// WithFacing sets the initial camera facing.
func WithFacing(f camera.Facing) Option {
	return func(c *Config) { c.Facing = f }
}

// WithWarmupDelay sets the delay before the first tick.
func WithWarmupDelay(d time.Duration) Option {
	return func(c *Config) { c.WarmupDelay = d }
}

// WithFlipDelay sets the pause used by Flip.
func WithFlipDelay(d time.Duration) Option {
	return func(c *Config) { c.FlipDelay = d }
}

// WithStartAnnounceDelay sets how long after start "camera on" is spoken.
func WithStartAnnounceDelay(d time.Duration) Option {
	return func(c *Config) { c.StartAnnounceDelay = d }
}

// WithDecodeErrorLimit sets how many consecutive frame failures are tolerated.
func WithDecodeErrorLimit(n int) Option {
	return func(c *Config) { c.DecodeErrorLimit = n }
}

// WithJPEGQuality sets the encode quality for raw frames.
func WithJPEGQuality(q int) Option {
	return func(c *Config) { c.JPEGQuality = q }
}

// WithPhrases sets the phrasebook.
func WithPhrases(p announce.Phrasebook) Option {
	return func(c *Config) { c.Phrases = p }
}

// WithClock sets the clock driving the scheduler and delays.
func WithClock(clk timeutil.Clock) Option {
	return func(c *Config) { c.Clock = clk }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithObserver registers a callback for every status change. It is called
// without session locks held and must not block for long.
func WithObserver(fn func(Status)) Option {
	return func(c *Config) { c.Observer = fn }
}

// DefaultConfig returns the strict engine profile, back camera.
func DefaultConfig() *Config {
	return &Config{
		Engine:             detect.DefaultConfig(),
		Facing:             camera.FacingBack,
		WarmupDelay:        DefaultWarmupDelay,
		FlipDelay:          DefaultFlipDelay,
		StartAnnounceDelay: DefaultStartAnnounceDelay,
		DecodeErrorLimit:   DefaultDecodeErrorLimit,
		JPEGQuality:        detect.DefaultJPEGQuality,
		Phrases:            announce.Phrases(announce.DefaultLocale),
		Clock:              timeutil.RealClock{},
		Logger:             slog.Default(),
	}
}

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the config.
func (c *Config) Validate() error {
	if errs := c.Engine.Validate(); len(errs) > 0 {
		return fmt.Errorf("session: engine config: %v", errs)
	}
	if c.DecodeErrorLimit < 1 {
		return fmt.Errorf("session: decode error limit must be positive")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("session: jpeg quality must be between 1 and 100")
	}
	return nil
}
