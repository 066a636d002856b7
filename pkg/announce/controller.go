package announce

import (
	"log/slog"

	"github.com/teslashibe/go-billsense/pkg/detect"
)

// Controller turns engine results and camera lifecycle events into speech.
// Bill deduplication happens in the engine; the controller only speaks
// what it is told and clears the speaker's memory on forget.
type Controller struct {
	announcer Announcer
	phrases   Phrasebook
	logger    *slog.Logger
}

// NewController creates a controller speaking through a.
func NewController(a Announcer, phrases Phrasebook, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		announcer: a,
		phrases:   phrases,
		logger:    logger.With("component", "announce.controller"),
	}
}

// Phrases returns the active phrasebook.
func (c *Controller) Phrases() Phrasebook {
	return c.phrases
}

// Handle reacts to one tick.
func (c *Controller) Handle(res detect.TickResult) {
	if res.Forgotten {
		c.logger.Debug("bill forgotten")
		c.announcer.Reset()
	}
	// The engine raises darkness once per dark spell, and a new spell
	// must be heard even when nothing else was said in between.
	if res.AnnounceDark {
		c.announcer.Speak(c.phrases.TooDark, true)
	}
	if res.Announce {
		c.logger.Info("bill confirmed", "label", res.Label, "confidence", res.Confidence)
		c.announcer.Speak(c.phrases.Bill(res.Label), false)
	}
}

// CameraStarted announces that detection is running.
func (c *Controller) CameraStarted() {
	c.announcer.Speak(c.phrases.CameraStarted, false)
}

// CameraFailed announces that the camera could not be opened.
func (c *Controller) CameraFailed() {
	c.announcer.Speak(c.phrases.CameraError, true)
}

// Flipping announces a camera switch.
func (c *Controller) Flipping() {
	c.announcer.Speak(c.phrases.CameraFlipping, false)
}

// AudioEnabled confirms audio is back on, even if it was the last thing said.
func (c *Controller) AudioEnabled() {
	c.announcer.Speak(c.phrases.AudioEnabled, true)
}

// Stop silences everything and forgets the last spoken text.
func (c *Controller) Stop() {
	c.announcer.Cancel()
	c.announcer.Reset()
}

// StatusText returns the on-screen line for a tick outcome.
func (c *Controller) StatusText(out detect.Outcome) string {
	switch out.Phase {
	case detect.PhaseTracking:
		return c.phrases.TrackingStatus(out.Label)
	case detect.PhaseConfirmed:
		return c.phrases.ConfirmedStatus(out.Label, out.Confidence)
	default:
		return c.phrases.Waiting
	}
}
