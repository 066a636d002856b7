// Package announce speaks detection results and camera events.
//
// A Speaker owns the single speech channel of a session: every new
// utterance cancels whatever is pending or playing, waits a short debounce,
// then plays. The Controller maps engine outcomes onto phrases.
package announce

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-billsense/internal/timeutil"
	"github.com/teslashibe/go-billsense/pkg/tts"
)

// DefaultDebounce is the pause between cancelling old speech and starting new.
const DefaultDebounce = 100 * time.Millisecond

// Announcer is the speech channel the rest of the system talks to.
type Announcer interface {
	// Speak cancels any pending or in-progress utterance and schedules text.
	// Unless force is set, text equal to the last spoken text is dropped.
	Speak(text string, force bool)

	// Cancel stops pending and in-progress speech.
	Cancel()

	// Reset forgets the last spoken text so it can be spoken again.
	Reset()
}

// Stats counts what happened on the speech channel.
type Stats struct {
	Requested   uint64 `json:"requested"`
	Spoken      uint64 `json:"spoken"`
	Dropped     uint64 `json:"dropped"`
	Interrupted uint64 `json:"interrupted"`
	Failed      uint64 `json:"failed"`
}

// Speaker implements Announcer on top of an optional synthesizer and a Sink.
type Speaker struct {
	sink     Sink
	synth    tts.Provider
	clock    timeutil.Clock
	debounce time.Duration
	locale   string
	logger   *slog.Logger

	mu         sync.Mutex
	enabled    bool
	lastSpoken string
	gen        uint64
	pending    timeutil.Timer
	cancelPlay context.CancelFunc
	delivered  bool // the sink got audio it may still be playing

	requested   atomic.Uint64
	spoken      atomic.Uint64
	dropped     atomic.Uint64
	interrupted atomic.Uint64
	failed      atomic.Uint64
}

// SpeakerOption configures a Speaker.
type SpeakerOption func(*Speaker)

// WithSynthesizer renders text to audio before it reaches the sink.
func WithSynthesizer(p tts.Provider) SpeakerOption {
	return func(s *Speaker) { s.synth = p }
}

// WithClock sets the clock used for the debounce.
func WithClock(c timeutil.Clock) SpeakerOption {
	return func(s *Speaker) { s.clock = c }
}

// WithDebounce sets the pause before an utterance starts.
func WithDebounce(d time.Duration) SpeakerOption {
	return func(s *Speaker) { s.debounce = d }
}

// WithLocale tags utterances with a locale.
func WithLocale(locale string) SpeakerOption {
	return func(s *Speaker) { s.locale = locale }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) SpeakerOption {
	return func(s *Speaker) { s.logger = l }
}

// WithEnabled sets the initial audio state. Speakers start enabled.
func WithEnabled(enabled bool) SpeakerOption {
	return func(s *Speaker) { s.enabled = enabled }
}

// NewSpeaker creates a speaker that plays through sink.
func NewSpeaker(sink Sink, opts ...SpeakerOption) *Speaker {
	s := &Speaker{
		sink:     sink,
		clock:    timeutil.RealClock{},
		debounce: DefaultDebounce,
		locale:   DefaultLocale,
		logger:   slog.Default(),
		enabled:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "announce.speaker")
	return s
}

// Speak implements Announcer.
func (s *Speaker) Speak(text string, force bool) {
	s.requested.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || text == "" {
		s.dropped.Add(1)
		return
	}
	if !force && text == s.lastSpoken {
		s.dropped.Add(1)
		return
	}

	s.stopLocked()
	s.gen++
	gen := s.gen
	s.pending = s.clock.AfterFunc(s.debounce, func() {
		s.fire(gen, text, force)
	})
}

// Cancel implements Announcer.
func (s *Speaker) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.silenceLocked()
	s.gen++
}

// Reset implements Announcer.
func (s *Speaker) Reset() {
	s.mu.Lock()
	s.lastSpoken = ""
	s.mu.Unlock()
}

// SetEnabled turns audio on or off. Turning it off cancels all speech and
// drops everything requested until it is turned back on.
func (s *Speaker) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
	if !enabled {
		s.stopLocked()
		s.silenceLocked()
		s.gen++
	}
}

// Enabled reports whether audio is on.
func (s *Speaker) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// LastSpoken returns the text of the most recent utterance that started.
func (s *Speaker) LastSpoken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSpoken
}

// Stats returns a snapshot of the counters.
func (s *Speaker) Stats() Stats {
	return Stats{
		Requested:   s.requested.Load(),
		Spoken:      s.spoken.Load(),
		Dropped:     s.dropped.Load(),
		Interrupted: s.interrupted.Load(),
		Failed:      s.failed.Load(),
	}
}

// stopLocked cancels the pending timer and any utterance in progress.
func (s *Speaker) stopLocked() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	if s.cancelPlay != nil {
		s.cancelPlay()
		s.cancelPlay = nil
		s.interrupted.Add(1)
	}
}

// silenceLocked tells a Silencer sink to stop if it was handed anything
// since the last time.
func (s *Speaker) silenceLocked() {
	if !s.delivered {
		return
	}
	s.delivered = false
	if sl, ok := s.sink.(Silencer); ok {
		sl.Silence()
	}
}

// fire runs when the debounce elapses. It plays synchronously on the
// timer's goroutine.
func (s *Speaker) fire(gen uint64, text string, force bool) {
	s.mu.Lock()
	if gen != s.gen || !s.enabled {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	s.lastSpoken = text
	s.delivered = true
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelPlay = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if gen == s.gen {
			s.cancelPlay = nil
		}
		s.mu.Unlock()
		cancel()
	}()

	u := Utterance{
		Text:   text,
		Locale: s.locale,
		Forced: force,
		At:     s.clock.Now(),
	}

	if s.synth != nil {
		res, err := s.synth.Synthesize(ctx, text)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			// The sink can still show or speak the text on its own.
			s.logger.Warn("synthesis failed", "error", err, "text", text)
		default:
			u.Audio = res.Audio
			u.Format = res.Format
		}
	}

	if err := s.sink.Play(ctx, u); err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		s.failed.Add(1)
		s.logger.Warn("playback failed", "error", err, "text", text)
		return
	}

	s.spoken.Add(1)
	s.logger.Debug("spoke", "text", text, "forced", force)
}

// Verify Speaker implements Announcer at compile time.
var _ Announcer = (*Speaker)(nil)
