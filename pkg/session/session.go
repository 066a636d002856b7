// Package session runs the detection loop for one camera: it opens the
// frame source, ticks the engine on a schedule, calls the classifier and
// hands results to the announcement controller.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/teslashibe/go-billsense/internal/timeutil"
	"github.com/teslashibe/go-billsense/pkg/announce"
	"github.com/teslashibe/go-billsense/pkg/camera"
	"github.com/teslashibe/go-billsense/pkg/detect"
	"github.com/teslashibe/go-billsense/pkg/inference"
)

// Speaker is the speech channel a session drives.
type Speaker interface {
	announce.Announcer
	SetEnabled(enabled bool)
	Enabled() bool
}

// Session owns one frame source, one engine and one speech channel.
type Session struct {
	id         string
	cfg        *Config
	source     camera.FrameSource
	classifier inference.Classifier
	speaker    Speaker
	engine     *detect.Engine
	controller *announce.Controller
	clock      timeutil.Clock
	logger     *slog.Logger

	mu           sync.Mutex
	closed       bool
	running      bool
	facing       camera.Facing
	gen          uint64
	cancel       context.CancelFunc
	abortOpen    context.CancelFunc // set while Start is opening the source
	sched        *Scheduler
	startTimer   timeutil.Timer
	status       Status
	decodeStreak int
	skippedPrev  uint64

	ticks         atomic.Uint64
	inferenceErrs atomic.Uint64
	decodeErrs    atomic.Uint64
	announcements atomic.Uint64
}

// New creates a stopped session.
func New(source camera.FrameSource, classifier inference.Classifier, speaker Speaker, opts ...Option) (*Session, error) {
	if source == nil {
		return nil, errors.New("session: frame source is required")
	}
	if classifier == nil {
		return nil, errors.New("session: classifier is required")
	}
	if speaker == nil {
		return nil, errors.New("session: speaker is required")
	}

	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Facing == "" {
		cfg.Facing = camera.FacingBack
	}

	id := uuid.NewString()
	logger := cfg.Logger.With("component", "session", "session_id", id)

	s := &Session{
		id:         id,
		cfg:        cfg,
		source:     source,
		classifier: classifier,
		speaker:    speaker,
		engine:     detect.NewEngine(cfg.Engine),
		controller: announce.NewController(speaker, cfg.Phrases, logger),
		clock:      cfg.Clock,
		logger:     logger,
		facing:     cfg.Facing,
	}
	s.status = Status{
		ID:      id,
		Facing:  s.facing,
		Audio:   speaker.Enabled(),
		Message: cfg.Phrases.Waiting,
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Config returns the session configuration.
func (s *Session) Config() Config { return *s.cfg }

// Start opens the camera and begins detection. Starting a running or
// starting session is a no-op. If the camera cannot be opened the error is
// announced and returned as an *AcquisitionError. The source is opened
// without holding the session lock; Stop aborts an open in progress.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.running || s.abortOpen != nil {
		s.mu.Unlock()
		return nil
	}
	s.gen++
	gen := s.gen
	facing := s.facing
	openCtx, abort := context.WithCancel(ctx)
	s.abortOpen = abort
	s.mu.Unlock()

	err := s.source.Open(openCtx, facing)
	abort()

	s.mu.Lock()
	if gen != s.gen {
		// Stopped or closed while opening.
		if err == nil && !s.running && s.abortOpen == nil {
			_ = s.source.Close()
		}
		s.mu.Unlock()
		if s.isClosed() {
			return ErrClosed
		}
		return nil
	}
	s.abortOpen = nil

	if err != nil {
		acq := &AcquisitionError{Facing: facing, Err: err}
		s.status.Error = acq.Error()
		s.status.Message = s.cfg.Phrases.CameraError
		snap := s.snapshotLocked()
		s.mu.Unlock()

		s.logger.Warn("camera unavailable", "facing", acq.Facing, "error", err)
		s.controller.CameraFailed()
		s.notify(snap)
		return acq
	}

	s.engine.Clear()
	s.decodeStreak = 0

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.sched = NewScheduler(s.clock, s.cfg.WarmupDelay, s.cfg.Engine.Interval, func(c context.Context) {
		s.tick(c, gen)
	}, s.logger)

	if s.cfg.StartAnnounceDelay > 0 {
		s.startTimer = s.clock.AfterFunc(s.cfg.StartAnnounceDelay, s.controller.CameraStarted)
	} else {
		s.controller.CameraStarted()
	}

	s.running = true
	s.status.Running = true
	s.status.Facing = facing
	s.status.Error = ""
	s.resetDetectionStatusLocked()
	snap := s.snapshotLocked()
	sched := s.sched
	s.mu.Unlock()

	s.logger.Info("session started", "facing", facing, "interval", s.cfg.Engine.Interval)
	go sched.Run(runCtx)
	s.notify(snap)
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Stop cancels the schedule, clears detection history, silences speech and
// releases the camera. Stopping a stopped session is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	aborted := s.abortOpenLocked()
	changed := s.stopLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if changed || aborted {
		s.logger.Info("session stopped", "while_opening", aborted)
		s.notify(snap)
	}
}

// abortOpenLocked cancels a Start that is still opening the camera.
func (s *Session) abortOpenLocked() bool {
	if s.abortOpen == nil {
		return false
	}
	s.abortOpen()
	s.abortOpen = nil
	s.gen++
	if err := s.source.Close(); err != nil {
		s.logger.Warn("closing camera", "error", err)
	}
	return true
}

// CameraLost stops a running session whose camera went away, and reports
// it the way a failed start is reported.
func (s *Session) CameraLost(err error) {
	s.mu.Lock()
	if !s.stopLocked() {
		s.mu.Unlock()
		return
	}
	acq := &AcquisitionError{Facing: s.facing, Err: err}
	s.status.Error = acq.Error()
	s.status.Message = s.cfg.Phrases.CameraError
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Warn("camera lost", "facing", acq.Facing, "error", err)
	s.controller.CameraFailed()
	s.notify(snap)
}

func (s *Session) stopLocked() bool {
	if !s.running {
		return false
	}
	s.cancel()
	s.cancel = nil
	if s.startTimer != nil {
		s.startTimer.Stop()
		s.startTimer = nil
	}
	s.skippedPrev += s.sched.Skipped()
	s.sched = nil
	s.gen++

	s.engine.Clear()
	s.controller.Stop()
	if err := s.source.Close(); err != nil {
		s.logger.Warn("closing camera", "error", err)
	}

	s.running = false
	s.status.Running = false
	s.resetDetectionStatusLocked()
	return true
}

// Flip switches between front and back cameras: stop, announce, wait
// FlipDelay, start with the other facing. It does nothing when stopped.
func (s *Session) Flip(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.stopLocked()
	s.facing = s.facing.Toggle()
	s.status.Facing = s.facing
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("flipping camera", "facing", snap.Facing)
	s.controller.Flipping()
	s.notify(snap)

	if s.cfg.FlipDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(s.cfg.FlipDelay):
		}
	}
	return s.Start(ctx)
}

// SetAudio turns speech on or off. Turning it on confirms out loud.
func (s *Session) SetAudio(enabled bool) {
	s.speaker.SetEnabled(enabled)
	if enabled {
		s.controller.AudioEnabled()
	}

	s.mu.Lock()
	s.status.Audio = enabled
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// ToggleAudio flips the audio setting and returns the new value.
func (s *Session) ToggleAudio() bool {
	enabled := !s.speaker.Enabled()
	s.SetAudio(enabled)
	return enabled
}

// Close stops the session for good.
func (s *Session) Close() error {
	s.Stop()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Running reports whether detection is active.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Facing returns the facing used by the next or current start.
func (s *Session) Facing() camera.Facing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.facing
}

// State returns the engine's detection state.
func (s *Session) State() detect.DetectionState {
	return s.engine.State()
}

// Status returns a snapshot for display.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Tick runs one detection tick now, honouring single flight. It reports
// false when the session is stopped or a tick is already in flight.
func (s *Session) Tick(ctx context.Context) bool {
	s.mu.Lock()
	sched := s.sched
	s.mu.Unlock()
	if sched == nil {
		return false
	}
	return sched.TryTick(ctx)
}

// tick is one pass of the pipeline: capture, gate, classify, track, speak.
func (s *Session) tick(ctx context.Context, gen uint64) {
	s.ticks.Add(1)

	if !s.source.IsReady() {
		s.decodeFailed(gen, &DecodeError{Stage: "ready", Err: camera.ErrNoFrame})
		return
	}
	frame, err := s.source.Capture()
	if err != nil {
		s.decodeFailed(gen, &DecodeError{Stage: "capture", Err: err})
		return
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.decodeStreak = 0
	gate, passed := s.engine.Gate(frame)
	if !passed {
		s.applyLocked(gate)
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snap)
		return
	}
	s.mu.Unlock()

	jpeg := frame.JPEG
	if len(jpeg) == 0 {
		jpeg, err = frame.EncodeJPEG(s.cfg.JPEGQuality)
		if err != nil {
			s.decodeFailed(gen, &DecodeError{Stage: "encode", Err: err})
			return
		}
	}

	preds, err := s.classifier.Classify(ctx, jpeg)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.inferenceFailed(gen, &InferenceError{Err: err})
		return
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	res := s.engine.Observe(preds, frame.Area())
	res.Scene = gate.Scene
	res.AnnounceDark = gate.AnnounceDark
	s.applyLocked(res)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Debug("tick", "predictions", len(preds), "phase", res.Phase, "label", res.Label, "stable", res.StableCount)
	s.notify(snap)
}

// applyLocked hands a tick result to the controller and updates the status.
func (s *Session) applyLocked(res detect.TickResult) {
	s.controller.Handle(res)
	if res.Announce || res.AnnounceDark {
		s.announcements.Add(1)
	}

	// Grace ticks keep the confirmed label but carry no confidence.
	conf := res.Confidence
	if conf == 0 && res.Phase != detect.PhaseIdle && res.Label == s.status.Label {
		conf = s.status.Confidence
	}

	s.status.Phase = res.Phase
	s.status.Label = res.Label
	s.status.Confidence = conf
	s.status.Scene = res.Scene
	s.status.Error = ""
	out := res.Outcome
	out.Confidence = conf
	s.status.Message = s.controller.StatusText(out)
	if res.Gated && res.Scene != nil && res.Scene.Verdict == detect.SceneDark && res.Phase == detect.PhaseIdle {
		s.status.Message = s.cfg.Phrases.TooDark
	}
	s.status.UpdatedAt = s.clock.Now()
}

func (s *Session) decodeFailed(gen uint64, err *DecodeError) {
	s.decodeErrs.Add(1)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.decodeStreak++
	if s.decodeStreak != s.cfg.DecodeErrorLimit {
		s.mu.Unlock()
		s.logger.Debug("frame unavailable", "stage", err.Stage, "error", err.Err)
		return
	}
	s.status.Error = err.Error()
	s.status.UpdatedAt = s.clock.Now()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Warn("camera producing no frames", "consecutive", s.cfg.DecodeErrorLimit, "error", err)
	s.notify(snap)
}

func (s *Session) inferenceFailed(gen uint64, err *InferenceError) {
	s.inferenceErrs.Add(1)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.status.Error = err.Error()
	s.status.UpdatedAt = s.clock.Now()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Warn("inference failed", "error", err.Err)
	s.notify(snap)
}

func (s *Session) resetDetectionStatusLocked() {
	s.status.Phase = detect.PhaseIdle
	s.status.Label = ""
	s.status.Confidence = 0
	s.status.Scene = nil
	s.status.Message = s.cfg.Phrases.Waiting
	s.status.UpdatedAt = s.clock.Now()
}

func (s *Session) snapshotLocked() Status {
	st := s.status
	st.Audio = s.speaker.Enabled()
	st.Ticks = s.ticks.Load()
	st.Skipped = s.skippedPrev
	if s.sched != nil {
		st.Skipped += s.sched.Skipped()
	}
	st.InferenceErrors = s.inferenceErrs.Load()
	st.DecodeErrors = s.decodeErrs.Load()
	st.Announcements = s.announcements.Load()
	return st
}

func (s *Session) notify(st Status) {
	if s.cfg.Observer != nil {
		s.cfg.Observer(st)
	}
}
