package detect

import "sync"

// TickResult is everything one tick produced.
type TickResult struct {
	Outcome
	Scene        *SceneAssessment    `json:"scene,omitempty"`
	Accepted     *AcceptedPrediction `json:"accepted,omitempty"`
	AnnounceDark bool                `json:"announce_dark"`
	Gated        bool                `json:"gated"`
}

// Engine owns one DetectionState and applies the pure transitions to it
// under a lock, so Clear is never observed half-done.
type Engine struct {
	cfg EngineConfig

	mu    sync.Mutex
	state DetectionState
}

// NewEngine creates an engine with a fresh state.
func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns the engine configuration.
func (e *Engine) Config() EngineConfig {
	return e.cfg
}

// State returns a copy of the current state.
func (e *Engine) State() DetectionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Clear resets every counter and label.
func (e *Engine) Clear() {
	e.mu.Lock()
	e.state = DetectionState{}
	e.mu.Unlock()
}

// Gate runs the scene gate on a frame. When the gate is disabled every
// frame passes. A frame that does not pass counts as an absent tick.
// The returned result is only meaningful when passed is false.
func (e *Engine) Gate(f Frame) (res TickResult, passed bool) {
	if !e.cfg.SceneGateEnabled {
		return TickResult{}, true
	}

	a := AssessScene(e.cfg, f)

	e.mu.Lock()
	defer e.mu.Unlock()

	var dark bool
	e.state, dark = ObserveScene(e.cfg, e.state, a)
	if a.Valid {
		return TickResult{Scene: &a, AnnounceDark: dark}, true
	}

	var out Outcome
	e.state, out = Step(e.cfg, e.state, nil)
	return TickResult{Outcome: out, Scene: &a, AnnounceDark: dark, Gated: true}, false
}

// Observe filters the classifier output for a frame and advances the
// tracker with the winner, if any.
func (e *Engine) Observe(preds []Prediction, frameArea float64) TickResult {
	accepted := Filter(e.cfg, preds, frameArea)

	e.mu.Lock()
	defer e.mu.Unlock()

	var out Outcome
	e.state, out = Step(e.cfg, e.state, accepted)
	return TickResult{Outcome: out, Accepted: accepted}
}
