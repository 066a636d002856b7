package detect

// Phase is the stability tracker state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseTracking
	PhaseConfirmed
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseTracking:
		return "tracking"
	case PhaseConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// DetectionState is everything the engine remembers between ticks.
// Empty label fields mean "none".
type DetectionState struct {
	TrackedLabel   string `json:"tracked_label,omitempty"`
	StableCount    int    `json:"stable_count"`
	AnnouncedLabel string `json:"announced_label,omitempty"`
	AbsentCount    int    `json:"absent_count"`

	DarkCount     int  `json:"dark_count"`
	BrightCount   int  `json:"bright_count"`
	DarkAnnounced bool `json:"dark_announced"`
}

// Phase derives the tracker state from the counters.
func (s DetectionState) Phase(cfg EngineConfig) Phase {
	switch {
	case s.TrackedLabel == "":
		return PhaseIdle
	case s.StableCount >= cfg.StableFrames:
		return PhaseConfirmed
	default:
		return PhaseTracking
	}
}

// Outcome reports what a tick did to the state.
type Outcome struct {
	Phase       Phase   `json:"phase"`
	Label       string  `json:"label,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	StableCount int     `json:"stable_count"`

	// Announce is set on the tick a label first becomes confirmed since
	// the last forget. At most once per bill presentation.
	Announce bool `json:"announce"`

	// Forgotten is set on the tick the tracked label was dropped.
	Forgotten bool `json:"forgotten"`
}

// Step applies one tick of evidence to the state. accepted is nil when no
// prediction survived filtering (or the frame was gated). It returns the
// new state; the input is not modified.
func Step(cfg EngineConfig, s DetectionState, accepted *AcceptedPrediction) (DetectionState, Outcome) {
	if accepted == nil {
		return stepAbsent(cfg, s)
	}

	s.AbsentCount = 0
	if accepted.Label == s.TrackedLabel {
		s.StableCount++
	} else {
		s.TrackedLabel = accepted.Label
		s.StableCount = 1
	}

	out := Outcome{
		Phase:       s.Phase(cfg),
		Label:       s.TrackedLabel,
		Confidence:  accepted.Confidence,
		StableCount: s.StableCount,
	}

	if out.Phase == PhaseConfirmed && s.AnnouncedLabel != s.TrackedLabel {
		s.AnnouncedLabel = s.TrackedLabel
		out.Announce = true
	}

	return s, out
}

func stepAbsent(cfg EngineConfig, s DetectionState) (DetectionState, Outcome) {
	s.AbsentCount++

	if s.AbsentCount >= cfg.FramesToForget {
		forgotten := s.TrackedLabel != ""
		s.TrackedLabel = ""
		s.StableCount = 0
		s.AnnouncedLabel = ""
		s.AbsentCount = 0
		return s, Outcome{Phase: PhaseIdle, Forgotten: forgotten}
	}

	return s, Outcome{
		Phase:       s.Phase(cfg),
		Label:       s.TrackedLabel,
		StableCount: s.StableCount,
	}
}
