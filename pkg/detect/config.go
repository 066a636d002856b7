// Package detect turns noisy per-frame bill classifications into stable
// decisions. It holds the scene gate, the prediction filter and the
// stability tracker, all driven by one EngineConfig.
package detect

import (
	"fmt"
	"time"
)

// Profile names for the built-in engine configurations.
const (
	ProfileStrict     = "strict"
	ProfilePermissive = "permissive"
)

// EngineConfig holds every tunable threshold of the engine.
// It is treated as immutable once a session starts.
type EngineConfig struct {
	// === Cadence ===
	Interval time.Duration `yaml:"interval" json:"interval"` // Time between ticks

	// === Prediction filter ===
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"` // 0-1

	// GeometryEnabled turns on the bounding-box plausibility checks.
	GeometryEnabled bool    `yaml:"geometry_enabled" json:"geometry_enabled"`
	MinAreaPercent  float64 `yaml:"min_area_percent" json:"min_area_percent"` // Box area as % of frame
	MaxAreaPercent  float64 `yaml:"max_area_percent" json:"max_area_percent"`
	MinAspectRatio  float64 `yaml:"min_aspect_ratio" json:"min_aspect_ratio"` // max(w,h)/min(w,h)
	MaxAspectRatio  float64 `yaml:"max_aspect_ratio" json:"max_aspect_ratio"`

	// === Stability ===
	StableFrames   int `yaml:"stable_frames" json:"stable_frames"`       // Consecutive ticks to confirm
	FramesToForget int `yaml:"frames_to_forget" json:"frames_to_forget"` // Consecutive empty ticks to forget

	// === Scene gate ===
	SceneGateEnabled bool `yaml:"scene_gate_enabled" json:"scene_gate_enabled"`

	// MinBrightness is the mean luma (0-255) below which a frame is dark.
	MinBrightness float64 `yaml:"min_brightness" json:"min_brightness"`

	// MaxUniformity is the uniformity (0-1) at or above which a frame is
	// considered empty (flat wall, table, covered lens).
	MaxUniformity float64 `yaml:"max_uniformity" json:"max_uniformity"`

	// SampleSize is the side of the centered square sampled, in pixels.
	SampleSize int `yaml:"sample_size" json:"sample_size"`

	// UniformityScale is the luma standard deviation that maps to zero uniformity.
	UniformityScale float64 `yaml:"uniformity_scale" json:"uniformity_scale"`

	DarkFramesThreshold int `yaml:"dark_frames_threshold" json:"dark_frames_threshold"`
	BrightFramesToReset int `yaml:"bright_frames_to_reset" json:"bright_frames_to_reset"`
}

// StrictConfig returns the high-precision profile: few false positives,
// no geometry or scene checks.
func StrictConfig() EngineConfig {
	return EngineConfig{
		Interval:       1500 * time.Millisecond,
		MinConfidence:  0.90,
		StableFrames:   2,
		FramesToForget: 2,

		MinAreaPercent: 1,
		MaxAreaPercent: 80,
		MinAspectRatio: 1.2,
		MaxAspectRatio: 3.0,

		MinBrightness:       40,
		MaxUniformity:       0.92,
		SampleSize:          100,
		UniformityScale:     64,
		DarkFramesThreshold: 3,
		BrightFramesToReset: 2,
	}
}

// PermissiveConfig returns the high-recall profile. A lower confidence
// floor is compensated by the geometry and scene gates.
func PermissiveConfig() EngineConfig {
	cfg := StrictConfig()
	cfg.Interval = time.Second
	cfg.MinConfidence = 0.75
	cfg.FramesToForget = 3
	cfg.GeometryEnabled = true
	cfg.SceneGateEnabled = true
	return cfg
}

// DefaultConfig returns the strict profile.
func DefaultConfig() EngineConfig {
	return StrictConfig()
}

// ProfileConfig returns the configuration for a named profile.
func ProfileConfig(name string) (EngineConfig, error) {
	switch name {
	case "", ProfileStrict:
		return StrictConfig(), nil
	case ProfilePermissive:
		return PermissiveConfig(), nil
	default:
		return EngineConfig{}, fmt.Errorf("detect: unknown profile %q", name)
	}
}

// Validate checks if the configuration values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c EngineConfig) Validate() []string {
	var errs []string

	if c.Interval <= 0 {
		errs = append(errs, "interval must be positive")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		errs = append(errs, "min_confidence must be between 0 and 1")
	}
	if c.StableFrames < 1 {
		errs = append(errs, "stable_frames must be at least 1")
	}
	if c.FramesToForget < 1 {
		errs = append(errs, "frames_to_forget must be at least 1")
	}

	if c.GeometryEnabled {
		if c.MinAreaPercent < 0 || c.MaxAreaPercent > 100 || c.MinAreaPercent > c.MaxAreaPercent {
			errs = append(errs, "area percent bounds must satisfy 0 <= min <= max <= 100")
		}
		if c.MinAspectRatio < 1 || c.MinAspectRatio > c.MaxAspectRatio {
			errs = append(errs, "aspect ratio bounds must satisfy 1 <= min <= max")
		}
	}

	if c.SceneGateEnabled {
		if c.MinBrightness < 0 || c.MinBrightness > 255 {
			errs = append(errs, "min_brightness must be between 0 and 255")
		}
		if c.MaxUniformity <= 0 || c.MaxUniformity > 1 {
			errs = append(errs, "max_uniformity must be in (0, 1]")
		}
		if c.SampleSize < 1 {
			errs = append(errs, "sample_size must be positive")
		}
		if c.UniformityScale <= 0 {
			errs = append(errs, "uniformity_scale must be positive")
		}
		if c.DarkFramesThreshold < 1 {
			errs = append(errs, "dark_frames_threshold must be at least 1")
		}
		if c.BrightFramesToReset < 1 {
			errs = append(errs, "bright_frames_to_reset must be at least 1")
		}
	}

	return errs
}
