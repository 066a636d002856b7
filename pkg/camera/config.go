package camera

// Config holds capture settings shared by every frame source.
type Config struct {
	// Resolution
	Width     int `json:"width" yaml:"width"`
	Height    int `json:"height" yaml:"height"`
	Framerate int `json:"framerate" yaml:"framerate"`
	Quality   int `json:"quality" yaml:"quality"` // JPEG quality 1-100

	// Facing opened on start. Flip toggles it.
	Facing Facing `json:"facing" yaml:"facing"`

	// Local device indices or paths per facing (webcam source only).
	BackDevice  string `json:"back_device,omitempty" yaml:"back_device"`
	FrontDevice string `json:"front_device,omitempty" yaml:"front_device"`

	// MaxFrameAgeMs is how old a pushed frame may be and still count as live.
	MaxFrameAgeMs int `json:"max_frame_age_ms" yaml:"max_frame_age_ms"`
}

// Capture limits
const (
	MaxWidth  = 3840
	MaxHeight = 2160
)

// DefaultConfig returns 720p from the back camera.
func DefaultConfig() Config {
	return Config{
		Width:         1280,
		Height:        720,
		Framerate:     30,
		Quality:       85,
		Facing:        FacingBack,
		BackDevice:    "0",
		FrontDevice:   "1",
		MaxFrameAgeMs: 3000,
	}
}

// Device returns the configured device for a facing.
func (c *Config) Device(f Facing) string {
	if f == FacingFront {
		return c.FrontDevice
	}
	return c.BackDevice
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errs []string

	if c.Width < 160 || c.Width > MaxWidth {
		errs = append(errs, "width must be between 160 and 3840")
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errs = append(errs, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > 120 {
		errs = append(errs, "framerate must be between 1 and 120")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errs = append(errs, "quality must be between 1 and 100")
	}
	if c.Facing != "" && c.Facing != FacingBack && c.Facing != FacingFront {
		errs = append(errs, "facing must be back or front")
	}
	if c.MaxFrameAgeMs < 0 {
		errs = append(errs, "max_frame_age_ms must not be negative")
	}

	return errs
}

// Capabilities describes what the camera settings accept.
func Capabilities() map[string]interface{} {
	return map[string]interface{}{
		"max_width":  MaxWidth,
		"max_height": MaxHeight,
		"facings":    []string{string(FacingBack), string(FacingFront)},
		"presets":    PresetNames(),
	}
}
