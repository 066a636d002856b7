package camera

// Preset names for common configurations
const (
	PresetDefault  = "default"
	Preset480p     = "480p"
	Preset720p     = "720p"
	Preset1080p    = "1080p"
	PresetSelfie   = "selfie"
	PresetLowPower = "lowpower"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault:  DefaultConfig(),
		Preset480p:     SD480Config(),
		Preset720p:     HD720Config(),
		Preset1080p:    HD1080Config(),
		PresetSelfie:   SelfieConfig(),
		PresetLowPower: LowPowerConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		Preset480p,
		Preset720p,
		Preset1080p,
		PresetSelfie,
		PresetLowPower,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// SD480Config returns 640x480.
func SD480Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 640
	cfg.Height = 480
	return cfg
}

// HD720Config returns 720p HD configuration.
// Bills stay legible and uploads stay small.
func HD720Config() Config {
	return DefaultConfig()
}

// HD1080Config returns 1080p Full HD configuration.
func HD1080Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1920
	cfg.Height = 1080
	return cfg
}

// SelfieConfig opens the front camera.
func SelfieConfig() Config {
	cfg := DefaultConfig()
	cfg.Facing = FacingFront
	return cfg
}

// LowPowerConfig trades resolution and quality for bandwidth.
func LowPowerConfig() Config {
	cfg := SD480Config()
	cfg.Framerate = 10
	cfg.Quality = 70
	return cfg
}
