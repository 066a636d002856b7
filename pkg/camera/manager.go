package camera

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Manager holds the camera settings new sessions open with.
type Manager struct {
	mu     sync.RWMutex
	config Config

	// OnConfigChange runs after a successful update, outside the lock.
	OnConfigChange func(cfg Config) error
}

// NewManager starts from cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{config: cfg}
}

// GetConfig returns a copy of the current settings.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Update is a partial change to the settings, as sent by PUT /api/camera.
// Preset is applied first; the other set fields then override it.
type Update struct {
	Preset        *string `json:"preset"`
	Width         *int    `json:"width"`
	Height        *int    `json:"height"`
	Framerate     *int    `json:"framerate"`
	Quality       *int    `json:"quality"`
	MaxFrameAgeMs *int    `json:"max_frame_age_ms"`
	Facing        *string `json:"facing"`
	BackDevice    *string `json:"back_device"`
	FrontDevice   *string `json:"front_device"`
}

// Apply merges u into the current settings. An update that leaves the
// settings invalid is rejected whole.
func (m *Manager) Apply(u Update) (Config, error) {
	cfg := m.GetConfig()

	if u.Preset != nil {
		preset := GetPreset(*u.Preset)
		if preset == nil {
			return cfg, fmt.Errorf("unknown preset: %s", *u.Preset)
		}
		// Device paths belong to this machine, not to the preset.
		back, front := cfg.BackDevice, cfg.FrontDevice
		cfg = *preset
		cfg.BackDevice, cfg.FrontDevice = back, front
	}

	setInt(&cfg.Width, u.Width)
	setInt(&cfg.Height, u.Height)
	setInt(&cfg.Framerate, u.Framerate)
	setInt(&cfg.Quality, u.Quality)
	setInt(&cfg.MaxFrameAgeMs, u.MaxFrameAgeMs)
	if u.Facing != nil {
		f, err := ParseFacing(*u.Facing)
		if err != nil {
			return m.GetConfig(), err
		}
		cfg.Facing = f
	}
	if u.BackDevice != nil {
		cfg.BackDevice = *u.BackDevice
	}
	if u.FrontDevice != nil {
		cfg.FrontDevice = *u.FrontDevice
	}

	if err := m.SetConfig(cfg); err != nil {
		return m.GetConfig(), err
	}
	return cfg, nil
}

// SetConfig validates and stores cfg, then runs OnConfigChange.
func (m *Manager) SetConfig(cfg Config) error {
	if problems := cfg.Validate(); len(problems) > 0 {
		return errors.New("invalid camera settings: " + strings.Join(problems, "; "))
	}

	m.mu.Lock()
	m.config = cfg
	onChange := m.OnConfigChange
	m.mu.Unlock()

	if onChange == nil {
		return nil
	}
	if err := onChange(cfg); err != nil {
		return fmt.Errorf("apply camera settings: %w", err)
	}
	return nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
