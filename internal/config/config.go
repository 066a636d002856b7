// Package config loads the configuration for go-billsense commands.
//
// Values come from three layers, later ones winning: built-in defaults, an
// optional YAML file, then environment variables. Commands apply their own
// flags on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-billsense/pkg/camera"
	"github.com/teslashibe/go-billsense/pkg/detect"
)

// Defaults.
const (
	DefaultPort  = 8080
	DefaultModel = "mexican-bills/3"
)

// Speech providers.
const (
	SpeechNone       = "none"
	SpeechOpenAI     = "openai"
	SpeechElevenLabs = "elevenlabs"
	SpeechGoogle     = "google"
)

// Camera sources.
const (
	SourceClient = "client" // frames pushed by browser clients over /ws/client
	SourceWebcam = "webcam"
	SourceStream = "stream"
)

// Config is the full command configuration.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Server    ServerConfig    `yaml:"server"`
	Inference InferenceConfig `yaml:"inference"`
	Speech    SpeechConfig    `yaml:"speech"`
	Engine    EngineConfig    `yaml:"engine"`
	Camera    CameraConfig    `yaml:"camera"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`

	// AutoStart starts detection as soon as a client connects.
	AutoStart bool `yaml:"auto_start"`
}

// InferenceConfig configures the hosted classifier.
type InferenceConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Confidence float64       `yaml:"confidence"`
	Timeout    time.Duration `yaml:"timeout"`

	// FallbackModel is tried when Model fails, e.g. the previous version.
	FallbackModel string `yaml:"fallback_model"`
}

// SpeechConfig configures announcements.
type SpeechConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Provider string        `yaml:"provider"`
	APIKey   string        `yaml:"api_key"`
	Voice    string        `yaml:"voice"`
	Locale   string        `yaml:"locale"`
	Speed    float64       `yaml:"speed"`
	Debounce time.Duration `yaml:"debounce"`

	// Fallback names a second provider used while Provider fails.
	Fallback       string `yaml:"fallback"`
	FallbackAPIKey string `yaml:"fallback_api_key"`
}

// EngineConfig names a detection profile. Overrides is decoded on top of
// the profile, so only the keys it sets change.
type EngineConfig struct {
	Profile   string    `yaml:"profile"`
	Overrides yaml.Node `yaml:"overrides"`
}

// CameraConfig selects where frames come from.
type CameraConfig struct {
	Source    string `yaml:"source"`
	StreamURL string `yaml:"stream_url"`

	camera.Config `yaml:",inline"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port: DefaultPort,
		},
		Inference: InferenceConfig{
			Model:   DefaultModel,
			Timeout: 10 * time.Second,
		},
		Speech: SpeechConfig{
			Enabled:  true,
			Provider: SpeechNone,
			Locale:   "es-MX",
			Speed:    0.95,
			Debounce: 100 * time.Millisecond,
		},
		Engine: EngineConfig{
			Profile: detect.ProfileStrict,
		},
		Camera: CameraConfig{
			Source: SourceClient,
			Config: camera.DefaultConfig(),
		},
	}
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. getenv is os.Getenv
// outside tests.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := getenv("ROBOFLOW_API_KEY"); v != "" {
		c.Inference.APIKey = v
	}
	if v := getenv("ROBOFLOW_MODEL"); v != "" {
		c.Inference.Model = v
	}
	if v := getenv("ROBOFLOW_FALLBACK_MODEL"); v != "" {
		c.Inference.FallbackModel = v
	}

	if c.Speech.APIKey == "" {
		if env := speechKeyEnv(c.Speech.Provider); env != "" {
			c.Speech.APIKey = getenv(env)
		}
	}
	if c.Speech.FallbackAPIKey == "" {
		if env := speechKeyEnv(c.Speech.Fallback); env != "" {
			c.Speech.FallbackAPIKey = getenv(env)
		}
	}
}

func speechKeyEnv(provider string) string {
	switch provider {
	case SpeechOpenAI:
		return "OPENAI_API_KEY"
	case SpeechElevenLabs:
		return "ELEVENLABS_API_KEY"
	case SpeechGoogle:
		return "GOOGLE_API_KEY"
	}
	return ""
}

// Validate reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	if c.Inference.Model == "" {
		errs = append(errs, errors.New("inference.model is required"))
	}
	if c.Inference.FallbackModel != "" && c.Inference.FallbackModel == c.Inference.Model {
		errs = append(errs, errors.New("inference.fallback_model must differ from inference.model"))
	}
	if c.Inference.Timeout < 0 {
		errs = append(errs, errors.New("inference.timeout must not be negative"))
	}
	if c.Inference.Confidence < 0 || c.Inference.Confidence > 1 {
		errs = append(errs, errors.New("inference.confidence must be between 0 and 1"))
	}

	switch c.Speech.Provider {
	case "", SpeechNone, SpeechOpenAI, SpeechElevenLabs, SpeechGoogle:
	default:
		errs = append(errs, fmt.Errorf("speech.provider %q unknown", c.Speech.Provider))
	}
	switch c.Speech.Fallback {
	case "", SpeechNone:
	case SpeechOpenAI, SpeechElevenLabs, SpeechGoogle:
		if c.Speech.Fallback == c.Speech.Provider {
			errs = append(errs, errors.New("speech.fallback must differ from speech.provider"))
		}
		if c.Speech.Provider == "" || c.Speech.Provider == SpeechNone {
			errs = append(errs, errors.New("speech.fallback needs a speech.provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("speech.fallback %q unknown", c.Speech.Fallback))
	}
	if c.Speech.Speed < 0 {
		errs = append(errs, errors.New("speech.speed must not be negative"))
	}
	if c.Speech.Debounce < 0 {
		errs = append(errs, errors.New("speech.debounce must not be negative"))
	}

	if _, err := c.EngineSettings(); err != nil {
		errs = append(errs, err)
	}

	switch c.Camera.Source {
	case SourceClient, SourceWebcam:
	case SourceStream:
		if c.Camera.StreamURL == "" {
			errs = append(errs, errors.New("camera.stream_url is required for the stream source"))
		}
	default:
		errs = append(errs, fmt.Errorf("camera.source %q unknown", c.Camera.Source))
	}
	for _, msg := range c.Camera.Config.Validate() {
		errs = append(errs, fmt.Errorf("camera: %s", msg))
	}

	return errors.Join(errs...)
}

// EngineSettings resolves the engine profile and applies the overrides.
func (c *Config) EngineSettings() (detect.EngineConfig, error) {
	cfg, err := detect.ProfileConfig(c.Engine.Profile)
	if err != nil {
		return detect.EngineConfig{}, err
	}
	if !c.Engine.Overrides.IsZero() {
		if err := c.Engine.Overrides.Decode(&cfg); err != nil {
			return detect.EngineConfig{}, fmt.Errorf("engine.overrides: %w", err)
		}
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		return detect.EngineConfig{}, fmt.Errorf("engine: %s", strings.Join(problems, "; "))
	}
	return cfg, nil
}

// Addr returns the listen address for the server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
