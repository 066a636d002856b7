package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-billsense/pkg/camera"
	"github.com/teslashibe/go-billsense/pkg/detect"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "billsense.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	engine, err := cfg.EngineSettings()
	require.NoError(t, err)
	assert.Equal(t, detect.StrictConfig(), engine)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, camera.FacingBack, cfg.Camera.Facing)
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ROBOFLOW_API_KEY", "rf-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "rf-key", cfg.Inference.APIKey)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
server:
  port: 9000
  auto_start: true
inference:
  model: bills/7
  fallback_model: bills/6
  timeout: 5s
speech:
  provider: google
  voice: es-US-Neural2-A
  debounce: 250ms
engine:
  profile: permissive
  overrides:
    stable_frames: 3
    interval: 750ms
camera:
  source: stream
  stream_url: ws://10.0.0.5:9000/frames
  width: 640
  height: 480
  facing: front
`)
	t.Setenv("GOOGLE_API_KEY", "g-key")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.True(t, cfg.Server.AutoStart)
	assert.Equal(t, "bills/7", cfg.Inference.Model)
	assert.Equal(t, "bills/6", cfg.Inference.FallbackModel)
	assert.Equal(t, 5*time.Second, cfg.Inference.Timeout)
	assert.Equal(t, "g-key", cfg.Speech.APIKey)
	assert.Equal(t, 250*time.Millisecond, cfg.Speech.Debounce)
	assert.Equal(t, "es-MX", cfg.Speech.Locale, "unset keys keep defaults")

	engine, err := cfg.EngineSettings()
	require.NoError(t, err)
	want := detect.PermissiveConfig()
	want.StableFrames = 3
	want.Interval = 750 * time.Millisecond
	assert.Equal(t, want, engine)

	assert.Equal(t, SourceStream, cfg.Camera.Source)
	assert.Equal(t, 640, cfg.Camera.Width)
	assert.Equal(t, 30, cfg.Camera.Framerate)
	assert.Equal(t, camera.FacingFront, cfg.Camera.Facing)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeConfig(t, "server: [not, a, map"))
	assert.ErrorContains(t, err, "failed to parse config")

	_, err = Load(writeConfig(t, "engine:\n  profile: reckless\n"))
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"missing model", func(c *Config) { c.Inference.Model = "" }, "inference.model"},
		{"fallback equals model", func(c *Config) { c.Inference.FallbackModel = c.Inference.Model }, "fallback_model"},
		{"bad confidence", func(c *Config) { c.Inference.Confidence = 1.5 }, "inference.confidence"},
		{"unknown speech", func(c *Config) { c.Speech.Provider = "parrot" }, "speech.provider"},
		{"unknown fallback", func(c *Config) { c.Speech.Provider = SpeechOpenAI; c.Speech.Fallback = "parrot" }, "speech.fallback"},
		{"fallback without provider", func(c *Config) { c.Speech.Fallback = SpeechGoogle }, "needs a speech.provider"},
		{"fallback same as provider", func(c *Config) { c.Speech.Provider = SpeechGoogle; c.Speech.Fallback = SpeechGoogle }, "must differ"},
		{"stream without url", func(c *Config) { c.Camera.Source = SourceStream }, "stream_url"},
		{"bad camera", func(c *Config) { c.Camera.Quality = 0 }, "camera:"},
		{"bad engine override", func(c *Config) {
			require.NoError(t, c.Engine.Overrides.Encode(map[string]int{"stable_frames": 0}))
		}, "stable_frames"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.Speech.Provider = SpeechElevenLabs
	cfg.Speech.Fallback = SpeechOpenAI
	cfg.ApplyEnv(envMap(map[string]string{
		"LOG_LEVEL":               "warn",
		"PORT":                    "not-a-number",
		"ROBOFLOW_MODEL":          "bills/9",
		"ROBOFLOW_FALLBACK_MODEL": "bills/8",
		"ELEVENLABS_API_KEY":      "el-key",
		"OPENAI_API_KEY":          "oa-key",
	}))

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, DefaultPort, cfg.Server.Port, "invalid PORT is ignored")
	assert.Equal(t, "bills/9", cfg.Inference.Model)
	assert.Equal(t, "bills/8", cfg.Inference.FallbackModel)
	assert.Equal(t, "el-key", cfg.Speech.APIKey)
	assert.Equal(t, "oa-key", cfg.Speech.FallbackAPIKey)

	cfg = Default()
	cfg.Speech.Provider = SpeechOpenAI
	cfg.Speech.APIKey = "from-file"
	cfg.ApplyEnv(envMap(map[string]string{"OPENAI_API_KEY": "oa-key"}))
	assert.Equal(t, "from-file", cfg.Speech.APIKey, "file key wins over env")
}
