package providers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-billsense/internal/config"
	"github.com/teslashibe/go-billsense/pkg/camera"
	"github.com/teslashibe/go-billsense/pkg/camera/webcam"
	"github.com/teslashibe/go-billsense/pkg/inference"
	"github.com/teslashibe/go-billsense/pkg/tts"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestNewClassifier(t *testing.T) {
	cfg := config.Default().Inference
	cfg.APIKey = "rf-key"

	c, err := NewClassifier(cfg, quiet)
	require.NoError(t, err)
	assert.IsType(t, &inference.Client{}, c)

	cfg.FallbackModel = "mexican-bills/2"
	c, err = NewClassifier(cfg, quiet)
	require.NoError(t, err)
	chain, ok := c.(*inference.Chain)
	require.True(t, ok, "fallback model builds a chain, got %T", c)
	assert.Len(t, chain.Classifiers(), 2)

	cfg.APIKey = ""
	_, err = NewClassifier(cfg, quiet)
	assert.True(t, errors.Is(err, inference.ErrNoAPIKey), "got %v", err)
}

func TestNewSynthesizer(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default().Speech

	p, err := NewSynthesizer(ctx, cfg, quiet)
	require.NoError(t, err)
	assert.Nil(t, p, "no provider means text-only announcements")

	cfg.Provider = config.SpeechOpenAI
	_, err = NewSynthesizer(ctx, cfg, quiet)
	assert.True(t, errors.Is(err, tts.ErrNoAPIKey), "got %v", err)

	cfg.APIKey = "oa-key"
	p, err = NewSynthesizer(ctx, cfg, quiet)
	require.NoError(t, err)
	assert.IsType(t, &tts.OpenAI{}, p)

	cfg.Provider = config.SpeechElevenLabs
	p, err = NewSynthesizer(ctx, cfg, quiet)
	require.NoError(t, err)
	assert.IsType(t, &tts.ElevenLabs{}, p)

	cfg.Provider = "parrot"
	_, err = NewSynthesizer(ctx, cfg, quiet)
	assert.ErrorContains(t, err, "unknown speech provider")
}

func TestNewSynthesizerFallback(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default().Speech
	cfg.Provider = config.SpeechElevenLabs
	cfg.APIKey = "el-key"
	cfg.Fallback = config.SpeechOpenAI

	_, err := NewSynthesizer(ctx, cfg, quiet)
	assert.ErrorIs(t, err, tts.ErrNoAPIKey, "fallback needs its own key")

	cfg.FallbackAPIKey = "oa-key"
	p, err := NewSynthesizer(ctx, cfg, quiet)
	require.NoError(t, err)
	defer p.Close()

	chain, ok := p.(*tts.Chain)
	require.True(t, ok, "got %T", p)
	assert.Equal(t, "elevenlabs+openai", chain.Name())
	assert.Equal(t, "elevenlabs", chain.Preferred())
}

func TestNewSource(t *testing.T) {
	cfg := config.Default().Camera

	_, err := NewSource(cfg, quiet)
	assert.Error(t, err, "client frames arrive through the hub")

	cfg.Source = config.SourceWebcam
	src, err := NewSource(cfg, quiet)
	require.NoError(t, err)
	assert.IsType(t, &webcam.Source{}, src)
	assert.False(t, src.IsReady())

	cfg.Source = config.SourceStream
	cfg.StreamURL = "ws://127.0.0.1:1/frames"
	src, err = NewSource(cfg, quiet)
	require.NoError(t, err)
	assert.IsType(t, &camera.StreamSource{}, src)
	assert.False(t, src.IsReady())
}

func TestNewLocalSpeaker(t *testing.T) {
	cfg := config.Default().Speech
	assert.True(t, NewLocalSpeaker(cfg, nil, nil, quiet).Enabled())

	cfg.Enabled = false
	assert.False(t, NewLocalSpeaker(cfg, tts.NewMock(), nil, quiet).Enabled())
}
