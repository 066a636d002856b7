package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"
)

const providerGoogle = "google"

// Google implements Provider for Google Cloud Text-to-Speech.
//
// Credentials are resolved in order: an explicit HTTPClient, an API key,
// then Application Default Credentials.
type Google struct {
	config   *Config
	service  *texttospeech.Service
	logger   *slog.Logger
	language string
}

// NewGoogle creates a new Google Cloud TTS provider.
func NewGoogle(ctx context.Context, opts ...Option) (*Google, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	language := googleLanguage(cfg.Language)
	if cfg.VoiceID == "" {
		cfg.VoiceID = DefaultVoice(providerGoogle, cfg.Language)
	}

	var clientOpts []option.ClientOption
	switch {
	case cfg.HTTPClient != nil:
		clientOpts = append(clientOpts, option.WithHTTPClient(cfg.HTTPClient))
	case cfg.APIKey != "":
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	default:
		hc, err := google.DefaultClient(ctx, texttospeech.CloudPlatformScope)
		if err != nil {
			return nil, WrapError(providerGoogle, fmt.Errorf("%w: %v", ErrNoAPIKey, err))
		}
		clientOpts = append(clientOpts, option.WithHTTPClient(hc))
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(strings.TrimSuffix(cfg.BaseURL, "/")+"/"))
	}

	svc, err := texttospeech.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("create service: %w", err))
	}

	return &Google{
		config:   cfg,
		service:  svc,
		logger:   cfg.Logger.With("component", "tts.google"),
		language: language,
	}, nil
}

// Synthesize converts text to MP3 audio.
func (g *Google) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerGoogle, ErrEmptyText)
	}
	start := time.Now()

	req := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: g.language,
			Name:         g.config.VoiceID,
		},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding: "MP3",
			SpeakingRate:  g.config.Speed,
		},
	}

	resp, err := g.service.Text.Synthesize(req).Context(ctx).Do()
	if err != nil {
		return nil, g.wrapError(err)
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("decode audio: %w", err))
	}
	if len(audio) == 0 {
		return nil, WrapError(providerGoogle, ErrNoAudio)
	}

	latency := time.Since(start).Milliseconds()
	g.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", g.config.VoiceID,
	)

	return &AudioResult{
		Audio: audio,
		Format: AudioFormat{
			Encoding:   EncodingMP3,
			SampleRate: 24000,
			Channels:   1,
		},
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// Health lists the voices for the configured language.
func (g *Google) Health(ctx context.Context) error {
	resp, err := g.service.Voices.List().LanguageCode(g.language).Context(ctx).Do()
	if err != nil {
		return g.wrapError(err)
	}
	if len(resp.Voices) == 0 {
		return WrapError(providerGoogle, fmt.Errorf("no voices for %s", g.language))
	}
	return nil
}

// Name implements Named.
func (g *Google) Name() string { return providerGoogle }

// Close releases resources.
func (g *Google) Close() error {
	return nil
}

// VoiceID returns the configured voice.
func (g *Google) VoiceID() string {
	return g.config.VoiceID
}

// wrapError converts googleapi errors into APIError.
func (g *Google) wrapError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &APIError{
			StatusCode: gerr.Code,
			Message:    gerr.Message,
			Provider:   providerGoogle,
		}
	}
	return WrapError(providerGoogle, err)
}

var (
	_ Provider = (*Google)(nil)
	_ Named    = (*Google)(nil)
)
