package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = "elevenlabs"
)

// ElevenLabs models. Only the v2.5 models accept an explicit language code.
const (
	ModelFlashV2_5      = "eleven_flash_v2_5"
	ModelTurboV2_5      = "eleven_turbo_v2_5"
	ModelMultilingualV2 = "eleven_multilingual_v2"
)

// ElevenLabs speaks through the ElevenLabs text-to-speech API.
type ElevenLabs struct {
	restBackend
	baseURL string
}

// NewElevenLabs creates an ElevenLabs provider. The voice may be a preset
// name from ElevenLabsVoices or a raw voice ID.
func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelFlashV2_5
	cfg.Apply(opts...)
	if cfg.VoiceID == "" {
		cfg.VoiceID = DefaultVoice(providerElevenLabs, cfg.Language)
	}
	cfg.VoiceID = ResolveElevenLabsVoice(cfg.VoiceID)
	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, err
	}

	e := &ElevenLabs{
		restBackend: newRestBackend(providerElevenLabs, cfg),
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
	}
	if e.baseURL == "" {
		e.baseURL = elevenLabsBaseURL
	}
	e.authorize = func(r *http.Request) {
		r.Header.Set("xi-api-key", cfg.APIKey)
	}
	e.errorDetail = elevenLabsErrorDetail
	return e, nil
}

// Synthesize returns audio for text in the configured output format.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerElevenLabs, ErrEmptyText)
	}
	start := time.Now()

	format := e.outputFormat()
	endpoint := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s",
		e.baseURL, url.PathEscape(e.config.VoiceID), url.QueryEscape(string(format.Encoding)))

	audio, err := e.fetchAudio(ctx, endpoint, e.payload(text), format.MIME())
	if err != nil {
		return nil, err
	}
	return &AudioResult{
		Audio:     audio,
		Format:    format,
		CharCount: len(text),
		LatencyMs: e.logSynthesis(text, audio, start),
	}, nil
}

// Health reads the account, which checks the key.
func (e *ElevenLabs) Health(ctx context.Context) error {
	return e.probe(ctx, e.baseURL+"/user")
}

func (e *ElevenLabs) payload(text string) map[string]any {
	vs := e.config.VoiceSettings
	settings := map[string]any{
		"stability":         vs.Stability,
		"similarity_boost":  vs.SimilarityBoost,
		"use_speaker_boost": vs.SpeakerBoost,
	}
	if e.config.Speed > 0 {
		settings["speed"] = e.config.Speed
	}

	payload := map[string]any{
		"text":           text,
		"model_id":       e.config.ModelID,
		"voice_settings": settings,
	}
	switch e.config.ModelID {
	case ModelFlashV2_5, ModelTurboV2_5:
		if lang := baseLanguage(e.config.Language); lang != "" {
			payload["language_code"] = lang
		}
	}
	return payload
}

func (e *ElevenLabs) outputFormat() AudioFormat {
	return AudioFormat{
		Encoding:   e.config.OutputFormat,
		SampleRate: SampleRateFromEncoding(e.config.OutputFormat),
		Channels:   1,
	}
}

func elevenLabsErrorDetail(body []byte) (string, string, bool) {
	var resp struct {
		Detail struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"detail"`
	}
	if json.Unmarshal(body, &resp) != nil || resp.Detail.Message == "" {
		return "", "", false
	}
	return resp.Detail.Message, resp.Detail.Status, true
}

var (
	_ Provider = (*ElevenLabs)(nil)
	_ Named    = (*ElevenLabs)(nil)
)
