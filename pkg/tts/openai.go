package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

const (
	openAIBaseURL  = "https://api.openai.com/v1"
	providerOpenAI = "openai"
)

// OpenAI voices.
const (
	VoiceAlloy   = "alloy"
	VoiceEcho    = "echo"
	VoiceNova    = "nova"
	VoiceShimmer = "shimmer"
)

// OpenAI speech models.
const (
	ModelTTS1   = "tts-1"
	ModelTTS1HD = "tts-1-hd"
)

// OpenAI speaks through the OpenAI audio API. The model infers the
// language from the text, so the locale only picks the default voice.
type OpenAI struct {
	restBackend
	baseURL string
}

// NewOpenAI creates an OpenAI provider. An API key is required.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelTTS1
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = DefaultVoice(providerOpenAI, cfg.Language)
	}

	o := &OpenAI{
		restBackend: newRestBackend(providerOpenAI, cfg),
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
	}
	if o.baseURL == "" {
		o.baseURL = openAIBaseURL
	}
	o.authorize = func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	o.errorDetail = openAIErrorDetail
	return o, nil
}

// Synthesize returns MP3 audio for text.
func (o *OpenAI) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerOpenAI, ErrEmptyText)
	}
	start := time.Now()

	payload := map[string]any{
		"model":           o.config.ModelID,
		"voice":           o.config.VoiceID,
		"input":           text,
		"response_format": "mp3",
	}
	if o.config.Speed > 0 {
		payload["speed"] = o.config.Speed
	}

	audio, err := o.fetchAudio(ctx, o.baseURL+"/audio/speech", payload, "audio/mpeg")
	if err != nil {
		return nil, err
	}
	return &AudioResult{
		Audio:     audio,
		Format:    AudioFormat{Encoding: EncodingMP3, SampleRate: 44100, Channels: 1},
		CharCount: len(text),
		LatencyMs: o.logSynthesis(text, audio, start),
	}, nil
}

// Health lists models, which fails fast on a bad key.
func (o *OpenAI) Health(ctx context.Context) error {
	return o.probe(ctx, o.baseURL+"/models")
}

func openAIErrorDetail(body []byte) (string, string, bool) {
	var resp struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &resp) != nil || resp.Error.Message == "" {
		return "", "", false
	}
	return resp.Error.Message, resp.Error.Code, true
}

var (
	_ Provider = (*OpenAI)(nil)
	_ Named    = (*OpenAI)(nil)
)
