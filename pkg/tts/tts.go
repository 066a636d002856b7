// Package tts turns announcement text into audio.
//
// Several hosted backends are supported: OpenAI (built-in voices),
// ElevenLabs (multilingual voices with an explicit language code) and
// Google Cloud Text-to-Speech (native Spanish voices). All implement the
// Provider interface and can be chained for fallback.
//
// Example usage:
//
//	provider, _ := tts.NewOpenAI(
//	    tts.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    tts.WithLanguage("es-MX"),
//	)
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, "Billete de 50 pesos mexicanos detectado")
//	// result.Audio contains MP3 bytes
package tts

import (
	"context"
	"strconv"
	"strings"
)

// Provider turns one announcement into audio.
type Provider interface {
	// Synthesize returns the complete audio for text. Announcements are a
	// few words long, so there is no streaming variant.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks connectivity and credentials.
	Health(ctx context.Context) error

	Close() error
}

// AudioResult is synthesized speech ready to hand to a sink.
type AudioResult struct {
	Audio     []byte
	Format    AudioFormat
	CharCount int
	LatencyMs int64
}

// AudioFormat describes AudioResult.Audio.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int // Hz
	Channels   int
}

// MIME returns the content type browsers need to play the audio.
func (f AudioFormat) MIME() string {
	switch f.Encoding {
	case EncodingPCM16, EncodingPCM22, EncodingPCM24, EncodingPCM44:
		return "audio/pcm"
	case EncodingULaw:
		return "audio/basic"
	}
	return "audio/mpeg"
}

// Encoding names an output format. The values are the ElevenLabs
// output_format strings; other backends only produce EncodingMP3.
type Encoding string

const (
	EncodingMP3   Encoding = "mp3_44100_128"
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM22 Encoding = "pcm_22050"
	EncodingPCM24 Encoding = "pcm_24000"
	EncodingPCM44 Encoding = "pcm_44100"
	EncodingULaw  Encoding = "ulaw_8000"
)

// SampleRateFromEncoding returns the sample rate an encoding implies.
func SampleRateFromEncoding(enc Encoding) int {
	_, rate, ok := strings.Cut(string(enc), "_")
	if !ok {
		return 24000
	}
	rate, _, _ = strings.Cut(rate, "_")
	hz, err := strconv.Atoi(rate)
	if err != nil {
		return 24000
	}
	return hz
}

// VoiceSettings tunes ElevenLabs voices (0-1 scales).
type VoiceSettings struct {
	Stability       float64
	SimilarityBoost float64
	SpeakerBoost    bool
}

// DefaultVoiceSettings favors a steady, clear delivery over expressiveness.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{Stability: 0.7, SimilarityBoost: 0.75, SpeakerBoost: true}
}
