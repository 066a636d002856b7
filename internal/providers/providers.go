// Package providers builds the classifier, synthesizer, frame source and
// speaker a command needs from its configuration.
package providers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-billsense/internal/config"
	"github.com/teslashibe/go-billsense/pkg/announce"
	"github.com/teslashibe/go-billsense/pkg/camera"
	"github.com/teslashibe/go-billsense/pkg/camera/webcam"
	"github.com/teslashibe/go-billsense/pkg/inference"
	"github.com/teslashibe/go-billsense/pkg/tts"
)

// NewClassifier builds the hosted classifier. With a fallback model the
// two are chained, primary first.
func NewClassifier(cfg config.InferenceConfig, logger *slog.Logger) (inference.Classifier, error) {
	primary, err := newHosted(cfg, cfg.Model, logger)
	if err != nil {
		return nil, err
	}
	if cfg.FallbackModel == "" {
		return primary, nil
	}
	fallback, err := newHosted(cfg, cfg.FallbackModel, logger)
	if err != nil {
		return nil, err
	}
	return inference.NewChainWithLogger(logger, primary, fallback)
}

func newHosted(cfg config.InferenceConfig, model string, logger *slog.Logger) (*inference.Client, error) {
	opts := []inference.Option{
		inference.WithAPIKey(cfg.APIKey),
		inference.WithModel(model),
		inference.WithConfidence(cfg.Confidence),
		inference.WithLogger(logger),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, inference.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, inference.WithTimeout(cfg.Timeout))
	}
	return inference.NewClient(opts...)
}

// NewSynthesizer returns nil when speech synthesis is off; clients then
// receive the text and speak it themselves. With a fallback provider the
// two are chained.
func NewSynthesizer(ctx context.Context, cfg config.SpeechConfig, logger *slog.Logger) (tts.Provider, error) {
	if cfg.Provider == "" || cfg.Provider == config.SpeechNone {
		return nil, nil
	}
	primary, err := newSpeechBackend(ctx, cfg, cfg.Provider, cfg.APIKey, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Fallback == "" || cfg.Fallback == config.SpeechNone {
		return primary, nil
	}
	fallback, err := newSpeechBackend(ctx, cfg, cfg.Fallback, cfg.FallbackAPIKey, logger)
	if err != nil {
		primary.Close()
		return nil, fmt.Errorf("speech fallback: %w", err)
	}
	return tts.NewChainWithLogger(logger, primary, fallback)
}

func newSpeechBackend(ctx context.Context, cfg config.SpeechConfig, provider, apiKey string, logger *slog.Logger) (tts.Provider, error) {
	opts := []tts.Option{
		tts.WithLanguage(cfg.Locale),
		tts.WithSpeed(cfg.Speed),
		tts.WithLogger(logger),
	}
	if apiKey != "" {
		opts = append(opts, tts.WithAPIKey(apiKey))
	}
	// Voice names are provider specific, so the fallback uses its default.
	if cfg.Voice != "" && provider == cfg.Provider {
		opts = append(opts, tts.WithVoice(cfg.Voice))
	}

	switch provider {
	case config.SpeechOpenAI:
		return tts.NewOpenAI(opts...)
	case config.SpeechElevenLabs:
		return tts.NewElevenLabs(opts...)
	case config.SpeechGoogle:
		return tts.NewGoogle(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown speech provider %q", provider)
	}
}

// NewSource builds a server-side frame source for the webcam and stream
// modes.
func NewSource(cfg config.CameraConfig, logger *slog.Logger) (camera.FrameSource, error) {
	switch cfg.Source {
	case config.SourceWebcam:
		return webcam.New(cfg.Config, logger), nil
	case config.SourceStream:
		mailbox := camera.NewMailbox(camera.WithMaxFrameAge(time.Duration(cfg.MaxFrameAgeMs) * time.Millisecond))
		return camera.NewStreamSource(cfg.StreamURL,
			camera.WithStreamLogger(logger),
			camera.WithStreamMailbox(mailbox),
		), nil
	default:
		return nil, fmt.Errorf("camera source %q has no local capture", cfg.Source)
	}
}

// NewLocalSpeaker plays announcements on this machine. onPlay, when set,
// sees every utterance before it plays.
func NewLocalSpeaker(cfg config.SpeechConfig, synth tts.Provider, onPlay func(announce.Utterance), logger *slog.Logger) *announce.Speaker {
	opts := []announce.SpeakerOption{
		announce.WithDebounce(cfg.Debounce),
		announce.WithLocale(cfg.Locale),
		announce.WithEnabled(cfg.Enabled),
		announce.WithLogger(logger),
	}
	if synth != nil {
		opts = append(opts, announce.WithSynthesizer(synth))
	}
	player := announce.DefaultCommandSink()
	sink := announce.SinkFunc(func(ctx context.Context, u announce.Utterance) error {
		if onPlay != nil {
			onPlay(u)
		}
		return player.Play(ctx, u)
	})
	return announce.NewSpeaker(sink, opts...)
}
