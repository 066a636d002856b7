package announce

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/teslashibe/go-billsense/pkg/tts"
)

// Utterance is one announcement handed to a Sink.
type Utterance struct {
	Text   string          `json:"text"`
	Locale string          `json:"locale"`
	Forced bool            `json:"forced"`
	At     time.Time       `json:"at"`
	Audio  []byte          `json:"-"`
	Format tts.AudioFormat `json:"-"`
}

// Sink plays an utterance. Play must return promptly once ctx is
// cancelled; that is how speech gets interrupted.
type Sink interface {
	Play(ctx context.Context, u Utterance) error
}

// Silencer is a Sink whose playback can outlive Play, such as a remote
// client that plays the audio itself. Silence stops whatever it is playing.
type Silencer interface {
	Silence()
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, u Utterance) error

// Play calls f.
func (f SinkFunc) Play(ctx context.Context, u Utterance) error {
	return f(ctx, u)
}

// ErrNoPlayer is returned by CommandSink when neither command can handle
// the utterance.
var ErrNoPlayer = errors.New("announce: no player for utterance")

// CommandSink plays announcements through local programs. Synthesized
// audio is piped to AudioCommand's stdin; without audio the text is passed
// as the last argument of TextCommand.
type CommandSink struct {
	AudioCommand []string // e.g. ffplay -nodisp -autoexit -loglevel quiet -
	TextCommand  []string // e.g. espeak-ng -v es-419
}

// DefaultCommandSink plays MP3 with ffplay and falls back to espeak-ng.
func DefaultCommandSink() *CommandSink {
	return &CommandSink{
		AudioCommand: []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", "-"},
		TextCommand:  []string{"espeak-ng", "-v", "es-419"},
	}
}

// Play runs the matching command and waits for it. Cancelling ctx kills it.
func (s *CommandSink) Play(ctx context.Context, u Utterance) error {
	var cmd *exec.Cmd
	switch {
	case len(u.Audio) > 0 && len(s.AudioCommand) > 0:
		cmd = exec.CommandContext(ctx, s.AudioCommand[0], s.AudioCommand[1:]...)
		cmd.Stdin = bytes.NewReader(u.Audio)
	case len(s.TextCommand) > 0:
		args := append(append([]string(nil), s.TextCommand[1:]...), u.Text)
		cmd = exec.CommandContext(ctx, s.TextCommand[0], args...)
	default:
		return ErrNoPlayer
	}

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("announce: %s: %w", cmd.Path, err)
	}
	return nil
}
