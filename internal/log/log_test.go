package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q): got %v, want %v", in, got, want)
		}
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", true)

	l.Info("dropped")
	l.Warn("kept", "component", "session")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(out, `"component":"session"`) {
		t.Errorf("expected JSON attribute, got %q", out)
	}
}

func TestWantJSON(t *testing.T) {
	tests := []struct {
		env  map[string]string
		want bool
	}{
		{map[string]string{}, false},
		{map[string]string{"GO_ENV": "production"}, true},
		{map[string]string{"GO_ENV": "production", "LOG_FORMAT": "text"}, false},
		{map[string]string{"LOG_FORMAT": "JSON"}, true},
	}
	for _, tt := range tests {
		getenv := func(k string) string { return tt.env[k] }
		if got := wantJSON(getenv); got != tt.want {
			t.Errorf("wantJSON(%v): got %v, want %v", tt.env, got, tt.want)
		}
	}
}
