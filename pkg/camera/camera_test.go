package camera

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-billsense/internal/timeutil"
)

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestFacing(t *testing.T) {
	assert.Equal(t, FacingFront, FacingBack.Toggle())
	assert.Equal(t, FacingBack, FacingFront.Toggle())
	assert.Equal(t, "environment", FacingBack.FacingMode())
	assert.Equal(t, "user", FacingFront.FacingMode())

	for in, want := range map[string]Facing{
		"":            FacingBack,
		"environment": FacingBack,
		"Rear":        FacingBack,
		"user":        FacingFront,
		"front":       FacingFront,
	} {
		got, err := ParseFacing(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFacing("sideways")
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	for _, name := range PresetNames() {
		cfg := GetPreset(name)
		require.NotNil(t, cfg, name)
		assert.Empty(t, cfg.Validate(), name)
	}

	cfg := DefaultConfig()
	assert.Equal(t, 1280, cfg.Width)
	assert.Equal(t, 720, cfg.Height)
	assert.Equal(t, FacingBack, cfg.Facing)

	cfg.Quality = 0
	cfg.Facing = "up"
	assert.Len(t, cfg.Validate(), 2)

	assert.Nil(t, GetPreset("8k"))
}

func TestManager_Apply(t *testing.T) {
	base := DefaultConfig()
	base.BackDevice = "/dev/video2"
	m := NewManager(base)
	var applied []Config
	m.OnConfigChange = func(cfg Config) error {
		applied = append(applied, cfg)
		return nil
	}

	var update Update
	require.NoError(t, json.Unmarshal([]byte(`{"preset":"`+PresetLowPower+`","quality":60,"facing":"user"}`), &update))
	cfg, err := m.Apply(update)
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 60, cfg.Quality)
	assert.Equal(t, FacingFront, cfg.Facing)
	assert.Equal(t, "/dev/video2", cfg.BackDevice, "presets keep the devices")
	assert.Equal(t, cfg, m.GetConfig())
	assert.Len(t, applied, 1)

	nope, tiny := "nope", 10
	_, err = m.Apply(Update{Preset: &nope})
	assert.Error(t, err)
	_, err = m.Apply(Update{Width: &tiny})
	assert.Error(t, err)
	assert.Equal(t, 640, m.GetConfig().Width, "invalid update leaves config alone")

	m.OnConfigChange = func(Config) error { return errors.New("busy") }
	q := 90
	_, err = m.Apply(Update{Quality: &q})
	assert.ErrorContains(t, err, "busy")
}

func TestMailbox_Lifecycle(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	m := NewMailbox(WithMailboxClock(clock), WithMaxFrameAge(2*time.Second))
	frame := testJPEG(t, 32, 24)

	assert.ErrorIs(t, m.Publish(frame), ErrNotOpen)
	_, err := m.Capture()
	assert.ErrorIs(t, err, ErrNotOpen)

	var opened Facing
	m.OnOpen = func(ctx context.Context, f Facing) error {
		opened = f
		return nil
	}
	require.NoError(t, m.Open(context.Background(), FacingFront))
	assert.Equal(t, FacingFront, opened)
	assert.Equal(t, FacingFront, m.Facing())
	assert.False(t, m.IsReady(), "open without a frame is not ready")

	_, err = m.Capture()
	assert.ErrorIs(t, err, ErrNoFrame)

	require.NoError(t, m.Publish(frame))
	require.NoError(t, m.Publish(frame))
	assert.True(t, m.IsReady())

	f, err := m.Capture()
	require.NoError(t, err)
	assert.Equal(t, 32, f.Width)
	assert.Equal(t, 24, f.Height)
	assert.Equal(t, frame, f.JPEG)

	_, err = m.Capture()
	require.NoError(t, err)

	clock.Advance(3 * time.Second)
	assert.False(t, m.IsReady(), "stale frame")
	_, err = m.Capture()
	assert.ErrorIs(t, err, ErrNoFrame)

	closed := 0
	m.OnClose = func() { closed++ }
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Equal(t, 1, closed)
	assert.False(t, m.IsOpen())

	assert.Equal(t, MailboxStats{Published: 2, Consumed: 2, Dropped: 1, Reused: 1, Rejected: 1}, m.Stats())
}

func TestMailbox_OpenHookFailure(t *testing.T) {
	m := NewMailbox()
	m.OnOpen = func(context.Context, Facing) error { return ErrNoDevice }

	assert.ErrorIs(t, m.Open(context.Background(), FacingBack), ErrNoDevice)
	assert.False(t, m.IsOpen())
}

func TestMailbox_BadJPEG(t *testing.T) {
	m := NewMailbox()
	require.NoError(t, m.Open(context.Background(), FacingBack))
	require.NoError(t, m.Publish([]byte("not a jpeg")))

	_, err := m.Capture()
	assert.Error(t, err)
}

func TestStreamSource(t *testing.T) {
	frame := testJPEG(t, 16, 16)
	facing := make(chan string, 1)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		facing <- r.URL.Query().Get("facing")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		_ = conn.WriteMessage(websocket.BinaryMessage, frame)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	s := NewStreamSource("ws" + strings.TrimPrefix(srv.URL, "http") + "/frames")
	require.NoError(t, s.Open(context.Background(), FacingFront))
	assert.Equal(t, "front", <-facing)

	require.Eventually(t, s.IsReady, 2*time.Second, 10*time.Millisecond)
	f, err := s.Capture()
	require.NoError(t, err)
	assert.Equal(t, 16, f.Width)

	require.NoError(t, s.Close())
	assert.False(t, s.IsReady())
	assert.Equal(t, uint64(1), s.Stats().Published)
}

func TestStreamSource_DialFailure(t *testing.T) {
	s := NewStreamSource("ws://127.0.0.1:1/frames")
	err := s.Open(context.Background(), FacingBack)
	assert.ErrorIs(t, err, ErrNoDevice)
	assert.NoError(t, s.Close())
}
