package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-billsense/internal/log"
	"github.com/teslashibe/go-billsense/internal/timeutil"
	"github.com/teslashibe/go-billsense/pkg/camera"
	"github.com/teslashibe/go-billsense/pkg/detect"
	"github.com/teslashibe/go-billsense/pkg/inference"
)

type utterance struct {
	text  string
	force bool
}

// fakeSpeaker records what the session asked it to say.
type fakeSpeaker struct {
	mu      sync.Mutex
	enabled bool
	said    []utterance
	cancels int
	resets  int
}

func newFakeSpeaker() *fakeSpeaker { return &fakeSpeaker{enabled: true} }

func (f *fakeSpeaker) Speak(text string, force bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enabled {
		f.said = append(f.said, utterance{text, force})
	}
}

func (f *fakeSpeaker) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
}

func (f *fakeSpeaker) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

func (f *fakeSpeaker) SetEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = enabled
}

func (f *fakeSpeaker) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

func (f *fakeSpeaker) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, u := range f.said {
		out = append(out, u.text)
	}
	return out
}

// countingSource wraps a Mailbox and counts captures.
type countingSource struct {
	*camera.Mailbox
	captures atomic.Int32
	openErr  error

	// hang, when set, makes Open wait for ctx after closing hang.
	hang chan struct{}
}

func (c *countingSource) Open(ctx context.Context, f camera.Facing) error {
	if c.openErr != nil {
		return c.openErr
	}
	if c.hang != nil {
		close(c.hang)
		<-ctx.Done()
		return ctx.Err()
	}
	return c.Mailbox.Open(ctx, f)
}

func (c *countingSource) Capture() (detect.Frame, error) {
	c.captures.Add(1)
	return c.Mailbox.Capture()
}

func encode(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

// texturedJPEG is bright with strong contrast so the scene gate passes.
func texturedJPEG(t *testing.T) []byte {
	img := image.NewGray(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			if (x/8+y/8)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 230})
			} else {
				img.SetGray(x, y, color.Gray{Y: 40})
			}
		}
	}
	return encode(t, img)
}

func darkJPEG(t *testing.T) []byte {
	return encode(t, image.NewGray(image.Rect(0, 0, 64, 48)))
}

func bill(label string, conf float64) []detect.Prediction {
	return []detect.Prediction{{Label: label, Confidence: conf, X: 32, Y: 24, Width: 30, Height: 15}}
}

type harness struct {
	session *Session
	source  *countingSource
	speaker *fakeSpeaker
	clock   *timeutil.MockClock
}

func newHarness(t *testing.T, classifier inference.Classifier, opts ...Option) *harness {
	t.Helper()
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	h := &harness{
		source:  &countingSource{Mailbox: camera.NewMailbox(camera.WithMaxFrameAge(0))},
		speaker: newFakeSpeaker(),
		clock:   clock,
	}
	base := []Option{
		WithClock(clock),
		WithLogger(log.Discard()),
		WithWarmupDelay(time.Hour), // ticks are driven by hand
		WithStartAnnounceDelay(0),
		WithFlipDelay(0),
	}
	s, err := New(h.source, classifier, h.speaker, append(base, opts...)...)
	require.NoError(t, err)
	h.session = s
	t.Cleanup(func() { _ = s.Close() })
	return h
}

func (h *harness) push(t *testing.T, frame []byte) {
	t.Helper()
	require.NoError(t, h.source.Publish(frame))
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(nil, inference.NewMock(), newFakeSpeaker())
	assert.Error(t, err)
	_, err = New(camera.NewMailbox(), nil, newFakeSpeaker())
	assert.Error(t, err)
	_, err = New(camera.NewMailbox(), inference.NewMock(), nil)
	assert.Error(t, err)

	bad := detect.DefaultConfig()
	bad.StableFrames = 0
	_, err = New(camera.NewMailbox(), inference.NewMock(), newFakeSpeaker(), WithEngineConfig(bad))
	assert.Error(t, err)
}

func TestStart_AcquisitionFailure(t *testing.T) {
	h := newHarness(t, inference.NewMock())
	h.source.openErr = camera.ErrNoDevice

	err := h.session.Start(context.Background())

	var acq *AcquisitionError
	require.ErrorAs(t, err, &acq)
	assert.ErrorIs(t, err, camera.ErrNoDevice)
	assert.Equal(t, camera.FacingBack, acq.Facing)
	assert.False(t, h.session.Running())
	assert.Equal(t, []utterance{{"Error al iniciar cámara", true}}, h.speaker.said)
	assert.NotEmpty(t, h.session.Status().Error)

	// Retry is allowed once the camera shows up.
	h.source.openErr = nil
	require.NoError(t, h.session.Start(context.Background()))
	assert.True(t, h.session.Running())
	assert.Empty(t, h.session.Status().Error)
}

func TestStart_StopAbortsSlowOpen(t *testing.T) {
	h := newHarness(t, inference.NewMock())
	h.source.hang = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- h.session.Start(context.Background()) }()
	<-h.source.hang

	// The lock is free while the camera opens.
	assert.False(t, h.session.Status().Running)
	require.NoError(t, h.session.Start(context.Background()), "second start while opening is a no-op")

	h.session.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
	assert.False(t, h.session.Running())
	assert.Empty(t, h.speaker.texts())
	assert.Empty(t, h.session.Status().Error)
}

func TestSession_CameraLost(t *testing.T) {
	h := newHarness(t, inference.NewMock())

	h.session.CameraLost(errors.New("ignored while stopped"))
	assert.Empty(t, h.speaker.said)

	require.NoError(t, h.session.Start(context.Background()))
	h.session.CameraLost(errors.New("track ended"))

	assert.False(t, h.session.Running())
	assert.Contains(t, h.session.Status().Error, "track ended")
	assert.Equal(t, "Error al iniciar cámara", h.session.Status().Message)
	assert.Equal(t, []utterance{{"Cámara activada", false}, {"Error al iniciar cámara", true}}, h.speaker.said)
}

func TestSession_ConfirmsOnceAndForgets(t *testing.T) {
	classifier := inference.Sequence(
		bill("50", 0.95),
		bill("50", 0.96),
		bill("50", 0.97),
		nil,
		nil,
		bill("50", 0.95),
		bill("50", 0.95),
	)
	h := newHarness(t, classifier)
	ctx := context.Background()

	require.NoError(t, h.session.Start(ctx))
	assert.Equal(t, []string{"Cámara activada"}, h.speaker.texts())
	h.push(t, texturedJPEG(t))

	require.True(t, h.session.Tick(ctx))
	st := h.session.Status()
	assert.Equal(t, detect.PhaseTracking, st.Phase)
	assert.Equal(t, "Detectando $50...", st.Message)

	require.True(t, h.session.Tick(ctx))
	st = h.session.Status()
	assert.Equal(t, detect.PhaseConfirmed, st.Phase)
	assert.Equal(t, "$50 MXN · 96.0% confianza", st.Message)

	require.True(t, h.session.Tick(ctx))
	assert.Equal(t, []string{"Cámara activada", "Billete de 50 pesos mexicanos detectado"}, h.speaker.texts(),
		"a confirmed bill is announced once")

	require.True(t, h.session.Tick(ctx)) // grace
	st = h.session.Status()
	assert.Equal(t, detect.PhaseConfirmed, st.Phase)
	assert.InDelta(t, 0.97, st.Confidence, 1e-9)

	resets := h.speaker.resets
	require.True(t, h.session.Tick(ctx)) // forget
	assert.Equal(t, detect.PhaseIdle, h.session.Status().Phase)
	assert.Equal(t, resets+1, h.speaker.resets)

	require.True(t, h.session.Tick(ctx))
	require.True(t, h.session.Tick(ctx))
	assert.Equal(t, []string{
		"Cámara activada",
		"Billete de 50 pesos mexicanos detectado",
		"Billete de 50 pesos mexicanos detectado",
	}, h.speaker.texts())

	st = h.session.Status()
	assert.Equal(t, uint64(7), st.Ticks)
	assert.Equal(t, uint64(2), st.Announcements)
	assert.Equal(t, 7, classifier.CallCount("Classify"))
}

func TestSession_InferenceErrorLeavesStateAlone(t *testing.T) {
	var fail atomic.Bool
	classifier := inference.NewMock()
	classifier.ClassifyFunc = func(ctx context.Context, jpeg []byte) ([]detect.Prediction, error) {
		if fail.Load() {
			return nil, &inference.APIError{StatusCode: 503, Message: "unavailable"}
		}
		return bill("100", 0.99), nil
	}
	h := newHarness(t, classifier)
	ctx := context.Background()

	require.NoError(t, h.session.Start(ctx))
	h.push(t, texturedJPEG(t))
	require.True(t, h.session.Tick(ctx))
	before := h.session.State()

	fail.Store(true)
	require.True(t, h.session.Tick(ctx))
	assert.Equal(t, before, h.session.State())
	st := h.session.Status()
	assert.Contains(t, st.Error, "inference")
	assert.Equal(t, uint64(1), st.InferenceErrors)

	fail.Store(false)
	require.True(t, h.session.Tick(ctx))
	assert.Equal(t, detect.PhaseConfirmed, h.session.Status().Phase)
	assert.Empty(t, h.session.Status().Error)
}

func TestSession_NoFrameIsSkippedAndEscalated(t *testing.T) {
	classifier := inference.NewMock()
	var seen []Status
	var mu sync.Mutex
	h := newHarness(t, classifier, WithDecodeErrorLimit(3), WithObserver(func(st Status) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	}))
	ctx := context.Background()
	require.NoError(t, h.session.Start(ctx))

	for i := 0; i < 2; i++ {
		require.True(t, h.session.Tick(ctx))
	}
	assert.Empty(t, h.session.Status().Error, "below the limit failures are silent")

	require.True(t, h.session.Tick(ctx))
	st := h.session.Status()
	assert.Contains(t, st.Error, "ready")
	assert.Equal(t, uint64(3), st.DecodeErrors)
	assert.Zero(t, classifier.CallCount("Classify"))
	assert.Zero(t, h.source.captures.Load())

	mu.Lock()
	assert.NotEmpty(t, seen)
	assert.Equal(t, st.Error, seen[len(seen)-1].Error)
	mu.Unlock()

	h.push(t, []byte("garbage"))
	require.True(t, h.session.Tick(ctx))
	assert.Equal(t, uint64(4), h.session.Status().DecodeErrors)
}

func TestSession_SceneGateKeepsDarkFramesFromClassifier(t *testing.T) {
	classifier := inference.Returning(bill("200", 0.99)...)
	h := newHarness(t, classifier, WithEngineConfig(detect.PermissiveConfig()))
	ctx := context.Background()

	require.NoError(t, h.session.Start(ctx))
	h.push(t, darkJPEG(t))

	for i := 0; i < 3; i++ {
		require.True(t, h.session.Tick(ctx))
	}
	assert.Zero(t, classifier.CallCount("Classify"))
	assert.Contains(t, h.speaker.texts(), "Está muy oscuro. Busca más luz")
	assert.Equal(t, "Está muy oscuro. Busca más luz", h.session.Status().Message)

	h.push(t, texturedJPEG(t))
	require.True(t, h.session.Tick(ctx))
	assert.Equal(t, 1, classifier.CallCount("Classify"))
	assert.Equal(t, detect.PhaseTracking, h.session.Status().Phase)
}

func TestSession_SingleFlightSkipsWithoutCapture(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	classifier := inference.NewMock()
	classifier.ClassifyFunc = func(ctx context.Context, jpeg []byte) ([]detect.Prediction, error) {
		entered <- struct{}{}
		<-release
		return nil, nil
	}
	h := newHarness(t, classifier)
	ctx := context.Background()
	require.NoError(t, h.session.Start(ctx))
	h.push(t, texturedJPEG(t))

	done := make(chan bool)
	go func() { done <- h.session.Tick(ctx) }()
	<-entered

	assert.False(t, h.session.Tick(ctx))
	assert.Equal(t, int32(1), h.source.captures.Load())

	close(release)
	assert.True(t, <-done)
	assert.Equal(t, uint64(1), h.session.Status().Skipped)
}

func TestSession_StopClearsEverything(t *testing.T) {
	h := newHarness(t, inference.Returning(bill("20", 0.99)...))
	ctx := context.Background()
	require.NoError(t, h.session.Start(ctx))
	h.push(t, texturedJPEG(t))
	require.True(t, h.session.Tick(ctx))
	require.True(t, h.session.Tick(ctx))
	require.Equal(t, "20", h.session.State().AnnouncedLabel)

	h.session.Stop()

	assert.False(t, h.session.Running())
	assert.False(t, h.source.IsOpen())
	assert.Equal(t, detect.DetectionState{}, h.session.State())
	assert.Equal(t, 1, h.speaker.cancels)
	assert.Equal(t, detect.PhaseIdle, h.session.Status().Phase)
	assert.False(t, h.session.Tick(ctx), "no ticks after stop")

	h.session.Stop()
	assert.Equal(t, 1, h.speaker.cancels, "second stop is a no-op")
}

func TestSession_StaleTickAfterStopIsIgnored(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	classifier := inference.NewMock()
	classifier.ClassifyFunc = func(ctx context.Context, jpeg []byte) ([]detect.Prediction, error) {
		entered <- struct{}{}
		<-release
		return bill("500", 0.99), nil
	}
	h := newHarness(t, classifier)
	ctx := context.Background()
	require.NoError(t, h.session.Start(ctx))
	h.push(t, texturedJPEG(t))

	done := make(chan bool)
	go func() { done <- h.session.Tick(ctx) }()
	<-entered
	h.session.Stop()
	close(release)
	<-done

	assert.Equal(t, detect.DetectionState{}, h.session.State())
}

func TestSession_Flip(t *testing.T) {
	h := newHarness(t, inference.NewMock())
	ctx := context.Background()

	require.NoError(t, h.session.Flip(ctx), "flip while stopped is a no-op")
	assert.Equal(t, camera.FacingBack, h.session.Facing())

	require.NoError(t, h.session.Start(ctx))
	require.NoError(t, h.session.Flip(ctx))

	assert.True(t, h.session.Running())
	assert.Equal(t, camera.FacingFront, h.session.Facing())
	assert.Equal(t, camera.FacingFront, h.source.Facing())
	assert.Equal(t, []string{"Cámara activada", "Cambiando cámara", "Cámara activada"}, h.speaker.texts())
}

func TestSession_StartAnnouncementIsDelayed(t *testing.T) {
	h := newHarness(t, inference.NewMock(), WithStartAnnounceDelay(800*time.Millisecond))
	require.NoError(t, h.session.Start(context.Background()))
	assert.Empty(t, h.speaker.texts())

	h.clock.Advance(800 * time.Millisecond)
	assert.Equal(t, []string{"Cámara activada"}, h.speaker.texts())
}

func TestSession_Audio(t *testing.T) {
	h := newHarness(t, inference.NewMock())

	assert.False(t, h.session.ToggleAudio())
	assert.False(t, h.session.Status().Audio)

	h.session.SetAudio(true)
	assert.True(t, h.session.Status().Audio)
	assert.Equal(t, []utterance{{"Audio activado", true}}, h.speaker.said)
}

func TestSession_Close(t *testing.T) {
	h := newHarness(t, inference.NewMock())
	require.NoError(t, h.session.Close())
	assert.ErrorIs(t, h.session.Start(context.Background()), ErrClosed)
	assert.ErrorIs(t, h.session.Flip(context.Background()), ErrClosed)
}

func TestErrors_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	assert.ErrorIs(t, &AcquisitionError{Err: cause}, cause)
	assert.ErrorIs(t, &InferenceError{Err: cause}, cause)
	assert.ErrorIs(t, &DecodeError{Stage: "encode", Err: cause}, cause)
}
