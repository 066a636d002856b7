package announce

import (
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-billsense/internal/log"
	"github.com/teslashibe/go-billsense/pkg/detect"
)

type call struct {
	op    string
	text  string
	force bool
}

// fakeAnnouncer records calls without any timing.
type fakeAnnouncer struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeAnnouncer) Speak(text string, force bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{"speak", text, force})
}

func (f *fakeAnnouncer) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "cancel"})
}

func (f *fakeAnnouncer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "reset"})
}

func TestController_Handle(t *testing.T) {
	a := &fakeAnnouncer{}
	c := NewController(a, Phrases("es-MX"), nil)

	c.Handle(detect.TickResult{Outcome: detect.Outcome{Phase: detect.PhaseTracking, Label: "50"}})
	c.Handle(detect.TickResult{Outcome: detect.Outcome{Phase: detect.PhaseConfirmed, Label: "50", Announce: true}})
	c.Handle(detect.TickResult{Outcome: detect.Outcome{Phase: detect.PhaseIdle, Forgotten: true}, AnnounceDark: true})

	assert.Equal(t, []call{
		{"speak", "Billete de 50 pesos mexicanos detectado", false},
		{op: "reset"},
		{"speak", "Está muy oscuro. Busca más luz", true},
	}, a.calls)
}

func grayFrame(fill func(x, y int) uint8) detect.Frame {
	img := image.NewGray(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			img.SetGray(x, y, color.Gray{Y: fill(x, y)})
		}
	}
	return detect.NewFrame(img)
}

func TestController_DarknessRepeatsAfterLightReturns(t *testing.T) {
	sink := &recordingSink{}
	speaker, clock := newTestSpeaker(sink)
	c := NewController(speaker, Phrases("es-MX"), log.Discard())
	e := detect.NewEngine(detect.PermissiveConfig())

	dark := grayFrame(func(int, int) uint8 { return 5 })
	lit := grayFrame(func(x, y int) uint8 {
		if (x+y)%2 == 0 {
			return 30
		}
		return 230
	})

	var signals int
	feed := func(f detect.Frame, n int) {
		for i := 0; i < n; i++ {
			res, _ := e.Gate(f)
			if res.AnnounceDark {
				signals++
			}
			c.Handle(res)
			clock.Advance(DefaultDebounce)
		}
	}
	feed(dark, 3)
	feed(lit, 2)
	feed(dark, 3)

	require.Equal(t, 2, signals)
	assert.Equal(t, []string{"Está muy oscuro. Busca más luz", "Está muy oscuro. Busca más luz"}, sink.texts())
}

func TestController_LifecyclePhrases(t *testing.T) {
	a := &fakeAnnouncer{}
	c := NewController(a, Phrases("es-MX"), nil)

	c.CameraStarted()
	c.CameraFailed()
	c.Flipping()
	c.AudioEnabled()
	c.Stop()

	assert.Equal(t, []call{
		{"speak", "Cámara activada", false},
		{"speak", "Error al iniciar cámara", true},
		{"speak", "Cambiando cámara", false},
		{"speak", "Audio activado", true},
		{op: "cancel"},
		{op: "reset"},
	}, a.calls)
}

func TestController_StatusText(t *testing.T) {
	c := NewController(&fakeAnnouncer{}, Phrases("es-MX"), nil)

	assert.Equal(t, "Detectando $100...", c.StatusText(detect.Outcome{Phase: detect.PhaseTracking, Label: "100"}))
	assert.Equal(t, "$100 MXN · 97.5% confianza",
		c.StatusText(detect.Outcome{Phase: detect.PhaseConfirmed, Label: "100", Confidence: 0.975}))
	assert.Equal(t, "Apunta la cámara a un billete", c.StatusText(detect.Outcome{}))
}

func TestPhrases_Fallback(t *testing.T) {
	assert.Equal(t, "es-MX", Phrases("es-MX").Locale)
	assert.Equal(t, "es-MX", Phrases("es_AR").Locale)
	assert.Equal(t, "en-US", Phrases("en-GB").Locale)
	assert.Equal(t, "es-MX", Phrases("fr-FR").Locale)
	assert.Equal(t, "Billete de 1000 pesos mexicanos detectado", Phrases("").Bill("1000"))
}
