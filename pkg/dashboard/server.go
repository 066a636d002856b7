// Package dashboard serves the browser camera client and a live event
// feed of every detection session.
package dashboard

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"

	"github.com/teslashibe/go-billsense/pkg/feed"
	"github.com/teslashibe/go-billsense/pkg/session"
)

//go:embed static
var static embed.FS

// Event types
const (
	EventStatus   = "status"
	EventAnnounce = "announce"
	EventError    = "error"
)

const (
	maxEvents = 500
	replay    = 50 // events sent to a new subscriber
)

// Event is one line of the live feed.
type Event struct {
	Time       time.Time `json:"time"`
	Type       string    `json:"type"`
	Source     string    `json:"source"` // client ID, or "local"
	Phase      string    `json:"phase,omitempty"`
	Label      string    `json:"label,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Message    string    `json:"message"`
}

// Server records session events and fans them out to subscribers.
type Server struct {
	feed   *feed.Hub
	logger *slog.Logger

	mu     sync.RWMutex
	events []Event
	latest map[string]Event // last status or error event per source
}

// New creates a dashboard. Call Run before serving subscribers.
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		feed:   feed.New("events", logger),
		logger: logger.With("component", "dashboard"),
		events: make([]Event, 0, maxEvents),
		latest: make(map[string]Event),
	}
}

// Run drives the event feed until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.feed.Run(ctx)
}

// RegisterRoutes mounts the event API under /api/events and the live feed
// at /ws/events.
func (s *Server) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/events")
	api.Get("/", s.handleEvents)
	api.Get("/latest", s.handleLatest)

	app.Get("/ws/events", requireUpgrade, s.eventsWS())
}

// RegisterClient mounts the browser camera client at /app. It talks to the
// cloud hub's /ws/client endpoint.
func (s *Server) RegisterClient(app *fiber.App) {
	root, err := fs.Sub(static, "static")
	if err != nil {
		panic(err) // embedded at build time
	}

	app.Get("/", func(c *fiber.Ctx) error {
		return c.Redirect("/app/")
	})
	app.Use("/app", filesystem.New(filesystem.Config{
		Root:  http.FS(root),
		Index: "index.html",
	}))
}

// Record appends an event and broadcasts it.
func (s *Server) Record(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	s.mu.Lock()
	s.events = append(s.events, e)
	if len(s.events) > maxEvents {
		s.events = s.events[1:]
	}
	if e.Type == EventStatus || e.Type == EventError {
		s.latest[e.Source] = e
	}
	s.mu.Unlock()

	if err := s.feed.BroadcastJSON(e); err != nil {
		s.logger.Warn("broadcast failed", "error", err)
	}
}

// RecordStatus records a session status when its visible line changed.
// Sessions report every tick, so repeats are skipped.
func (s *Server) RecordStatus(source string, st session.Status) {
	e := Event{
		Type:       EventStatus,
		Source:     source,
		Phase:      st.Phase.String(),
		Label:      st.Label,
		Confidence: st.Confidence,
		Message:    st.Message,
	}
	if st.Error != "" {
		e.Type = EventError
		e.Message = st.Error
	}

	s.mu.RLock()
	prev, ok := s.latest[source]
	s.mu.RUnlock()
	if ok && prev.Type == e.Type && prev.Phase == e.Phase && prev.Label == e.Label && prev.Message == e.Message {
		return
	}
	s.Record(e)
}

// RecordAnnouncement records a phrase sent to a speaker.
func (s *Server) RecordAnnouncement(source, text string) {
	s.Record(Event{Type: EventAnnounce, Source: source, Message: text})
}

// Forget drops the latest status of a source that went away.
func (s *Server) Forget(source string) {
	s.mu.Lock()
	delete(s.latest, source)
	s.mu.Unlock()
}

// Events returns a copy of the recorded events, oldest first.
func (s *Server) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.events...)
}

// Latest returns the last status or error event of every source.
func (s *Server) Latest() map[string]Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Event, len(s.latest))
	for k, v := range s.latest {
		out[k] = v
	}
	return out
}

// Subscribers returns the number of live feed connections.
func (s *Server) Subscribers() int {
	return s.feed.ClientCount()
}
