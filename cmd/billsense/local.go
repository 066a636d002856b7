package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-billsense/pkg/announce"
	"github.com/teslashibe/go-billsense/pkg/protocol"
	"github.com/teslashibe/go-billsense/pkg/session"
)

// localSource names the single local session in the event feed.
const localSource = "local"

// localRunner drives one session whose camera and speaker live on this
// machine.
type localRunner struct {
	session *session.Session
	speaker *announce.Speaker
	ctx     context.Context
	logger  *slog.Logger
}

func (r *localRunner) control(action string, enabled *bool) error {
	switch action {
	case protocol.ActionStart:
		return r.session.Start(r.ctx)
	case protocol.ActionStop:
		r.session.Stop()
	case protocol.ActionFlip:
		return r.session.Flip(r.ctx)
	case protocol.ActionAudio:
		if enabled != nil {
			r.session.SetAudio(*enabled)
		} else {
			r.session.ToggleAudio()
		}
	default:
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unknown action %q", action))
	}
	return nil
}

func (r *localRunner) registerRoutes(api fiber.Router) {
	api.Get("/session", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": r.session.Status(),
			"speech": r.speaker.Stats(),
		})
	})

	api.Post("/session/:action", func(c *fiber.Ctx) error {
		var body struct {
			Enabled *bool `json:"enabled"`
		}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}
		if err := r.control(c.Params("action"), body.Enabled); err != nil {
			return err
		}
		return c.JSON(r.session.Status())
	})
}

// logStatus reports status lines as they change.
func logStatus(logger *slog.Logger) func(session.Status) {
	var (
		mu   sync.Mutex
		last string
	)
	return func(st session.Status) {
		line := st.Message
		if st.Error != "" {
			line = st.Error
		}
		mu.Lock()
		defer mu.Unlock()
		if line == last {
			return
		}
		last = line
		logger.Info("status", "phase", st.Phase, "label", st.Label, "message", line)
	}
}
