package dashboard

import (
	"encoding/json"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-billsense/pkg/feed"
)

func requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// handleEvents returns recent events, optionally filtered by ?source=.
func (s *Server) handleEvents(c *fiber.Ctx) error {
	events := s.Events()
	source := c.Query("source")
	if source == "" {
		return c.JSON(events)
	}
	filtered := make([]Event, 0, len(events))
	for _, e := range events {
		if e.Source == source {
			filtered = append(filtered, e)
		}
	}
	return c.JSON(filtered)
}

// handleLatest returns the current status line of every source
func (s *Server) handleLatest(c *fiber.Ctx) error {
	return c.JSON(s.Latest())
}

// eventsWS replays recent events then streams new ones.
func (s *Server) eventsWS() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		client := feed.NewClient(s.feed, c)

		events := s.Events()
		if len(events) > replay {
			events = events[len(events)-replay:]
		}
		for _, e := range events {
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			client.Send(feed.Text(data))
		}

		client.Run()
	})
}
