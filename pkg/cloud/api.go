package cloud

import (
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-billsense/pkg/camera"
	"github.com/teslashibe/go-billsense/pkg/detect"
)

// RegisterAPIRoutes registers API routes for client and camera management
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	clients := api.Group("/clients")

	// List connected clients
	clients.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"clients": h.GetClientInfos(),
			"count":   h.ClientCount(),
		})
	})

	// Get hub stats
	clients.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})

	// Get one client's session status
	clients.Get("/:id", func(c *fiber.Ctx) error {
		client := h.GetClient(c.Params("id"))
		if client == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "client not connected"})
		}
		return c.JSON(h.clientInfo(client))
	})

	// Drive a client's session
	clients.Post("/:id/control", func(c *fiber.Ctx) error {
		var cmd struct {
			Action  string `json:"action"`
			Enabled *bool  `json:"enabled"`
		}
		if err := c.BodyParser(&cmd); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		if err := h.Control(c.Params("id"), cmd.Action, cmd.Enabled); err != nil {
			status := fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
			return c.Status(status).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Camera settings for new sessions
	cam := api.Group("/camera")

	cam.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(h.camera.GetConfig())
	})

	cam.Put("/", func(c *fiber.Ctx) error {
		var update camera.Update
		if err := c.BodyParser(&update); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		cfg, err := h.camera.Apply(update)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(cfg)
	})

	cam.Get("/presets", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"presets":      camera.PresetNames(),
			"capabilities": camera.Capabilities(),
		})
	})

	// Engine profiles, read-only
	api.Get("/engine/profiles", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			detect.ProfileStrict:     detect.StrictConfig(),
			detect.ProfilePermissive: detect.PermissiveConfig(),
		})
	})
}
